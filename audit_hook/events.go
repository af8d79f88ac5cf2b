package audithook

// Audit event actions. Each constant corresponds to one lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobCreated      = "job.created"
	ActionStateChanged    = "job.state_changed"
	ActionJobRejected     = "job.rejected"
	ActionJobCompleted    = "job.completed"
	ActionJobFinalized    = "job.finalized"
	ActionSLABreach       = "job.sla_breach"
	ActionJobDeadLettered = "job.dead_lettered"
)

// Audit event categories group related actions.
const (
	CategoryLifecycle = "acpflow.lifecycle"
	CategorySLA       = "acpflow.sla"
)

// ResourceJob is the resource type used in every audit event.
const ResourceJob = "job"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionStateChanged,
		ActionJobRejected,
		ActionJobCompleted,
		ActionJobFinalized,
		ActionSLABreach,
		ActionJobDeadLettered,
	}
}
