package deadletter

import (
	"time"

	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

// Entry is a snapshot of a job that entered an error state. The spec is
// preserved in full so the job can be replayed; the diagnostic fields
// are copied for inspection without loading the original record.
type Entry struct {
	ID          id.DeadLetterID `json:"id"`
	JobID       id.JobID        `json:"job_id"`
	Spec        job.Spec        `json:"spec"`
	State       job.State       `json:"state"`
	Error       string          `json:"error"`
	RetryCount  int             `json:"retry_count"`
	Details     map[string]any  `json:"details,omitempty"`
	FailedAt    time.Time       `json:"failed_at"`
	ReplayedAt  *time.Time      `json:"replayed_at,omitempty"`
	ReplayJobID *id.JobID       `json:"replay_job_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
