// Package lifecycle implements the job state machine at the heart of
// acpflow. The [Orchestrator] owns every job record: it creates records,
// serializes transitions per job, dispatches registered [Handler]s for
// the state a job has just entered, and persists the record through a
// [job.Store].
//
// Handlers drive the lifecycle forward by calling [Orchestrator.Transition]
// from inside their own dispatch. Such nested transitions run on the
// same goroutine under the job's lock, so a single external trigger can
// cascade a job through several states atomically with respect to other
// callers.
package lifecycle
