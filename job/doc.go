// Package job defines the data model for agent-commerce jobs: the
// immutable Spec submitted by a requester, the mutable Record owned by
// the lifecycle orchestrator, the fixed state set, and the Store
// contract for the job table.
package job
