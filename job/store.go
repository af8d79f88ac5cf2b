package job

import (
	"context"

	"github.com/xraph/acpflow/id"
)

// Store is the persistence contract for job records. Implementations
// must be safe for concurrent use. The orchestrator's per-job
// transition serialization guarantees that no two writers race on the
// same record, so stores need not implement optimistic locking.
type Store interface {
	// CreateJob persists a new record. It returns
	// acpflow.ErrJobAlreadyExists if the ID is already present.
	CreateJob(ctx context.Context, rec *Record) error

	// GetJob returns the record with the given ID, or
	// acpflow.ErrJobNotFound.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// UpdateJob replaces the stored record. It returns
	// acpflow.ErrJobNotFound if the ID is unknown.
	UpdateJob(ctx context.Context, rec *Record) error

	// ListJobsByState returns records in the given state, oldest
	// first. A limit of 0 means no limit.
	ListJobsByState(ctx context.Context, state State, offset, limit int) ([]*Record, error)

	// ListJobsByRequester returns records submitted by the given
	// requester, oldest first.
	ListJobsByRequester(ctx context.Context, requesterID string, offset, limit int) ([]*Record, error)

	// CountJobsByState returns the number of records per state.
	CountJobsByState(ctx context.Context) (map[State]int, error)

	// Close releases the store's resources.
	Close(ctx context.Context) error
}
