package deadletter

import (
	"context"
	"time"

	"github.com/xraph/acpflow/id"
)

// ListOpts controls pagination and filtering for dead letter queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Requester filters by requester ID. Empty means all requesters.
	Requester string
}

// Store defines the persistence contract for dead letter entries.
type Store interface {
	// PushDeadLetter adds an entry.
	PushDeadLetter(ctx context.Context, entry *Entry) error

	// ListDeadLetters returns entries matching the given options,
	// newest failure first.
	ListDeadLetters(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDeadLetter retrieves an entry by ID, or returns
	// acpflow.ErrDeadLetterNotFound.
	GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*Entry, error)

	// MarkReplayed stamps ReplayedAt and the replacement job ID on an
	// entry. The resubmission itself is handled at the service layer.
	MarkReplayed(ctx context.Context, entryID id.DeadLetterID, replayJobID id.JobID) error

	// PurgeDeadLetters removes entries with FailedAt before the given
	// time. Returns the number of entries removed.
	PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error)

	// CountDeadLetters returns the total number of entries.
	CountDeadLetters(ctx context.Context) (int64, error)
}
