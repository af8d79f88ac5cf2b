package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

// Ensure Store implements every subsystem contract at compile time.
var (
	_ job.Store        = (*Store)(nil)
	_ deadletter.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs        map[string]*job.Record
	deadLetters map[string]*deadletter.Entry
	closed      bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]*job.Record),
		deadLetters: make(map[string]*deadletter.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close marks the store closed. Subsequent operations fail with
// acpflow.ErrStoreClosed.
func (m *Store) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CreateJob persists a new job record.
func (m *Store) CreateJob(_ context.Context, rec *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return acpflow.ErrStoreClosed
	}
	key := rec.ID.String()
	if _, exists := m.jobs[key]; exists {
		return acpflow.ErrJobAlreadyExists
	}
	m.jobs[key] = rec.Clone()
	return nil
}

// GetJob retrieves a job record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, acpflow.ErrStoreClosed
	}
	rec, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, acpflow.ErrJobNotFound
	}
	return rec.Clone(), nil
}

// UpdateJob persists changes to an existing job record.
func (m *Store) UpdateJob(_ context.Context, rec *job.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return acpflow.ErrStoreClosed
	}
	key := rec.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return acpflow.ErrJobNotFound
	}
	m.jobs[key] = rec.Clone()
	return nil
}

// ListJobsByState returns jobs in the given state, oldest first.
func (m *Store) ListJobsByState(_ context.Context, state job.State, offset, limit int) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, acpflow.ErrStoreClosed
	}
	result := make([]*job.Record, 0, len(m.jobs))
	for _, rec := range m.jobs {
		if rec.State == state {
			result = append(result, rec.Clone())
		}
	}
	return paginate(result, offset, limit), nil
}

// ListJobsByRequester returns jobs submitted by the given requester,
// oldest first.
func (m *Store) ListJobsByRequester(_ context.Context, requesterID string, offset, limit int) ([]*job.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, acpflow.ErrStoreClosed
	}
	result := make([]*job.Record, 0, len(m.jobs))
	for _, rec := range m.jobs {
		if rec.Spec.RequesterID == requesterID {
			result = append(result, rec.Clone())
		}
	}
	return paginate(result, offset, limit), nil
}

// CountJobsByState returns the number of jobs per state.
func (m *Store) CountJobsByState(_ context.Context) (map[job.State]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, acpflow.ErrStoreClosed
	}
	counts := make(map[job.State]int)
	for _, rec := range m.jobs {
		counts[rec.State]++
	}
	return counts, nil
}

// paginate sorts by CreatedAt for deterministic output and applies
// offset / limit.
func paginate(recs []*job.Record, offset, limit int) []*job.Record {
	sort.Slice(recs, func(i, k int) bool {
		return recs[i].CreatedAt.Before(recs[k].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(recs) {
			return nil
		}
		recs = recs[offset:]
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// PushDeadLetter adds a dead letter entry.
func (m *Store) PushDeadLetter(_ context.Context, entry *deadletter.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return acpflow.ErrStoreClosed
	}
	cp := *entry
	m.deadLetters[entry.ID.String()] = &cp
	return nil
}

// ListDeadLetters returns entries matching the given options, newest
// failure first.
func (m *Store) ListDeadLetters(_ context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, acpflow.ErrStoreClosed
	}
	result := make([]*deadletter.Entry, 0, len(m.deadLetters))
	for _, e := range m.deadLetters {
		if opts.Requester != "" && e.Spec.RequesterID != opts.Requester {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.After(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// GetDeadLetter retrieves an entry by ID.
func (m *Store) GetDeadLetter(_ context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, acpflow.ErrStoreClosed
	}
	e, ok := m.deadLetters[entryID.String()]
	if !ok {
		return nil, acpflow.ErrDeadLetterNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayed stamps ReplayedAt and the replacement job ID.
func (m *Store) MarkReplayed(_ context.Context, entryID id.DeadLetterID, replayJobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return acpflow.ErrStoreClosed
	}
	e, ok := m.deadLetters[entryID.String()]
	if !ok {
		return acpflow.ErrDeadLetterNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	e.ReplayJobID = &replayJobID
	return nil
}

// PurgeDeadLetters removes entries with FailedAt before the given time.
func (m *Store) PurgeDeadLetters(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, acpflow.ErrStoreClosed
	}
	var removed int64
	for key, e := range m.deadLetters {
		if e.FailedAt.Before(before) {
			delete(m.deadLetters, key)
			removed++
		}
	}
	return removed, nil
}

// CountDeadLetters returns the total number of entries.
func (m *Store) CountDeadLetters(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, acpflow.ErrStoreClosed
	}
	return int64(len(m.deadLetters)), nil
}
