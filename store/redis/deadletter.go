package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/id"
)

// PushDeadLetter adds a dead letter entry, indexed by failure time.
func (s *Store) PushDeadLetter(ctx context.Context, entry *deadletter.Entry) error {
	eID := entry.ID.String()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("acpflow/redis: marshal dead letter: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, deadLetterKey(eID), data, 0)
	pipe.ZAdd(ctx, deadLetterIndexKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixMilli()),
		Member: eID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acpflow/redis: push dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns entries matching the given options, newest
// failure first.
func (s *Store) ListDeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, deadLetterIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("acpflow/redis: list dead letters: %w", err)
	}

	entries := make([]*deadletter.Entry, 0, len(ids))
	for _, eID := range ids {
		e, getErr := s.getDeadLetter(ctx, eID)
		if getErr != nil {
			continue
		}
		if opts.Requester != "" && e.Spec.RequesterID != opts.Requester {
			continue
		}
		entries = append(entries, e)
	}

	if opts.Offset >= len(entries) {
		return nil, nil
	}
	if opts.Offset > 0 {
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDeadLetter retrieves an entry by ID.
func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	return s.getDeadLetter(ctx, entryID.String())
}

// MarkReplayed stamps ReplayedAt and the replacement job ID on an
// entry.
func (s *Store) MarkReplayed(ctx context.Context, entryID id.DeadLetterID, replayJobID id.JobID) error {
	entry, err := s.getDeadLetter(ctx, entryID.String())
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry.ReplayedAt = &now
	entry.ReplayJobID = &replayJobID

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("acpflow/redis: marshal dead letter: %w", err)
	}
	if err := s.client.Set(ctx, deadLetterKey(entryID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("acpflow/redis: mark replayed: %w", err)
	}
	return nil
}

// PurgeDeadLetters removes entries that failed before the given time.
func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	cutoff := fmt.Sprintf("(%d", before.UnixMilli())
	ids, err := s.client.ZRangeByScore(ctx, deadLetterIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("acpflow/redis: purge scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, deadLetterKey(eID))
		pipe.ZRem(ctx, deadLetterIndexKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("acpflow/redis: purge dead letters: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDeadLetters returns the total number of entries.
func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, deadLetterIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("acpflow/redis: count dead letters: %w", err)
	}
	return n, nil
}

func (s *Store) getDeadLetter(ctx context.Context, eID string) (*deadletter.Entry, error) {
	data, err := s.client.Get(ctx, deadLetterKey(eID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, acpflow.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("acpflow/redis: get dead letter: %w", err)
	}

	var entry deadletter.Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("acpflow/redis: unmarshal dead letter: %w", err)
	}
	return &entry, nil
}
