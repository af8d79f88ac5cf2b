package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

// CreateJob stores the record as a Hash and indexes it by state and
// requester.
func (s *Store) CreateJob(ctx context.Context, rec *job.Record) error {
	jID := rec.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("acpflow/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return acpflow.ErrJobAlreadyExists
	}

	fields, err := recordFields(rec)
	if err != nil {
		return err
	}
	score := float64(rec.CreatedAt.UnixMilli())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZAdd(ctx, stateKey(string(rec.State)), goredis.Z{Score: score, Member: jID})
	if rec.Spec.RequesterID != "" {
		pipe.ZAdd(ctx, requesterKey(rec.Spec.RequesterID), goredis.Z{Score: score, Member: jID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acpflow/redis: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing record, moving it between
// state indexes when its state changed.
func (s *Store) UpdateJob(ctx context.Context, rec *job.Record) error {
	jID := rec.ID.String()
	key := jobKey(jID)

	oldState, err := s.client.HGet(ctx, key, "state").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return acpflow.ErrJobNotFound
		}
		return fmt.Errorf("acpflow/redis: update job get state: %w", err)
	}

	fields, err := recordFields(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if oldState != string(rec.State) {
		pipe.ZRem(ctx, stateKey(oldState), jID)
		pipe.ZAdd(ctx, stateKey(string(rec.State)),
			goredis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: jID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acpflow/redis: update job: %w", err)
	}
	return nil
}

// ListJobsByState returns records in the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, offset, limit int) ([]*job.Record, error) {
	return s.listIndex(ctx, stateKey(string(state)), offset, limit)
}

// ListJobsByRequester returns a requester's records, oldest first.
func (s *Store) ListJobsByRequester(ctx context.Context, requesterID string, offset, limit int) ([]*job.Record, error) {
	return s.listIndex(ctx, requesterKey(requesterID), offset, limit)
}

// CountJobsByState returns the number of jobs in each lifecycle state.
func (s *Store) CountJobsByState(ctx context.Context) (map[job.State]int, error) {
	counts := make(map[job.State]int, len(job.States()))

	pipe := s.client.Pipeline()
	cmds := make(map[job.State]*goredis.IntCmd, len(job.States()))
	for _, state := range job.States() {
		cmds[state] = pipe.ZCard(ctx, stateKey(string(state)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("acpflow/redis: count jobs: %w", err)
	}
	for state, cmd := range cmds {
		counts[state] = int(cmd.Val())
	}
	return counts, nil
}

// ── helpers ──

func (s *Store) listIndex(ctx context.Context, indexKey string, offset, limit int) ([]*job.Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	ids, err := s.client.ZRange(ctx, indexKey, int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("acpflow/redis: list jobs zrange: %w", err)
	}

	recs := make([]*job.Record, 0, len(ids))
	for _, jID := range ids {
		rec, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			// Index entry outlived the record; skip it.
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// recordFields encodes a record into hash fields. The full record
// rides in "data"; "state" and "requester" are duplicated for index
// maintenance without a decode.
func recordFields(rec *job.Record) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("acpflow/redis: marshal record: %w", err)
	}
	return map[string]any{
		"id":         rec.ID.String(),
		"state":      string(rec.State),
		"requester":  rec.Spec.RequesterID,
		"data":       string(data),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Record, error) {
	data, err := s.client.HGet(ctx, key, "data").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, acpflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("acpflow/redis: get job: %w", err)
	}

	var rec job.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("acpflow/redis: unmarshal record: %w", err)
	}
	return &rec, nil
}
