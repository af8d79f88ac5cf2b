package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

const insertJobSQL = `
	INSERT INTO acpflow_jobs (` + jobColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

const updateJobSQL = `
	UPDATE acpflow_jobs SET
		category = $2, job_type = $3, parameters = $4, priority = $5,
		deadline = $6, requester_id = $7, requester_address = $8,
		max_payment = $9, payment_token = $10, sla = $11, state = $12,
		history = $13, response_time_ns = $14, processing_started_at = $15,
		retry_count = $16, payment_status = $17, payment_amount = $18,
		payment_tx_id = $19, result = $20, delivered_at = $21,
		last_error = $22, error_details = $23, created_at = $24,
		updated_at = $25
	WHERE id = $1`

func (s *Store) CreateJob(ctx context.Context, rec *job.Record) error {
	args, err := jobArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertJobSQL, args...); err != nil {
		if isDuplicateKey(err) {
			return acpflow.ErrJobAlreadyExists
		}
		return fmt.Errorf("acpflow/postgres: create job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM acpflow_jobs WHERE id = $1`,
		jobID.String())
	rec, err := scanRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, acpflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("acpflow/postgres: get job: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdateJob(ctx context.Context, rec *job.Record) error {
	args, err := jobArgs(rec)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, updateJobSQL, args...)
	if err != nil {
		return fmt.Errorf("acpflow/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return acpflow.ErrJobNotFound
	}
	return nil
}

func (s *Store) ListJobsByState(ctx context.Context, state job.State, offset, limit int) ([]*job.Record, error) {
	query := `SELECT ` + jobColumns + `
		FROM acpflow_jobs WHERE state = $1
		ORDER BY created_at ASC OFFSET $2`
	args := []any{string(state), offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("acpflow/postgres: list jobs by state: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) ListJobsByRequester(ctx context.Context, requesterID string, offset, limit int) ([]*job.Record, error) {
	query := `SELECT ` + jobColumns + `
		FROM acpflow_jobs WHERE requester_id = $1
		ORDER BY created_at ASC OFFSET $2`
	args := []any{requesterID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("acpflow/postgres: list jobs by requester: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) CountJobsByState(ctx context.Context) (map[job.State]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT state, COUNT(*) FROM acpflow_jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("acpflow/postgres: count jobs by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[job.State]int, len(job.States()))
	for _, state := range job.States() {
		counts[state] = 0
	}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("acpflow/postgres: scan state count: %w", err)
		}
		counts[job.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("acpflow/postgres: iterate state counts: %w", err)
	}
	return counts, nil
}
