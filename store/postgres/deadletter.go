package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/id"
)

const insertDeadLetterSQL = `
	INSERT INTO acpflow_dead_letters (` + deadLetterColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (s *Store) PushDeadLetter(ctx context.Context, entry *deadletter.Entry) error {
	args, err := deadLetterArgs(entry)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertDeadLetterSQL, args...); err != nil {
		return fmt.Errorf("acpflow/postgres: push dead letter: %w", err)
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, opts deadletter.ListOpts) ([]*deadletter.Entry, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM acpflow_dead_letters`
	var args []any
	if opts.Requester != "" {
		query += ` WHERE spec->>'requester_id' = $1`
		args = append(args, opts.Requester)
	}
	query += ` ORDER BY failed_at DESC`
	query += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
	args = append(args, opts.Offset)
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("acpflow/postgres: list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*deadletter.Entry
	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("acpflow/postgres: scan dead letter: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("acpflow/postgres: iterate dead letters: %w", err)
	}
	return entries, nil
}

func (s *Store) GetDeadLetter(ctx context.Context, entryID id.DeadLetterID) (*deadletter.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deadLetterColumns+` FROM acpflow_dead_letters WHERE id = $1`,
		entryID.String())
	entry, err := scanDeadLetter(row)
	if err != nil {
		if isNoRows(err) {
			return nil, acpflow.ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("acpflow/postgres: get dead letter: %w", err)
	}
	return entry, nil
}

func (s *Store) MarkReplayed(ctx context.Context, entryID id.DeadLetterID, replayJobID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE acpflow_dead_letters SET replayed_at = $2, replay_job_id = $3 WHERE id = $1`,
		entryID.String(), time.Now().UTC(), replayJobID.String())
	if err != nil {
		return fmt.Errorf("acpflow/postgres: mark replayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return acpflow.ErrDeadLetterNotFound
	}
	return nil
}

func (s *Store) PurgeDeadLetters(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM acpflow_dead_letters WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("acpflow/postgres: purge dead letters: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountDeadLetters(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM acpflow_dead_letters`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("acpflow/postgres: count dead letters: %w", err)
	}
	return n, nil
}
