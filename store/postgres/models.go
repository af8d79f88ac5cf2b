package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/acpflow/deadletter"
	"github.com/xraph/acpflow/id"
	"github.com/xraph/acpflow/job"
)

// jobColumns is the column list shared by every job query, in scan
// order.
const jobColumns = `
	id, category, job_type, parameters, priority, deadline,
	requester_id, requester_address, max_payment, payment_token, sla,
	state, history, response_time_ns, processing_started_at, retry_count,
	payment_status, payment_amount, payment_tx_id, result, delivered_at,
	last_error, error_details, created_at, updated_at`

// jsonb marshals v for a JSONB column, mapping nil-ish values to SQL
// NULL.
func jsonb(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("acpflow/postgres: marshal jsonb: %w", err)
	}
	return data, nil
}

func fromJSONB(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("acpflow/postgres: unmarshal jsonb: %w", err)
	}
	return nil
}

// jobArgs returns the insert/update argument list matching jobColumns.
func jobArgs(rec *job.Record) ([]any, error) {
	params, err := jsonb(rec.Spec.Parameters)
	if err != nil {
		return nil, err
	}
	var sla []byte
	if rec.Spec.SLA != nil {
		if sla, err = jsonb(rec.Spec.SLA); err != nil {
			return nil, err
		}
	}
	history, err := jsonb(rec.History)
	if err != nil {
		return nil, err
	}
	var result []byte
	if rec.Result != nil {
		if result, err = jsonb(rec.Result); err != nil {
			return nil, err
		}
	}
	var details []byte
	if rec.ErrorDetails != nil {
		if details, err = jsonb(rec.ErrorDetails); err != nil {
			return nil, err
		}
	}

	var responseNs *int64
	if rec.ResponseTime != nil {
		ns := rec.ResponseTime.Nanoseconds()
		responseNs = &ns
	}

	return []any{
		rec.ID.String(), string(rec.Spec.Category), string(rec.Spec.Type), params,
		string(rec.Spec.Priority), rec.Spec.Deadline,
		rec.Spec.RequesterID, rec.Spec.RequesterAddress, rec.Spec.MaxPayment,
		rec.Spec.PaymentToken, sla,
		string(rec.State), history, responseNs, rec.ProcessingStartedAt, rec.RetryCount,
		string(rec.PaymentStatus), rec.PaymentAmount, rec.PaymentTxID, result, rec.DeliveredAt,
		rec.LastError, details, rec.CreatedAt, rec.UpdatedAt,
	}, nil
}

func scanRecord(row pgx.Row) (*job.Record, error) {
	var (
		rec        job.Record
		jobID      string
		category   string
		jobType    string
		params     []byte
		priority   string
		sla        []byte
		state      string
		history    []byte
		responseNs *int64
		payStatus  string
		result     []byte
		details    []byte
	)

	err := row.Scan(
		&jobID, &category, &jobType, &params, &priority, &rec.Spec.Deadline,
		&rec.Spec.RequesterID, &rec.Spec.RequesterAddress, &rec.Spec.MaxPayment,
		&rec.Spec.PaymentToken, &sla,
		&state, &history, &responseNs, &rec.ProcessingStartedAt, &rec.RetryCount,
		&payStatus, &rec.PaymentAmount, &rec.PaymentTxID, &result, &rec.DeliveredAt,
		&rec.LastError, &details, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID, err = id.Parse(jobID)
	if err != nil {
		return nil, fmt.Errorf("acpflow/postgres: parse job id: %w", err)
	}
	rec.Spec.Category = job.Category(category)
	rec.Spec.Type = job.Type(jobType)
	rec.Spec.Priority = job.Priority(priority)
	rec.State = job.State(state)
	rec.PaymentStatus = job.PaymentStatus(payStatus)

	if err := fromJSONB(params, &rec.Spec.Parameters); err != nil {
		return nil, err
	}
	if len(sla) > 0 {
		rec.Spec.SLA = &job.SLAConfig{}
		if err := fromJSONB(sla, rec.Spec.SLA); err != nil {
			return nil, err
		}
	}
	if err := fromJSONB(history, &rec.History); err != nil {
		return nil, err
	}
	if len(result) > 0 {
		rec.Result = &job.Result{}
		if err := fromJSONB(result, rec.Result); err != nil {
			return nil, err
		}
	}
	if err := fromJSONB(details, &rec.ErrorDetails); err != nil {
		return nil, err
	}
	if responseNs != nil {
		d := time.Duration(*responseNs)
		rec.ResponseTime = &d
	}

	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*job.Record, error) {
	defer rows.Close()

	var recs []*job.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("acpflow/postgres: scan job: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("acpflow/postgres: iterate jobs: %w", err)
	}
	return recs, nil
}

// deadLetterColumns is the column list shared by dead letter queries,
// in scan order.
const deadLetterColumns = `
	id, job_id, spec, state, error, retry_count, details,
	failed_at, replayed_at, replay_job_id, created_at`

func deadLetterArgs(entry *deadletter.Entry) ([]any, error) {
	spec, err := jsonb(entry.Spec)
	if err != nil {
		return nil, err
	}
	var details []byte
	if entry.Details != nil {
		if details, err = jsonb(entry.Details); err != nil {
			return nil, err
		}
	}
	var replayJobID *string
	if entry.ReplayJobID != nil {
		s := entry.ReplayJobID.String()
		replayJobID = &s
	}

	return []any{
		entry.ID.String(), entry.JobID.String(), spec, string(entry.State),
		entry.Error, entry.RetryCount, details,
		entry.FailedAt, entry.ReplayedAt, replayJobID, entry.CreatedAt,
	}, nil
}

func scanDeadLetter(row pgx.Row) (*deadletter.Entry, error) {
	var (
		entry       deadletter.Entry
		entryID     string
		jobID       string
		spec        []byte
		state       string
		details     []byte
		replayJobID *string
	)

	err := row.Scan(
		&entryID, &jobID, &spec, &state, &entry.Error, &entry.RetryCount, &details,
		&entry.FailedAt, &entry.ReplayedAt, &replayJobID, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if entry.ID, err = id.Parse(entryID); err != nil {
		return nil, fmt.Errorf("acpflow/postgres: parse dead letter id: %w", err)
	}
	if entry.JobID, err = id.Parse(jobID); err != nil {
		return nil, fmt.Errorf("acpflow/postgres: parse dead letter job id: %w", err)
	}
	entry.State = job.State(state)

	if err := fromJSONB(spec, &entry.Spec); err != nil {
		return nil, err
	}
	if err := fromJSONB(details, &entry.Details); err != nil {
		return nil, err
	}
	if replayJobID != nil {
		parsed, err := id.Parse(*replayJobID)
		if err != nil {
			return nil, fmt.Errorf("acpflow/postgres: parse replay job id: %w", err)
		}
		entry.ReplayJobID = &parsed
	}

	return &entry, nil
}
