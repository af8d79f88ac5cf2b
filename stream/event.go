// Package stream provides a real-time event broker for acpflow
// lifecycle events. It bridges the hook.Extension system to connected
// clients via topic-based pub/sub, so requesters can follow their jobs
// as they move through the lifecycle.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobCreated      EventType = "job.created"
	EventStateChanged    EventType = "job.state_changed"
	EventJobRejected     EventType = "job.rejected"
	EventJobCompleted    EventType = "job.completed"
	EventJobFinalized    EventType = "job.finalized"
	EventSLABreach       EventType = "job.sla_breach"
	EventJobDeadLettered EventType = "job.dead_lettered"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the entity channel this event was published on.
	Topic string `json:"topic"`

	// Requester is the submitting requester, used for per-requester
	// fan-out.
	Requester string `json:"requester,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID         string  `json:"job_id"`
	JobType       string  `json:"job_type"`
	Category      string  `json:"category"`
	Requester     string  `json:"requester,omitempty"`
	State         string  `json:"state,omitempty"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	Breach        string  `json:"breach,omitempty"`
	ElapsedMs     int64   `json:"elapsed_ms,omitempty"`
	Error         string  `json:"error,omitempty"`
	PaymentStatus string  `json:"payment_status,omitempty"`
	PaymentAmount float64 `json:"payment_amount,omitempty"`
}
