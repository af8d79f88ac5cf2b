package job

import (
	"time"

	"github.com/xraph/acpflow"
	"github.com/xraph/acpflow/id"
)

// State represents a job's position in the lifecycle state machine.
type State string

const (
	// StatePending means the job has been submitted but not yet accepted.
	StatePending State = "pending"
	// StateValidating means the job is being validated by intake.
	StateValidating State = "validating"
	// StateRejected means the job failed validation or capacity checks.
	StateRejected State = "rejected"
	// StateAccepted means the job passed intake and awaits processing.
	StateAccepted State = "accepted"
	// StateProcessing means a processor is executing the job.
	StateProcessing State = "processing"
	// StateProcessingError means processing failed after exhausting retries.
	StateProcessingError State = "processing_error"
	// StateAwaitingPayment means the job is waiting for payment settlement.
	StateAwaitingPayment State = "awaiting_payment"
	// StatePaymentError means payment failed or timed out.
	StatePaymentError State = "payment_error"
	// StateCompleted means processing (and possibly delivery) succeeded.
	StateCompleted State = "completed"
	// StateDelivering means the result is being delivered to the requester.
	StateDelivering State = "delivering"
	// StateDeliveryError means delivery failed after exhausting attempts.
	StateDeliveryError State = "delivery_error"
	// StateFinalized means the job is complete with payment settled.
	StateFinalized State = "finalized"
	// StateCancelled means the job was cancelled by either party.
	StateCancelled State = "cancelled"
	// StateDisputed means the job is in dispute resolution.
	StateDisputed State = "disputed"
)

// States returns the fixed set of lifecycle states.
func States() []State {
	return []State{
		StatePending, StateValidating, StateRejected,
		StateAccepted, StateProcessing, StateProcessingError,
		StateAwaitingPayment, StatePaymentError,
		StateCompleted, StateDelivering, StateDeliveryError,
		StateFinalized, StateCancelled, StateDisputed,
	}
}

// Valid reports whether s is a member of the fixed state set.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateValidating, StateRejected,
		StateAccepted, StateProcessing, StateProcessingError,
		StateAwaitingPayment, StatePaymentError,
		StateCompleted, StateDelivering, StateDeliveryError,
		StateFinalized, StateCancelled, StateDisputed:
		return true
	}
	return false
}

// Terminal reports whether s is a state with no registered handlers, so
// a job in it receives no further automatic transitions.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateProcessingError, StatePaymentError,
		StateDeliveryError, StateFinalized, StateCancelled, StateDisputed:
		return true
	}
	return false
}

// Priority sets how a job is priced and ordered relative to others.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Category groups job types into pricing and settlement classes.
type Category string

const (
	CategoryMarketAnalysis      Category = "market_analysis"
	CategoryTradeExecution      Category = "trade_execution"
	CategoryPortfolioManagement Category = "portfolio_management"
	CategoryArbitrageDetection  Category = "arbitrage_detection"
	CategoryCustom              Category = "custom"
)

// Type identifies the specific kind of work within a category.
type Type string

const (
	// Market analysis jobs.
	TypeAnalyzeMarket     Type = "analyze_market"
	TypeAnalyzeOutcomes   Type = "analyze_outcomes"
	TypeMarketReport      Type = "market_report"
	TypeSentimentAnalysis Type = "sentiment_analysis"
	TypeTraderAnalysis    Type = "trader_analysis"

	// Trade execution jobs.
	TypePlaceOrder     Type = "place_order"
	TypeCancelOrder    Type = "cancel_order"
	TypeManagePosition Type = "manage_position"

	// Portfolio management jobs.
	TypeOptimizePortfolio  Type = "optimize_portfolio"
	TypeRiskAssessment     Type = "risk_assessment"
	TypeRebalancePortfolio Type = "rebalance_portfolio"

	// Arbitrage detection jobs.
	TypeDetectArbitrage  Type = "detect_arbitrage"
	TypeExecuteArbitrage Type = "execute_arbitrage"

	// Custom jobs.
	TypeCustom Type = "custom_job"
)

// PaymentStatus tracks settlement progress for a job.
type PaymentStatus string

const (
	PaymentNotStarted PaymentStatus = "not_started"
	PaymentPending    PaymentStatus = "pending"
	// PaymentPartial is carried for wire compatibility with the
	// settlement service; the engine never sets it.
	PaymentPartial   PaymentStatus = "partial"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// SLAConfig is the per-job timing and quality contract.
type SLAConfig struct {
	// ResponseTime is the maximum time from submission to acceptance.
	ResponseTime time.Duration `json:"response_time"`
	// ProcessingTime is the maximum wall-clock time for one processing
	// attempt.
	ProcessingTime time.Duration `json:"processing_time"`
	// MaxRetries is the retry budget for failed processing attempts.
	MaxRetries int `json:"max_retries"`
	// CompletionThreshold is the minimum completion fraction (0.0–1.0)
	// for a result to count as successful.
	CompletionThreshold float64 `json:"completion_threshold"`
}

// DefaultSLA returns the SLA applied when a spec carries none.
func DefaultSLA() SLAConfig {
	return SLAConfig{
		ResponseTime:        60 * time.Second,
		ProcessingTime:      300 * time.Second,
		MaxRetries:          3,
		CompletionThreshold: 0.95,
	}
}

// Spec is the immutable request a requester submits. It is owned by the
// requester and never mutated after intake.
type Spec struct {
	Category         Category       `json:"category"`
	Type             Type           `json:"job_type"`
	Parameters       map[string]any `json:"parameters"`
	Priority         Priority       `json:"priority"`
	Deadline         *time.Time     `json:"deadline,omitempty"`
	RequesterID      string         `json:"requester_id"`
	RequesterAddress string         `json:"requester_address"`
	MaxPayment       *float64       `json:"max_payment,omitempty"`
	PaymentToken     string         `json:"payment_token"`
	SLA              *SLAConfig     `json:"sla,omitempty"`
}

// EffectiveSLA returns the spec's SLA, or the default when unset.
func (s *Spec) EffectiveSLA() SLAConfig {
	if s.SLA != nil {
		return *s.SLA
	}
	return DefaultSLA()
}

// Result holds the output of a successful processing attempt.
type Result struct {
	Success              bool           `json:"success"`
	Data                 map[string]any `json:"data"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	CompletionPercentage float64        `json:"completion_percentage"`
	ExecutionTime        time.Duration  `json:"execution_time"`
}

// Transition is one entry in a record's append-only state history.
// State is the state the job was in immediately before the transition.
type Transition struct {
	State  State     `json:"state"`
	At     time.Time `json:"timestamp"`
	Reason string    `json:"reason,omitempty"`
}

// Record is the complete, mutable record of a job. It is owned
// exclusively by the lifecycle orchestrator: only the orchestrator's
// transition routine and handlers holding a reference to the current
// record may mutate it. Records are never deleted; terminal states
// simply stop receiving transitions.
type Record struct {
	acpflow.Entity

	ID    id.JobID `json:"id"`
	Spec  Spec     `json:"spec"`
	State State    `json:"state"`

	// History is the append-only log of every transition ever
	// performed, never truncated. Its length always equals the number
	// of transitions performed.
	History []Transition `json:"previous_states"`

	// ResponseTime is the elapsed time from creation to acceptance.
	ResponseTime *time.Duration `json:"response_time,omitempty"`

	// ProcessingStartedAt is the wall-clock start of the current
	// processing attempt, cleared to nil when a retry is scheduled.
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`

	// RetryCount is monotonically non-decreasing and never reset
	// within a job's life.
	RetryCount int `json:"retry_count"`

	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentAmount float64       `json:"payment_amount"`
	PaymentTxID   string        `json:"payment_txid,omitempty"`

	// Result is present only once a processor has succeeded.
	Result *Result `json:"result,omitempty"`

	// DeliveredAt is set when the result has been delivered and
	// acknowledged by the registry.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	// LastError and ErrorDetails form a free-form diagnostic bag.
	// ErrorDetails also carries the delivery attempt counter.
	LastError    string         `json:"last_error,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
}

// New creates a Record in StatePending from the given spec.
func New(spec Spec) *Record {
	return &Record{
		Entity:        acpflow.NewEntity(),
		ID:            id.NewJobID(),
		Spec:          spec,
		State:         StatePending,
		PaymentStatus: PaymentNotStarted,
	}
}

// RecordTransition appends the current state to the history and moves
// the record to newState, refreshing UpdatedAt. Callers go through the
// lifecycle orchestrator, which serializes transitions per job.
func (r *Record) RecordTransition(newState State, reason string) {
	r.History = append(r.History, Transition{
		State:  r.State,
		At:     time.Now().UTC(),
		Reason: reason,
	})
	r.State = newState
	r.Touch()
}

// Clone returns a deep copy of the record. Stores return clones so
// callers can mutate freely without racing against stored state.
func (r *Record) Clone() *Record {
	cp := *r
	cp.History = append([]Transition(nil), r.History...)
	if r.ResponseTime != nil {
		d := *r.ResponseTime
		cp.ResponseTime = &d
	}
	if r.ProcessingStartedAt != nil {
		t := *r.ProcessingStartedAt
		cp.ProcessingStartedAt = &t
	}
	if r.DeliveredAt != nil {
		t := *r.DeliveredAt
		cp.DeliveredAt = &t
	}
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	if r.ErrorDetails != nil {
		cp.ErrorDetails = make(map[string]any, len(r.ErrorDetails))
		for k, v := range r.ErrorDetails {
			cp.ErrorDetails[k] = v
		}
	}
	return &cp
}

// Delivered reports whether the result has been delivered.
func (r *Record) Delivered() bool { return r.DeliveredAt != nil }

// StateEnteredAt returns when the record first entered its current
// state run. Same-state re-entries (a delivery retry transitions
// DELIVERING to DELIVERING) do not reset the clock. A record that has
// never transitioned entered its state at creation.
func (r *Record) StateEnteredAt() time.Time {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].State != r.State {
			return r.History[i].At
		}
	}
	return r.CreatedAt
}

// SetErrorDetail records a key in the diagnostic bag, allocating it on
// first use.
func (r *Record) SetErrorDetail(key string, value any) {
	if r.ErrorDetails == nil {
		r.ErrorDetails = make(map[string]any)
	}
	r.ErrorDetails[key] = value
}

// deliveryAttemptsKey is the diagnostic-bag key tracking delivery attempts.
const deliveryAttemptsKey = "delivery_attempts"

// DeliveryAttempts returns how many delivery attempts have been made.
// The counter lives in the diagnostic bag, so it survives JSON
// round-trips through any store backend (which decode numbers as
// float64).
func (r *Record) DeliveryAttempts() int {
	if r.ErrorDetails == nil {
		return 0
	}
	switch v := r.ErrorDetails[deliveryAttemptsKey].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// IncDeliveryAttempts increments the delivery attempt counter and
// returns the new value.
func (r *Record) IncDeliveryAttempts() int {
	n := r.DeliveryAttempts() + 1
	r.SetErrorDetail(deliveryAttemptsKey, n)
	return n
}
