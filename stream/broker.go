package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/acpflow/hook"
	"github.com/xraph/acpflow/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension    = (*Broker)(nil)
	_ hook.JobCreated   = (*Broker)(nil)
	_ hook.StateChanged = (*Broker)(nil)
	_ hook.JobRejected  = (*Broker)(nil)
	_ hook.JobCompleted = (*Broker)(nil)
	_ hook.JobFinalized = (*Broker)(nil)
	_ hook.SLABreach    = (*Broker)(nil)
	_ hook.DeadLettered = (*Broker)(nil)
	_ hook.Shutdown     = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the
// hook.Extension interface to receive lifecycle events and fans them
// out to subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker. Register it as an extension:
//
//	agent.WithExtension(stream.NewBroker(logger))
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func baseData(rec *job.Record) JobEventData {
	return JobEventData{
		JobID:     rec.ID.String(),
		JobType:   string(rec.Spec.Type),
		Category:  string(rec.Spec.Category),
		Requester: rec.Spec.RequesterID,
		State:     string(rec.State),
	}
}

func (b *Broker) emit(rec *job.Record, typ EventType, data JobEventData) {
	b.publish(&Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(rec.ID.String()),
		Requester: rec.Spec.RequesterID,
		Data:      mustMarshal(data),
	})
}

func (b *Broker) OnJobCreated(_ context.Context, rec *job.Record) error {
	b.emit(rec, EventJobCreated, baseData(rec))
	return nil
}

func (b *Broker) OnStateChanged(_ context.Context, rec *job.Record, from, to job.State, reason string) error {
	data := baseData(rec)
	data.From = string(from)
	data.To = string(to)
	data.Reason = reason
	b.emit(rec, EventStateChanged, data)
	return nil
}

func (b *Broker) OnJobRejected(_ context.Context, rec *job.Record, reason string) error {
	data := baseData(rec)
	data.Reason = reason
	b.emit(rec, EventJobRejected, data)
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, rec *job.Record, elapsed time.Duration) error {
	data := baseData(rec)
	data.ElapsedMs = elapsed.Milliseconds()
	b.emit(rec, EventJobCompleted, data)
	return nil
}

func (b *Broker) OnJobFinalized(_ context.Context, rec *job.Record) error {
	data := baseData(rec)
	data.PaymentStatus = string(rec.PaymentStatus)
	data.PaymentAmount = rec.PaymentAmount
	b.emit(rec, EventJobFinalized, data)
	return nil
}

func (b *Broker) OnSLABreach(_ context.Context, rec *job.Record, breach string) error {
	data := baseData(rec)
	data.Breach = breach
	b.emit(rec, EventSLABreach, data)
	return nil
}

func (b *Broker) OnDeadLettered(_ context.Context, rec *job.Record, jobErr error) error {
	data := baseData(rec)
	if jobErr != nil {
		data.Error = jobErr.Error()
	}
	b.emit(rec, EventJobDeadLettered, data)
	return nil
}

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
