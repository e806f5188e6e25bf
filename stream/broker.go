package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/svetoslav0421/nocode-claude-ai/ext"
	"github.com/svetoslav0421/nocode-claude-ai/job"
)

var (
	_ ext.Extension     = (*Broker)(nil)
	_ ext.JobEnqueued   = (*Broker)(nil)
	_ ext.JobStarted    = (*Broker)(nil)
	_ ext.JobCompleted  = (*Broker)(nil)
	_ ext.JobRetrying   = (*Broker)(nil)
	_ ext.JobFailed     = (*Broker)(nil)
	_ ext.JobReset      = (*Broker)(nil)
	_ ext.StaleRequeued = (*Broker)(nil)
	_ ext.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 64

// Broker receives lifecycle hooks from the engine and publishes them to
// topic subscribers.
type Broker struct {
	topics *topicRegistry
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[string]*Subscriber

	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	bufferSize int
	now        func() time.Time
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a Broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:      newTopicRegistry(),
		logger:      logger,
		subscribers: make(map[string]*Subscriber),
		bufferSize:  DefaultBufferSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Subscribe registers a subscriber on topics. Subscribing with an ID that
// is already in use replaces the previous subscriber.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := newSubscriber(subscriberID, b.bufferSize)

	b.mu.Lock()
	if prev, ok := b.subscribers[subscriberID]; ok {
		b.topics.unsubscribeAll(subscriberID)
		prev.close()
	}
	b.subscribers[subscriberID] = sub
	b.mu.Unlock()

	for _, topic := range topics {
		b.topics.subscribe(topic, sub)
	}
	return sub
}

// RemoveSubscriber detaches a subscriber from every topic and closes its
// channel.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	delete(b.subscribers, subscriberID)
	b.mu.Unlock()

	b.topics.unsubscribeAll(subscriberID)
	if ok {
		sub.close()
	}
}

// BrokerStats contains broker counters.
type BrokerStats struct {
	TopicCount      int   `json:"topicCount"`
	SubscriberCount int   `json:"subscriberCount"`
	TotalPublished  int64 `json:"totalPublished"`
	TotalDropped    int64 `json:"totalDropped"`
}

// Stats returns broker counters.
func (b *Broker) Stats() BrokerStats {
	b.mu.Lock()
	n := len(b.subscribers)
	b.mu.Unlock()
	return BrokerStats{
		TopicCount:      b.topics.count(),
		SubscriberCount: n,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

func (b *Broker) publish(evt *Event) {
	delivered, dropped := b.topics.broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
	if dropped > 0 {
		b.totalDropped.Add(int64(dropped))
		b.logger.Debug("stream events dropped",
			slog.String("event", string(evt.Type)),
			slog.Int("dropped", dropped),
		)
	}
}

func (b *Broker) publishJob(typ EventType, j *job.Job, data JobEventData) {
	data.JobID = j.ID.String()
	data.JobType = string(j.Type)
	data.Status = string(j.Status)
	data.Attempts = j.Attempts
	b.publish(&Event{
		Type:      typ,
		Timestamp: b.now(),
		Topic:     JobTopic(j.ID.String()),
		Data:      mustMarshal(data),
		jobType:   string(j.Type),
	})
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobEnqueued, j, JobEventData{})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobStarted, j, JobEventData{})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.publishJob(EventJobCompleted, j, JobEventData{ElapsedMs: elapsed.Milliseconds()})
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, _ int, nextRunAt time.Time) error {
	b.publishJob(EventJobRetrying, j, JobEventData{Error: j.Error, NextRunAt: nextRunAt.Format(time.RFC3339)})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.publishJob(EventJobFailed, j, JobEventData{Error: jobErr.Error()})
	return nil
}

func (b *Broker) OnJobReset(_ context.Context, j *job.Job) error {
	b.publishJob(EventJobReset, j, JobEventData{})
	return nil
}

func (b *Broker) OnStaleRequeued(_ context.Context, count int64) error {
	b.publish(&Event{
		Type:      EventStaleRequeued,
		Timestamp: b.now(),
		Data:      mustMarshal(SweepEventData{Count: count}),
	})
	return nil
}

// OnShutdown closes every subscriber so streaming clients disconnect.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.mu.Lock()
	ids := make([]string, 0, len(b.subscribers))
	for sid := range b.subscribers {
		ids = append(ids, sid)
	}
	b.mu.Unlock()
	for _, sid := range ids {
		b.RemoveSubscriber(sid)
	}
	return nil
}
