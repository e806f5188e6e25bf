// Package stream fans job lifecycle events out to live subscribers. The
// Broker is an engine extension; the HTTP API serves its topics as
// server-sent events.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
	EventJobReset     EventType = "job.reset"

	// EventStaleRequeued carries no job; it is published on TopicJobs only.
	EventStaleRequeued EventType = "job.stale_requeued"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Topic     string          `json:"topic,omitempty"`
	Data      json.RawMessage `json:"data"`

	// jobType routes the event to its type topic; not serialized.
	jobType string
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID     string `json:"jobId"`
	JobType   string `json:"jobType"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
	Error     string `json:"error,omitempty"`
	NextRunAt string `json:"nextRunAt,omitempty"`
}

// SweepEventData is the payload for EventStaleRequeued.
type SweepEventData struct {
	Count int64 `json:"count"`
}
