package jobs

import (
	"sort"
	"sync"
	"time"

	"music-separator/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"jobId"`
	Type      EventType        `json:"type"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Percent   int              `json:"percent"`
	Cancelled bool             `json:"cancelled,omitempty"`
	Message   string           `json:"message,omitempty"`
	Outputs   []string         `json:"outputs,omitempty"`
}

// ProgressEvent builds the event for one progress notification.
func ProgressEvent(jobID string, percent int) Event {
	return Event{
		JobID:   jobID,
		Type:    EventTypeProgress,
		Status:  domain.JobStatusRunning,
		Percent: percent,
	}
}

// OutcomeEvents builds the events published for a terminal notification:
// a result or error event followed by the final status.
func OutcomeEvents(outcome domain.Outcome) []Event {
	status := Event{
		JobID:     outcome.JobID,
		Type:      EventTypeStatus,
		Status:    outcome.Status,
		Cancelled: outcome.Cancelled,
	}

	switch {
	case outcome.Status == domain.JobStatusFailed:
		status.Message = outcome.Message
		return []Event{{
			JobID:   outcome.JobID,
			Type:    EventTypeError,
			Status:  outcome.Status,
			Message: outcome.Message,
		}, status}
	case outcome.Cancelled:
		status.Message = "Separation stopped"
		return []Event{status}
	default:
		status.Percent = 100
		return []Event{{
			JobID:   outcome.JobID,
			Type:    EventTypeResult,
			Status:  outcome.Status,
			Percent: 100,
			Outputs: append([]string(nil), outcome.Outputs...),
		}, status}
	}
}

// EventBus keeps the most recent events of a session so late subscribers
// (the web UI polling /api/events) can catch up by sequence number.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if len(b.events) == b.maxEvents {
		copy(b.events, b.events[1:])
		b.events = b.events[:b.maxEvents-1]
	}
	b.events = append(b.events, event)

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Sequences are strictly increasing in the buffer.
	start := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Seq > seq
	})
	if start == len(b.events) {
		return nil
	}
	return append([]Event(nil), b.events[start:]...)
}
