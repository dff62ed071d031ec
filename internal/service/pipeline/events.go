package pipeline

import (
	"sync"
	"time"

	"media-transcription-pipeline/internal/models"
)

// EventType classifies job events.
type EventType string

const (
	EventTypeStage     EventType = "stage"
	EventTypeSegment   EventType = "segment"
	EventTypeCompleted EventType = "completed"
	EventTypeError     EventType = "error"
)

// Event is a sequenced job notification for live subscribers.
type Event struct {
	Seq               int64                `json:"seq"`
	Timestamp         time.Time            `json:"timestamp"`
	JobID             string               `json:"jobId"`
	Type              EventType            `json:"type"`
	Stage             models.Stage         `json:"stage,omitempty"`
	SegmentID         *int                 `json:"segmentId,omitempty"`
	SegmentStatus     models.SegmentStatus `json:"segmentStatus,omitempty"`
	CompletedSegments int                  `json:"completedSegments"`
	TotalSegments     int                  `json:"totalSegments"`
	ProgressPercent   float64              `json:"progressPercent"`
	ErrorKind         models.ErrorKind     `json:"errorKind,omitempty"`
	Message           string               `json:"message,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	wake      chan struct{}
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		wake:      make(chan struct{}),
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

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	close(b.wake)
	b.wake = make(chan struct{})
	return event
}

// Since returns events of jobID with sequence strictly greater than seq.
// An empty jobID matches every job.
func (b *EventBus) Since(jobID string, seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq && (jobID == "" || event.JobID == jobID) {
			out = append(out, event)
		}
	}
	return out
}

// Wait returns a channel closed by the next Publish.
func (b *EventBus) Wait() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.wake
}
