// Package segment plans, extracts and tracks the segments of a job.
package segment

import (
	"errors"
	"fmt"
	"sync"

	"media-transcription-pipeline/internal/models"
)

// Errors for invalid status transitions.
var (
	ErrSegmentTerminal   = errors.New("segment is already done or failed")
	ErrInvalidTransition = errors.New("invalid segment status transition")
)

// Lifecycle manages the status of a single segment.
// Thread-safe for concurrent access.
//
// Status transitions:
//
//	pending → uploaded → transcribing → done
//	   │          │            │
//	   └──────────┴────────────┴──→ failed
//
// Rules:
//   - transcribing may be re-entered once per attempt
//   - done and failed are terminal; every later transition is rejected
type Lifecycle struct {
	mu        sync.RWMutex
	index     int
	status    models.SegmentStatus
	attempts  int
	lastError models.ErrorKind
}

// NewLifecycle creates a lifecycle in the pending status.
func NewLifecycle(index int) *Lifecycle {
	return &Lifecycle{
		index:  index,
		status: models.SegmentPending,
	}
}

// Index returns the segment index.
func (l *Lifecycle) Index() int {
	return l.index
}

// Status returns the current status.
func (l *Lifecycle) Status() models.SegmentStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Attempts returns the number of transcription attempts started.
func (l *Lifecycle) Attempts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attempts
}

// LastError returns the kind of the most recent failed attempt.
func (l *Lifecycle) LastError() models.ErrorKind {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastError
}

// IsTerminal returns true if the segment is done or failed.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status.IsTerminal()
}

// MarkUploaded records that the segment bytes are in the store.
func (l *Lifecycle) MarkUploaded() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status {
	case models.SegmentPending:
		l.status = models.SegmentUploaded
		return nil
	case models.SegmentDone, models.SegmentFailed:
		return ErrSegmentTerminal
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.status, models.SegmentUploaded)
	}
}

// BeginAttempt enters transcribing and counts one attempt.
func (l *Lifecycle) BeginAttempt() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status {
	case models.SegmentUploaded, models.SegmentTranscribing:
		l.status = models.SegmentTranscribing
		l.attempts++
		return nil
	case models.SegmentDone, models.SegmentFailed:
		return ErrSegmentTerminal
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.status, models.SegmentTranscribing)
	}
}

// AttemptFailed records the kind of a failed attempt without leaving
// transcribing.
func (l *Lifecycle) AttemptFailed(kind models.ErrorKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.status.IsTerminal() {
		l.lastError = kind
	}
}

// Complete transitions transcribing to done.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status {
	case models.SegmentTranscribing:
		l.status = models.SegmentDone
		l.lastError = models.KindNone
		return nil
	case models.SegmentDone, models.SegmentFailed:
		return ErrSegmentTerminal
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.status, models.SegmentDone)
	}
}

// Fail transitions any non-terminal status to failed.
// Returns false if the segment was already terminal.
func (l *Lifecycle) Fail(kind models.ErrorKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.IsTerminal() {
		return false
	}
	l.status = models.SegmentFailed
	l.lastError = kind
	return true
}

// Apply copies the lifecycle state onto seg.
func (l *Lifecycle) Apply(seg *models.Segment) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seg.Status = l.status
	seg.Attempts = l.attempts
	seg.LastError = l.lastError
}
