// Package mock provides a deterministic STT backend for tests and local runs
// without provider credentials.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media-transcription-pipeline/internal/service/stt"
)

// Name is the backend identifier.
const Name = "mock"

// Adapter implements stt.Backend. Segment i transcribes to "seg-i" unless
// Text is set. Scripted failures are returned on successive attempts
// before the call succeeds.
type Adapter struct {
	mu sync.Mutex

	// Text returns the transcript for a segment.
	Text func(segmentID int) string
	// Delay returns how long a call for the segment takes.
	Delay func(segmentID int) time.Duration
	// IgnoreContext makes the delay ignore cancellation, like a client
	// that does not honor deadlines.
	IgnoreContext bool

	failures map[int][]error
	calls    map[int]int
	order    []int
}

// New creates a mock backend.
func New() *Adapter {
	return &Adapter{
		Text:     func(segmentID int) string { return fmt.Sprintf("seg-%d", segmentID) },
		failures: make(map[int][]error),
		calls:    make(map[int]int),
	}
}

// FailSegment scripts errs to be returned, in order, by the next calls
// for segmentID.
func (a *Adapter) FailSegment(segmentID int, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[segmentID] = append(a.failures[segmentID], errs...)
}

// Name implements stt.Backend.
func (a *Adapter) Name() string { return Name }

// Transcribe implements stt.Backend.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	a.mu.Lock()
	a.calls[req.SegmentID]++
	var scripted error
	if queue := a.failures[req.SegmentID]; len(queue) > 0 {
		scripted = queue[0]
		a.failures[req.SegmentID] = queue[1:]
	}
	delay := time.Duration(0)
	if a.Delay != nil {
		delay = a.Delay(req.SegmentID)
	}
	a.mu.Unlock()

	if delay > 0 {
		if a.IgnoreContext {
			time.Sleep(delay)
		} else {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}
	}

	if scripted != nil {
		return "", scripted
	}

	a.mu.Lock()
	a.order = append(a.order, req.SegmentID)
	a.mu.Unlock()
	return a.Text(req.SegmentID), nil
}

// Calls returns how many times segmentID was sent to the backend.
func (a *Adapter) Calls(segmentID int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[segmentID]
}

// CompletionOrder returns segment ids in the order they succeeded.
func (a *Adapter) CompletionOrder() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.order...)
}
