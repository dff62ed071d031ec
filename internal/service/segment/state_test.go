package segment

import (
	"errors"
	"sync"
	"testing"

	"media-transcription-pipeline/internal/models"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle(3)

	if lc.Status() != models.SegmentPending {
		t.Errorf("expected pending, got %v", lc.Status())
	}
	if lc.Index() != 3 {
		t.Errorf("expected index 3, got %d", lc.Index())
	}
	if lc.Attempts() != 0 {
		t.Errorf("expected 0 attempts, got %d", lc.Attempts())
	}
	if lc.IsTerminal() {
		t.Error("expected IsTerminal to be false")
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	lc := NewLifecycle(0)

	if err := lc.MarkUploaded(); err != nil {
		t.Fatalf("MarkUploaded: unexpected error: %v", err)
	}
	if err := lc.BeginAttempt(); err != nil {
		t.Fatalf("BeginAttempt: unexpected error: %v", err)
	}
	if err := lc.Complete(); err != nil {
		t.Fatalf("Complete: unexpected error: %v", err)
	}

	if lc.Status() != models.SegmentDone {
		t.Errorf("expected done, got %v", lc.Status())
	}
	if lc.Attempts() != 1 {
		t.Errorf("expected 1 attempt, got %d", lc.Attempts())
	}
}

func TestLifecycle_RetriesCountAttempts(t *testing.T) {
	lc := NewLifecycle(0)
	_ = lc.MarkUploaded()

	for i := 0; i < 2; i++ {
		if err := lc.BeginAttempt(); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		lc.AttemptFailed(models.KindTimeout)
	}
	if err := lc.BeginAttempt(); err != nil {
		t.Fatalf("third attempt: unexpected error: %v", err)
	}
	if err := lc.Complete(); err != nil {
		t.Fatalf("Complete: unexpected error: %v", err)
	}

	if lc.Attempts() != 3 {
		t.Errorf("expected 3 attempts, got %d", lc.Attempts())
	}
	if lc.LastError() != models.KindNone {
		t.Errorf("expected last error cleared on success, got %v", lc.LastError())
	}
}

func TestLifecycle_TerminalStatesRejectTransitions(t *testing.T) {
	tests := []struct {
		name   string
		finish func(lc *Lifecycle)
		want   models.SegmentStatus
	}{
		{
			name: "done",
			finish: func(lc *Lifecycle) {
				_ = lc.MarkUploaded()
				_ = lc.BeginAttempt()
				_ = lc.Complete()
			},
			want: models.SegmentDone,
		},
		{
			name:   "failed",
			finish: func(lc *Lifecycle) { lc.Fail(models.KindNetwork) },
			want:   models.SegmentFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle(1)
			tt.finish(lc)

			if err := lc.MarkUploaded(); !errors.Is(err, ErrSegmentTerminal) {
				t.Errorf("MarkUploaded: expected ErrSegmentTerminal, got %v", err)
			}
			if err := lc.BeginAttempt(); !errors.Is(err, ErrSegmentTerminal) {
				t.Errorf("BeginAttempt: expected ErrSegmentTerminal, got %v", err)
			}
			if err := lc.Complete(); !errors.Is(err, ErrSegmentTerminal) {
				t.Errorf("Complete: expected ErrSegmentTerminal, got %v", err)
			}
			if lc.Fail(models.KindTimeout) {
				t.Error("expected Fail on terminal segment to return false")
			}
			if lc.Status() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, lc.Status())
			}
		})
	}
}

func TestLifecycle_CannotSkipUpload(t *testing.T) {
	lc := NewLifecycle(0)

	if err := lc.BeginAttempt(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := lc.Complete(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestLifecycle_FailKeepsLastErrorKind(t *testing.T) {
	lc := NewLifecycle(2)
	_ = lc.MarkUploaded()
	_ = lc.BeginAttempt()

	if !lc.Fail(models.KindRateLimit) {
		t.Fatal("expected Fail to return true")
	}

	seg := models.Segment{Index: 2}
	lc.Apply(&seg)
	if seg.Status != models.SegmentFailed {
		t.Errorf("expected failed, got %v", seg.Status)
	}
	if seg.LastError != models.KindRateLimit {
		t.Errorf("expected rate_limit, got %v", seg.LastError)
	}
	if seg.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", seg.Attempts)
	}
}

func TestLifecycle_ConcurrentAccess(t *testing.T) {
	lc := NewLifecycle(0)
	_ = lc.MarkUploaded()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = lc.BeginAttempt()
		}()
		go func() {
			defer wg.Done()
			_ = lc.Status()
			_ = lc.Attempts()
		}()
	}
	wg.Wait()

	if lc.Attempts() != 50 {
		t.Errorf("expected 50 attempts, got %d", lc.Attempts())
	}
}
