package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"media-transcription-pipeline/internal/service/stt"
)

func TestAdapter_DeterministicText(t *testing.T) {
	a := New()

	for i := 0; i < 3; i++ {
		text, err := a.Transcribe(context.Background(), stt.Request{SegmentID: i})
		if err != nil {
			t.Fatalf("segment %d: unexpected error: %v", i, err)
		}
		want := []string{"seg-0", "seg-1", "seg-2"}[i]
		if text != want {
			t.Errorf("expected %q, got %q", want, text)
		}
	}
	if a.Name() != "mock" {
		t.Errorf("expected name mock, got %s", a.Name())
	}
}

func TestAdapter_ScriptedFailuresThenSuccess(t *testing.T) {
	a := New()
	boom := errors.New("boom")
	a.FailSegment(1, boom, boom)

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := a.Transcribe(context.Background(), stt.Request{SegmentID: 1}); !errors.Is(err, boom) {
			t.Errorf("attempt %d: expected scripted error, got %v", attempt, err)
		}
	}
	text, err := a.Transcribe(context.Background(), stt.Request{SegmentID: 1})
	if err != nil || text != "seg-1" {
		t.Errorf("expected seg-1 on third call, got %q, %v", text, err)
	}
	if a.Calls(1) != 3 {
		t.Errorf("expected 3 calls, got %d", a.Calls(1))
	}
}

func TestAdapter_DelayHonorsContext(t *testing.T) {
	a := New()
	a.Delay = func(int) time.Duration { return time.Second }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Transcribe(ctx, stt.Request{SegmentID: 0})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestAdapter_CompletionOrder(t *testing.T) {
	a := New()
	for _, id := range []int{2, 0, 1} {
		_, _ = a.Transcribe(context.Background(), stt.Request{SegmentID: id})
	}
	got := a.CompletionOrder()
	if len(got) != 3 || got[0] != 2 || got[1] != 0 || got[2] != 1 {
		t.Errorf("expected [2 0 1], got %v", got)
	}
}
