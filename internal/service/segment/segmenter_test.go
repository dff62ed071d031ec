package segment

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/media"
	"media-transcription-pipeline/internal/service/media/mediatest"
)

func setup(t *testing.T, runner *mediatest.Runner) (*Segmenter, *media.Workspace) {
	t.Helper()
	engine := media.NewEngineWithRunner("ffmpeg", "ffprobe", t.TempDir(), runner)
	ws, err := engine.NewWorkspace("segment-test")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	if err := os.WriteFile(ws.Path(media.NormalizedName), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(engine), ws
}

func TestSegment_LargeTierProducesSixFiveMinuteSegments(t *testing.T) {
	// 48 kbps is 6000 bytes per second.
	runner := mediatest.NewRunner(30*time.Minute, 6000)
	s, ws := setup(t, runner)

	audio := models.NormalizedAudio{
		Path:         ws.Path(media.NormalizedName),
		SampleRateHz: 16000,
		BitrateKbps:  48,
		Duration:     30 * time.Minute,
		SizeBytes:    1800 * 6000,
		Tier:         models.TierLarge,
	}

	res, err := s.Segment(context.Background(), ws, audio, models.DefaultTierPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Bypassed {
		t.Error("expected extraction, got bypass")
	}
	if res.Target != 5*time.Minute {
		t.Errorf("expected 5m target, got %v", res.Target)
	}
	if len(res.Segments) != 6 {
		t.Fatalf("expected 6 segments, got %d", len(res.Segments))
	}
	for i, seg := range res.Segments {
		if seg.Index != i {
			t.Errorf("segment %d: expected index %d, got %d", i, i, seg.Index)
		}
		if seg.Range().Duration() != 5*time.Minute {
			t.Errorf("segment %d: expected 5m, got %v", i, seg.Range().Duration())
		}
		if seg.SizeBytes > models.MaxSegmentBytes {
			t.Errorf("segment %d: %d bytes exceeds cap", i, seg.SizeBytes)
		}
		if seg.Status != models.SegmentPending {
			t.Errorf("segment %d: expected pending, got %v", i, seg.Status)
		}
		if _, err := os.Stat(seg.Path); err != nil {
			t.Errorf("segment %d: artifact missing: %v", i, err)
		}
	}
	if err := Verify(res.Segments, audio.Duration, models.MaxSegmentBytes); err != nil {
		t.Errorf("expected exact coverage, got %v", err)
	}

	// Every segment is its own encode with the large-tier bitrate.
	calls := runner.TranscodeCalls()
	if len(calls) != 6 {
		t.Fatalf("expected 6 ffmpeg runs, got %d", len(calls))
	}
	for i, c := range calls {
		if got := mediatest.StartOf(c.Args); got != time.Duration(i)*5*time.Minute {
			t.Errorf("run %d: expected -ss %v, got %v", i, time.Duration(i)*5*time.Minute, got)
		}
		if !containsPair(c.Args, "-b:a", "48k") {
			t.Errorf("run %d: expected 48k bitrate, got %v", i, c.Args)
		}
	}
}

func TestSegment_SmallInputBypasses(t *testing.T) {
	runner := mediatest.NewRunner(3*time.Minute, 16000)
	s, ws := setup(t, runner)

	audio := models.NormalizedAudio{
		Path:         ws.Path(media.NormalizedName),
		SampleRateHz: 22050,
		BitrateKbps:  128,
		Duration:     3 * time.Minute,
		SizeBytes:    3 * models.MB,
		Passthrough:  true,
		Tier:         models.TierSmall,
	}

	res, err := s.Segment(context.Background(), ws, audio, models.DefaultTierPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Bypassed {
		t.Error("expected bypass")
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	seg := res.Segments[0]
	if seg.Start != 0 || seg.End != audio.Duration {
		t.Errorf("expected full range, got %v-%v", seg.Start, seg.End)
	}
	if seg.Path != audio.Path {
		t.Errorf("expected bypass segment to reuse %s, got %s", audio.Path, seg.Path)
	}
	if n := len(runner.TranscodeCalls()); n != 0 {
		t.Errorf("expected no ffmpeg runs, got %d", n)
	}
}

func TestSegment_OversizeExtractionIsSplitInHalf(t *testing.T) {
	// 50 KB/s makes a 10 minute range 30 MB, over the 20 MB cap.
	runner := mediatest.NewRunner(20*time.Minute, 50000)
	s, ws := setup(t, runner)

	audio := models.NormalizedAudio{
		Path:         ws.Path(media.NormalizedName),
		SampleRateHz: 22050,
		BitrateKbps:  64,
		Duration:     20 * time.Minute,
		SizeBytes:    1200 * 50000,
		Tier:         models.TierSmall,
	}

	res, err := s.Segment(context.Background(), ws, audio, models.DefaultTierPolicy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Splits != 2 {
		t.Errorf("expected 2 splits, got %d", res.Splits)
	}
	if len(res.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(res.Segments))
	}
	for i, seg := range res.Segments {
		if seg.Range().Duration() != 5*time.Minute {
			t.Errorf("segment %d: expected 5m, got %v", i, seg.Range().Duration())
		}
		if seg.SizeBytes > models.MaxSegmentBytes {
			t.Errorf("segment %d: %d bytes exceeds cap", i, seg.SizeBytes)
		}
	}

	arts, err := ws.Artifacts(ArtifactPattern)
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 4 {
		t.Errorf("expected oversize artifacts removed, found %d files", len(arts))
	}
}

func TestSegment_SubSecondOversizeIsOversizeError(t *testing.T) {
	runner := mediatest.NewRunner(2*time.Second, 0)
	runner.OutputSize = func(time.Duration) int64 { return 2000 }
	s, ws := setup(t, runner)

	policy := models.DefaultTierPolicy()
	policy.MaxSegmentBytes = 1000

	_, err := s.Segment(context.Background(), ws, models.NormalizedAudio{
		Path:         ws.Path(media.NormalizedName),
		SampleRateHz: 22050,
		BitrateKbps:  64,
		Duration:     2 * time.Second,
		SizeBytes:    5000,
		Tier:         models.TierSmall,
	}, policy)
	if models.KindOf(err) != models.KindOversize {
		t.Fatalf("expected oversize error, got %v", err)
	}
}

func TestSegment_TranscodeFailureIsConversionError(t *testing.T) {
	runner := mediatest.NewRunner(30*time.Minute, 6000)
	runner.TranscodeErr = errors.New("exit status 1")
	s, ws := setup(t, runner)

	_, err := s.Segment(context.Background(), ws, models.NormalizedAudio{
		Path:         ws.Path(media.NormalizedName),
		SampleRateHz: 16000,
		BitrateKbps:  48,
		Duration:     30 * time.Minute,
		SizeBytes:    1800 * 6000,
		Tier:         models.TierLarge,
	}, models.DefaultTierPolicy())
	if models.KindOf(err) != models.KindConversion {
		t.Fatalf("expected conversion error, got %v", err)
	}
}

func TestSegment_ZeroDurationRejected(t *testing.T) {
	s, ws := setup(t, mediatest.NewRunner(0, 0))

	_, err := s.Segment(context.Background(), ws, models.NormalizedAudio{Tier: models.TierSmall}, models.DefaultTierPolicy())
	if models.KindOf(err) != models.KindConversion {
		t.Fatalf("expected conversion error, got %v", err)
	}
}

func containsPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
