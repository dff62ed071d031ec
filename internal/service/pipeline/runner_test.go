package pipeline

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/blobstore"
	"media-transcription-pipeline/internal/service/media"
	"media-transcription-pipeline/internal/service/media/mediatest"
	"media-transcription-pipeline/internal/service/progress"
	"media-transcription-pipeline/internal/service/stt/mock"
	"media-transcription-pipeline/internal/service/summary"
	"media-transcription-pipeline/internal/service/transcription"
)

type harness struct {
	engine  *media.Engine
	runner  *Runner
	ffmpeg  *mediatest.Runner
	store   *blobstore.MemoryStore
	backend *mock.Adapter
	tempDir string
}

func newHarness(t *testing.T, ffmpeg *mediatest.Runner, summarizer summary.Summarizer, concurrency int) *harness {
	t.Helper()
	dir := t.TempDir()
	engine := media.NewEngineWithRunner("ffmpeg", "ffprobe", dir, ffmpeg)
	store := blobstore.NewMemoryStore("")
	backend := mock.New()
	orch := transcription.New(store, backend, transcription.Config{
		BackoffBase: time.Millisecond,
		BackoffMax:  time.Millisecond,
		Concurrency: concurrency,
	})
	r := NewRunner(engine, media.NewNormalizer(engine, 0), store, orch, summarizer, RunnerConfig{})
	return &harness{engine: engine, runner: r, ffmpeg: ffmpeg, store: store, backend: backend, tempDir: dir}
}

// stage stages a small placeholder file that stands in for an upload of
// originalSize bytes.
func (h *harness) stage(t *testing.T, mime string, originalSize int64) Staged {
	t.Helper()
	ws, err := h.engine.NewWorkspace("runner-test")
	if err != nil {
		t.Fatal(err)
	}
	path := ws.Path("source.bin")
	if err := os.WriteFile(path, []byte("placeholder media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return Staged{Workspace: ws, Source: media.Source{Path: path, MIMEType: mime, OriginalSize: originalSize}}
}

type stageRecorder struct {
	mu     sync.Mutex
	stages []models.Stage
}

func (r *stageRecorder) observe(ev Event) {
	if ev.Type == EventTypeSegment {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, ev.Stage)
}

func (r *stageRecorder) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := make([]string, len(r.stages))
	for i, s := range r.stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func startedJob(t *testing.T, size int64, rec *stageRecorder) *Job {
	t.Helper()
	j := NewJob("job-1", models.SourceMedia{FileName: "lecture.mp4", Size: size}, "whisper-1",
		progress.NewEstimator(progress.DefaultConstants()))
	j.notify = rec.observe
	if err := j.Transition(models.StageUploading); err != nil {
		t.Fatal(err)
	}
	return j
}

func workspaceCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestProcess_LargeVideoSixSegments(t *testing.T) {
	// 30 minutes at the large-tier 48 kbps.
	h := newHarness(t, mediatest.NewRunner(30*time.Minute, 6000), nil, 1)
	rec := &stageRecorder{}
	job := startedJob(t, 120*models.MB, rec)

	if err := h.runner.Process(context.Background(), job, h.stage(t, "video/mp4", 120*models.MB)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := job.Snapshot()
	if snap.Stage != models.StageCompleted {
		t.Fatalf("expected completed, got %s", snap.Stage)
	}
	if snap.Tier != models.TierLarge {
		t.Errorf("expected large tier, got %s", snap.Tier)
	}
	if snap.TotalSegments != 6 || snap.CompletedSegments != 6 {
		t.Errorf("expected 6/6 segments, got %d/%d", snap.CompletedSegments, snap.TotalSegments)
	}
	for i, seg := range snap.Segments {
		if seg.Range().Duration() != 5*time.Minute {
			t.Errorf("segment %d: expected 5m, got %v", i, seg.Range().Duration())
		}
		if seg.Attempts != 1 {
			t.Errorf("segment %d: expected 1 attempt, got %d", i, seg.Attempts)
		}
	}
	if want := "seg-0 seg-1 seg-2 seg-3 seg-4 seg-5"; snap.Transcript != want {
		t.Errorf("expected %q, got %q", want, snap.Transcript)
	}
	if snap.ChunkingSkipped {
		t.Error("expected chunking to run")
	}
	if snap.ProgressPercent != 100 {
		t.Errorf("expected 100 percent, got %v", snap.ProgressPercent)
	}
	if want := "uploading,processing,chunking,transcribing,completed"; rec.joined() != want {
		t.Errorf("expected stages %s, got %s", want, rec.joined())
	}
	if keys := h.store.Keys(); len(keys) != 0 {
		t.Errorf("expected segment blobs deleted, got %v", keys)
	}
	if n := workspaceCount(t, h.tempDir); n != 0 {
		t.Errorf("expected workspace removed, found %d entries", n)
	}
}

func TestProcess_SmallMP3SkipsChunking(t *testing.T) {
	h := newHarness(t, mediatest.NewRunner(3*time.Minute, 16000), nil, 1)
	rec := &stageRecorder{}
	job := startedJob(t, 3*models.MB, rec)

	if err := h.runner.Process(context.Background(), job, h.stage(t, "audio/mpeg", 3*models.MB)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := job.Snapshot()
	if !snap.ChunkingSkipped {
		t.Error("expected chunking skipped")
	}
	if snap.TotalSegments != 1 || snap.Transcript != "seg-0" {
		t.Errorf("expected single segment transcript, got %d %q", snap.TotalSegments, snap.Transcript)
	}
	if want := "uploading,processing,transcribing,completed"; rec.joined() != want {
		t.Errorf("expected stages %s, got %s", want, rec.joined())
	}
	if calls := h.ffmpeg.TranscodeCalls(); len(calls) != 0 {
		t.Errorf("expected no ffmpeg runs for passthrough bypass, got %d", len(calls))
	}
}

func TestProcess_SegmentFailureFailsJob(t *testing.T) {
	h := newHarness(t, mediatest.NewRunner(30*time.Minute, 6000), nil, 1)
	timeout := models.NewError(models.KindTimeout, "transcribe", "backend timed out", nil)
	h.backend.FailSegment(2, timeout, timeout, timeout)
	rec := &stageRecorder{}
	job := startedJob(t, 120*models.MB, rec)

	err := h.runner.Process(context.Background(), job, h.stage(t, "video/mp4", 120*models.MB))
	if models.KindOf(err) != models.KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}

	snap := job.Snapshot()
	if snap.Stage != models.StageError {
		t.Fatalf("expected error stage, got %s", snap.Stage)
	}
	if snap.Error == nil {
		t.Fatal("expected error payload")
	}
	if snap.Error.Kind != models.KindTimeout {
		t.Errorf("expected timeout kind, got %s", snap.Error.Kind)
	}
	if snap.Error.SegmentID == nil || *snap.Error.SegmentID != 2 {
		t.Errorf("expected error on segment 2, got %v", snap.Error.SegmentID)
	}
	if snap.TotalSegments != 6 {
		t.Errorf("expected 6 total segments, got %d", snap.TotalSegments)
	}
	if snap.CompletedSegments != 5 {
		t.Errorf("expected 5 completed segments, got %d", snap.CompletedSegments)
	}
	if snap.Transcript != "" {
		t.Errorf("expected no transcript, got %q", snap.Transcript)
	}
	if h.backend.Calls(2) != 3 {
		t.Errorf("expected 3 attempts on segment 2, got %d", h.backend.Calls(2))
	}
	if snap.Segments[2].Status != models.SegmentFailed || snap.Segments[2].Attempts != 3 {
		t.Errorf("expected segment 2 failed after 3 attempts, got %s/%d", snap.Segments[2].Status, snap.Segments[2].Attempts)
	}
	if snap.Segments[5].Status != models.SegmentDone {
		t.Errorf("expected later segments to still finish, got %s", snap.Segments[5].Status)
	}
	if keys := h.store.Keys(); len(keys) != 0 {
		t.Errorf("expected blobs deleted after failure, got %v", keys)
	}
	if n := workspaceCount(t, h.tempDir); n != 0 {
		t.Errorf("expected workspace removed, found %d entries", n)
	}
}

func TestProcess_ConversionFailure(t *testing.T) {
	ffmpeg := mediatest.NewRunner(time.Minute, 6000)
	ffmpeg.TranscodeErr = os.ErrInvalid
	h := newHarness(t, ffmpeg, nil, 1)
	job := startedJob(t, 60*models.MB, &stageRecorder{})

	err := h.runner.Process(context.Background(), job, h.stage(t, "video/x-matroska", 60*models.MB))
	if models.KindOf(err) != models.KindConversion {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if snap := job.Snapshot(); snap.Stage != models.StageError || snap.Error.SegmentID != nil {
		t.Errorf("expected job-level conversion error, got %s %+v", snap.Stage, snap.Error)
	}
	if n := workspaceCount(t, h.tempDir); n != 0 {
		t.Errorf("expected workspace removed, found %d entries", n)
	}
}

func TestProcess_CancelMidTranscription(t *testing.T) {
	h := newHarness(t, mediatest.NewRunner(30*time.Minute, 6000), nil, 1)
	h.backend.Delay = func(int) time.Duration { return time.Minute }
	job := startedJob(t, 120*models.MB, &stageRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for job.Stage() != models.StageTranscribing {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := h.runner.Process(ctx, job, h.stage(t, "video/mp4", 120*models.MB))
	if models.KindOf(err) != models.KindCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if snap := job.Snapshot(); snap.Stage != models.StageError {
		t.Errorf("expected error stage, got %s", snap.Stage)
	}
	if keys := h.store.Keys(); len(keys) != 0 {
		t.Errorf("expected blobs deleted after cancel, got %v", keys)
	}
}

type fakeSummarizer struct {
	got string
	err error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	f.got = transcript
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + transcript, nil
}

func TestProcess_Summarizes(t *testing.T) {
	sum := &fakeSummarizer{}
	h := newHarness(t, mediatest.NewRunner(2*time.Minute, 16000), sum, 1)
	rec := &stageRecorder{}
	job := startedJob(t, 2*models.MB, rec)

	if err := h.runner.Process(context.Background(), job, h.stage(t, "audio/mpeg", 2*models.MB)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := job.Snapshot()
	if snap.Summary != "summary of seg-0" {
		t.Errorf("expected summary, got %q", snap.Summary)
	}
	if want := "uploading,processing,transcribing,summarizing,completed"; rec.joined() != want {
		t.Errorf("expected stages %s, got %s", want, rec.joined())
	}
}

func TestProcess_SummaryFailureStillCompletes(t *testing.T) {
	sum := &fakeSummarizer{err: models.NewError(models.KindRateLimit, "summarize", "", nil)}
	h := newHarness(t, mediatest.NewRunner(2*time.Minute, 16000), sum, 1)
	job := startedJob(t, 2*models.MB, &stageRecorder{})

	if err := h.runner.Process(context.Background(), job, h.stage(t, "audio/mpeg", 2*models.MB)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := job.Snapshot()
	if snap.Stage != models.StageCompleted || snap.Summary != "" || snap.Transcript != "seg-0" {
		t.Errorf("expected completed without summary, got %s %q %q", snap.Stage, snap.Summary, snap.Transcript)
	}
}

func TestIngest_RejectsEmptyUpload(t *testing.T) {
	h := newHarness(t, mediatest.NewRunner(time.Minute, 6000), nil, 1)
	job := NewJob("job-2", models.SourceMedia{FileName: "empty.mp3"}, "whisper-1", nil)

	_, err := h.runner.Ingest(context.Background(), job, models.SourceMedia{FileName: "empty.mp3", Body: bytes.NewReader(nil)})
	if models.KindOf(err) != models.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if job.Stage() != models.StageError {
		t.Errorf("expected error stage, got %s", job.Stage())
	}
	if n := workspaceCount(t, h.tempDir); n != 0 {
		t.Errorf("expected workspace removed, found %d entries", n)
	}
}

func TestSourceName(t *testing.T) {
	tests := map[string]string{
		"talk.MP4":          "source.mp4",
		"../../etc/passwd":  "source",
		"clip.tar.gz":       "source.gz",
		"weird.extension-x": "source",
		"":                  "source",
	}
	for in, want := range tests {
		if got := sourceName(in); got != want {
			t.Errorf("sourceName(%q): expected %q, got %q", in, want, got)
		}
	}
}
