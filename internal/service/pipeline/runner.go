package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/observability/metrics"
	"media-transcription-pipeline/internal/service/assembly"
	"media-transcription-pipeline/internal/service/blobstore"
	"media-transcription-pipeline/internal/service/media"
	"media-transcription-pipeline/internal/service/segment"
	"media-transcription-pipeline/internal/service/summary"
	"media-transcription-pipeline/internal/service/transcription"
)

// cleanupTimeout bounds blob deletion after a job ends.
const cleanupTimeout = 30 * time.Second

// RunnerConfig holds the per-run limits.
type RunnerConfig struct {
	Policy         models.TierPolicy
	MaxUploadBytes int64
}

// Runner executes one job end to end. Each run owns its workspace; a
// Runner is safe for concurrent jobs.
type Runner struct {
	engine       *media.Engine
	normalizer   *media.Normalizer
	segmenter    *segment.Segmenter
	store        blobstore.Store
	orchestrator *transcription.Orchestrator
	summarizer   summary.Summarizer
	cfg          RunnerConfig
	metrics      *metrics.Metrics
}

// NewRunner wires the pipeline stages. summarizer may be nil, in which
// case the summarizing stage is skipped.
func NewRunner(engine *media.Engine, normalizer *media.Normalizer, store blobstore.Store,
	orchestrator *transcription.Orchestrator, summarizer summary.Summarizer, cfg RunnerConfig) *Runner {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = models.MaxUploadBytes
	}
	if cfg.Policy.MaxSegmentBytes <= 0 {
		cfg.Policy = models.DefaultTierPolicy()
	}
	return &Runner{
		engine:       engine,
		normalizer:   normalizer,
		segmenter:    segment.New(engine),
		store:        store,
		orchestrator: orchestrator,
		summarizer:   summarizer,
		cfg:          cfg,
		metrics:      metrics.DefaultMetrics,
	}
}

// Staged is an upload copied into its workspace, ready for Process.
type Staged struct {
	Workspace *media.Workspace
	Source    media.Source
}

// Run ingests src and processes it to completion. The job ends in
// completed or error; the returned error mirrors the job error.
func (r *Runner) Run(ctx context.Context, job *Job, src models.SourceMedia) error {
	staged, err := r.Ingest(ctx, job, src)
	if err != nil {
		return err
	}
	return r.Process(ctx, job, staged)
}

// Ingest enters the uploading stage and copies the body into a fresh
// workspace. On failure the workspace is removed and the job fails.
func (r *Runner) Ingest(ctx context.Context, job *Job, src models.SourceMedia) (staged Staged, err error) {
	logger := logging.WithJob("pipeline", job.ID())
	stageStart := time.Now()

	if err := job.Transition(models.StageUploading); err != nil {
		return Staged{}, err
	}

	ws, err := r.engine.NewWorkspace("job-" + job.ID())
	if err != nil {
		err = models.NewError(models.KindConversion, "ingest", "cannot create workspace", err)
		job.Fail(err)
		return Staged{}, err
	}
	defer func() {
		if err != nil {
			closeWorkspace(logger, ws)
		}
	}()

	if err := ctx.Err(); err != nil {
		return Staged{}, r.fail(job, err)
	}
	if src.Body == nil {
		return Staged{}, r.fail(job, models.NewError(models.KindValidation, "ingest", "upload has no body", nil))
	}

	artifact, err := ws.Ingest(sourceName(src.FileName), src.Body, r.cfg.MaxUploadBytes)
	if err != nil {
		return Staged{}, r.fail(job, err)
	}
	job.SetSize(artifact.Size)
	r.metrics.RecordUpload(artifact.Size)
	r.metrics.RecordStage(string(models.StageUploading), time.Since(stageStart).Seconds())

	logger.Info().
		Str("fileName", src.FileName).
		Int64("sizeBytes", artifact.Size).
		Msg("Upload staged")

	return Staged{
		Workspace: ws,
		Source: media.Source{
			Path:         artifact.Path,
			MIMEType:     src.MIMEType,
			OriginalSize: artifact.Size,
		},
	}, nil
}

// Process runs every stage after upload. The workspace is closed and the
// uploaded segment blobs are deleted on every exit path.
func (r *Runner) Process(ctx context.Context, job *Job, staged Staged) error {
	logger := logging.WithJob("pipeline", job.ID())
	defer closeWorkspace(logger, staged.Workspace)

	var uploaded []string
	defer func() { r.deleteBlobs(ctx, logger, uploaded) }()

	// processing
	stageStart := time.Now()
	if err := job.Transition(models.StageProcessing); err != nil {
		return err
	}
	audio, err := r.normalizer.Normalize(ctx, staged.Workspace, staged.Source, r.cfg.Policy)
	if err != nil {
		return r.fail(job, err)
	}
	r.metrics.RecordNormalize(audio.Passthrough, time.Since(stageStart).Seconds())
	r.metrics.RecordStage(string(models.StageProcessing), time.Since(stageStart).Seconds())
	job.SetAudio(audio)
	if r.summarizer == nil {
		job.SkipSummary()
	}

	// chunking, skipped when the stream fits one segment
	stageStart = time.Now()
	chunk := segment.NeedsChunking(audio, r.cfg.Policy)
	if chunk {
		if err := job.Transition(models.StageChunking); err != nil {
			return err
		}
	}
	res, err := r.segmenter.Segment(ctx, staged.Workspace, audio, r.cfg.Policy)
	if err != nil {
		return r.fail(job, err)
	}
	if chunk {
		r.metrics.RecordStage(string(models.StageChunking), time.Since(stageStart).Seconds())
	}

	// transcribing
	stageStart = time.Now()
	if err := job.Transition(models.StageTranscribing); err != nil {
		return err
	}
	segments, err := r.uploadSegments(ctx, job, res.Segments, &uploaded)
	if err != nil {
		return r.fail(job, err)
	}
	job.SetSegments(segments)

	done, err := r.orchestrator.TranscribeAll(ctx, transcription.Batch{
		JobID:    job.ID(),
		FileName: job.fileName,
		Model:    job.model,
		Segments: segments,
	}, job.UpdateSegment)
	if err != nil {
		return r.fail(job, err)
	}
	r.metrics.RecordStage(string(models.StageTranscribing), time.Since(stageStart).Seconds())

	transcript, err := assembly.Assemble(done)
	if err != nil {
		return r.fail(job, err)
	}

	// summarizing
	var text string
	if r.summarizer != nil {
		stageStart = time.Now()
		if err := job.Transition(models.StageSummarizing); err != nil {
			return err
		}
		text, err = r.summarizer.Summarize(ctx, transcript)
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(job, ctx.Err())
			}
			logger.Warn().Err(err).Msg("Summary failed, completing without it")
			text = ""
		}
		r.metrics.RecordStage(string(models.StageSummarizing), time.Since(stageStart).Seconds())
	}

	job.SetResult(transcript, text)
	if err := job.Transition(models.StageCompleted); err != nil {
		return err
	}

	logger.Info().
		Int("segments", len(done)).
		Bool("chunkingSkipped", !chunk).
		Int("transcriptChars", len(transcript)).
		Msg("Job completed")
	return nil
}

// uploadSegments stores every segment and returns them marked uploaded.
// urls collects what was stored so far, for cleanup.
func (r *Runner) uploadSegments(ctx context.Context, job *Job, segments []models.Segment, urls *[]string) ([]models.Segment, error) {
	namer := segment.NewNamer(job.ID())
	out := make([]models.Segment, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(seg.Path)
		if err != nil {
			return nil, models.NewSegmentError(models.KindConversion, seg.Index, "upload", "cannot read segment artifact", err)
		}
		url, err := r.store.Put(ctx, namer.Blob(seg.Index, job.fileName), data)
		if err != nil {
			return nil, transcription.Classify(err, seg.Index, "upload")
		}
		*urls = append(*urls, url)
		seg.BlobURL = url
		seg.Status = models.SegmentUploaded
		out[i] = seg
	}
	return out, nil
}

func (r *Runner) deleteBlobs(ctx context.Context, logger zerolog.Logger, urls []string) {
	if len(urls) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, url := range urls {
		if err := r.store.Delete(ctx, url); err != nil {
			logger.Warn().Err(err).Str("url", url).Msg("Failed to delete segment blob")
		}
	}
}

// fail drives the job to error. Cancellation becomes a canceled error.
func (r *Runner) fail(job *Job, err error) error {
	if _, ok := models.AsError(err); !ok {
		switch {
		case errors.Is(err, context.Canceled):
			err = models.NewError(models.KindCanceled, "pipeline", "", err)
		case errors.Is(err, context.DeadlineExceeded):
			err = models.NewError(models.KindTimeout, "pipeline", "job exceeded its time limit", err)
		}
	}
	job.Fail(err)

	logger := logging.WithJob("pipeline", job.ID())
	evt := logger.Error().Err(err).Str("stage", string(job.Snapshot().Stage))
	if e, ok := models.AsError(err); ok {
		evt = evt.Str("kind", string(e.Kind))
		if e.SegmentID != models.NoSegment {
			evt = evt.Int("segmentId", e.SegmentID)
		}
	}
	evt.Msg("Job failed")
	return err
}

func closeWorkspace(logger zerolog.Logger, ws *media.Workspace) {
	if ws == nil {
		return
	}
	if err := ws.Close(); err != nil {
		logger.Warn().Err(err).Str("dir", ws.Dir()).Msg("Failed to remove workspace")
	}
}

// sourceName keeps only a sanitized extension of the uploaded name.
func sourceName(fileName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if len(ext) < 2 || len(ext) > 8 || strings.ContainsAny(ext, " /\\") {
		ext = ""
	}
	return fmt.Sprintf("source%s", ext)
}
