// Package transcription drives segments through the blob store and the
// speech-to-text backend under timeout and retry discipline.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/observability/metrics"
	"media-transcription-pipeline/internal/service/blobstore"
	"media-transcription-pipeline/internal/service/retry"
	"media-transcription-pipeline/internal/service/segment"
	"media-transcription-pipeline/internal/service/stt"
)

// Config holds orchestrator limits.
type Config struct {
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	// RateLimitFactor stretches the backoff after a rate limit error.
	RateLimitFactor int
	// Concurrency is the worker pool size for TranscribeAll.
	Concurrency int
	// RequestsPerSecond bounds backend calls. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
	Model             string
	Language          string
}

// DefaultConfig returns production limits.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:      30 * time.Second,
		TranscribeTimeout: 120 * time.Second,
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMax:        30 * time.Second,
		RateLimitFactor:   4,
		Concurrency:       1,
		Burst:             1,
		Model:             "whisper-1",
	}
}

// Request identifies one stored segment to transcribe.
type Request struct {
	BlobURL   string `json:"blobUrl"`
	SegmentID int    `json:"segmentId"`
	FileName  string `json:"fileName,omitempty"`
	Model     string `json:"model"`
	// JobID only tags logs.
	JobID string `json:"-"`
}

// Result is a transcribed segment.
type Result struct {
	SegmentID  int    `json:"segmentId"`
	Transcript string `json:"transcription"`
	Attempts   int    `json:"attempts"`
}

// Orchestrator transcribes segments. It is safe for concurrent use.
type Orchestrator struct {
	store   blobstore.Store
	backend stt.Backend
	cfg     Config
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates an orchestrator. Zero config fields take their defaults.
func New(store blobstore.Store, backend stt.Backend, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = def.TranscribeTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.RateLimitFactor <= 0 {
		cfg.RateLimitFactor = def.RateLimitFactor
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Orchestrator{
		store:   store,
		backend: backend,
		cfg:     cfg,
		limiter: limiter,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("transcription"),
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// TranscribeSegment fetches one stored segment and transcribes it.
func (o *Orchestrator) TranscribeSegment(ctx context.Context, req Request) (Result, error) {
	lc := segment.NewLifecycle(req.SegmentID)
	_ = lc.MarkUploaded()
	return o.transcribe(ctx, req, lc)
}

func (o *Orchestrator) transcribe(ctx context.Context, req Request, lc *segment.Lifecycle) (Result, error) {
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}
	log := logging.WithBackend(req.JobID, req.SegmentID, o.backend.Name(), model)

	o.metrics.SegmentsInFlight.Inc()
	defer o.metrics.SegmentsInFlight.Dec()

	policy := retry.Policy{
		MaxAttempts: o.cfg.MaxAttempts,
		Backoff:     o.backoff,
		IsRetryable: IsRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			kind := models.KindOf(err)
			o.metrics.RecordRetry(string(kind))
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("kind", string(kind)).
				Dur("backoff", wait).
				Msg("Segment attempt failed, retrying")
		},
	}

	text, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (string, error) {
		if err := lc.BeginAttempt(); err != nil {
			return "", models.NewSegmentError(models.KindValidation, req.SegmentID, "transcribe",
				"segment is not ready for transcription", err)
		}
		text, err := o.attempt(ctx, req, model)
		if err != nil {
			lc.AttemptFailed(models.KindOf(err))
		}
		return text, err
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				lc.Fail(models.KindTimeout)
			} else {
				lc.Fail(models.KindCanceled)
			}
			return Result{SegmentID: req.SegmentID, Attempts: attempts}, ctxErr
		}
		classified := Classify(err, req.SegmentID, "transcribe")
		kind := models.KindOf(classified)
		lc.Fail(kind)
		o.metrics.RecordSegmentResult(string(kind), attempts)
		log.Error().
			Err(classified).
			Int("attempts", attempts).
			Str("kind", string(kind)).
			Msg("Segment failed")
		return Result{SegmentID: req.SegmentID, Attempts: attempts}, classified
	}

	if err := lc.Complete(); err != nil {
		return Result{SegmentID: req.SegmentID, Attempts: attempts}, err
	}
	o.metrics.RecordSegmentResult("", attempts)
	log.Info().
		Int("attempts", attempts).
		Int("chars", len(text)).
		Msg("Segment transcribed")
	return Result{SegmentID: req.SegmentID, Transcript: text, Attempts: attempts}, nil
}

// attempt is one fetch-then-transcribe pass. Each step runs under its own
// timeout; both errors come back classified.
func (o *Orchestrator) attempt(ctx context.Context, req Request, model string) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	data, err := retry.WithTimeout(ctx, o.cfg.FetchTimeout, func(ctx context.Context) ([]byte, error) {
		return o.store.Get(ctx, req.BlobURL)
	})
	if err != nil {
		if isTimeout(ctx, err) {
			return "", models.NewSegmentError(models.KindTimeout, req.SegmentID, "fetch",
				fmt.Sprintf("segment fetch exceeded %v", o.cfg.FetchTimeout), err)
		}
		return "", Classify(err, req.SegmentID, "fetch")
	}
	if len(data) == 0 {
		return "", models.NewSegmentError(models.KindValidation, req.SegmentID, "fetch", "segment payload is empty", nil)
	}
	if int64(len(data)) > models.MaxSegmentBytes {
		return "", models.NewSegmentError(models.KindOversize, req.SegmentID, "fetch",
			fmt.Sprintf("segment is %d bytes, above the %d MB backend limit", len(data), models.MaxSegmentBytes/models.MB), nil)
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	text, err := retry.WithTimeout(ctx, o.cfg.TranscribeTimeout, func(ctx context.Context) (string, error) {
		return o.backend.Transcribe(ctx, stt.Request{
			SegmentID: req.SegmentID,
			FileName:  req.FileName,
			Model:     model,
			Language:  o.cfg.Language,
			Audio:     data,
		})
	})
	latency := time.Since(start).Seconds()
	if err != nil {
		if isTimeout(ctx, err) {
			err = models.NewSegmentError(models.KindTimeout, req.SegmentID, "transcribe",
				fmt.Sprintf("transcription exceeded %v", o.cfg.TranscribeTimeout), err)
		} else {
			err = Classify(err, req.SegmentID, "transcribe")
		}
		o.metrics.RecordSTTCall(o.backend.Name(), model, string(models.KindOf(err)), latency)
		return "", err
	}
	o.metrics.RecordSTTCall(o.backend.Name(), model, "", latency)
	return text, nil
}

// backoff grows exponentially; rate limits wait RateLimitFactor times
// longer, or as long as the provider asked.
func (o *Orchestrator) backoff(attempt int, err error) time.Duration {
	d := retry.Exponential(o.cfg.BackoffBase, o.cfg.BackoffMax)(attempt, err)
	e, ok := models.AsError(err)
	if !ok || e.Kind != models.KindRateLimit {
		return d
	}
	d *= time.Duration(o.cfg.RateLimitFactor)
	if e.RetryAfter > d {
		d = e.RetryAfter
	}
	return d
}

func validate(req Request) error {
	if strings.TrimSpace(req.BlobURL) == "" {
		return models.NewSegmentError(models.KindValidation, req.SegmentID, "validate", "blobUrl is required", nil)
	}
	if req.SegmentID < 0 {
		return models.NewSegmentError(models.KindValidation, req.SegmentID, "validate",
			fmt.Sprintf("segmentId must be non-negative, got %d", req.SegmentID), nil)
	}
	return nil
}

// isTimeout reports an attempt timeout, as opposed to the parent ending.
func isTimeout(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	if _, ok := models.AsError(err); ok {
		return false
	}
	return models.KindOf(Classify(err, 0, "")) == models.KindTimeout
}
