package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"media-transcription-pipeline/internal/config"
	"media-transcription-pipeline/internal/events"
	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/schema"
	"media-transcription-pipeline/internal/service/blobstore"
	"media-transcription-pipeline/internal/service/media"
	"media-transcription-pipeline/internal/service/pipeline"
	"media-transcription-pipeline/internal/service/progress"
	"media-transcription-pipeline/internal/service/stt"
	"media-transcription-pipeline/internal/service/stt/google"
	"media-transcription-pipeline/internal/service/stt/mock"
	"media-transcription-pipeline/internal/service/stt/openai"
	"media-transcription-pipeline/internal/service/summary"
	"media-transcription-pipeline/internal/service/transcription"
	"media-transcription-pipeline/internal/storage"
)

// Components are the wired pipeline services.
type Components struct {
	Engine       *media.Engine
	Blobs        blobstore.Store
	MemoryBlobs  *blobstore.MemoryStore
	Backend      stt.Backend
	Orchestrator *transcription.Orchestrator
	Summarizer   summary.Summarizer
	Runner       *pipeline.Runner
	Estimator    *progress.Estimator
	Validator    *schema.Validator
	JobStore     storage.JobStore
	Archive      storage.Archive
	Publisher    *events.Publisher
	Manager      *pipeline.Manager

	closers []io.Closer
}

// Options select which external services Build connects.
type Options struct {
	// Persistence connects Redis, Postgres and Kafka when enabled in config.
	Persistence bool
}

// Build wires the pipeline from configuration. On error every opened
// resource is closed.
func (a *Application) Build(ctx context.Context, opts Options) (_ *Components, err error) {
	cfg := a.Cfg
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Engine = media.NewEngine(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, cfg.Media.TempDir)
	c.Validator = schema.New(cfg.Media.MaxUploadBytes)
	c.Estimator = progress.NewEstimator(EstimatorConstants(cfg.Estimator))

	httpClient := &http.Client{Timeout: cfg.Transcription.TranscribeTimeout + 10*time.Second}

	switch cfg.Store.Backend {
	case "http":
		if cfg.Store.BaseURL == "" {
			return nil, errors.New("SEGMENT_STORE_URL is required for the http segment store")
		}
		c.Blobs = blobstore.NewHTTPStore(cfg.Store.BaseURL, cfg.Store.Token, &http.Client{Timeout: cfg.Transcription.FetchTimeout})
	case "memory", "":
		c.MemoryBlobs = blobstore.NewMemoryStore(cfg.Store.PublicBaseURL)
		c.Blobs = c.MemoryBlobs
	default:
		return nil, fmt.Errorf("unknown segment store %q", cfg.Store.Backend)
	}

	switch cfg.Backend.Provider {
	case "openai":
		c.Backend = openai.New(cfg.Backend.OpenAIAPIKey, cfg.Backend.OpenAIBaseURL, cfg.Transcription.Language, httpClient)
	case "google":
		g, err := google.New(ctx, google.Config{
			LanguageCode:    cfg.Backend.GoogleLanguageCode,
			SampleRateHz:    cfg.Backend.GoogleSampleRateHz,
			AudioEncoding:   cfg.Backend.GoogleAudioEncoding,
			Model:           cfg.Backend.GoogleModel,
			CredentialsFile: cfg.Backend.GoogleCredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, g)
		c.Backend = g
	case "mock":
		c.Backend = mock.New()
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Backend.Provider)
	}

	c.Orchestrator = transcription.New(c.Blobs, c.Backend, transcription.Config{
		FetchTimeout:      cfg.Transcription.FetchTimeout,
		TranscribeTimeout: cfg.Transcription.TranscribeTimeout,
		MaxAttempts:       cfg.Transcription.MaxAttempts,
		BackoffBase:       cfg.Transcription.BackoffBase,
		BackoffMax:        cfg.Transcription.BackoffMax,
		RateLimitFactor:   cfg.Transcription.RateLimitFactor,
		Concurrency:       cfg.Transcription.Concurrency,
		RequestsPerSecond: cfg.Transcription.RequestsPerSecond,
		Burst:             cfg.Transcription.Burst,
		Model:             cfg.Transcription.Model,
		Language:          cfg.Transcription.Language,
	})

	if cfg.Summary.Enabled {
		c.Summarizer = summary.NewOpenAI(summary.Config{
			APIKey:        cfg.Summary.APIKey,
			BaseURL:       cfg.Summary.BaseURL,
			Model:         cfg.Summary.Model,
			MaxInputChars: cfg.Summary.MaxInputChars,
		}, httpClient)
	}

	c.Runner = pipeline.NewRunner(c.Engine, media.NewNormalizer(c.Engine, cfg.Media.PassthroughMaxBytes),
		c.Blobs, c.Orchestrator, c.Summarizer, pipeline.RunnerConfig{
			Policy:         TierPolicy(cfg.Segmenting),
			MaxUploadBytes: c.Validator.MaxBytes(),
		})

	if opts.Persistence {
		if err := c.connect(ctx, cfg); err != nil {
			return nil, err
		}
	}

	var pub pipeline.Publisher
	if c.Publisher != nil {
		pub = c.Publisher
	}
	c.Manager = pipeline.NewManager(c.Runner, c.JobStore, c.Archive, pub, c.Estimator, pipeline.ManagerConfig{
		MaxConcurrentJobs: cfg.Service.MaxConcurrentJobs,
		JobTimeout:        cfg.Service.JobTimeout,
		DefaultModel:      cfg.Transcription.Model,
	})

	a.Logger.Info().
		Str("sttBackend", c.Backend.Name()).
		Str("segmentStore", cfg.Store.Backend).
		Bool("summary", c.Summarizer != nil).
		Bool("redis", cfg.Redis.Enabled && opts.Persistence).
		Bool("archive", cfg.Archive.Enabled && opts.Persistence).
		Bool("kafka", cfg.Kafka.Enabled && opts.Persistence).
		Msg("Pipeline components wired")
	return c, nil
}

func (c *Components) connect(ctx context.Context, cfg *config.Configuration) error {
	if cfg.Redis.Enabled {
		client, err := storage.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, client)
		c.JobStore = storage.NewRedisJobStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	}

	if cfg.Archive.Enabled {
		db, err := storage.OpenPostgres(ctx, cfg.Archive.DSN)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, db)
		archive := storage.NewPostgresArchive(db)
		if err := archive.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
		c.Archive = archive
	}

	c.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicStatus:  cfg.Kafka.TopicStatus,
		TopicSegment: cfg.Kafka.TopicSegment,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	c.closers = append(c.closers, c.Publisher)
	return nil
}

// Close releases connections in reverse order of opening.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	c.closers = nil
}

// TierPolicy applies the configured thresholds to the default tiers.
func TierPolicy(cfg config.SegmentingConfig) models.TierPolicy {
	p := models.DefaultTierPolicy()
	if cfg.LargeThresholdBytes > 0 {
		p.LargeThreshold = cfg.LargeThresholdBytes
	}
	if cfg.HugeThresholdBytes > p.LargeThreshold {
		p.HugeThreshold = cfg.HugeThresholdBytes
	}
	if cfg.MaxSegmentBytes > 0 && cfg.MaxSegmentBytes <= models.MaxSegmentBytes {
		p.MaxSegmentBytes = cfg.MaxSegmentBytes
	}
	return p
}

// EstimatorConstants applies the configured overrides to the defaults.
func EstimatorConstants(cfg config.EstimatorConfig) progress.Constants {
	c := progress.DefaultConstants()
	if cfg.UploadBytesPerSecond > 0 {
		c.UploadBytesPerSecond = cfg.UploadBytesPerSecond
	}
	if cfg.ProcessBytesPerSecond > 0 {
		c.ProcessBytesPerSec = cfg.ProcessBytesPerSecond
	}
	if cfg.BytesPerAudioMinute > 0 {
		c.BytesPerAudioMinute = cfg.BytesPerAudioMinute
	}
	if cfg.RealTimeFactor > 0 {
		c.RealTimeFactor["default"] = cfg.RealTimeFactor
	}
	return c
}
