// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Media         MediaConfig
	Segmenting    SegmentingConfig
	Transcription TranscriptionConfig
	Backend       BackendConfig
	Summary       SummaryConfig
	Estimator     EstimatorConfig
	Store         StoreConfig
	Kafka         KafkaConfig
	Redis         RedisConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and job admission settings.
type ServiceConfig struct {
	Name              string
	Env               string
	HTTPAddr          string
	GRPCPort          string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	ShutdownTimeout   time.Duration
}

// MediaConfig locates the codec tools and bounds uploads.
type MediaConfig struct {
	FFmpegPath          string
	FFprobePath         string
	TempDir             string
	MaxUploadBytes      int64
	PassthroughMaxBytes int64
}

// SegmentingConfig holds the tier thresholds and the segment byte cap.
type SegmentingConfig struct {
	LargeThresholdBytes int64
	HugeThresholdBytes  int64
	MaxSegmentBytes     int64
}

// TranscriptionConfig holds per-segment retry and concurrency limits.
type TranscriptionConfig struct {
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	RateLimitFactor   int
	Concurrency       int
	RequestsPerSecond float64
	Burst             int
	Model             string
	Language          string
}

// BackendConfig selects and configures the speech-to-text provider.
type BackendConfig struct {
	// Provider is one of openai, google or mock.
	Provider              string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	GoogleCredentialsFile string
	GoogleLanguageCode    string
	GoogleSampleRateHz    int
	GoogleAudioEncoding   string
	GoogleModel           string
}

// SummaryConfig configures the optional summarizing stage.
type SummaryConfig struct {
	Enabled       bool
	Model         string
	APIKey        string
	BaseURL       string
	MaxInputChars int
}

// EstimatorConfig overrides the progress heuristics.
type EstimatorConfig struct {
	UploadBytesPerSecond  float64
	ProcessBytesPerSecond float64
	BytesPerAudioMinute   float64
	RealTimeFactor        float64
}

// StoreConfig selects the segment store.
type StoreConfig struct {
	// Backend is memory or http.
	Backend string
	// BaseURL is the remote store root for the http backend.
	BaseURL string
	Token   string
	// PublicBaseURL is where the memory backend is served by this process.
	PublicBaseURL string
}

// KafkaConfig configures the job event publisher.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicStatus  string
	TopicSegment string
	TopicFinal   string
	Principal    string
}

// RedisConfig configures the job snapshot store.
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// ArchiveConfig configures the Postgres transcript archive.
type ArchiveConfig struct {
	Enabled bool
	DSN     string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration. Unparseable values fall back to defaults.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Name:              envOrDefault("SERVICE_NAME", "media-transcription-pipeline"),
			Env:               envOrDefault("ENV", "prod"),
			HTTPAddr:          envOrDefault("HTTP_ADDR", ":8080"),
			GRPCPort:          envOrDefault("GRPC_PORT", "50051"),
			MaxConcurrentJobs: envOrDefaultInt("MAX_CONCURRENT_JOBS", 2),
			JobTimeout:        envOrDefaultDuration("JOB_TIMEOUT", 2*time.Hour),
			ShutdownTimeout:   envOrDefaultDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Media: MediaConfig{
			FFmpegPath:          envOrDefault("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:         envOrDefault("FFPROBE_PATH", "ffprobe"),
			TempDir:             envOrDefault("MEDIA_TEMP_DIR", os.TempDir()),
			MaxUploadBytes:      envOrDefaultInt64("MAX_UPLOAD_BYTES", 500*1024*1024),
			PassthroughMaxBytes: envOrDefaultInt64("PASSTHROUGH_MAX_BYTES", 10*1024*1024),
		},
		Segmenting: SegmentingConfig{
			LargeThresholdBytes: envOrDefaultInt64("TIER_LARGE_THRESHOLD_BYTES", 50*1024*1024),
			HugeThresholdBytes:  envOrDefaultInt64("TIER_HUGE_THRESHOLD_BYTES", 150*1024*1024),
			MaxSegmentBytes:     envOrDefaultInt64("SEGMENT_MAX_BYTES", 20*1024*1024),
		},
		Transcription: TranscriptionConfig{
			FetchTimeout:      envOrDefaultDuration("FETCH_TIMEOUT", 30*time.Second),
			TranscribeTimeout: clampDuration(envOrDefaultDuration("TRANSCRIBE_TIMEOUT", 120*time.Second), 45*time.Second, 120*time.Second),
			MaxAttempts:       envOrDefaultInt("TRANSCRIBE_MAX_ATTEMPTS", 3),
			BackoffBase:       envOrDefaultDuration("TRANSCRIBE_BACKOFF_BASE", time.Second),
			BackoffMax:        envOrDefaultDuration("TRANSCRIBE_BACKOFF_MAX", 30*time.Second),
			RateLimitFactor:   envOrDefaultInt("TRANSCRIBE_RATE_LIMIT_FACTOR", 4),
			Concurrency:       envOrDefaultInt("TRANSCRIBE_CONCURRENCY", 1),
			RequestsPerSecond: envOrDefaultFloat("TRANSCRIBE_RPS", 0),
			Burst:             envOrDefaultInt("TRANSCRIBE_BURST", 1),
			Model:             envOrDefault("TRANSCRIBE_MODEL", "whisper-1"),
			Language:          envOrDefault("TRANSCRIBE_LANGUAGE", ""),
		},
		Backend: BackendConfig{
			Provider:              strings.ToLower(envOrDefault("STT_PROVIDER", "openai")),
			OpenAIAPIKey:          envOrDefault("OPENAI_API_KEY", ""),
			OpenAIBaseURL:         envOrDefault("OPENAI_BASE_URL", ""),
			GoogleCredentialsFile: envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
			GoogleLanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			GoogleSampleRateHz:    envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			GoogleAudioEncoding:   envOrDefault("STT_AUDIO_ENCODING", "MP3"),
			GoogleModel:           envOrDefault("STT_GOOGLE_MODEL", "latest_long"),
		},
		Summary: SummaryConfig{
			Enabled:       envOrDefaultBool("SUMMARY_ENABLED", false),
			Model:         envOrDefault("SUMMARY_MODEL", "gpt-4o-mini"),
			APIKey:        envOrDefault("SUMMARY_API_KEY", os.Getenv("OPENAI_API_KEY")),
			BaseURL:       envOrDefault("SUMMARY_BASE_URL", os.Getenv("OPENAI_BASE_URL")),
			MaxInputChars: envOrDefaultInt("SUMMARY_MAX_INPUT_CHARS", 120000),
		},
		Estimator: EstimatorConfig{
			UploadBytesPerSecond:  envOrDefaultFloat("ESTIMATE_UPLOAD_BPS", 5*1024*1024),
			ProcessBytesPerSecond: envOrDefaultFloat("ESTIMATE_PROCESS_BPS", 20*1024*1024),
			BytesPerAudioMinute:   envOrDefaultFloat("ESTIMATE_BYTES_PER_AUDIO_MINUTE", 1024*1024),
			RealTimeFactor:        envOrDefaultFloat("ESTIMATE_REAL_TIME_FACTOR", 0),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(envOrDefault("SEGMENT_STORE", "memory")),
			BaseURL:       envOrDefault("SEGMENT_STORE_URL", ""),
			Token:         envOrDefault("SEGMENT_STORE_TOKEN", ""),
			PublicBaseURL: envOrDefault("SEGMENT_STORE_PUBLIC_URL", "http://localhost:8080/v1/blobs"),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      splitList(envOrDefault("KAFKA_BROKERS", "")),
			TopicStatus:  envOrDefault("KAFKA_TOPIC_STATUS", "media.transcription.status"),
			TopicSegment: envOrDefault("KAFKA_TOPIC_SEGMENT", "media.transcription.segment"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "media.transcription.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", "svc-media-transcription"),
		},
		Redis: RedisConfig{
			Enabled:   envOrDefaultBool("REDIS_ENABLED", false),
			Addr:      envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:  envOrDefault("REDIS_PASSWORD", ""),
			DB:        envOrDefaultInt("REDIS_DB", 0),
			KeyPrefix: envOrDefault("REDIS_KEY_PREFIX", "mtp:"),
			TTL:       envOrDefaultDuration("REDIS_JOB_TTL", 7*24*time.Hour),
		},
		Archive: ArchiveConfig{
			Enabled: envOrDefaultBool("ARCHIVE_ENABLED", false),
			DSN:     envOrDefault("ARCHIVE_DSN", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
