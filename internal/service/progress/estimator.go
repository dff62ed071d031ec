// Package progress estimates stage durations and reports bounded,
// monotonic progress.
package progress

import (
	"math"
	"strings"
	"time"

	"media-transcription-pipeline/internal/models"
)

// MaxIntermediatePercent is the highest percentage shown before a stage
// confirms completion.
const MaxIntermediatePercent = 99.0

// Constants holds the heuristics of the per-stage time model.
type Constants struct {
	UploadOverhead       time.Duration
	UploadBytesPerSecond float64
	ProcessBytesPerSec   float64
	ProcessOverhead      time.Duration
	// BytesPerAudioMinute converts upload size into estimated audio length.
	BytesPerAudioMinute float64
	ChunkSecondsPerMin  float64
	// RealTimeFactor is backend seconds per second of audio, per model
	// prefix. "default" applies when no prefix matches.
	RealTimeFactor     map[string]float64
	WordsPerMinute     float64
	SummaryWordsPerSec float64
	SummaryOverhead    time.Duration
	// Ceilings caps every stage estimate.
	Ceilings map[models.Stage]time.Duration
}

// DefaultConstants returns the production heuristics.
func DefaultConstants() Constants {
	return Constants{
		UploadOverhead:       2 * time.Second,
		UploadBytesPerSecond: 5 * float64(models.MB),
		ProcessBytesPerSec:   20 * float64(models.MB),
		ProcessOverhead:      3 * time.Second,
		BytesPerAudioMinute:  float64(models.MB),
		ChunkSecondsPerMin:   0.5,
		RealTimeFactor: map[string]float64{
			"whisper":                0.10,
			"gpt-4o-mini-transcribe": 0.06,
			"gpt-4o-transcribe":      0.08,
			"latest_long":            0.25,
			"default":                0.15,
		},
		WordsPerMinute:     150,
		SummaryWordsPerSec: 60,
		SummaryOverhead:    5 * time.Second,
		Ceilings: map[models.Stage]time.Duration{
			models.StageUploading:    5 * time.Minute,
			models.StageProcessing:   10 * time.Minute,
			models.StageChunking:     5 * time.Minute,
			models.StageTranscribing: 30 * time.Minute,
			models.StageSummarizing:  2 * time.Minute,
		},
	}
}

// Estimator turns file size, stage and model into expected seconds.
type Estimator struct {
	c Constants
}

// NewEstimator creates an estimator.
func NewEstimator(c Constants) *Estimator {
	return &Estimator{c: c}
}

// EstimateStageSeconds estimates the duration of stage for an upload of
// fileSizeBytes. Audio length is inferred from the size.
func (e *Estimator) EstimateStageSeconds(fileSizeBytes int64, stage models.Stage, model string) float64 {
	return e.Estimate(fileSizeBytes, 0, stage, model)
}

// Estimate is EstimateStageSeconds with a known audio duration. A zero
// duration falls back to the size-based guess.
func (e *Estimator) Estimate(fileSizeBytes int64, audio time.Duration, stage models.Stage, model string) float64 {
	size := math.Max(float64(fileSizeBytes), 0)
	minutes := audio.Minutes()
	if minutes <= 0 && e.c.BytesPerAudioMinute > 0 {
		minutes = size / e.c.BytesPerAudioMinute
	}

	var secs float64
	switch stage {
	case models.StageUploading:
		secs = e.c.UploadOverhead.Seconds() + safeDiv(size, e.c.UploadBytesPerSecond)
	case models.StageProcessing:
		secs = e.c.ProcessOverhead.Seconds() + safeDiv(size, e.c.ProcessBytesPerSec)
	case models.StageChunking:
		secs = 1 + minutes*e.c.ChunkSecondsPerMin
	case models.StageTranscribing:
		secs = minutes * 60 * e.realTimeFactor(model)
	case models.StageSummarizing:
		words := minutes * e.c.WordsPerMinute
		secs = e.c.SummaryOverhead.Seconds() + safeDiv(words, e.c.SummaryWordsPerSec)
	default:
		return 0
	}

	if ceiling, ok := e.c.Ceilings[stage]; ok && ceiling > 0 {
		secs = math.Min(secs, ceiling.Seconds())
	}
	return math.Max(secs, 0)
}

func (e *Estimator) realTimeFactor(model string) float64 {
	m := strings.ToLower(model)
	best, bestLen := e.c.RealTimeFactor["default"], 0
	for prefix, f := range e.c.RealTimeFactor {
		if prefix == "default" {
			continue
		}
		if strings.HasPrefix(m, prefix) && len(prefix) > bestLen {
			best, bestLen = f, len(prefix)
		}
	}
	return best
}

// ProgressPercent converts elapsed time against an estimate into a
// percentage clamped to [0, 99].
func ProgressPercent(elapsed, estimatedTotal time.Duration) float64 {
	if estimatedTotal <= 0 || elapsed <= 0 {
		return 0
	}
	pct := elapsed.Seconds() / estimatedTotal.Seconds() * 100
	return clamp(pct, 0, MaxIntermediatePercent)
}

func safeDiv(a, b float64) float64 {
	if b <= 0 {
		return 0
	}
	return a / b
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
