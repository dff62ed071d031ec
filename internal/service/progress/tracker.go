package progress

import (
	"math"
	"sync"
	"time"

	"media-transcription-pipeline/internal/models"
)

var stageOrder = []models.Stage{
	models.StageUploading,
	models.StageProcessing,
	models.StageChunking,
	models.StageTranscribing,
	models.StageSummarizing,
}

// Tracker holds the displayed progress of one job. Within a stage the
// percentage never decreases and stays at or below 99 until Complete.
type Tracker struct {
	mu sync.Mutex

	est      *Estimator
	size     int64
	model    string
	audio    time.Duration
	skipped  map[models.Stage]bool
	now      func() time.Time
	stage    models.Stage
	started  time.Time
	estimate time.Duration
	display  float64
	ratio    float64
	done     bool
}

// NewTracker creates a tracker for an upload of sizeBytes.
func NewTracker(est *Estimator, sizeBytes int64, model string) *Tracker {
	return &Tracker{
		est:     est,
		size:    sizeBytes,
		model:   model,
		skipped: make(map[models.Stage]bool),
		now:     time.Now,
	}
}

// Enter starts stage. The display restarts at zero for the new stage.
func (t *Tracker) Enter(stage models.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.started = t.now()
	t.display = 0
	t.ratio = 0
	t.done = stage == models.StageCompleted
	t.estimate = t.stageEstimate(stage)
	if t.done {
		t.display = 100
	}
}

// Skip excludes stage from the remaining-time estimate.
func (t *Tracker) Skip(stage models.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped[stage] = true
}

// SetSize replaces the upload size behind the estimates.
func (t *Tracker) SetSize(sizeBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.size = sizeBytes
	if t.stage != "" && !t.done {
		t.reviseLocked(t.stageEstimate(t.stage))
	}
}

// SetAudioDuration refines later estimates once the audio length is known.
func (t *Tracker) SetAudioDuration(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = d
	if t.stage != "" && !t.done {
		t.reviseLocked(t.stageEstimate(t.stage))
	}
}

// Revise replaces the current stage estimate. A lower estimate may speed
// up the display but never moves it backward.
func (t *Tracker) Revise(estimate time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reviseLocked(estimate)
}

func (t *Tracker) reviseLocked(estimate time.Duration) {
	t.display = math.Max(t.display, t.candidateLocked())
	t.estimate = estimate
}

// SegmentProgress feeds the share of finished segments.
func (t *Tracker) SegmentProgress(done, total int) {
	if total <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ratio = math.Max(t.ratio, float64(done)/float64(total))
}

// Complete marks the current stage confirmed; Percent reports 100.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.display = 100
}

// Percent returns the displayed percentage of the current stage.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 100
	}
	t.display = math.Max(t.display, t.candidateLocked())
	return t.display
}

// Remaining estimates the time left in this and all later stages.
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == models.StageCompleted || t.stage == models.StageError {
		return 0
	}

	var left time.Duration
	if !t.done {
		elapsed := t.now().Sub(t.started)
		left = t.estimate - elapsed
		if t.ratio > 0 && t.ratio < 1 {
			// Project from observed segment throughput once it exists.
			byRatio := time.Duration(float64(elapsed) * (1 - t.ratio) / t.ratio)
			left = byRatio
		}
		if left < 0 {
			left = 0
		}
	}

	after := false
	for _, s := range stageOrder {
		if s == t.stage {
			after = true
			continue
		}
		if after && !t.skipped[s] {
			left += t.stageEstimate(s)
		}
	}
	return left
}

// Stage returns the current stage.
func (t *Tracker) Stage() models.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

func (t *Tracker) candidateLocked() float64 {
	if t.stage == "" {
		return 0
	}
	pct := ProgressPercent(t.now().Sub(t.started), t.estimate)
	if byRatio := t.ratio * 100; byRatio > pct {
		pct = byRatio
	}
	return math.Min(pct, MaxIntermediatePercent)
}

func (t *Tracker) stageEstimate(stage models.Stage) time.Duration {
	secs := t.est.Estimate(t.size, t.audio, stage, t.model)
	return time.Duration(secs * float64(time.Second))
}
