package pipeline

import (
	"fmt"
	"sync"
	"time"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/progress"
)

// Job is the mutable state of one pipeline run. All access goes through
// its methods; Snapshot is the only externally visible view.
type Job struct {
	mu sync.RWMutex

	id        string
	fileName  string
	mimeType  string
	sizeBytes int64
	model     string
	createdAt time.Time

	stage          models.Stage
	stageStartedAt time.Time
	completedAt    *time.Time

	tier            models.TierName
	audioDuration   time.Duration
	chunkingSkipped bool
	segments        []models.Segment
	total           int
	completed       int
	frozenPercent   float64

	err        *models.JobError
	transcript string
	summary    string

	tracker *progress.Tracker
	now     func() time.Time
	notify  func(Event)
}

// NewJob creates a job that has not entered any stage yet.
func NewJob(id string, src models.SourceMedia, model string, est *progress.Estimator) *Job {
	return newJobWithClock(id, src, model, est, time.Now)
}

func newJobWithClock(id string, src models.SourceMedia, model string, est *progress.Estimator, now func() time.Time) *Job {
	if est == nil {
		est = progress.NewEstimator(progress.DefaultConstants())
	}
	return &Job{
		id:        id,
		fileName:  src.FileName,
		mimeType:  src.MIMEType,
		sizeBytes: src.Size,
		model:     model,
		createdAt: now().UTC(),
		tracker:   progress.NewTracker(est, src.Size, model),
		now:       now,
	}
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Stage returns the current stage.
func (j *Job) Stage() models.Stage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stage
}

// Transition moves the job to stage. Entering completed confirms 100 %.
func (j *Job) Transition(stage models.Stage) error {
	if stage == models.StageError {
		return fmt.Errorf("%w: use Fail to enter %s", ErrInvalidTransition, stage)
	}

	j.mu.Lock()
	if j.stage.IsTerminal() {
		j.mu.Unlock()
		return ErrJobTerminal
	}
	if !isValidTransition(j.stage, stage) {
		from := j.stage
		j.mu.Unlock()
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, stage)
	}
	if j.stage == models.StageProcessing && stage == models.StageTranscribing {
		j.chunkingSkipped = true
		j.tracker.Skip(models.StageChunking)
	}
	j.stage = stage
	j.stageStartedAt = j.now().UTC()
	j.tracker.Enter(stage)
	if stage == models.StageCompleted {
		at := j.stageStartedAt
		j.completedAt = &at
	}
	ev := j.eventLocked(EventTypeStage)
	if stage == models.StageCompleted {
		ev.Type = EventTypeCompleted
	}
	j.mu.Unlock()

	j.emit(ev)
	return nil
}

// Fail moves the job to error. Segment counters stop changing from here
// on. Failing a finished job is a no-op.
func (j *Job) Fail(err error) {
	j.mu.Lock()
	if j.stage.IsTerminal() {
		j.mu.Unlock()
		return
	}
	j.frozenPercent = j.tracker.Percent()
	j.err = jobError(err)
	j.stage = models.StageError
	j.stageStartedAt = j.now().UTC()
	at := j.stageStartedAt
	j.completedAt = &at
	ev := j.eventLocked(EventTypeError)
	ev.ErrorKind = j.err.Kind
	ev.Message = j.err.Message
	ev.SegmentID = j.err.SegmentID
	j.mu.Unlock()

	j.emit(ev)
}

// SetSize records the staged upload size when the request did not
// declare it, or declared it wrong.
func (j *Job) SetSize(sizeBytes int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if sizeBytes <= 0 || sizeBytes == j.sizeBytes {
		return
	}
	j.sizeBytes = sizeBytes
	j.tracker.SetSize(sizeBytes)
}

// SetAudio records the normalized stream.
func (j *Job) SetAudio(audio models.NormalizedAudio) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tier = audio.Tier
	j.audioDuration = audio.Duration
	j.tracker.SetAudioDuration(audio.Duration)
}

// SkipSummary excludes the summarizing stage from the ETA.
func (j *Job) SkipSummary() {
	j.tracker.Skip(models.StageSummarizing)
}

// SetSegments installs the segment list and its total.
func (j *Job) SetSegments(segments []models.Segment) {
	j.mu.Lock()
	if j.stage.IsTerminal() {
		j.mu.Unlock()
		return
	}
	j.segments = append([]models.Segment(nil), segments...)
	j.total = len(segments)
	j.completed = 0
	for _, s := range segments {
		if s.Status == models.SegmentDone {
			j.completed++
		}
	}
	j.tracker.SegmentProgress(j.completed, j.total)
	j.mu.Unlock()
}

// UpdateSegment records a segment that reached a terminal status.
func (j *Job) UpdateSegment(seg models.Segment) {
	j.mu.Lock()
	if j.stage.IsTerminal() || seg.Index < 0 || seg.Index >= len(j.segments) {
		j.mu.Unlock()
		return
	}
	prev := j.segments[seg.Index].Status
	j.segments[seg.Index] = seg
	if seg.Status == models.SegmentDone && prev != models.SegmentDone {
		j.completed++
	}
	j.tracker.SegmentProgress(j.completed, j.total)
	ev := j.eventLocked(EventTypeSegment)
	id := seg.Index
	ev.SegmentID = &id
	ev.SegmentStatus = seg.Status
	ev.ErrorKind = seg.LastError
	j.mu.Unlock()

	j.emit(ev)
}

// SetResult stores the assembled transcript and summary.
func (j *Job) SetResult(transcript, summary string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transcript = transcript
	j.summary = summary
}

// Segments returns a copy of the segment list.
func (j *Job) Segments() []models.Segment {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]models.Segment(nil), j.segments...)
}

// Snapshot returns the externally visible state of the job.
func (j *Job) Snapshot() models.JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() models.JobSnapshot {
	snap := models.JobSnapshot{
		ID:                j.id,
		FileName:          j.fileName,
		SizeBytes:         j.sizeBytes,
		Model:             j.model,
		Stage:             j.stage,
		StageStartedAt:    j.stageStartedAt,
		CreatedAt:         j.createdAt,
		TotalSegments:     j.total,
		CompletedSegments: j.completed,
		ChunkingSkipped:   j.chunkingSkipped,
		Tier:              j.tier,
		Transcript:        j.transcript,
		Summary:           j.summary,
		AudioDuration:     j.audioDuration,
		Segments:          append([]models.Segment(nil), j.segments...),
	}
	if j.completedAt != nil {
		at := *j.completedAt
		snap.CompletedAt = &at
	}
	if j.err != nil {
		e := *j.err
		snap.Error = &e
	}

	switch j.stage {
	case models.StageError:
		snap.ProgressPercent = j.frozenPercent
	case "":
	default:
		snap.ProgressPercent = j.tracker.Percent()
		snap.RemainingSeconds = j.tracker.Remaining().Seconds()
	}
	return snap
}

func (j *Job) eventLocked(t EventType) Event {
	ev := Event{
		JobID:             j.id,
		Type:              t,
		Stage:             j.stage,
		CompletedSegments: j.completed,
		TotalSegments:     j.total,
		Timestamp:         j.now().UTC(),
	}
	if j.stage == models.StageError {
		ev.ProgressPercent = j.frozenPercent
	} else {
		ev.ProgressPercent = j.tracker.Percent()
	}
	return ev
}

func (j *Job) emit(ev Event) {
	if j.notify != nil {
		j.notify(ev)
	}
}

func jobError(err error) *models.JobError {
	if err == nil {
		return &models.JobError{Kind: models.KindNone, Message: "unknown failure"}
	}
	e, ok := models.AsError(err)
	if !ok {
		return &models.JobError{Kind: models.KindNone, Message: err.Error()}
	}
	je := &models.JobError{Kind: e.Kind, Message: e.Error()}
	if e.SegmentID != models.NoSegment {
		id := e.SegmentID
		je.SegmentID = &id
	}
	return je
}
