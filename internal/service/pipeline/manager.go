package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/observability/metrics"
	"media-transcription-pipeline/internal/service/progress"
	"media-transcription-pipeline/internal/storage"
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrShuttingDown is returned by Submit once Shutdown started.
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// persistTimeout bounds each snapshot write, archive and publish.
const persistTimeout = 5 * time.Second

// Publisher forwards job events to an external bus.
type Publisher interface {
	PublishStatus(ctx context.Context, key string, event any) error
	PublishSegment(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// ManagerConfig holds job admission limits.
type ManagerConfig struct {
	// MaxConcurrentJobs bounds jobs past the upload stage.
	MaxConcurrentJobs int
	// JobTimeout bounds a whole job. Zero disables it.
	JobTimeout      time.Duration
	EventBufferSize int
	DefaultModel    string
}

type activeJob struct {
	job    *Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager admits, runs and tracks jobs.
type Manager struct {
	runner    *Runner
	store     storage.JobStore
	archive   storage.Archive
	publisher Publisher
	est       *progress.Estimator
	bus       *EventBus
	cfg       ManagerConfig
	sem       chan struct{}
	newID     func() string
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu     sync.RWMutex
	active map[string]*activeJob
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a manager. store, archive and publisher may be nil.
func NewManager(runner *Runner, store storage.JobStore, archive storage.Archive, publisher Publisher,
	est *progress.Estimator, cfg ManagerConfig) *Manager {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 2
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "whisper-1"
	}
	if store == nil {
		store = storage.NewMemoryJobStore()
	}
	if archive == nil {
		archive = storage.NopArchive{}
	}
	if est == nil {
		est = progress.NewEstimator(progress.DefaultConstants())
	}
	return &Manager{
		runner:    runner,
		store:     store,
		archive:   archive,
		publisher: publisher,
		est:       est,
		bus:       NewEventBus(cfg.EventBufferSize),
		cfg:       cfg,
		sem:       make(chan struct{}, cfg.MaxConcurrentJobs),
		newID:     uuid.NewString,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("job-manager"),
		active:    make(map[string]*activeJob),
	}
}

// Events returns the live event bus.
func (m *Manager) Events() *EventBus {
	return m.bus
}

// Accepting reports whether Submit admits new jobs.
func (m *Manager) Accepting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Submit creates a job and stages its upload synchronously, since the
// body is only readable during the call. Processing continues in the
// background. The returned snapshot reflects the job after upload; an
// upload failure is returned along with the failed snapshot.
func (m *Manager) Submit(ctx context.Context, src models.SourceMedia, model string) (models.JobSnapshot, error) {
	if model == "" {
		model = m.cfg.DefaultModel
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return models.JobSnapshot{}, ErrShuttingDown
	}
	job := NewJob(m.newID(), src, model, m.est)
	job.notify = m.observer(job)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if m.cfg.JobTimeout > 0 {
		var timeoutCancel context.CancelFunc
		jobCtx, timeoutCancel = context.WithTimeout(jobCtx, m.cfg.JobTimeout)
		parent := cancel
		cancel = func() { timeoutCancel(); parent() }
	}
	aj := &activeJob{job: job, cancel: cancel, done: make(chan struct{})}
	m.active[job.ID()] = aj
	m.wg.Add(1)
	m.mu.Unlock()

	start := time.Now()
	m.metrics.RecordJobStart()
	logger := logging.WithJob("job-manager", job.ID())
	logger.Info().
		Str("fileName", src.FileName).
		Int64("sizeBytes", src.Size).
		Str("model", model).
		Msg("Job submitted")

	staged, err := m.runner.Ingest(jobCtx, job, src)
	if err != nil {
		m.finish(aj, start)
		return job.Snapshot(), err
	}

	go func() {
		defer m.finish(aj, start)

		select {
		case m.sem <- struct{}{}:
		case <-jobCtx.Done():
			closeWorkspace(logger, staged.Workspace)
			_ = m.runner.fail(job, jobCtx.Err())
			return
		}
		defer func() { <-m.sem }()

		_ = m.runner.Process(jobCtx, job, staged)
	}()

	return job.Snapshot(), nil
}

// Get returns the snapshot of a live or persisted job.
func (m *Manager) Get(ctx context.Context, id string) (models.JobSnapshot, error) {
	m.mu.RLock()
	aj, ok := m.active[id]
	m.mu.RUnlock()
	if ok {
		return aj.job.Snapshot(), nil
	}

	snap, err := m.store.Get(ctx, id)
	if errors.Is(err, storage.ErrJobNotFound) {
		return models.JobSnapshot{}, ErrJobNotFound
	}
	return snap, err
}

// List returns up to limit jobs, newest first, with live jobs current.
func (m *Manager) List(ctx context.Context, limit int) ([]models.JobSnapshot, error) {
	snaps, err := m.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, s := range snaps {
		if aj, ok := m.active[s.ID]; ok {
			snaps[i] = aj.job.Snapshot()
		}
	}
	return snaps, nil
}

// Cancel stops a running job. It ends in the error stage.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.RLock()
	aj, ok := m.active[id]
	m.mu.RUnlock()
	if ok {
		aj.cancel()
		return nil
	}
	if _, err := m.store.Get(ctx, id); err == nil {
		return ErrJobTerminal
	}
	return ErrJobNotFound
}

// Done returns a channel closed when the job has finished and its final
// snapshot is persisted. Unknown or finished jobs yield a closed channel.
func (m *Manager) Done(id string) <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if aj, ok := m.active[id]; ok {
		return aj.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Shutdown stops admission, cancels running jobs and waits for them.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, aj := range m.active {
		aj.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) finish(aj *activeJob, start time.Time) {
	defer m.wg.Done()
	defer close(aj.done)
	defer aj.cancel()

	snap := aj.job.Snapshot()
	kind := ""
	if snap.Error != nil {
		kind = string(snap.Error.Kind)
		if kind == "" {
			kind = "unknown"
		}
	}
	m.metrics.RecordJobEnd(kind, time.Since(start).Seconds())

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	logger := logging.WithJob("job-manager", snap.ID)

	if err := m.store.Save(ctx, snap); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist final snapshot")
	}
	if err := m.archive.Archive(ctx, snap); err != nil {
		logger.Warn().Err(err).Msg("Failed to archive job")
	}
	if snap.Stage == models.StageCompleted && m.publisher != nil {
		final := models.TranscriptFinal{
			EventType:     models.EventTypeTranscriptFinal,
			JobID:         snap.ID,
			FileName:      snap.FileName,
			Timestamp:     time.Now().UnixMilli(),
			Text:          snap.Transcript,
			Summary:       snap.Summary,
			SegmentCount:  snap.TotalSegments,
			AudioDuration: snap.AudioDuration.Milliseconds(),
		}
		if err := m.publisher.PublishFinal(ctx, snap.ID, final); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish final transcript")
		}
	}

	m.mu.Lock()
	delete(m.active, snap.ID)
	m.mu.Unlock()

	logger.Info().
		Str("stage", string(snap.Stage)).
		Str("errorKind", kind).
		Dur("took", time.Since(start)).
		Msg("Job finished")
}

// observer fans a job event out to the bus, the snapshot store and the
// external publisher.
func (m *Manager) observer(job *Job) func(Event) {
	return func(ev Event) {
		m.bus.Publish(ev)

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		snap := job.Snapshot()
		if err := m.store.Save(ctx, snap); err != nil {
			m.logger.Warn().Err(err).Str("jobId", job.ID()).Msg("Failed to persist snapshot")
		}
		if m.publisher == nil {
			return
		}

		var err error
		if ev.Type == EventTypeSegment && ev.SegmentID != nil {
			err = m.publisher.PublishSegment(ctx, job.ID(), segmentEvent(snap, *ev.SegmentID, ev))
		} else {
			err = m.publisher.PublishStatus(ctx, job.ID(), statusEvent(ev))
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("jobId", job.ID()).Msg("Failed to publish job event")
		}
	}
}

func statusEvent(ev Event) models.JobStatusEvent {
	out := models.JobStatusEvent{
		EventType:         models.EventTypeJobStatus,
		JobID:             ev.JobID,
		Stage:             ev.Stage,
		Timestamp:         ev.Timestamp.UnixMilli(),
		TotalSegments:     ev.TotalSegments,
		CompletedSegments: ev.CompletedSegments,
		ProgressPercent:   ev.ProgressPercent,
		ErrorKind:         string(ev.ErrorKind),
		Error:             ev.Message,
		ErrorSegmentID:    ev.SegmentID,
	}
	return out
}

func segmentEvent(snap models.JobSnapshot, index int, ev Event) models.SegmentTranscriptEvent {
	out := models.SegmentTranscriptEvent{
		EventType: models.EventTypeSegmentTranscript,
		JobID:     snap.ID,
		SegmentID: index,
		Timestamp: ev.Timestamp.UnixMilli(),
		Status:    string(ev.SegmentStatus),
		ErrorKind: string(ev.ErrorKind),
	}
	if index >= 0 && index < len(snap.Segments) {
		seg := snap.Segments[index]
		out.StartMs = seg.Start.Milliseconds()
		out.EndMs = seg.End.Milliseconds()
		out.Attempts = seg.Attempts
		out.Text = seg.Transcript
	}
	return out
}
