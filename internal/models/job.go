package models

import "time"

// Stage is a step of the pipeline state machine.
type Stage string

const (
	StageUploading    Stage = "uploading"
	StageProcessing   Stage = "processing"
	StageChunking     Stage = "chunking"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
)

// IsTerminal reports whether no further transition leaves the stage.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageError
}

// SegmentStatus is the lifecycle state of one segment.
type SegmentStatus string

const (
	SegmentPending      SegmentStatus = "pending"
	SegmentUploaded     SegmentStatus = "uploaded"
	SegmentTranscribing SegmentStatus = "transcribing"
	SegmentDone         SegmentStatus = "done"
	SegmentFailed       SegmentStatus = "failed"
)

// IsTerminal reports whether the status is done or failed.
func (s SegmentStatus) IsTerminal() bool {
	return s == SegmentDone || s == SegmentFailed
}

// Segment is a contiguous, independently decodable slice of normalized audio.
type Segment struct {
	Index      int           `json:"index"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	SizeBytes  int64         `json:"sizeBytes"`
	Path       string        `json:"-"`
	BlobURL    string        `json:"blobUrl,omitempty"`
	Status     SegmentStatus `json:"status"`
	Transcript string        `json:"transcript,omitempty"`
	Attempts   int           `json:"attempts"`
	LastError  ErrorKind     `json:"lastError,omitempty"`
}

// Range returns the time range covered by the segment.
func (s Segment) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}

// JobError is the diagnostic payload of a failed job.
type JobError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	SegmentID *int      `json:"segmentId,omitempty"`
}

// JobSnapshot is the externally visible state of a pipeline job.
type JobSnapshot struct {
	ID                string        `json:"id"`
	FileName          string        `json:"fileName"`
	SizeBytes         int64         `json:"sizeBytes"`
	Model             string        `json:"model"`
	Stage             Stage         `json:"stage"`
	StageStartedAt    time.Time     `json:"stageStartedAt"`
	CreatedAt         time.Time     `json:"createdAt"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	TotalSegments     int           `json:"totalSegments"`
	CompletedSegments int           `json:"completedSegments"`
	ProgressPercent   float64       `json:"progressPercent"`
	RemainingSeconds  float64       `json:"remainingSeconds"`
	ChunkingSkipped   bool          `json:"chunkingSkipped"`
	Tier              TierName      `json:"tier,omitempty"`
	Error             *JobError     `json:"error,omitempty"`
	Transcript        string        `json:"transcript,omitempty"`
	Summary           string        `json:"summary,omitempty"`
	Segments          []Segment     `json:"segments,omitempty"`
	AudioDuration     time.Duration `json:"audioDuration"`
}
