// Package models defines the data structures shared across the pipeline.
package models

// JobStatusEvent is published on every pipeline stage change.
type JobStatusEvent struct {
	EventType         string  `json:"eventType"`
	JobID             string  `json:"jobId"`
	Stage             Stage   `json:"stage"`
	Timestamp         int64   `json:"timestamp"`
	TotalSegments     int     `json:"totalSegments"`
	CompletedSegments int     `json:"completedSegments"`
	ProgressPercent   float64 `json:"progressPercent"`
	Error             string  `json:"error,omitempty"`
	ErrorKind         string  `json:"errorKind,omitempty"`
	ErrorSegmentID    *int    `json:"errorSegmentId,omitempty"`
}

// SegmentTranscriptEvent is published when a single segment finishes.
type SegmentTranscriptEvent struct {
	EventType string `json:"eventType"`
	JobID     string `json:"jobId"`
	SegmentID int    `json:"segmentId"`
	Timestamp int64  `json:"timestamp"`
	StartMs   int64  `json:"startMs"`
	EndMs     int64  `json:"endMs"`
	Attempts  int    `json:"attempts"`
	Status    string `json:"status"`
	Text      string `json:"text,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
}

// TranscriptFinal carries the assembled transcript of a completed job.
type TranscriptFinal struct {
	EventType     string `json:"eventType"`
	JobID         string `json:"jobId"`
	FileName      string `json:"fileName"`
	Timestamp     int64  `json:"timestamp"`
	Text          string `json:"text"`
	Summary       string `json:"summary,omitempty"`
	SegmentCount  int    `json:"segmentCount"`
	AudioDuration int64  `json:"audioDurationMs"`
}

// Event type names.
const (
	EventTypeJobStatus         = "media.transcription.status"
	EventTypeSegmentTranscript = "media.transcription.segment"
	EventTypeTranscriptFinal   = "media.transcription.final"
)
