package models

import (
	"io"
	"time"
)

// Size constants.
const (
	KB int64 = 1024
	MB int64 = 1024 * KB
)

// Hard limits of the pipeline.
const (
	MaxUploadBytes  = 500 * MB
	MaxSegmentBytes = 20 * MB
)

// SourceMedia is an accepted upload. Body is read exactly once.
type SourceMedia struct {
	FileName string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// NormalizedAudio is the mono compressed stream derived from a SourceMedia.
type NormalizedAudio struct {
	Path         string        `json:"-"`
	Format       string        `json:"format"`
	SampleRateHz int           `json:"sampleRateHz"`
	BitrateKbps  int           `json:"bitrateKbps"`
	Duration     time.Duration `json:"duration"`
	SizeBytes    int64         `json:"sizeBytes"`
	Passthrough  bool          `json:"passthrough"`
	Tier         TierName      `json:"tier"`
}

// TimeRange is a half-open interval [Start, End) of the audio timeline.
type TimeRange struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End - r.Start
}
