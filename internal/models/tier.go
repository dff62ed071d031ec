package models

import "time"

// TierName identifies a size bucket of the original upload.
type TierName string

const (
	TierSmall TierName = "small"
	TierLarge TierName = "large"
	TierHuge  TierName = "huge"
)

// Tier holds the encode and segmentation parameters of one size bucket.
type Tier struct {
	Name            TierName      `json:"name"`
	SampleRateHz    int           `json:"sampleRateHz"`
	BitrateKbps     int           `json:"bitrateKbps"`
	SegmentDuration time.Duration `json:"segmentDuration"`
}

// TierPolicy selects a Tier from the size of the original input.
type TierPolicy struct {
	LargeThreshold  int64
	HugeThreshold   int64
	Small           Tier
	Large           Tier
	Huge            Tier
	MaxSegmentBytes int64
}

// DefaultTierPolicy returns the production tiering.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		LargeThreshold: 50 * MB,
		HugeThreshold:  150 * MB,
		Small: Tier{
			Name:            TierSmall,
			SampleRateHz:    22050,
			BitrateKbps:     64,
			SegmentDuration: 10 * time.Minute,
		},
		Large: Tier{
			Name:            TierLarge,
			SampleRateHz:    16000,
			BitrateKbps:     48,
			SegmentDuration: 5 * time.Minute,
		},
		Huge: Tier{
			Name:            TierHuge,
			SampleRateHz:    16000,
			BitrateKbps:     32,
			SegmentDuration: 4 * time.Minute,
		},
		MaxSegmentBytes: MaxSegmentBytes,
	}
}

// Select returns the tier for an original input of sizeBytes.
func (p TierPolicy) Select(sizeBytes int64) Tier {
	switch {
	case p.HugeThreshold > 0 && sizeBytes >= p.HugeThreshold:
		return p.Huge
	case p.LargeThreshold > 0 && sizeBytes >= p.LargeThreshold:
		return p.Large
	default:
		return p.Small
	}
}

// Lookup returns the tier called name, defaulting to the small tier.
func (p TierPolicy) Lookup(name TierName) Tier {
	switch name {
	case TierHuge:
		return p.Huge
	case TierLarge:
		return p.Large
	default:
		return p.Small
	}
}

// SegmentCap returns the byte cap for a single segment.
func (p TierPolicy) SegmentCap() int64 {
	if p.MaxSegmentBytes <= 0 {
		return MaxSegmentBytes
	}
	return p.MaxSegmentBytes
}
