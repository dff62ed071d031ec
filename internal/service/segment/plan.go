package segment

import (
	"errors"
	"fmt"
	"time"

	"media-transcription-pipeline/internal/models"
)

// Coverage errors reported by Verify.
var (
	ErrNoSegments   = errors.New("no segments")
	ErrCoverageGap  = errors.New("segments are not contiguous")
	ErrTruncated    = errors.New("segments do not cover the whole stream")
	ErrEmptySegment = errors.New("segment has no duration")
	ErrOverCap      = errors.New("segment exceeds size cap")
	ErrBadIndex     = errors.New("segment index out of order")
)

// capHeadroom keeps planned segments below the byte cap to absorb
// container overhead and VBR drift.
const capHeadroom = 0.9

// TargetDuration returns the per-segment duration for tier, bounded by
// the time a bitrateKbps stream needs to fill capBytes.
func TargetDuration(tier models.Tier, bitrateKbps int, capBytes int64) time.Duration {
	target := tier.SegmentDuration
	if bitrateKbps <= 0 {
		bitrateKbps = tier.BitrateKbps
	}
	if bitrateKbps > 0 && capBytes > 0 {
		seconds := float64(capBytes*8) / float64(bitrateKbps*1000) * capHeadroom
		byCap := time.Duration(seconds * float64(time.Second)).Truncate(time.Millisecond)
		if byCap > 0 && byCap < target {
			target = byCap
		}
	}
	return target
}

// Plan splits [0, total) into ranges of target length. The last range
// holds the remainder and may be shorter.
func Plan(total, target time.Duration) []models.TimeRange {
	if total <= 0 {
		return nil
	}
	if target <= 0 || target >= total {
		return []models.TimeRange{{Start: 0, End: total}}
	}

	n := int(total / target)
	if total%target != 0 {
		n++
	}
	ranges := make([]models.TimeRange, 0, n)
	for start := time.Duration(0); start < total; start += target {
		end := start + target
		if end > total {
			end = total
		}
		ranges = append(ranges, models.TimeRange{Start: start, End: end})
	}
	return ranges
}

// Split halves r.
func Split(r models.TimeRange) (models.TimeRange, models.TimeRange) {
	mid := r.Start + r.Duration()/2
	return models.TimeRange{Start: r.Start, End: mid}, models.TimeRange{Start: mid, End: r.End}
}

// VerifyRanges checks that ranges exactly cover [0, total).
func VerifyRanges(ranges []models.TimeRange, total time.Duration) error {
	if len(ranges) == 0 {
		return ErrNoSegments
	}
	if ranges[0].Start != 0 {
		return fmt.Errorf("%w: first range starts at %v", ErrCoverageGap, ranges[0].Start)
	}
	for i, r := range ranges {
		if r.Duration() <= 0 {
			return fmt.Errorf("%w: range %d", ErrEmptySegment, i)
		}
		if i > 0 && ranges[i-1].End != r.Start {
			return fmt.Errorf("%w: range %d ends at %v, range %d starts at %v",
				ErrCoverageGap, i-1, ranges[i-1].End, i, r.Start)
		}
	}
	if last := ranges[len(ranges)-1].End; last != total {
		return fmt.Errorf("%w: ends at %v of %v", ErrTruncated, last, total)
	}
	return nil
}

// Verify checks index order, exact coverage of total, and the byte cap.
func Verify(segments []models.Segment, total time.Duration, capBytes int64) error {
	ranges := make([]models.TimeRange, len(segments))
	for i, s := range segments {
		if s.Index != i {
			return fmt.Errorf("%w: position %d has index %d", ErrBadIndex, i, s.Index)
		}
		if capBytes > 0 && s.SizeBytes > capBytes {
			return fmt.Errorf("%w: segment %d is %d bytes", ErrOverCap, i, s.SizeBytes)
		}
		ranges[i] = s.Range()
	}
	return VerifyRanges(ranges, total)
}
