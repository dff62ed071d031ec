package transcription

import (
	"context"
	"errors"
	"net"

	"media-transcription-pipeline/internal/models"
)

// Classify maps any failure of a segment operation onto the error
// taxonomy. Already classified errors keep their kind and gain the
// segment id when they lack one. Context cancellation is returned as-is.
func Classify(err error, segmentID int, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if e, ok := models.AsError(err); ok {
		if e.SegmentID == models.NoSegment {
			return e.WithSegment(segmentID)
		}
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewSegmentError(models.KindTimeout, segmentID, op, "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewSegmentError(models.KindTimeout, segmentID, op, "", err)
	}

	return models.NewSegmentError(models.KindNetwork, segmentID, op, "", err)
}

// IsRetryable reports whether a classified error may succeed on retry.
func IsRetryable(err error) bool {
	return models.KindOf(err).Retryable()
}
