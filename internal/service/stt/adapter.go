// Package stt defines the interface for speech-to-text backends.
package stt

import (
	"context"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"

	"media-transcription-pipeline/internal/models"
)

// Request is one segment to transcribe.
type Request struct {
	SegmentID int
	FileName  string
	Model     string
	Language  string
	Audio     []byte
}

// Backend transcribes a complete audio segment in one call.
type Backend interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe returns the transcript of req.Audio. Failures should be
	// *models.Error where the provider response allows classification.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// KindForHTTPStatus classifies a provider HTTP status.
func KindForHTTPStatus(status int) models.ErrorKind {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return models.KindOversize
	case status == http.StatusTooManyRequests:
		return models.KindRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return models.KindTimeout
	case status >= 500:
		return models.KindNetwork
	case status >= 400:
		return models.KindValidation
	default:
		return models.KindNetwork
	}
}

// KindForGRPCCode classifies a provider gRPC status code.
func KindForGRPCCode(code codes.Code) models.ErrorKind {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied,
		codes.Unauthenticated, codes.NotFound, codes.Unimplemented:
		return models.KindValidation
	case codes.OutOfRange:
		return models.KindOversize
	case codes.ResourceExhausted:
		return models.KindRateLimit
	case codes.DeadlineExceeded:
		return models.KindTimeout
	default:
		return models.KindNetwork
	}
}

// ProviderError builds a classified error for a provider failure.
func ProviderError(kind models.ErrorKind, segmentID int, backend, message string, retryAfter time.Duration, err error) *models.Error {
	e := models.NewSegmentError(kind, segmentID, backend, message, err)
	e.RetryAfter = retryAfter
	return e
}
