package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindValidation         ErrorKind = "validation"
	KindOversize           ErrorKind = "oversize"
	KindTimeout            ErrorKind = "timeout"
	KindRateLimit          ErrorKind = "rate_limit"
	KindNetwork            ErrorKind = "network"
	KindConversion         ErrorKind = "conversion"
	KindIncompleteAssembly ErrorKind = "incomplete_assembly"
	// KindCanceled marks a job stopped by its owner. It is never retried.
	KindCanceled ErrorKind = "canceled"
)

// Retryable reports whether an operation failing with this kind may succeed
// on a later attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindNetwork:
		return true
	default:
		return false
	}
}

// StatusCode maps the kind onto the HTTP status used by the segment API.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindValidation, KindOversize:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Describe returns a user-facing explanation for the kind.
func (k ErrorKind) Describe() string {
	switch k {
	case KindValidation:
		return "invalid or missing segment reference"
	case KindOversize:
		return "segment exceeds the transcription backend size limit; reduce segment size"
	case KindTimeout:
		return "operation exceeded its time limit; the segment can be resubmitted"
	case KindRateLimit:
		return "transcription backend is throttling requests; retry later"
	case KindNetwork:
		return "network or backend failure; the segment can be resubmitted"
	case KindConversion:
		return "media could not be converted to audio"
	case KindIncompleteAssembly:
		return "transcript assembled before all segments completed"
	case KindCanceled:
		return "job was canceled"
	default:
		return "unknown error"
	}
}

// NoSegment marks an Error that is not tied to a single segment.
const NoSegment = -1

// Error is a classified pipeline failure.
type Error struct {
	Kind       ErrorKind
	SegmentID  int
	Op         string
	Message    string
	RetryAfter time.Duration
	Err        error
}

// NewError builds a job-scoped error.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, SegmentID: NoSegment, Op: op, Message: message, Err: err}
}

// NewSegmentError builds an error bound to a segment.
func NewSegmentError(kind ErrorKind, segmentID int, op, message string, err error) *Error {
	return &Error{Kind: kind, SegmentID: segmentID, Op: op, Message: message, Err: err}
}

// Error formats the failure with its class and segment.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Describe()
	}
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.SegmentID != NoSegment {
		prefix = fmt.Sprintf("%s (segment %d)", prefix, e.SegmentID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether the failure may be retried.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind.Retryable()
}

// StatusCode returns the HTTP status for the failure.
func (e *Error) StatusCode() int {
	if e == nil {
		return http.StatusOK
	}
	return e.Kind.StatusCode()
}

// WithSegment returns a copy bound to segmentID.
func (e *Error) WithSegment(segmentID int) *Error {
	c := *e
	c.SegmentID = segmentID
	return &c
}

// KindOf extracts the classification of err, or KindNone when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// AsError extracts a classified error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
