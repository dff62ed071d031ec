// Package schema validates uploads before a job is created.
package schema

import (
	"fmt"
	"path/filepath"
	"strings"

	"media-transcription-pipeline/internal/models"
)

// SupportedTypes maps each accepted container extension to the content
// types that may label it. An empty or application/octet-stream type is
// treated as unknown and accepted for any supported extension.
var SupportedTypes = map[string][]string{
	".mp4":  {"video/mp4", "audio/mp4"},
	".mov":  {"video/quicktime"},
	".mkv":  {"video/x-matroska", "video/matroska", "audio/x-matroska"},
	".avi":  {"video/x-msvideo", "video/avi", "video/msvideo"},
	".webm": {"video/webm", "audio/webm"},
	".mp3":  {"audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3"},
	".wav":  {"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave"},
	".m4a":  {"audio/mp4", "audio/x-m4a", "audio/m4a"},
	".flac": {"audio/flac", "audio/x-flac"},
	".aac":  {"audio/aac", "audio/x-aac", "audio/aacp"},
	".ogg":  {"audio/ogg", "video/ogg", "application/ogg"},
	".opus": {"audio/opus", "audio/ogg"},
}

// Validator checks SourceMedia against the upload limits.
type Validator struct {
	maxBytes int64
	types    map[string]map[string]bool
}

// New creates a validator. maxBytes <= 0 uses the global ceiling.
func New(maxBytes int64) *Validator {
	if maxBytes <= 0 || maxBytes > models.MaxUploadBytes {
		maxBytes = models.MaxUploadBytes
	}
	types := make(map[string]map[string]bool, len(SupportedTypes))
	for ext, mimes := range SupportedTypes {
		set := make(map[string]bool, len(mimes))
		for _, m := range mimes {
			set[m] = true
		}
		types[ext] = set
	}
	return &Validator{maxBytes: maxBytes, types: types}
}

// MaxBytes returns the effective upload limit.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate rejects uploads that are too large or of an unsupported type.
// A zero Size means unknown; the limit is then enforced while copying.
func (v *Validator) Validate(src models.SourceMedia) error {
	name := strings.TrimSpace(src.FileName)
	if name == "" {
		return models.NewError(models.KindValidation, "validate", "file name is required", nil)
	}
	if src.Size < 0 {
		return models.NewError(models.KindValidation, "validate", "size must be non-negative", nil)
	}
	if src.Size > v.maxBytes {
		return models.NewError(models.KindOversize, "validate",
			fmt.Sprintf("upload is %d bytes, limit is %d", src.Size, v.maxBytes), nil)
	}

	ext := strings.ToLower(filepath.Ext(name))
	mimes, ok := v.types[ext]
	if !ok {
		return models.NewError(models.KindValidation, "validate",
			fmt.Sprintf("unsupported file extension %q", ext), nil)
	}
	mime := baseMIME(src.MIMEType)
	if mime != "" && mime != "application/octet-stream" && !mimes[mime] {
		return models.NewError(models.KindValidation, "validate",
			fmt.Sprintf("content type %q does not match extension %q", src.MIMEType, ext), nil)
	}
	return nil
}

func baseMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}
