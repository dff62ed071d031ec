package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"media-transcription-pipeline/internal/app"
	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/observability/logging"
	"media-transcription-pipeline/internal/service/pipeline"
	"media-transcription-pipeline/internal/service/transcription"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// multipartSlack covers multipart framing around the file part.
	multipartSlack = 1 << 20
	// maxSegmentRequestBytes bounds a segment transcription request body.
	maxSegmentRequestBytes = 64 << 10
)

type handlers struct {
	app  *app.Application
	deps Deps
}

type errorBody struct {
	Error     string              `json:"error"`
	Kind      models.ErrorKind    `json:"kind,omitempty"`
	SegmentID *int                `json:"segmentId,omitempty"`
	Job       *models.JobSnapshot `json:"job,omitempty"`
}

type segmentBody struct {
	SegmentID     int    `json:"segmentId"`
	Transcription string `json:"transcription"`
	Success       bool   `json:"success"`
	Attempts      int    `json:"attempts"`
}

type segmentErrorBody struct {
	Error     string           `json:"error"`
	SegmentID int              `json:"segmentId"`
	Kind      models.ErrorKind `json:"kind"`
	Success   bool             `json:"success"`
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"service": "media-transcription-pipeline"}
	if h.app != nil && h.app.Cfg != nil {
		out["service"] = h.app.Cfg.Service.Name
		out["sttProvider"] = h.app.Cfg.Backend.Provider
		out["model"] = h.app.Cfg.Transcription.Model
		out["uptimeSeconds"] = int64(h.app.Uptime().Seconds())
	}
	out["maxUploadBytes"] = h.deps.Validator.MaxBytes()
	writeJSON(w, http.StatusOK, out)
}

// transcribeSegment fetches one stored segment and transcribes it with
// retries. Failures carry the segment id and error kind.
func (h *handlers) transcribeSegment(w http.ResponseWriter, r *http.Request) {
	if h.deps.Orchestrator == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "transcription is not configured"})
		return
	}

	var req transcription.Request
	body := http.MaxBytesReader(w, r.Body, maxSegmentRequestBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, segmentErrorBody{
			Error:     fmt.Sprintf("invalid request body: %v", err),
			SegmentID: req.SegmentID,
			Kind:      models.KindValidation,
		})
		return
	}
	req.JobID = middleware.GetReqID(r.Context())

	res, err := h.deps.Orchestrator.TranscribeSegment(r.Context(), req)
	if err != nil {
		kind := models.KindOf(err)
		status := http.StatusInternalServerError
		msg := err.Error()
		if e, ok := models.AsError(err); ok {
			status = e.StatusCode()
			msg = kind.Describe()
			if e.Message != "" {
				msg = e.Message
			}
			if e.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(e.RetryAfter.Round(time.Second).Seconds())))
			}
		}
		writeJSON(w, status, segmentErrorBody{Error: msg, SegmentID: req.SegmentID, Kind: kind})
		return
	}

	writeJSON(w, http.StatusOK, segmentBody{
		SegmentID:     res.SegmentID,
		Transcription: res.Transcript,
		Success:       true,
		Attempts:      res.Attempts,
	})
}

// submitJob streams a multipart upload into a new job. The "model" field,
// when used, must precede the "file" part; the query parameter works too.
func (h *handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithComponent("http")
	maxBytes := h.deps.Validator.MaxBytes()

	if r.ContentLength > maxBytes+multipartSlack {
		writeError(w, models.NewError(models.KindOversize, "upload",
			fmt.Sprintf("upload exceeds %d bytes", maxBytes), nil))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartSlack)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, models.NewError(models.KindValidation, "upload", "expected a multipart/form-data upload", err))
		return
	}

	model := r.URL.Query().Get("model")
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, models.NewError(models.KindValidation, "upload", "missing file part", nil))
			return
		}
		if err != nil {
			writeError(w, models.NewError(models.KindValidation, "upload", "malformed multipart body", err))
			return
		}

		switch part.FormName() {
		case "model":
			v, _ := io.ReadAll(io.LimitReader(part, 256))
			model = strings.TrimSpace(string(v))
			continue
		case "file":
		default:
			continue
		}

		src := models.SourceMedia{
			FileName: part.FileName(),
			MIMEType: partMIME(part.Header.Get("Content-Type")),
			Size:     partSize(part.Header.Get("Content-Length")),
			Body:     part,
		}
		if err := h.deps.Validator.Validate(src); err != nil {
			writeError(w, err)
			return
		}

		snap, err := h.deps.Manager.Submit(r.Context(), src, model)
		if errors.Is(err, pipeline.ErrShuttingDown) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
			return
		}
		if err != nil {
			logger.Warn().Err(err).Str("jobId", snap.ID).Msg("Upload failed")
			status := http.StatusInternalServerError
			if e, ok := models.AsError(err); ok {
				status = e.StatusCode()
			}
			writeJSON(w, status, errorBody{Error: err.Error(), Kind: models.KindOf(err), Job: &snap})
			return
		}

		w.Header().Set("Location", "/v1/jobs/"+snap.ID)
		writeJSON(w, http.StatusAccepted, snap)
		return
	}
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, models.NewError(models.KindValidation, "list", "limit must be a positive integer", nil))
			return
		}
		limit = min(n, maxListLimit)
	}

	snaps, err := h.deps.Manager.List(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": snaps})
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.deps.Manager.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, pipeline.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, pipeline.ErrJobTerminal):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "canceling"})
	}
}

// jobSegments returns per-segment diagnostics, including the transcripts
// of segments that finished before a failure.
func (h *handlers) jobSegments(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.lookup(w, r)
	if !ok {
		return
	}
	segments := snap.Segments
	if segments == nil {
		segments = []models.Segment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                snap.ID,
		"stage":             snap.Stage,
		"totalSegments":     snap.TotalSegments,
		"completedSegments": snap.CompletedSegments,
		"error":             snap.Error,
		"segments":          segments,
	})
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (models.JobSnapshot, bool) {
	snap, err := h.deps.Manager.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, pipeline.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return snap, false
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return snap, false
	}
	return snap, true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}
	if e, ok := models.AsError(err); ok {
		status = e.StatusCode()
		body.Kind = e.Kind
		if e.Message != "" {
			body.Error = e.Message
		}
		if e.SegmentID != models.NoSegment {
			id := e.SegmentID
			body.SegmentID = &id
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func partMIME(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return v
	}
	return mt
}

func partSize(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
