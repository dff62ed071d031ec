// Package openai provides a Whisper-compatible speech-to-text backend.
package openai

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/stt"
)

// Name is the backend identifier.
const Name = "openai"

// DefaultModel is used when a request names no model.
const DefaultModel = openai.Whisper1

// Adapter implements stt.Backend with the audio transcription endpoint.
type Adapter struct {
	client   *openai.Client
	language string
}

// New creates an OpenAI backend. baseURL may point at any compatible
// server; empty uses the public API.
func New(apiKey, baseURL, language string, httpClient *http.Client) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Adapter{
		client:   openai.NewClientWithConfig(cfg),
		language: language,
	}
}

// Name implements stt.Backend.
func (a *Adapter) Name() string { return Name }

// Transcribe implements stt.Backend.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	lang := a.language
	if req.Language != "" {
		lang = req.Language
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = "segment.mp3"
	}

	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: fileName,
		Reader:   bytes.NewReader(req.Audio),
		Language: lang,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", classify(req.SegmentID, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func classify(segmentID int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		kind := stt.KindForHTTPStatus(apiErr.HTTPStatusCode)
		return stt.ProviderError(kind, segmentID, Name, apiErr.Message, 0, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		kind := stt.KindForHTTPStatus(reqErr.HTTPStatusCode)
		return stt.ProviderError(kind, segmentID, Name, http.StatusText(reqErr.HTTPStatusCode), 0, err)
	}

	return models.NewSegmentError(models.KindNetwork, segmentID, Name, "transcription request failed", err)
}
