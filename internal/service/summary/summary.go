// Package summary condenses an assembled transcript with a chat model.
package summary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/stt"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.GPT4oMini

// DefaultMaxInputChars bounds the transcript text sent for summarization.
const DefaultMaxInputChars = 120000

const systemPrompt = "You summarize transcripts of recorded audio. " +
	"Write a concise summary in the language of the transcript. " +
	"Use short paragraphs and keep names, numbers and decisions."

// Summarizer produces a summary of a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Config configures the OpenAI summarizer.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxInputChars int
	Temperature   float32
}

// OpenAI implements Summarizer with the chat completion endpoint.
type OpenAI struct {
	client   *openai.Client
	model    string
	maxChars int
	temp     float32
}

// NewOpenAI creates a summarizer.
func NewOpenAI(cfg Config, httpClient *http.Client) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(oc),
		model:    cfg.Model,
		maxChars: cfg.MaxInputChars,
		temp:     cfg.Temperature,
	}
}

// Summarize implements Summarizer. An empty transcript yields an empty
// summary without calling the API.
func (s *OpenAI) Summarize(ctx context.Context, transcript string) (string, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return "", nil
	}
	text = truncate(text, s.maxChars)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: s.temp,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", models.NewError(models.KindNetwork, "summarize", "chat completion returned no choices", nil)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return models.NewError(stt.KindForHTTPStatus(apiErr.HTTPStatusCode), "summarize", apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return models.NewError(stt.KindForHTTPStatus(reqErr.HTTPStatusCode), "summarize",
			fmt.Sprintf("summary request failed with status %d", reqErr.HTTPStatusCode), err)
	}
	return models.NewError(models.KindNetwork, "summarize", "summary request failed", err)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
