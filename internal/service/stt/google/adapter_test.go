package google

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/stt"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if cfg.AudioEncoding != "MP3" {
		t.Errorf("expected default encoding 'MP3', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"mp3", speechpb.RecognitionConfig_MP3},
		{"MP3", speechpb.RecognitionConfig_MP3},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"invalid", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED},
		{"", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestTranscribe_JoinsResults(t *testing.T) {
	var got *speechpb.LongRunningRecognizeRequest
	a := &Adapter{
		cfg: DefaultConfig(),
		recognize: func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
			got = req
			return &speechpb.LongRunningRecognizeResponse{
				Results: []*speechpb.SpeechRecognitionResult{
					{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " hello there "}}},
					{},
					{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "general kenobi"}}},
				},
			}, nil
		},
	}

	text, err := a.Transcribe(context.Background(), stt.Request{SegmentID: 1, Model: "whisper-1", Audio: []byte("mp3")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there general kenobi" {
		t.Errorf("expected joined transcript, got %q", text)
	}
	if got.GetConfig().GetEncoding() != speechpb.RecognitionConfig_MP3 {
		t.Errorf("expected MP3 encoding, got %v", got.GetConfig().GetEncoding())
	}
	if got.GetConfig().GetModel() != "" {
		t.Errorf("expected whisper model id not forwarded, got %q", got.GetConfig().GetModel())
	}
	if string(got.GetAudio().GetContent()) != "mp3" {
		t.Errorf("expected inline audio content, got %q", got.GetAudio().GetContent())
	}
}

func TestTranscribe_ClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want models.ErrorKind
	}{
		{codes.ResourceExhausted, models.KindRateLimit},
		{codes.InvalidArgument, models.KindValidation},
		{codes.DeadlineExceeded, models.KindTimeout},
		{codes.Unavailable, models.KindNetwork},
		{codes.Internal, models.KindNetwork},
		{codes.OutOfRange, models.KindOversize},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			a := &Adapter{
				cfg: DefaultConfig(),
				recognize: func(context.Context, *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
					return nil, status.Error(tt.code, "boom")
				},
			}
			_, err := a.Transcribe(context.Background(), stt.Request{SegmentID: 4, Audio: []byte("x")})
			e, ok := models.AsError(err)
			if !ok {
				t.Fatalf("expected *models.Error, got %T", err)
			}
			if e.Kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, e.Kind)
			}
			if e.SegmentID != 4 {
				t.Errorf("expected segment 4, got %d", e.SegmentID)
			}
		})
	}
}

func TestTranscribe_ContextErrorsPassThrough(t *testing.T) {
	a := &Adapter{
		cfg: DefaultConfig(),
		recognize: func(context.Context, *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
			return nil, context.Canceled
		},
	}
	_, err := a.Transcribe(context.Background(), stt.Request{Audio: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
