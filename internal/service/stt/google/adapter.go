// Package google provides a Google Cloud Speech-to-Text backend.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/stt"
)

// Name is the backend identifier.
const Name = "google"

// Config holds recognition settings.
type Config struct {
	LanguageCode    string
	SampleRateHz    int
	AudioEncoding   string
	Model           string
	CredentialsFile string
}

// DefaultConfig matches the mono mp3 segments produced by the segmenter.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "MP3",
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)

// Adapter implements stt.Backend using long-running recognition with
// inline audio content.
type Adapter struct {
	client    *speech.Client
	recognize recognizeFunc
	cfg       Config
}

// New creates a new Google STT backend. Without a credentials file the
// client uses GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	a := &Adapter{client: c, cfg: cfg}
	a.recognize = func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := c.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	}
	return a, nil
}

// Name implements stt.Backend.
func (a *Adapter) Name() string { return Name }

// Transcribe implements stt.Backend.
func (a *Adapter) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	lang := a.cfg.LanguageCode
	if req.Language != "" {
		lang = req.Language
	}
	model := a.cfg.Model
	if req.Model != "" && !strings.HasPrefix(req.Model, "whisper") {
		model = req.Model
	}

	resp, err := a.recognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:            int32(a.cfg.SampleRateHz),
			AudioChannelCount:          1,
			LanguageCode:               lang,
			Model:                      model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio},
		},
	})
	if err != nil {
		return "", classify(req.SegmentID, err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func classify(segmentID int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	return stt.ProviderError(stt.KindForGRPCCode(st.Code()), segmentID, Name, st.Message(), 0, err)
}

// parseAudioEncoding converts a string to the speechpb encoding enum.
func parseAudioEncoding(enc string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToUpper(enc) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "MP3":
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
