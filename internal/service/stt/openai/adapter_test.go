package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/stt"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL+"/v1", "", srv.Client())
}

func TestTranscribe_Success(t *testing.T) {
	var gotModel, gotFile, gotAuth string
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		if _, fh, err := r.FormFile("file"); err == nil {
			gotFile = fh.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"  hello from segment two  "}`)
	})

	text, err := a.Transcribe(context.Background(), stt.Request{
		SegmentID: 2,
		FileName:  "talk-segment-002.mp3",
		Audio:     []byte("ID3fake"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from segment two" {
		t.Errorf("expected trimmed transcript, got %q", text)
	}
	if gotModel != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, gotModel)
	}
	if gotFile != "talk-segment-002.mp3" {
		t.Errorf("expected file name talk-segment-002.mp3, got %s", gotFile)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
}

func TestTranscribe_ClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   models.ErrorKind
	}{
		{http.StatusTooManyRequests, models.KindRateLimit},
		{http.StatusRequestEntityTooLarge, models.KindOversize},
		{http.StatusBadRequest, models.KindValidation},
		{http.StatusInternalServerError, models.KindNetwork},
		{http.StatusBadGateway, models.KindNetwork},
		{http.StatusGatewayTimeout, models.KindTimeout},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"provider said no","type":"server_error"}}`)
			})

			_, err := a.Transcribe(context.Background(), stt.Request{SegmentID: 5, Audio: []byte("x")})
			e, ok := models.AsError(err)
			if !ok {
				t.Fatalf("expected *models.Error, got %T: %v", err, err)
			}
			if e.Kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, e.Kind)
			}
			if e.SegmentID != 5 {
				t.Errorf("expected segment 5, got %d", e.SegmentID)
			}
		})
	}
}

func TestTranscribe_UnreachableServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := New("k", url+"/v1", "", nil)
	_, err := a.Transcribe(context.Background(), stt.Request{SegmentID: 0, Audio: []byte("x")})
	if models.KindOf(err) != models.KindNetwork {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestTranscribe_CancelledContextPassesThrough(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Transcribe(ctx, stt.Request{Audio: []byte("x")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
