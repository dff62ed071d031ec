package media_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/media"
	"media-transcription-pipeline/internal/service/media/mediatest"
)

func TestWorkspace_ArtifactsSortedAndFiltered(t *testing.T) {
	engine := media.NewEngineWithRunner("", "", t.TempDir(), mediatest.NewRunner(0, 0))
	ws := newWorkspace(t, engine)

	for _, name := range []string{"segment_002.mp3", "segment_000.mp3", "segment_001.mp3", "other.txt"} {
		if err := os.WriteFile(ws.Path(name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	arts, err := ws.Artifacts("segment_*.mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(arts))
	}
	for i, want := range []string{"segment_000.mp3", "segment_001.mp3", "segment_002.mp3"} {
		if arts[i].Name != want {
			t.Errorf("artifact %d: expected %s, got %s", i, want, arts[i].Name)
		}
		if arts[i].Size != int64(len(want)) {
			t.Errorf("artifact %d: expected size %d, got %d", i, len(want), arts[i].Size)
		}
	}
}

func TestWorkspace_IngestRejectsOversizeAndEmpty(t *testing.T) {
	engine := media.NewEngineWithRunner("", "", t.TempDir(), mediatest.NewRunner(0, 0))
	ws := newWorkspace(t, engine)

	_, err := ws.Ingest("big.bin", strings.NewReader(strings.Repeat("a", 11)), 10)
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("expected validation error for oversize, got %v", err)
	}
	if _, statErr := os.Stat(ws.Path("big.bin")); !os.IsNotExist(statErr) {
		t.Error("expected oversize upload removed")
	}

	_, err = ws.Ingest("empty.bin", strings.NewReader(""), 10)
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("expected validation error for empty upload, got %v", err)
	}
}

func TestWorkspace_CloseRemovesEverythingAndIsIdempotent(t *testing.T) {
	engine := media.NewEngineWithRunner("", "", t.TempDir(), mediatest.NewRunner(0, 0))
	ws, err := engine.NewWorkspace("close")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Ingest("a.wav", strings.NewReader("data"), 100); err != nil {
		t.Fatal(err)
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("expected workspace dir removed, stat err = %v", err)
	}
	if _, err := ws.Artifacts("*"); !errors.Is(err, media.ErrWorkspaceClosed) {
		t.Errorf("expected ErrWorkspaceClosed, got %v", err)
	}
}

func TestWorkspace_PathStaysInsideWorkspace(t *testing.T) {
	engine := media.NewEngineWithRunner("", "", t.TempDir(), mediatest.NewRunner(0, 0))
	ws := newWorkspace(t, engine)

	p := ws.Path("../../etc/passwd")
	if !strings.HasPrefix(p, ws.Dir()) {
		t.Errorf("expected path inside %s, got %s", ws.Dir(), p)
	}
}
