// Command transcribe runs the whole pipeline on a local media file and
// prints the transcript.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"media-transcription-pipeline/internal/app"
	"media-transcription-pipeline/internal/config"
	"media-transcription-pipeline/internal/models"
	"media-transcription-pipeline/internal/service/pipeline"
)

func main() {
	mediaFile := flag.String("file", "", "Path to an audio or video file")
	model := flag.String("model", "", "Transcription model (defaults to TRANSCRIBE_MODEL)")
	provider := flag.String("provider", "", "STT provider: openai, google or mock (defaults to STT_PROVIDER)")
	summarize := flag.Bool("summary", false, "Also summarize the transcript")
	asJSON := flag.Bool("json", false, "Print the final job snapshot as JSON")
	flag.Parse()

	if *mediaFile == "" {
		fmt.Fprintln(os.Stderr, "usage: transcribe -file <path> [-model m] [-provider p] [-summary] [-json]")
		os.Exit(2)
	}

	cfg := config.Load()
	if *provider != "" {
		cfg.Backend.Provider = *provider
	}
	if *summarize {
		cfg.Summary.Enabled = true
	}
	// The CLI never serves blobs over HTTP.
	cfg.Store.Backend = "memory"
	cfg.Store.PublicBaseURL = ""
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.Observability.LogFormat = "console"
	}

	application := app.New(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := application.Build(ctx, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire pipeline")
	}
	defer components.Close()

	f, err := os.Open(*mediaFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open media file")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to stat media file")
	}

	src := models.SourceMedia{
		FileName: filepath.Base(*mediaFile),
		MIMEType: mime.TypeByExtension(filepath.Ext(*mediaFile)),
		Size:     info.Size(),
		Body:     f,
	}
	if err := components.Validator.Validate(src); err != nil {
		log.Fatal().Err(err).Msg("unsupported media file")
	}

	mgr := components.Manager
	snap, err := mgr.Submit(ctx, src, *model)
	if err != nil {
		log.Fatal().Err(err).Msg("upload failed")
	}

	done := mgr.Done(snap.ID)
	go func() {
		<-ctx.Done()
		_ = mgr.Cancel(context.Background(), snap.ID)
	}()
	follow(mgr.Events(), snap.ID, done)

	final, err := mgr.Get(context.Background(), snap.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("job lost")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(final)
	} else if final.Stage == models.StageCompleted {
		fmt.Println(final.Transcript)
		if final.Summary != "" {
			fmt.Println()
			fmt.Println("Summary:")
			fmt.Println(final.Summary)
		}
	}

	if final.Stage != models.StageCompleted {
		e := final.Error
		if e == nil {
			e = &models.JobError{Message: "job did not complete"}
		}
		evt := log.Error().Str("kind", string(e.Kind))
		if e.SegmentID != nil {
			evt = evt.Int("segmentId", *e.SegmentID)
		}
		evt.Msg(e.Message)
		components.Close()
		os.Exit(1)
	}
}

// follow logs job events until done is closed.
func follow(bus *pipeline.EventBus, jobID string, done <-chan struct{}) {
	var seq int64
	finished := false
	for {
		wake := bus.Wait()
		for _, ev := range bus.Since(jobID, seq) {
			seq = ev.Seq
			entry := log.Info().
				Str("type", string(ev.Type)).
				Str("stage", string(ev.Stage)).
				Int("completed", ev.CompletedSegments).
				Int("total", ev.TotalSegments).
				Float64("percent", ev.ProgressPercent)
			if ev.SegmentID != nil {
				entry = entry.Int("segmentId", *ev.SegmentID).Str("segmentStatus", string(ev.SegmentStatus))
			}
			entry.Msg("job event")
		}
		if finished {
			return
		}
		select {
		case <-wake:
		case <-done:
			finished = true
		}
	}
}
