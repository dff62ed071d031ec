// Package mediatest provides a fake ffmpeg/ffprobe runner for tests.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-transcription-pipeline/internal/service/media"
)

// Call records one command invocation.
type Call struct {
	Name string
	Args []string
}

// Runner fakes ffprobe and ffmpeg. ffprobe answers with Duration; ffmpeg
// writes a file of OutputSize bytes to its last argument.
type Runner struct {
	mu sync.Mutex

	// Duration returns the probed duration for a path.
	Duration func(path string) time.Duration
	// OutputSize returns the number of bytes ffmpeg writes. clip is the
	// -t value of the call, zero when the whole input is encoded.
	OutputSize func(clip time.Duration) int64
	// TranscodeErr makes every ffmpeg call fail.
	TranscodeErr error
	// ProbeErr makes every ffprobe call fail.
	ProbeErr error
	// Block makes ffmpeg wait for context cancellation.
	Block bool

	calls []Call
}

// NewRunner returns a runner reporting duration for every probe and a
// constant bytes-per-second output rate.
func NewRunner(duration time.Duration, bytesPerSecond int64) *Runner {
	return &Runner{
		Duration: func(string) time.Duration { return duration },
		OutputSize: func(clip time.Duration) int64 {
			if clip == 0 {
				clip = duration
			}
			return int64(clip.Seconds() * float64(bytesPerSecond))
		},
	}
}

// Run implements media.CommandRunner.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (media.CommandResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return media.CommandResult{ExitCode: -1}, err
	}

	if strings.Contains(name, "ffprobe") {
		if r.ProbeErr != nil {
			return media.CommandResult{ExitCode: 1, Stderr: r.ProbeErr.Error()}, r.ProbeErr
		}
		d := r.Duration(args[len(args)-1])
		return media.CommandResult{Stdout: strconv.FormatFloat(d.Seconds(), 'f', 3, 64) + "\n"}, nil
	}

	if r.Block {
		<-ctx.Done()
		return media.CommandResult{ExitCode: -1}, ctx.Err()
	}
	if r.TranscodeErr != nil {
		return media.CommandResult{ExitCode: 1, Stderr: "Invalid data found when processing input"}, r.TranscodeErr
	}

	out := args[len(args)-1]
	size := r.OutputSize(ClipOf(args))
	if size < 0 {
		return media.CommandResult{ExitCode: 1}, errors.New("negative output size")
	}
	if err := os.WriteFile(out, make([]byte, size), 0o644); err != nil {
		return media.CommandResult{ExitCode: 1, Stderr: err.Error()}, fmt.Errorf("write fake output: %w", err)
	}
	return media.CommandResult{}, nil
}

// Calls returns the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// TranscodeCalls returns only the ffmpeg invocations.
func (r *Runner) TranscodeCalls() []Call {
	var out []Call
	for _, c := range r.Calls() {
		if !strings.Contains(c.Name, "ffprobe") {
			out = append(out, c)
		}
	}
	return out
}

// ClipOf extracts the -t duration from ffmpeg args.
func ClipOf(args []string) time.Duration {
	return flagSeconds(args, "-t")
}

// StartOf extracts the -ss offset from ffmpeg args.
func StartOf(args []string) time.Duration {
	return flagSeconds(args, "-ss")
}

func flagSeconds(args []string, flag string) time.Duration {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			v, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return 0
			}
			return time.Duration(v * float64(time.Second))
		}
	}
	return 0
}
