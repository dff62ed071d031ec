// Package media wraps ffmpeg/ffprobe for normalization and segment extraction.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"media-transcription-pipeline/internal/models"
)

// CommandResult captures one external command invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// execRunner executes commands via os/exec. Cancelling ctx kills the process.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// EncodeParams describes one mono mp3 encode.
type EncodeParams struct {
	SampleRateHz int
	BitrateKbps  int
	// Range limits the encode to a slice of the input. Nil encodes everything.
	Range *models.TimeRange
}

// Engine is a per-run handle on the ffmpeg toolchain. It holds no codec
// state; every Transcode is a fresh process with a fresh encoder.
type Engine struct {
	ffmpegPath  string
	ffprobePath string
	tempRoot    string
	runner      CommandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
}

// NewEngine constructs an engine backed by the OS process runner.
func NewEngine(ffmpegPath, ffprobePath, tempRoot string) *Engine {
	return NewEngineWithRunner(ffmpegPath, ffprobePath, tempRoot, &execRunner{})
}

// NewEngineWithRunner constructs an engine with an injected runner.
func NewEngineWithRunner(ffmpegPath, ffprobePath, tempRoot string, runner CommandRunner) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Engine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		tempRoot:    tempRoot,
		runner:      runner,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
	}
}

// NewWorkspace creates a private temp directory for one run.
func (e *Engine) NewWorkspace(prefix string) (*Workspace, error) {
	if prefix == "" {
		prefix = "transcription"
	}
	dir, err := e.mkdirTemp(e.tempRoot, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return newWorkspace(dir, e.removeAll), nil
}

// Probe returns the duration of the media at path.
func (e *Engine) Probe(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := e.runner.Run(ctx, e.ffprobePath, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, commandError("probe", e.ffprobePath, res, err)
	}

	raw := strings.TrimSpace(res.Stdout)
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, models.NewError(models.KindConversion, "probe",
			fmt.Sprintf("no usable duration reported for %s (%q)", path, raw), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Transcode encodes in to a mono mp3 at out.
func (e *Engine) Transcode(ctx context.Context, in, out string, p EncodeParams) error {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if p.Range != nil {
		args = append(args,
			"-ss", formatSeconds(p.Range.Start),
			"-t", formatSeconds(p.Range.Duration()),
		)
	}
	args = append(args,
		"-i", in,
		"-vn",
		"-map_metadata", "-1",
		"-ac", "1",
		"-ar", strconv.Itoa(p.SampleRateHz),
		"-c:a", "libmp3lame",
		"-b:a", strconv.Itoa(p.BitrateKbps)+"k",
		"-f", "mp3",
		out,
	)

	res, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return commandError("transcode", e.ffmpegPath, res, err)
	}
	return nil
}

func commandError(op, command string, res CommandResult, err error) *models.Error {
	msg := fmt.Sprintf("%s exited with code %d", command, res.ExitCode)
	if tail := stderrTail(res.Stderr, 3); tail != "" {
		msg += ": " + tail
	}
	return models.NewError(models.KindConversion, op, msg, err)
}

func stderrTail(stderr string, lines int) string {
	parts := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.TrimSpace(strings.Join(parts, " | "))
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
