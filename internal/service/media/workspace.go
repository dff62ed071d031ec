package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"media-transcription-pipeline/internal/models"
)

// ErrWorkspaceClosed is returned by operations on a closed workspace.
var ErrWorkspaceClosed = errors.New("workspace is closed")

// Artifact is a file owned by a workspace.
type Artifact struct {
	Name string
	Path string
	Size int64
}

// Workspace is the temp directory of one run. Everything in it is removed
// by Close, which is safe to call more than once.
type Workspace struct {
	mu        sync.Mutex
	dir       string
	closed    bool
	removeAll func(path string) error
}

func newWorkspace(dir string, removeAll func(string) error) *Workspace {
	return &Workspace{dir: dir, removeAll: removeAll}
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Ingest copies r into the workspace as name, refusing more than limit bytes.
func (w *Workspace) Ingest(name string, r io.Reader, limit int64) (Artifact, error) {
	if err := w.checkOpen(); err != nil {
		return Artifact{}, err
	}
	path := w.Path(name)
	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("create %s: %w", name, err)
	}

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("write %s: %w", name, err)
	}
	if n > limit {
		_ = os.Remove(path)
		return Artifact{}, models.NewError(models.KindValidation, "ingest",
			fmt.Sprintf("upload exceeds %d MB limit", limit/models.MB), nil)
	}
	if n == 0 {
		_ = os.Remove(path)
		return Artifact{}, models.NewError(models.KindValidation, "ingest", "upload is empty", nil)
	}
	return Artifact{Name: filepath.Base(path), Path: path, Size: n}, nil
}

// Stat returns the artifact called name.
func (w *Workspace) Stat(name string) (Artifact, error) {
	if err := w.checkOpen(); err != nil {
		return Artifact{}, err
	}
	path := w.Path(name)
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: info.Name(), Path: path, Size: info.Size()}, nil
}

// Artifacts lists files matching pattern, sorted by name.
func (w *Workspace) Artifacts(pattern string) ([]Artifact, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(w.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list artifacts %q: %w", pattern, err)
	}
	sort.Strings(matches)

	artifacts := make([]Artifact, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat artifact %s: %w", m, err)
		}
		if info.IsDir() {
			continue
		}
		artifacts = append(artifacts, Artifact{Name: info.Name(), Path: m, Size: info.Size()})
	}
	return artifacts, nil
}

// Remove deletes one artifact. A missing file is not an error.
func (w *Workspace) Remove(name string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if err := os.Remove(w.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.removeAll(w.dir)
}

func (w *Workspace) checkOpen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkspaceClosed
	}
	return nil
}
