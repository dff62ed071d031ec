// Package storage persists job snapshots and archives finished transcripts.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"media-transcription-pipeline/internal/models"
)

// ErrJobNotFound is returned when no snapshot exists for an id.
var ErrJobNotFound = errors.New("job not found")

// JobStore keeps the latest snapshot of every job.
type JobStore interface {
	Save(ctx context.Context, snap models.JobSnapshot) error
	Get(ctx context.Context, id string) (models.JobSnapshot, error)
	// List returns up to limit snapshots, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]models.JobSnapshot, error)
	Delete(ctx context.Context, id string) error
}

// Archive records finished jobs for later retrieval.
type Archive interface {
	Archive(ctx context.Context, snap models.JobSnapshot) error
}

// MemoryJobStore is a process-local JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.JobSnapshot
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.JobSnapshot)}
}

// Save implements JobStore.
func (s *MemoryJobStore) Save(ctx context.Context, snap models.JobSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[snap.ID] = snap
	return nil
}

// Get implements JobStore.
func (s *MemoryJobStore) Get(ctx context.Context, id string) (models.JobSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.jobs[id]
	if !ok {
		return models.JobSnapshot{}, ErrJobNotFound
	}
	return snap, nil
}

// List implements JobStore.
func (s *MemoryJobStore) List(ctx context.Context, limit int) ([]models.JobSnapshot, error) {
	s.mu.RLock()
	out := make([]models.JobSnapshot, 0, len(s.jobs))
	for _, snap := range s.jobs {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete implements JobStore.
func (s *MemoryJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func sortNewestFirst(snaps []models.JobSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
}

// NopArchive discards every job.
type NopArchive struct{}

// Archive implements Archive.
func (NopArchive) Archive(ctx context.Context, snap models.JobSnapshot) error { return nil }
