package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"media-transcription-pipeline/internal/models"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS transcripts (
    job_id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL,
    size_bytes BIGINT NOT NULL,
    model TEXT NOT NULL,
    stage TEXT NOT NULL,
    tier TEXT NOT NULL DEFAULT '',
    segment_count INTEGER NOT NULL,
    audio_duration_ms BIGINT NOT NULL,
    transcript TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    error_segment INTEGER,
    segments JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);
`

const archiveInsert = `
INSERT INTO transcripts (job_id, file_name, size_bytes, model, stage, tier, segment_count,
    audio_duration_ms, transcript, summary, error_kind, error_message, error_segment,
    segments, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (job_id) DO UPDATE SET
    stage = EXCLUDED.stage,
    segment_count = EXCLUDED.segment_count,
    transcript = EXCLUDED.transcript,
    summary = EXCLUDED.summary,
    error_kind = EXCLUDED.error_kind,
    error_message = EXCLUDED.error_message,
    error_segment = EXCLUDED.error_segment,
    segments = EXCLUDED.segments,
    completed_at = EXCLUDED.completed_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresArchive stores finished jobs in a transcripts table.
type PostgresArchive struct {
	db execer
}

// NewPostgresArchive wraps an open database.
func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

// OpenPostgres opens a pgx-backed database/sql handle and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// Migrate creates the archive table.
func (a *PostgresArchive) Migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, archiveSchema)
	return err
}

// Archive implements Archive. Re-archiving a job overwrites its outcome.
func (a *PostgresArchive) Archive(ctx context.Context, snap models.JobSnapshot) error {
	args, err := archiveArgs(snap)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, archiveInsert, args...); err != nil {
		return fmt.Errorf("archive job %s: %w", snap.ID, err)
	}
	return nil
}

func archiveArgs(snap models.JobSnapshot) ([]any, error) {
	segments := snap.Segments
	if segments == nil {
		segments = []models.Segment{}
	}
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("encode segments of job %s: %w", snap.ID, err)
	}

	var (
		errKind, errMsg string
		errSegment      sql.NullInt32
		completed       sql.NullTime
	)
	if snap.Error != nil {
		errKind = string(snap.Error.Kind)
		errMsg = snap.Error.Message
		if snap.Error.SegmentID != nil {
			errSegment = sql.NullInt32{Int32: int32(*snap.Error.SegmentID), Valid: true}
		}
	}
	if snap.CompletedAt != nil {
		completed = sql.NullTime{Time: *snap.CompletedAt, Valid: true}
	}

	return []any{
		snap.ID, snap.FileName, snap.SizeBytes, snap.Model, string(snap.Stage), string(snap.Tier),
		snap.TotalSegments, snap.AudioDuration.Milliseconds(), snap.Transcript, snap.Summary,
		errKind, errMsg, errSegment, string(segJSON), snap.CreatedAt, completed,
	}, nil
}
