package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const createConversionsTable = `
CREATE TABLE IF NOT EXISTS document_conversions (
	job_id       TEXT PRIMARY KEY,
	source_url   TEXT NOT NULL,
	back_url     TEXT,
	filename     TEXT,
	status       TEXT NOT NULL,
	failed_step  TEXT,
	error_message TEXT,
	archive_key  TEXT,
	duration_ms  BIGINT,
	started_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`

// DatabaseService keeps an audit row per job in document_conversions.
type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(ctx context.Context, databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createConversionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create document_conversions: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

// Started inserts the row for a job that has just been dequeued. A redelivered
// message with a known ID resets the row to processing.
func (d *DatabaseService) Started(ctx context.Context, rec JobRecord) error {
	query := `
INSERT INTO document_conversions (job_id, source_url, back_url, filename, status, started_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (job_id) DO UPDATE
SET status = EXCLUDED.status, failed_step = NULL, error_message = NULL,
    started_at = EXCLUDED.started_at, updated_at = EXCLUDED.updated_at`
	_, err := d.db.ExecContext(ctx, query,
		rec.JobID, rec.Source, nullable(rec.BackURL), nullable(rec.Filename),
		StatusProcessing, rec.StartedAt, time.Now(),
	)
	return err
}

// Finished stores the final status of a job.
func (d *DatabaseService) Finished(ctx context.Context, rec JobRecord) error {
	query := `
UPDATE document_conversions
SET status = $1, failed_step = $2, error_message = $3, archive_key = $4,
    filename = COALESCE($5, filename), duration_ms = $6, updated_at = $7
WHERE job_id = $8`
	_, err := d.db.ExecContext(ctx, query,
		rec.Status, nullable(rec.Step), nullable(rec.Error), nullable(rec.ArchiveKey),
		nullable(rec.Filename), rec.Duration.Milliseconds(), time.Now(), rec.JobID,
	)
	return err
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
