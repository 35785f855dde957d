package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusKeyPrefix = "documentgenerator:status:"

// StatusStore mirrors each job's state into a Redis hash so operators can
// look a job up by ID without reading logs.
type StatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusStore(client *redis.Client, ttl time.Duration) *StatusStore {
	return &StatusStore{client: client, ttl: ttl}
}

func (s *StatusStore) Started(ctx context.Context, rec JobRecord) error {
	return s.write(ctx, rec.JobID, map[string]interface{}{
		"status":     StatusProcessing,
		"source":     rec.Source,
		"back_url":   rec.BackURL,
		"started_at": rec.StartedAt.UTC().Format(time.RFC3339),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *StatusStore) Finished(ctx context.Context, rec JobRecord) error {
	return s.write(ctx, rec.JobID, map[string]interface{}{
		"status":      rec.Status,
		"step":        rec.Step,
		"error":       rec.Error,
		"filename":    rec.Filename,
		"archive_key": rec.ArchiveKey,
		"duration_ms": rec.Duration.Milliseconds(),
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	})
}

// Get returns the stored fields of a job, empty when unknown or expired.
func (s *StatusStore) Get(ctx context.Context, jobID string) (map[string]string, error) {
	return s.client.HGetAll(ctx, StatusKey(jobID)).Result()
}

func (s *StatusStore) write(ctx context.Context, jobID string, fields map[string]interface{}) error {
	key := StatusKey(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update status %s: %w", key, err)
	}
	return nil
}

func StatusKey(jobID string) string {
	return statusKeyPrefix + jobID
}
