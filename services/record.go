package services

import "time"

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobRecord is the outcome of one job as reported to the status store and
// the audit log. Step names the failing step and is empty on success.
type JobRecord struct {
	JobID      string
	Source     string
	BackURL    string
	Filename   string
	Status     string
	Step       string
	Error      string
	ArchiveKey string
	StartedAt  time.Time
	Duration   time.Duration
}
