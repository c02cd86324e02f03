// Package interfaces defines service contracts for Curio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/curio/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	// Storage accessors
	JobStore() JobStore
	RateWindowStore() RateWindowStore
	ContentStore() ContentStore

	// Lifecycle
	Close() error
}

// JobStore durably persists jobs. Every method commits a single statement;
// state transitions happen here and nowhere else. Storage errors propagate
// to the caller — no silent retries.
type JobStore interface {
	// Create inserts a new pending job. Fails on id collision.
	Create(ctx context.Context, job *models.Job) error

	// Get returns the job row, or models.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Job, error)

	// UpdateStatus sets the status plus the enumerated patch fields in one
	// statement and bumps updated_at.
	UpdateStatus(ctx context.Context, id string, status string, patch models.JobStatusPatch) error

	// ClaimPending conditionally transitions a pending, eligible job to
	// processing (started_at=now, attempts+1). Returns the claimed row, or
	// nil when another claimer won or the job is no longer eligible.
	ClaimPending(ctx context.Context, id string, now time.Time) (*models.Job, error)

	// ClaimNextPending claims the highest-priority eligible pending job for
	// a principal (priority desc, created_at asc). Returns nil when there is
	// no eligible work.
	ClaimNextPending(ctx context.Context, principalID string, now time.Time) (*models.Job, error)

	// List returns a principal's jobs matching the filter, newest first.
	List(ctx context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error)

	// ListAll returns jobs across all principals, newest first (admin).
	ListAll(ctx context.Context, filter models.JobFilter) ([]*models.Job, error)

	// ResetStale recovers processing jobs whose lease anchor is older than
	// olderThan. Rows with attempts remaining go back to pending with
	// next_retry_at=now; rows whose attempts already reached max_attempts
	// are marked failed. Attempts are never rolled back. Returns the number
	// of rows reset to pending.
	ResetStale(ctx context.Context, olderThan time.Time, now time.Time) (int, error)

	// Stats returns true per-status counts and oldest terminal timestamps.
	Stats(ctx context.Context) (*models.JobStats, error)

	// DeleteTerminalBefore deletes up to batch jobs in the given terminal
	// status whose completed_at is before cutoff. Dry-run counts without
	// deleting. Pending and processing rows are never touched.
	DeleteTerminalBefore(ctx context.Context, status string, cutoff time.Time, batch int, dryRun bool) (int, error)
}

// RateWindowStore persists hourly admission counters keyed by
// (principal, job type, window start).
type RateWindowStore interface {
	// GetCount returns the admission count for a window; absent rows are 0.
	GetCount(ctx context.Context, principalID, jobType string, windowStart time.Time) (int, error)

	// Increment atomically upserts the window row, adding one admission.
	// Returns the post-increment count.
	Increment(ctx context.Context, principalID, jobType string, windowStart time.Time) (int, error)

	// DeleteBefore removes windows that started before cutoff. Dry-run
	// counts without deleting. Returns the number of rows affected.
	DeleteBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}

// ContentStore persists generated learning content. Writes are upserts keyed
// by ids derived from the producing job, so handler re-execution after a
// crash or duplicate dispatch overwrites instead of duplicating.
type ContentStore interface {
	SaveFlashcard(ctx context.Context, card *models.Flashcard) error
	GetFlashcard(ctx context.Context, id string) (*models.Flashcard, error)

	SaveDistractor(ctx context.Context, d *models.Distractor) error

	SaveTree(ctx context.Context, tree *models.LearningTree) error
	GetTree(ctx context.Context, id string) (*models.LearningTree, error)
}
