// Package interfaces defines service contracts for Curio
package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bobmcallan/curio/internal/models"
)

// JobIntake is the enqueue-only view of the engine that handlers receive for
// cascading child work. Enqueue validates the type and payload, consults the
// rate limiter, and persists a pending job. A nil priority takes the type's
// default.
type JobIntake interface {
	Enqueue(ctx context.Context, principalID, jobType string, payload json.RawMessage, priority *int) (*models.Job, error)
}

// JobEngine is the full intake, dispatch, and maintenance surface of the
// job engine.
type JobEngine interface {
	JobIntake

	// Status reaps stale leases, fetches the job, and — when the job is
	// dispatchable — spawns background processing before returning the
	// pre-dispatch snapshot. Cross-principal access returns ErrNotFound.
	Status(ctx context.Context, principalID, id string) (*models.Job, error)

	// Retry enqueues a fresh job with the same type, payload, and priority
	// as a failed one. Non-failed originals return ErrInvalidState.
	Retry(ctx context.Context, principalID, id string) (*models.Job, error)

	// List returns the principal's jobs, newest first.
	List(ctx context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error)

	// ListAll returns jobs across all principals (admin).
	ListAll(ctx context.Context, filter models.JobFilter) ([]*models.Job, error)

	// Stats returns true per-status counts and oldest terminal timestamps.
	Stats(ctx context.Context) (*models.JobStats, error)

	// Reap resets processing jobs whose lease has expired back to pending.
	Reap(ctx context.Context) (int, error)

	// Cleanup deletes terminal jobs and expired rate windows past their
	// retention. Zero-value options take configured defaults.
	Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupResult, error)
}

// CleanupOptions configures a GC pass. Zero durations and batch take the
// configured defaults; DryRun reports counts without deleting.
type CleanupOptions struct {
	CompletedMaxAge time.Duration
	FailedMaxAge    time.Duration
	WindowMaxAge    time.Duration
	BatchSize       int
	DryRun          bool
}

// CleanupResult reports rows deleted (or would-be-deleted) per category.
type CleanupResult struct {
	CompletedDeleted int  `json:"completed_deleted"`
	FailedDeleted    int  `json:"failed_deleted"`
	WindowsDeleted   int  `json:"windows_deleted"`
	DryRun           bool `json:"dry_run"`
}

// RateLimiter decides whether new work is admitted for a (principal, type)
// pair in the current window, incrementing the counter on admission.
type RateLimiter interface {
	Check(ctx context.Context, principalID, jobType string) (*RateDecision, error)
}

// RateDecision is the outcome of an admission check.
type RateDecision struct {
	Admitted          bool
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int
}
