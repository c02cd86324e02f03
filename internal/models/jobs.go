package models

import (
	"encoding/json"
	"time"
)

// Job type constants — the content-generation work the engine dispatches.
// The engine treats types as opaque tags; new types only need a handler
// registration.
const (
	JobTypeFlashcardGeneration  = "flashcard_generation"
	JobTypeDistractorGeneration = "distractor_generation"
	JobTypeTreeGeneration       = "tree_generation"
)

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Default priorities (higher = dispatched first). Trees fan out into child
// jobs, so they go first; distractors depend on existing cards.
const (
	PriorityTreeGeneration       = 10
	PriorityDistractorGeneration = 5
	PriorityFlashcardGeneration  = 3
)

// DefaultPriority returns the default priority for a job type.
func DefaultPriority(jobType string) int {
	switch jobType {
	case JobTypeTreeGeneration:
		return PriorityTreeGeneration
	case JobTypeDistractorGeneration:
		return PriorityDistractorGeneration
	case JobTypeFlashcardGeneration:
		return PriorityFlashcardGeneration
	default:
		return 0
	}
}

// Job represents a durable unit of work owned by a principal.
// Payload is opaque to the engine; the registered handler validates it.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	PrincipalID string          `json:"principal_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the job is in an absorbing state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CanDispatch reports whether the job is eligible for dispatch at the given
// instant: pending, and either no retry hold or the hold has elapsed.
// A next_retry_at exactly equal to now is eligible.
func (j *Job) CanDispatch(now time.Time) bool {
	if j.Status != JobStatusPending {
		return false
	}
	return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
}

// JobFilter narrows List results. Zero values mean "any"; Limit is clamped
// by the store to [1, max list limit].
type JobFilter struct {
	Type   string
	Status string
	Limit  int
}

// JobStatusPatch enumerates the fields a status transition may modify.
// Nil pointer fields are left untouched; Clear flags write NONE explicitly.
type JobStatusPatch struct {
	Attempts       *int
	StartedAt      *time.Time
	CompletedAt    *time.Time
	NextRetryAt    *time.Time
	ClearNextRetry bool
	Result         json.RawMessage
	Error          *string
	ClearError     bool
}

// RateWindow is one hour of admission accounting for a (principal, type)
// pair. WindowStart is floored to the hour, UTC.
type RateWindow struct {
	PrincipalID string    `json:"principal_id"`
	JobType     string    `json:"job_type"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// JobStats holds true per-status counts plus the oldest terminal timestamps,
// produced by aggregation over the jobs table.
type JobStats struct {
	Pending           int        `json:"pending"`
	Processing        int        `json:"processing"`
	Completed         int        `json:"completed"`
	Failed            int        `json:"failed"`
	OldestCompletedAt *time.Time `json:"oldest_completed_at,omitempty"`
	OldestFailedAt    *time.Time `json:"oldest_failed_at,omitempty"`
}

// Job event type constants
const (
	EventJobQueued    = "job_queued"
	EventJobStarted   = "job_started"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
	EventJobRetrying  = "job_retrying"
)

// JobEvent is broadcast via WebSocket on every job state transition.
type JobEvent struct {
	Type        string    `json:"type"`
	JobID       string    `json:"job_id"`
	JobType     string    `json:"job_type"`
	PrincipalID string    `json:"principal_id"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
