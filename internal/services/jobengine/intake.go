package jobengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/google/uuid"
)

// isJSONObject reports whether raw is a JSON object. The engine does not
// validate payload shape beyond this; the handler owns the schema.
func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	// Unmarshal accepts the literal null for a map and leaves it nil.
	return obj != nil
}

// Enqueue validates and admits a new job. Admission denial returns a
// *models.RateLimitError (matches ErrRateLimited); no row is created and the
// window counter is untouched.
func (e *Engine) Enqueue(ctx context.Context, principalID, jobType string, payload json.RawMessage, priority *int) (*models.Job, error) {
	if !e.registry.Known(jobType) {
		return nil, fmt.Errorf("%w: unknown job type %q", models.ErrValidation, jobType)
	}
	if len(payload) == 0 || !isJSONObject(payload) {
		return nil, fmt.Errorf("%w: payload must be a JSON object", models.ErrValidation)
	}

	decision, err := e.limiter.Check(ctx, principalID, jobType)
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !decision.Admitted {
		return nil, &models.RateLimitError{
			RetryAfterSeconds: decision.RetryAfterSeconds,
			ResetAt:           decision.ResetAt,
		}
	}

	now := e.now().UTC()
	job := &models.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Status:      models.JobStatusPending,
		Attempts:    0,
		MaxAttempts: e.registry.MaxAttempts(jobType),
		PrincipalID: principalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if priority != nil {
		job.Priority = *priority
	} else {
		job.Priority = models.DefaultPriority(jobType)
	}

	if err := e.storage.JobStore().Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	e.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", jobType).
		Str("principal_id", principalID).
		Int("priority", job.Priority).
		Int("remaining", decision.Remaining).
		Msg("Job enqueued")

	e.broadcast(models.EventJobQueued, job)
	return job, nil
}

// Status reaps stale leases, fetches the job, and — when the job is
// dispatchable — spawns background processing before returning the
// pre-dispatch snapshot. The reap runs first so the read never sees a stale
// processing row. Cross-principal access returns ErrNotFound rather than
// forbidden to avoid existence disclosure.
func (e *Engine) Status(ctx context.Context, principalID, id string) (*models.Job, error) {
	if _, err := e.Reap(ctx); err != nil {
		// Compensation only; the poll itself can still proceed.
		e.logger.Warn().Err(err).Msg("Stale-lease reap failed during status poll")
	}

	job, err := e.storage.JobStore().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.PrincipalID != principalID {
		return nil, models.ErrNotFound
	}

	if job.CanDispatch(e.now().UTC()) {
		e.Dispatch(job)
	}
	return job, nil
}

// Retry enqueues a fresh job with the same type, payload, and priority as a
// failed one. The original row is left untouched.
func (e *Engine) Retry(ctx context.Context, principalID, id string) (*models.Job, error) {
	original, err := e.storage.JobStore().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.PrincipalID != principalID {
		return nil, models.ErrNotFound
	}
	if original.Status != models.JobStatusFailed {
		return nil, fmt.Errorf("%w: only failed jobs can be retried (status=%s)", models.ErrInvalidState, original.Status)
	}

	priority := original.Priority
	return e.Enqueue(ctx, principalID, original.Type, original.Payload, &priority)
}

// List returns the principal's jobs, newest first.
func (e *Engine) List(ctx context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error) {
	return e.storage.JobStore().List(ctx, principalID, filter)
}

// ListAll returns jobs across all principals (admin).
func (e *Engine) ListAll(ctx context.Context, filter models.JobFilter) ([]*models.Job, error) {
	return e.storage.JobStore().ListAll(ctx, filter)
}

// Stats returns true per-status counts and oldest terminal timestamps.
func (e *Engine) Stats(ctx context.Context) (*models.JobStats, error) {
	return e.storage.JobStore().Stats(ctx)
}

// Compile-time check
var _ interfaces.JobIntake = (*Engine)(nil)
