package jobengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/curio/internal/models"
)

// Dispatch spawns background processing for a job. The caller gets control
// back immediately; the goroutine is tracked so Stop drains it.
func (e *Engine) Dispatch(job *models.Job) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	id := job.ID
	e.safeGo("dispatch-"+id, func() {
		e.Process(ctx, id)
	})
}

// Process runs one dispatch attempt for the job. It claims the row with a
// conditional update, so concurrent pollers racing on the same job produce
// exactly one execution; losers return without side effects.
func (e *Engine) Process(ctx context.Context, id string) {
	now := e.now().UTC()

	claimed, err := e.storage.JobStore().ClaimPending(ctx, id, now)
	if err != nil {
		e.logger.Error().Str("job_id", id).Err(err).Msg("Failed to claim job")
		return
	}
	if claimed == nil {
		// Another poller won, or the job is no longer eligible.
		e.logger.Debug().Str("job_id", id).Msg("Job claim lost, skipping dispatch")
		return
	}

	e.broadcast(models.EventJobStarted, claimed)

	handler, ok := e.registry.Lookup(claimed.Type)
	if !ok {
		e.logger.Error().
			Str("job_id", claimed.ID).
			Str("job_type", claimed.Type).
			Msg("No handler registered for job type")
		e.recordFailure(ctx, claimed, fmt.Errorf("unknown job type: %s", claimed.Type))
		return
	}

	result, handlerErr := e.invoke(ctx, handler, claimed)

	if handlerErr == nil {
		e.recordSuccess(ctx, claimed, result)
		return
	}

	if IsPermanent(handlerErr) || claimed.Attempts >= claimed.MaxAttempts {
		e.recordFailure(ctx, claimed, handlerErr)
		return
	}
	e.recordRetry(ctx, claimed, handlerErr)
}

// invoke runs the handler with panic recovery. A panicking handler is
// reported as an ordinary error so the retry budget still applies.
func (e *Engine) invoke(ctx context.Context, handler Handler, job *models.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Handler panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, job.Payload, job)
}

// recordSuccess commits the completed transition with the handler's result.
func (e *Engine) recordSuccess(ctx context.Context, job *models.Job, result json.RawMessage) {
	now := e.now().UTC()
	patch := models.JobStatusPatch{
		CompletedAt:    &now,
		Result:         result,
		ClearError:     true,
		ClearNextRetry: true,
	}
	if err := e.storage.JobStore().UpdateStatus(ctx, job.ID, models.JobStatusCompleted, patch); err != nil {
		// The reaper recovers the row once the store returns.
		e.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to record job completion")
		return
	}

	e.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("attempts", job.Attempts).
		Msg("Job completed")

	job.Status = models.JobStatusCompleted
	job.Result = result
	job.Error = ""
	job.CompletedAt = &now
	e.broadcast(models.EventJobCompleted, job)
}

// recordFailure commits the terminal failed transition.
func (e *Engine) recordFailure(ctx context.Context, job *models.Job, handlerErr error) {
	now := e.now().UTC()
	errMsg := handlerErr.Error()
	patch := models.JobStatusPatch{
		CompletedAt:    &now,
		Error:          &errMsg,
		ClearNextRetry: true,
	}
	if err := e.storage.JobStore().UpdateStatus(ctx, job.ID, models.JobStatusFailed, patch); err != nil {
		e.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to record job failure")
		return
	}

	e.logger.Warn().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("attempts", job.Attempts).
		Int("max_attempts", job.MaxAttempts).
		Str("error", errMsg).
		Msg("Job failed")

	job.Status = models.JobStatusFailed
	job.Error = errMsg
	job.CompletedAt = &now
	e.broadcast(models.EventJobFailed, job)
}

// recordRetry schedules the next attempt. The claim already incremented
// attempts, so the delay exponent is the count of completed failures minus
// one: first failure waits base, second 2*base, and so on.
func (e *Engine) recordRetry(ctx context.Context, job *models.Job, handlerErr error) {
	now := e.now().UTC()
	delay := backoffDelay(job.Attempts-1, e.config.BackoffBase, e.config.BackoffMax)
	nextRetry := now.Add(delay)
	errMsg := handlerErr.Error()
	patch := models.JobStatusPatch{
		NextRetryAt: &nextRetry,
		Error:       &errMsg,
	}
	if err := e.storage.JobStore().UpdateStatus(ctx, job.ID, models.JobStatusPending, patch); err != nil {
		e.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to schedule job retry")
		return
	}

	e.logger.Warn().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Int("attempts", job.Attempts).
		Dur("retry_in", delay).
		Str("error", errMsg).
		Msg("Job attempt failed, retry scheduled")

	job.Status = models.JobStatusPending
	job.Error = errMsg
	job.NextRetryAt = &nextRetry
	e.broadcast(models.EventJobRetrying, job)
}
