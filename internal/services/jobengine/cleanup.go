package jobengine

import (
	"context"
	"fmt"

	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
)

// Cleanup deletes terminal jobs and expired rate windows past their
// retention cutoffs, one statement per category. Pending and processing rows
// are structurally excluded: only the two terminal statuses are ever passed
// to the store's delete.
func (e *Engine) Cleanup(ctx context.Context, opts interfaces.CleanupOptions) (*interfaces.CleanupResult, error) {
	if opts.CompletedMaxAge <= 0 {
		opts.CompletedMaxAge = e.config.CompletedRetention
	}
	if opts.FailedMaxAge <= 0 {
		opts.FailedMaxAge = e.config.FailedRetention
	}
	if opts.WindowMaxAge <= 0 {
		opts.WindowMaxAge = e.config.WindowRetention
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = e.config.GCBatchSize
	}

	now := e.now().UTC()
	result := &interfaces.CleanupResult{DryRun: opts.DryRun}

	completed, err := e.storage.JobStore().DeleteTerminalBefore(ctx, models.JobStatusCompleted, now.Add(-opts.CompletedMaxAge), opts.BatchSize, opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up completed jobs: %w", err)
	}
	result.CompletedDeleted = completed

	failed, err := e.storage.JobStore().DeleteTerminalBefore(ctx, models.JobStatusFailed, now.Add(-opts.FailedMaxAge), opts.BatchSize, opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up failed jobs: %w", err)
	}
	result.FailedDeleted = failed

	windows, err := e.storage.RateWindowStore().DeleteBefore(ctx, now.Add(-opts.WindowMaxAge), opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up rate windows: %w", err)
	}
	result.WindowsDeleted = windows

	if result.CompletedDeleted > 0 || result.FailedDeleted > 0 || result.WindowsDeleted > 0 {
		e.logger.Info().
			Int("completed", result.CompletedDeleted).
			Int("failed", result.FailedDeleted).
			Int("windows", result.WindowsDeleted).
			Bool("dry_run", opts.DryRun).
			Msg("Cleanup pass finished")
	}
	return result, nil
}
