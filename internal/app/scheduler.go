package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bobmcallan/curio/internal/interfaces"
)

// StartMaintenance starts the background reap and cleanup loops. Call
// StopMaintenance (or Close) to stop them.
func (a *App) StartMaintenance() {
	if a.maintenanceCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.maintenanceCancel = cancel

	reapInterval := a.Config.Jobs.GetReapInterval()
	cleanupInterval := a.Config.Jobs.GetCleanupInterval()

	go a.runLoop(ctx, "reap", reapInterval, func(ctx context.Context) error {
		_, err := a.Engine.Reap(ctx)
		return err
	})
	go a.runLoop(ctx, "cleanup", cleanupInterval, func(ctx context.Context) error {
		_, err := a.Engine.Cleanup(ctx, interfaces.CleanupOptions{})
		return err
	})

	a.Logger.Info().
		Dur("reap_interval", reapInterval).
		Dur("cleanup_interval", cleanupInterval).
		Msg("Maintenance scheduler started")
}

// StopMaintenance stops the background maintenance loops.
func (a *App) StopMaintenance() {
	if a.maintenanceCancel != nil {
		a.maintenanceCancel()
		a.maintenanceCancel = nil
	}
}

// runLoop runs fn on a fixed tick until ctx is cancelled, after a jittered
// initial delay so a fleet restarting together does not hit storage in step.
// A panicking or failing pass is logged and the loop keeps ticking.
func (a *App) runLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupJitter(interval)):
	}
	a.runPass(ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runPass(ctx, name, fn)
		}
	}
}

// startupJitter returns a uniform delay in [0, interval).
func startupJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return rand.N(interval)
}

func (a *App) runPass(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.Logger.Error().
				Str("task", name).
				Str("panic", fmt.Sprintf("%v", rec)).
				Msg("Maintenance pass panicked")
		}
	}()
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		a.Logger.Warn().Str("task", name).Err(err).Msg("Maintenance pass failed")
	}
}
