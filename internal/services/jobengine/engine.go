// Package jobengine implements the persistent background job engine: durable
// intake, conditional-claim dispatch, bounded retries with exponential
// backoff, stale-lease recovery, and retention cleanup. Handlers are
// registered per job type and treated as opaque asynchronous functions over
// the job payload.
package jobengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
)

// Config holds the engine tunables. Zero values take the documented defaults.
type Config struct {
	LeaseTimeout       time.Duration // processing rows older than this are stale
	DefaultMaxAttempts int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration
	WindowRetention    time.Duration
	GCBatchSize        int
}

func (c Config) withDefaults() Config {
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 5 * time.Minute
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Minute
	}
	if c.CompletedRetention <= 0 {
		c.CompletedRetention = 24 * time.Hour
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = 72 * time.Hour
	}
	if c.WindowRetention <= 0 {
		c.WindowRetention = 2 * time.Hour
	}
	if c.GCBatchSize <= 0 {
		c.GCBatchSize = 1000
	}
	return c
}

// Engine owns the job lifecycle. All state transitions go through the job
// store; the engine itself keeps no job state in memory.
type Engine struct {
	storage  interfaces.StorageManager
	limiter  interfaces.RateLimiter
	registry *Registry
	hub      *EventHub
	logger   *common.Logger
	config   Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a job engine. Call Start before serving traffic and Stop
// on shutdown to drain in-flight dispatches.
func NewEngine(storage interfaces.StorageManager, limiter interfaces.RateLimiter, registry *Registry, logger *common.Logger, config Config, opts ...Option) *Engine {
	e := &Engine{
		storage:  storage,
		limiter:  limiter,
		registry: registry,
		hub:      NewEventHub(logger),
		logger:   logger,
		config:   config.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the handler registry for startup registration.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Hub returns the WebSocket event hub for HTTP handler registration.
func (e *Engine) Hub() *EventHub {
	return e.hub
}

// safeGo launches a goroutine with panic recovery and shutdown tracking.
func (e *Engine) safeGo(name string, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in engine goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the event hub and recovers jobs orphaned by a previous
// process: every row still marked processing belongs to a worker that no
// longer exists, so it is reset with an immediate retry hold, or failed when
// its attempts are already spent. Safe to call multiple times — stops any
// existing run first.
func (e *Engine) Start() {
	if e.cancel != nil {
		e.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.ctx = ctx
	e.cancel = cancel

	now := e.now().UTC()
	if count, err := e.storage.JobStore().ResetStale(ctx, now, now); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to reset orphaned processing jobs")
	} else if count > 0 {
		e.logger.Info().Int("count", count).Msg("Reset orphaned processing jobs to pending")
	}

	e.safeGo("event-hub", func() { e.hub.Run() })

	e.logger.Info().
		Dur("lease_timeout", e.config.LeaseTimeout).
		Int("default_max_attempts", e.config.DefaultMaxAttempts).
		Msg("Job engine started")
}

// Stop cancels in-flight work and waits for background dispatches to drain.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.hub.Stop()
	e.wg.Wait()
	e.logger.Info().Msg("Job engine stopped")
}

// Reap recovers processing jobs whose lease anchor is older than the lease
// timeout. Attempts are not rolled back, so a crashed attempt consumes retry
// budget; rows that already spent their budget are marked failed instead of
// being re-armed. Returns the number of rows reset to pending.
func (e *Engine) Reap(ctx context.Context) (int, error) {
	now := e.now().UTC()
	count, err := e.storage.JobStore().ResetStale(ctx, now.Add(-e.config.LeaseTimeout), now)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale jobs: %w", err)
	}
	if count > 0 {
		e.logger.Info().Int("count", count).Msg("Reaped stale processing jobs")
	}
	return count, nil
}

// broadcast emits a lifecycle event to the WebSocket hub.
func (e *Engine) broadcast(eventType string, job *models.Job) {
	if e.hub == nil {
		return
	}
	e.hub.Broadcast(models.JobEvent{
		Type:        eventType,
		JobID:       job.ID,
		JobType:     job.Type,
		PrincipalID: job.PrincipalID,
		Status:      job.Status,
		Attempts:    job.Attempts,
		Error:       job.Error,
		Timestamp:   e.now().UTC(),
	})
}

// Compile-time check
var _ interfaces.JobEngine = (*Engine)(nil)
