// Package ratelimit enforces the per-principal hourly admission ceiling for
// new jobs. Accounting is a durable counter per (principal, job type, hour)
// window; the window resets at the top of each hour.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
)

// Service implements interfaces.RateLimiter over a RateWindowStore.
//
// The check reads the current count and, when under the ceiling, performs an
// atomic upsert-increment. Two concurrent checks can both pass the read, so
// the stored count may overshoot the ceiling by at most the number of
// in-flight admissions. The overshoot is bounded and self-corrects on the
// next read; folding the ceiling into the upsert (WHERE count < max) would
// make it hard at the cost of a write on every denied check.
type Service struct {
	store      interfaces.RateWindowStore
	logger     *common.Logger
	rateMax    int
	windowSize time.Duration
	now        func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a rate limiter admitting up to rateMax jobs per
// principal, job type, and window.
func NewService(store interfaces.RateWindowStore, logger *common.Logger, rateMax int, windowSize time.Duration, opts ...Option) *Service {
	if rateMax <= 0 {
		rateMax = 20
	}
	if windowSize <= 0 {
		windowSize = time.Hour
	}
	s := &Service{
		store:      store,
		logger:     logger,
		rateMax:    rateMax,
		windowSize: windowSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check decides admission for one new job. Admission increments the window
// counter; denial leaves it untouched and reports when the window resets.
func (s *Service) Check(ctx context.Context, principalID, jobType string) (*interfaces.RateDecision, error) {
	now := s.now().UTC()
	windowStart := now.Truncate(s.windowSize)
	resetAt := windowStart.Add(s.windowSize)

	count, err := s.store.GetCount(ctx, principalID, jobType, windowStart)
	if err != nil {
		return nil, fmt.Errorf("rate limit read failed: %w", err)
	}

	if count >= s.rateMax {
		retryAfter := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
		s.logger.Debug().
			Str("principal_id", principalID).
			Str("job_type", jobType).
			Int("count", count).
			Int("retry_after", retryAfter).
			Msg("Rate limit denied")
		return &interfaces.RateDecision{
			Admitted:          false,
			Remaining:         0,
			ResetAt:           resetAt,
			RetryAfterSeconds: retryAfter,
		}, nil
	}

	newCount, err := s.store.Increment(ctx, principalID, jobType, windowStart)
	if err != nil {
		return nil, fmt.Errorf("rate limit increment failed: %w", err)
	}

	remaining := s.rateMax - newCount
	if remaining < 0 {
		remaining = 0
	}
	return &interfaces.RateDecision{
		Admitted:  true,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Compile-time check
var _ interfaces.RateLimiter = (*Service)(nil)
