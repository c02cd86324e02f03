package jobengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
)

// --- in-memory storage mocks ---

type memStorage struct {
	jobs  *memJobStore
	rates *memRateStore
}

func newMemStorage() *memStorage {
	return &memStorage{
		jobs:  &memJobStore{jobs: make(map[string]*models.Job)},
		rates: &memRateStore{windows: make(map[string]*memWindow)},
	}
}

func (s *memStorage) JobStore() interfaces.JobStore               { return s.jobs }
func (s *memStorage) RateWindowStore() interfaces.RateWindowStore { return s.rates }
func (s *memStorage) ContentStore() interfaces.ContentStore       { return nil }
func (s *memStorage) Close() error                                { return nil }

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	return &c
}

func (s *memJobStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *memJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyJob(job), nil
}

func (s *memJobStore) UpdateStatus(_ context.Context, id string, status string, patch models.JobStatusPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	job.Status = status
	if patch.Attempts != nil {
		job.Attempts = *patch.Attempts
	}
	if patch.StartedAt != nil {
		job.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	if patch.NextRetryAt != nil {
		job.NextRetryAt = patch.NextRetryAt
	}
	if patch.ClearNextRetry {
		job.NextRetryAt = nil
	}
	if patch.Result != nil {
		job.Result = patch.Result
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	if patch.ClearError {
		job.Error = ""
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memJobStore) ClaimPending(_ context.Context, id string, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	if !job.CanDispatch(now) {
		return nil, nil
	}
	job.Status = models.JobStatusProcessing
	job.Attempts++
	started := now
	job.StartedAt = &started
	job.UpdatedAt = now
	return copyJob(job), nil
}

func (s *memJobStore) ClaimNextPending(_ context.Context, principalID string, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	var best *models.Job
	for _, job := range s.jobs {
		if job.PrincipalID != principalID || !job.CanDispatch(now) {
			continue
		}
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}
	s.mu.Unlock()
	if best == nil {
		return nil, nil
	}
	return s.ClaimPending(context.Background(), best.ID, now)
}

func (s *memJobStore) matchFilter(job *models.Job, filter models.JobFilter) bool {
	if filter.Type != "" && job.Type != filter.Type {
		return false
	}
	if filter.Status != "" && job.Status != filter.Status {
		return false
	}
	return true
}

func (s *memJobStore) list(principalID string, filter models.JobFilter) []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Job{}
	for _, job := range s.jobs {
		if principalID != "" && job.PrincipalID != principalID {
			continue
		}
		if !s.matchFilter(job, filter) {
			continue
		}
		out = append(out, copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *memJobStore) List(_ context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error) {
	return s.list(principalID, filter), nil
}

func (s *memJobStore) ListAll(_ context.Context, filter models.JobFilter) ([]*models.Job, error) {
	return s.list("", filter), nil
}

func (s *memJobStore) ResetStale(_ context.Context, olderThan time.Time, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status != models.JobStatusProcessing {
			continue
		}
		anchor := job.UpdatedAt
		if job.StartedAt != nil {
			anchor = *job.StartedAt
		}
		if !anchor.Before(olderThan) && !anchor.Equal(olderThan) {
			continue
		}
		if job.Attempts >= job.MaxAttempts {
			job.Status = models.JobStatusFailed
			job.Error = "processing lease expired"
			done := now
			job.CompletedAt = &done
			job.NextRetryAt = nil
			job.StartedAt = nil
			job.UpdatedAt = now
			continue
		}
		job.Status = models.JobStatusPending
		retry := now
		job.NextRetryAt = &retry
		job.StartedAt = nil
		job.UpdatedAt = now
		count++
	}
	return count, nil
}

func (s *memJobStore) Stats(_ context.Context) (*models.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.JobStats{}
	for _, job := range s.jobs {
		switch job.Status {
		case models.JobStatusPending:
			stats.Pending++
		case models.JobStatusProcessing:
			stats.Processing++
		case models.JobStatusCompleted:
			stats.Completed++
			if job.CompletedAt != nil && (stats.OldestCompletedAt == nil || job.CompletedAt.Before(*stats.OldestCompletedAt)) {
				t := *job.CompletedAt
				stats.OldestCompletedAt = &t
			}
		case models.JobStatusFailed:
			stats.Failed++
			if job.CompletedAt != nil && (stats.OldestFailedAt == nil || job.CompletedAt.Before(*stats.OldestFailedAt)) {
				t := *job.CompletedAt
				stats.OldestFailedAt = &t
			}
		}
	}
	return stats, nil
}

func (s *memJobStore) DeleteTerminalBefore(_ context.Context, status string, cutoff time.Time, batch int, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, job := range s.jobs {
		if count >= batch {
			break
		}
		if job.Status != status || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		if !dryRun {
			delete(s.jobs, id)
		}
		count++
	}
	return count, nil
}

type memWindow struct {
	count int
	start time.Time
}

type memRateStore struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

func rateKey(principalID, jobType string, windowStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", principalID, jobType, windowStart.UTC().Unix())
}

func (s *memRateStore) GetCount(_ context.Context, principalID, jobType string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[rateKey(principalID, jobType, windowStart)]; ok {
		return w.count, nil
	}
	return 0, nil
}

func (s *memRateStore) Increment(_ context.Context, principalID, jobType string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rateKey(principalID, jobType, windowStart)
	w, ok := s.windows[key]
	if !ok {
		w = &memWindow{start: windowStart.UTC()}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (s *memRateStore) DeleteBefore(_ context.Context, cutoff time.Time, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key, w := range s.windows {
		if !w.start.Before(cutoff) {
			continue
		}
		if !dryRun {
			delete(s.windows, key)
		}
		count++
	}
	return count, nil
}

// --- limiter stubs ---

type allowAllLimiter struct{}

func (allowAllLimiter) Check(context.Context, string, string) (*interfaces.RateDecision, error) {
	return &interfaces.RateDecision{Admitted: true, Remaining: 1}, nil
}

type denyAllLimiter struct {
	retryAfter int
	resetAt    time.Time
}

func (l denyAllLimiter) Check(context.Context, string, string) (*interfaces.RateDecision, error) {
	return &interfaces.RateDecision{Admitted: false, RetryAfterSeconds: l.retryAfter, ResetAt: l.resetAt}, nil
}

// --- fixed clock ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
