package surrealdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobFields lists the jobs table fields queried for struct mapping. The
// record id addresses rows; the job_id field carries the uuid so reads never
// have to decode RecordIDs.
const jobFields = "job_id, job_type, payload, status, priority, attempts, max_attempts, next_retry_at, started_at, completed_at, result, error, principal_id, created_at, updated_at"

// jobRecord mirrors the raw jobs table fields.
type jobRecord struct {
	JobID       string          `json:"job_id"`
	JobType     string          `json:"job_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextRetryAt *time.Time      `json:"next_retry_at"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Result      json.RawMessage `json:"result"`
	Error       string          `json:"error"`
	PrincipalID string          `json:"principal_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (r *jobRecord) toJob() *models.Job {
	return &models.Job{
		ID:          r.JobID,
		Type:        r.JobType,
		Payload:     r.Payload,
		Status:      r.Status,
		Priority:    r.Priority,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		NextRetryAt: r.NextRetryAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Result:      r.Result,
		Error:       r.Error,
		PrincipalID: r.PrincipalID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// JobStore implements interfaces.JobStore using SurrealDB.
type JobStore struct {
	db           *surrealdb.DB
	logger       *common.Logger
	maxListLimit int
	defaultLimit int
}

// NewJobStore creates a new JobStore. List limits bound the List/ListAll
// result sizes (cap and default respectively).
func NewJobStore(db *surrealdb.DB, logger *common.Logger, maxListLimit, defaultLimit int) *JobStore {
	if maxListLimit <= 0 {
		maxListLimit = 100
	}
	if defaultLimit <= 0 || defaultLimit > maxListLimit {
		defaultLimit = 20
	}
	return &JobStore{db: db, logger: logger, maxListLimit: maxListLimit, defaultLimit: defaultLimit}
}

func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	// CREATE (not UPSERT) so an id collision fails instead of overwriting.
	sql := `CREATE $rid SET
		job_id = $job_id, job_type = $job_type, payload = $payload,
		status = $status, priority = $priority, attempts = $attempts,
		max_attempts = $max_attempts, principal_id = $principal_id,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("jobs", job.ID),
		"job_id":       job.ID,
		"job_type":     job.Type,
		"payload":      job.Payload,
		"status":       job.Status,
		"priority":     job.Priority,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"principal_id": job.PrincipalID,
		"created_at":   job.CreatedAt,
		"updated_at":   job.UpdatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	sql := "SELECT " + jobFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("jobs", id)}

	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, models.ErrNotFound
	}
	return (*results)[0].Result[0].toJob(), nil
}

func (s *JobStore) UpdateStatus(ctx context.Context, id string, status string, patch models.JobStatusPatch) error {
	now := time.Now().UTC()

	setClause, vars := buildStatusPatch(status, patch, now)
	vars["rid"] = surrealmodels.NewRecordID("jobs", id)

	sql := "UPDATE $rid SET " + setClause

	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.ErrNotFound
	}
	return nil
}

// buildStatusPatch assembles the SET clause for a status transition. Only
// fields present in the patch appear; Clear flags write NONE explicitly.
func buildStatusPatch(status string, patch models.JobStatusPatch, now time.Time) (string, map[string]any) {
	clause := "status = $status, updated_at = $updated_at"
	vars := map[string]any{
		"status":     status,
		"updated_at": now,
	}

	if patch.Attempts != nil {
		clause += ", attempts = $attempts"
		vars["attempts"] = *patch.Attempts
	}
	if patch.StartedAt != nil {
		clause += ", started_at = $started_at"
		vars["started_at"] = patch.StartedAt.UTC()
	}
	if patch.CompletedAt != nil {
		clause += ", completed_at = $completed_at"
		vars["completed_at"] = patch.CompletedAt.UTC()
	}
	switch {
	case patch.NextRetryAt != nil:
		clause += ", next_retry_at = $next_retry_at"
		vars["next_retry_at"] = patch.NextRetryAt.UTC()
	case patch.ClearNextRetry:
		clause += ", next_retry_at = NONE"
	}
	if patch.Result != nil {
		clause += ", result = $result"
		vars["result"] = patch.Result
	}
	switch {
	case patch.Error != nil:
		clause += ", error = $error"
		vars["error"] = *patch.Error
	case patch.ClearError:
		clause += ", error = NONE"
	}

	return clause, vars
}

func (s *JobStore) ClaimPending(ctx context.Context, id string, now time.Time) (*models.Job, error) {
	now = now.UTC()

	// Conditional claim: only one concurrent caller sees the row transition.
	// The WHERE clause re-checks eligibility so a retry hold set between the
	// caller's read and this write is honored.
	sql := `UPDATE $rid SET status = $processing, started_at = $now, attempts = attempts + 1, updated_at = $now
		WHERE status = $pending AND (next_retry_at IS NONE OR next_retry_at <= $now)`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID("jobs", id),
		"processing": models.JobStatusProcessing,
		"pending":    models.JobStatusPending,
		"now":        now,
	}

	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil // lost the race, or no longer eligible
	}
	return (*results)[0].Result[0].toJob(), nil
}

func (s *JobStore) ClaimNextPending(ctx context.Context, principalID string, now time.Time) (*models.Job, error) {
	now = now.UTC()

	selectSQL := "SELECT " + jobFields + ` FROM jobs
		WHERE principal_id = $principal AND status = $pending AND (next_retry_at IS NONE OR next_retry_at <= $now)
		ORDER BY priority DESC, created_at ASC LIMIT 1`
	vars := map[string]any{
		"principal": principalID,
		"pending":   models.JobStatusPending,
		"now":       now,
	}

	// The claim can lose to a concurrent poller; re-select a few times
	// before concluding there is no eligible work.
	for range 3 {
		candidates, err := surrealdb.Query[[]jobRecord](ctx, s.db, selectSQL, vars)
		if err != nil {
			return nil, fmt.Errorf("failed to select candidate job: %w", err)
		}
		if candidates == nil || len(*candidates) == 0 || len((*candidates)[0].Result) == 0 {
			return nil, nil
		}

		claimed, err := s.ClaimPending(ctx, (*candidates)[0].Result[0].JobID, now)
		if err != nil {
			return nil, err
		}
		if claimed != nil {
			return claimed, nil
		}
	}
	return nil, nil
}

func (s *JobStore) List(ctx context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error) {
	sql := "SELECT " + jobFields + " FROM jobs WHERE principal_id = $principal"
	vars := map[string]any{
		"principal": principalID,
		"limit":     s.clampLimit(filter.Limit),
	}
	if filter.Type != "" {
		sql += " AND job_type = $type"
		vars["type"] = filter.Type
	}
	if filter.Status != "" {
		sql += " AND status = $st"
		vars["st"] = filter.Status
	}
	sql += " ORDER BY created_at DESC LIMIT $limit"

	return s.queryJobs(ctx, sql, vars)
}

func (s *JobStore) ListAll(ctx context.Context, filter models.JobFilter) ([]*models.Job, error) {
	sql := "SELECT " + jobFields + " FROM jobs"
	vars := map[string]any{
		"limit": s.clampLimit(filter.Limit),
	}
	where := ""
	if filter.Type != "" {
		where = " WHERE job_type = $type"
		vars["type"] = filter.Type
	}
	if filter.Status != "" {
		if where == "" {
			where = " WHERE status = $st"
		} else {
			where += " AND status = $st"
		}
		vars["st"] = filter.Status
	}
	sql += where + " ORDER BY created_at DESC LIMIT $limit"

	return s.queryJobs(ctx, sql, vars)
}

func (s *JobStore) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxListLimit {
		return s.maxListLimit
	}
	return limit
}

func (s *JobStore) ResetStale(ctx context.Context, olderThan time.Time, now time.Time) (int, error) {
	now = now.UTC()
	cutoff := olderThan.UTC()

	// A claim consumes an attempt up front, so a stale row that already spent
	// its budget must go terminal here. Re-arming it would let the next claim
	// push attempts past max_attempts.
	failSQL := `UPDATE jobs SET status = $failed, error = $error, completed_at = $now, next_retry_at = NONE, started_at = NONE, updated_at = $now
		WHERE status = $processing AND started_at < $cutoff AND attempts >= max_attempts`
	failVars := map[string]any{
		"failed":     models.JobStatusFailed,
		"processing": models.JobStatusProcessing,
		"error":      "processing lease expired",
		"cutoff":     cutoff,
		"now":        now,
	}
	failed, err := surrealdb.Query[[]jobRecord](ctx, s.db, failSQL, failVars)
	if err != nil {
		return 0, fmt.Errorf("failed to expire exhausted stale jobs: %w", err)
	}
	if failed != nil && len(*failed) > 0 && len((*failed)[0].Result) > 0 {
		s.logger.Warn().Int("count", len((*failed)[0].Result)).Msg("Stale jobs with exhausted attempts marked failed")
	}

	sql := `UPDATE jobs SET status = $pending, next_retry_at = $now, started_at = NONE, updated_at = $now
		WHERE status = $processing AND started_at < $cutoff AND attempts < max_attempts`
	vars := map[string]any{
		"pending":    models.JobStatusPending,
		"processing": models.JobStatusProcessing,
		"cutoff":     cutoff,
		"now":        now,
	}

	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func (s *JobStore) Stats(ctx context.Context) (*models.JobStats, error) {
	sql := "SELECT status, count() AS cnt FROM jobs GROUP BY status"

	type statusCount struct {
		Status string `json:"status"`
		Cnt    int    `json:"cnt"`
	}

	results, err := surrealdb.Query[[]statusCount](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate job stats: %w", err)
	}

	stats := &models.JobStats{}
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			switch row.Status {
			case models.JobStatusPending:
				stats.Pending = row.Cnt
			case models.JobStatusProcessing:
				stats.Processing = row.Cnt
			case models.JobStatusCompleted:
				stats.Completed = row.Cnt
			case models.JobStatusFailed:
				stats.Failed = row.Cnt
			}
		}
	}

	oldestCompleted, err := s.oldestTerminal(ctx, models.JobStatusCompleted)
	if err != nil {
		return nil, err
	}
	stats.OldestCompletedAt = oldestCompleted

	oldestFailed, err := s.oldestTerminal(ctx, models.JobStatusFailed)
	if err != nil {
		return nil, err
	}
	stats.OldestFailedAt = oldestFailed

	return stats, nil
}

func (s *JobStore) oldestTerminal(ctx context.Context, status string) (*time.Time, error) {
	sql := "SELECT math::min(completed_at) AS oldest FROM jobs WHERE status = $status GROUP ALL"
	vars := map[string]any{"status": status}

	type oldestResult struct {
		Oldest *time.Time `json:"oldest"`
	}

	results, err := surrealdb.Query[[]oldestResult](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest %s job: %w", status, err)
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Oldest, nil
	}
	return nil, nil
}

func (s *JobStore) DeleteTerminalBefore(ctx context.Context, status string, cutoff time.Time, batch int, dryRun bool) (int, error) {
	if status != models.JobStatusCompleted && status != models.JobStatusFailed {
		return 0, fmt.Errorf("refusing to delete non-terminal status %q", status)
	}
	if batch <= 0 {
		batch = 1000
	}

	if dryRun {
		sql := "SELECT count() AS cnt FROM jobs WHERE status = $status AND completed_at < $cutoff GROUP ALL"
		vars := map[string]any{"status": status, "cutoff": cutoff.UTC()}

		type countResult struct {
			Cnt int `json:"cnt"`
		}

		results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
		if err != nil {
			return 0, fmt.Errorf("failed to count %s jobs for dry run: %w", status, err)
		}
		cnt := 0
		if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
			cnt = (*results)[0].Result[0].Cnt
		}
		if cnt > batch {
			cnt = batch
		}
		return cnt, nil
	}

	sql := `DELETE FROM jobs
		WHERE job_id IN (SELECT VALUE job_id FROM jobs WHERE status = $status AND completed_at < $cutoff ORDER BY completed_at ASC LIMIT $batch)
		RETURN BEFORE`
	vars := map[string]any{"status": status, "cutoff": cutoff.UTC(), "batch": batch}

	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s jobs: %w", status, err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// queryJobs is a helper that runs a query and returns a slice of Job pointers.
func (s *JobStore) queryJobs(ctx context.Context, sql string, vars map[string]any) ([]*models.Job, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	var jobs []*models.Job
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, (*results)[0].Result[i].toJob())
		}
	}
	return jobs, nil
}

// Compile-time check
var _ interfaces.JobStore = (*JobStore)(nil)
