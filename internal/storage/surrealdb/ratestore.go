package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// rateWindowRecord mirrors the raw rate_windows table fields.
type rateWindowRecord struct {
	PrincipalID string    `json:"principal_id"`
	JobType     string    `json:"job_type"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// RateWindowStore implements interfaces.RateWindowStore using SurrealDB.
// The composite key (principal, type, window start) is encoded into the
// record id, so the increment upsert is addressed at exactly one row.
type RateWindowStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewRateWindowStore creates a new RateWindowStore.
func NewRateWindowStore(db *surrealdb.DB, logger *common.Logger) *RateWindowStore {
	return &RateWindowStore{db: db, logger: logger}
}

// windowRecordKey builds the deterministic record key for a window row.
func windowRecordKey(principalID, jobType string, windowStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", principalID, jobType, windowStart.UTC().Unix())
}

func (s *RateWindowStore) GetCount(ctx context.Context, principalID, jobType string, windowStart time.Time) (int, error) {
	sql := "SELECT count FROM $rid"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("rate_windows", windowRecordKey(principalID, jobType, windowStart)),
	}

	type countRow struct {
		Count int `json:"count"`
	}

	results, err := surrealdb.Query[[]countRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to read rate window: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil // no admissions yet this window
	}
	return (*results)[0].Result[0].Count, nil
}

func (s *RateWindowStore) Increment(ctx context.Context, principalID, jobType string, windowStart time.Time) (int, error) {
	windowStart = windowStart.UTC()

	// Single-row atomic upsert: first admission creates the row with count=1,
	// subsequent admissions add one.
	sql := `UPSERT $rid SET
		count += 1,
		principal_id = $principal, job_type = $job_type, window_start = $window_start
		RETURN AFTER`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID("rate_windows", windowRecordKey(principalID, jobType, windowStart)),
		"principal":    principalID,
		"job_type":     jobType,
		"window_start": windowStart,
	}

	results, err := surrealdb.Query[[]rateWindowRecord](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate window: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, fmt.Errorf("rate window upsert returned no row")
	}
	return (*results)[0].Result[0].Count, nil
}

func (s *RateWindowStore) DeleteBefore(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	if dryRun {
		sql := "SELECT count() AS cnt FROM rate_windows WHERE window_start < $cutoff GROUP ALL"
		vars := map[string]any{"cutoff": cutoff.UTC()}

		type countResult struct {
			Cnt int `json:"cnt"`
		}

		results, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
		if err != nil {
			return 0, fmt.Errorf("failed to count stale rate windows: %w", err)
		}
		if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
			return (*results)[0].Result[0].Cnt, nil
		}
		return 0, nil
	}

	sql := "DELETE FROM rate_windows WHERE window_start < $cutoff RETURN BEFORE"
	vars := map[string]any{"cutoff": cutoff.UTC()}

	results, err := surrealdb.Query[[]rateWindowRecord](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale rate windows: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// Compile-time check
var _ interfaces.RateWindowStore = (*RateWindowStore)(nil)
