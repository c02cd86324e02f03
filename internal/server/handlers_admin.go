package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/curio/internal/interfaces"
	"golang.org/x/crypto/bcrypt"
)

// requireAdmin validates the X-Curio-Admin-Token header against the
// configured bcrypt hash. When no hash is configured the admin surface is
// disabled and every call answers 501.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	hash := s.config.Auth.AdminTokenHash
	if hash == "" {
		WriteError(w, http.StatusNotImplemented, "Admin API is not configured")
		return false
	}

	token := r.Header.Get("X-Curio-Admin-Token")
	if token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
		WriteErrorWithCode(w, http.StatusUnauthorized, "Invalid admin token", CodeAuthRequired)
		return false
	}
	return true
}

// handleAdminJobs handles GET /api/admin/jobs — jobs across all principals.
func (s *Server) handleAdminJobs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	filter := jobFilterFromQuery(r, s.config.Jobs.DefaultListLimit)
	jobs, err := s.engine.ListAll(r.Context(), filter)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleAdminJobStats handles GET /api/admin/jobs/stats.
func (s *Server) handleAdminJobStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// handleAdminReap handles POST /api/admin/jobs/reap — immediate stale-lease
// sweep outside the scheduler's tick.
func (s *Server) handleAdminReap(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	reset, err := s.engine.Reap(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

// CleanupRequest is the optional body of POST /api/admin/jobs/cleanup.
// Durations are strings ("24h"); absent fields take configured defaults.
type CleanupRequest struct {
	CompletedMaxAge string `json:"completed_max_age,omitempty"`
	FailedMaxAge    string `json:"failed_max_age,omitempty"`
	WindowMaxAge    string `json:"window_max_age,omitempty"`
	BatchSize       int    `json:"batch_size,omitempty"`
	DryRun          bool   `json:"dry_run,omitempty"`
}

// handleAdminCleanup handles POST /api/admin/jobs/cleanup — immediate GC pass.
func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	var opts interfaces.CleanupOptions
	if r.ContentLength > 0 {
		var req CleanupRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		var err error
		if opts.CompletedMaxAge, err = parseAgeOr(req.CompletedMaxAge, w); err != nil {
			return
		}
		if opts.FailedMaxAge, err = parseAgeOr(req.FailedMaxAge, w); err != nil {
			return
		}
		if opts.WindowMaxAge, err = parseAgeOr(req.WindowMaxAge, w); err != nil {
			return
		}
		opts.BatchSize = req.BatchSize
		opts.DryRun = req.DryRun
	}

	result, err := s.engine.Cleanup(r.Context(), opts)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// parseAgeOr parses an optional duration string, writing a 400 on bad input.
func parseAgeOr(s string, w http.ResponseWriter) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		WriteErrorWithCode(w, http.StatusBadRequest, "invalid duration: "+s, CodeValidationError)
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// handleAdminJobsWS handles GET /api/admin/ws/jobs — live job event stream.
func (s *Server) handleAdminJobsWS(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if s.hub == nil {
		WriteError(w, http.StatusServiceUnavailable, "Event hub not running")
		return
	}
	s.hub.ServeWS(w, r)
}
