package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/models"
)

// EnqueueRequest is the body of POST /api/jobs.
type EnqueueRequest struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Priority *int            `json:"priority,omitempty"`
}

// requirePrincipal resolves the caller's principal from the request context.
// Writes 401 and returns nil when no identity was presented.
func requirePrincipal(w http.ResponseWriter, r *http.Request) *common.Principal {
	p := common.PrincipalFromContext(r.Context())
	if p == nil || p.ID == "" {
		WriteErrorWithCode(w, http.StatusUnauthorized, "Authentication required", CodeAuthRequired)
		return nil
	}
	return p
}

// handleJobs handles POST /api/jobs (enqueue) and GET /api/jobs (list mine).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleJobEnqueue(w, r)
	case http.MethodGet:
		s.handleJobList(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleJobEnqueue(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	var req EnqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		WriteErrorWithCode(w, http.StatusBadRequest, "type is required", CodeValidationError)
		return
	}

	job, err := s.engine.Enqueue(r.Context(), principal.ID, req.Type, req.Payload, req.Priority)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	filter := jobFilterFromQuery(r, s.config.Jobs.DefaultListLimit)
	jobs, err := s.engine.List(r.Context(), principal.ID, filter)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// routeJobs dispatches /api/jobs/{id} and /api/jobs/{id}/retry.
func (s *Server) routeJobs(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if path == "" {
		s.handleJobs(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if len(parts) == 1 {
		s.handleJobStatus(w, r, id)
		return
	}

	switch parts[1] {
	case "retry":
		s.handleJobRetry(w, r, id)
	default:
		WriteErrorWithCode(w, http.StatusNotFound, "Not found", CodeNotFound)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	job, err := s.engine.Status(r.Context(), principal.ID, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobRetry(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	job, err := s.engine.Retry(r.Context(), principal.ID, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// jobFilterFromQuery builds a JobFilter from type/status/limit query params.
// Limit parsing is forgiving: absent or bad values take the default and the
// store clamps the upper bound.
func jobFilterFromQuery(r *http.Request, defaultLimit int) models.JobFilter {
	filter := models.JobFilter{
		Type:   r.URL.Query().Get("type"),
		Status: r.URL.Query().Get("status"),
		Limit:  defaultLimit,
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			filter.Limit = v
		}
	}
	return filter
}
