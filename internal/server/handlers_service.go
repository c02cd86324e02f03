package server

import (
	"net/http"
	"time"

	"github.com/bobmcallan/curio/internal/common"
)

// handleHealth handles GET /api/health. No auth.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "curio",
		"version": common.GetVersion(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVersion handles GET /api/version. No auth.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	uptime := time.Since(s.started).Round(time.Second)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
		"uptime":  uptime.String(),
	})
}
