package server

import "net/http"

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Jobs (principal required)
	mux.HandleFunc("/api/jobs/", s.routeJobs) // handles {id}, {id}/retry
	mux.HandleFunc("/api/jobs", s.handleJobs)

	// Admin — queue inspection, maintenance, WebSocket
	mux.HandleFunc("/api/admin/jobs/stats", s.handleAdminJobStats)
	mux.HandleFunc("/api/admin/jobs/reap", s.handleAdminReap)
	mux.HandleFunc("/api/admin/jobs/cleanup", s.handleAdminCleanup)
	mux.HandleFunc("/api/admin/jobs", s.handleAdminJobs)
	mux.HandleFunc("/api/admin/ws/jobs", s.handleAdminJobsWS)
}
