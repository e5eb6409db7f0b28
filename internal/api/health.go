package api

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
	Checks int    `json:"checks"`
}

// handleHealthz reports liveness of the server itself, not of the checks.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Checks: len(s.checker.Tasks()),
	})
}
