package api

import "net/http"

// kindsResponse lists what a checks file may reference.
type kindsResponse struct {
	Kinds []string `json:"kinds"`
	Inits []string `json:"inits"`
}

func (s *Server) handleListKinds(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, kindsResponse{
		Kinds: s.registry.Kinds(),
		Inits: s.registry.Inits(),
	})
}
