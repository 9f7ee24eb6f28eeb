package http

import (
	"net/http"

	"farmledger/internal/core"
)

func (s *Server) handleSeedForm(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.opts.SeedEnabled {
		s.renderError(w, r, farm, core.ErrNotFound)
		return
	}
	s.render(w, r, http.StatusOK, "seed.html", s.newView(r, farm, "Demo data", "seed"))
}

// handleSeed reports partial failures on the page instead of failing the request.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.opts.SeedEnabled {
		s.renderError(w, r, farm, core.ErrNotFound)
		return
	}
	res := s.svc.Seed.Seed(r.Context(), farm.ID)
	v := s.newView(r, farm, "Demo data", "seed")
	v.Data = res
	if res.Failed == 0 {
		v.Notice = "Demo data created."
	}
	s.render(w, r, http.StatusOK, "seed.html", v)
}
