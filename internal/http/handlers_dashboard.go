package http

import (
	"net/http"

	"farmledger/internal/core"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Dashboard", "dashboard")
	d, err := s.svc.Dashboard.Load(r.Context(), farm.ID)
	if err != nil {
		s.fail(w, r, "dashboard.html", v, err)
		return
	}
	v.Data = d
	s.render(w, r, http.StatusOK, "dashboard.html", v)
}

func (s *Server) handleProfileForm(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Farm profile", "profile")
	v.Form.Set("farm_name", farm.FarmName)
	v.Form.Set("role", string(farm.Role))
	s.render(w, r, http.StatusOK, "profile.html", v)
}

// handleProfileUpdate is open to every role so an accountant can switch back.
func (s *Server) handleProfileUpdate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, farm, "Farm profile", "profile")
	v.Form = r.PostForm

	updated, err := s.svc.Farms.UpdateProfile(r.Context(), farm.UserID,
		formValue(r.PostForm, "farm_name"), core.Role(formValue(r.PostForm, "role")))
	if err != nil {
		s.fail(w, r, "profile.html", v, err)
		return
	}

	v = s.newView(r, updated, "Farm profile", "profile")
	v.Form.Set("farm_name", updated.FarmName)
	v.Form.Set("role", string(updated.Role))
	v.Notice = "Profile saved."
	s.render(w, r, http.StatusOK, "profile.html", v)
}
