package http

import (
	"net/http"

	"farmledger/internal/core"
)

type subsidyFormData struct {
	Action string
	ID     string
}

func (s *Server) handleSubsidyList(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Subsidies", "subsidies")
	rows, err := s.svc.Subsidies.List(r.Context(), farm.ID, listLimit)
	if err != nil {
		s.fail(w, r, "subsidy_list.html", v, err)
		return
	}
	v.Data = rows
	s.render(w, r, http.StatusOK, "subsidy_list.html", v)
}

func (s *Server) handleSubsidyNew(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "New subsidy", "subsidies")
	v.Form.Set("status", string(core.SubsidyApplied))
	v.Data = subsidyFormData{Action: "/subsidies/new"}
	s.render(w, r, http.StatusOK, "subsidy_form.html", v)
}

func (s *Server) handleSubsidyCreate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, farm, "New subsidy", "subsidies")
	v.Form = r.PostForm
	v.Data = subsidyFormData{Action: "/subsidies/new"}

	sub, err := parseSubsidy(r.PostForm)
	if err == nil {
		_, err = s.svc.Subsidies.Create(r.Context(), farm.ID, sub)
	}
	if err != nil {
		s.fail(w, r, "subsidy_form.html", v, err)
		return
	}
	NewHTMXResponse().Redirect("/subsidies").Write(w, r)
}

func (s *Server) handleSubsidyEdit(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	sub, err := s.svc.Subsidies.Get(r.Context(), farm.ID, r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	v := s.newView(r, farm, "Edit subsidy", "subsidies")
	v.Form = subsidyValues(sub)
	v.Data = subsidyFormData{Action: "/subsidies/" + sub.ID + "/edit", ID: sub.ID}
	s.render(w, r, http.StatusOK, "subsidy_form.html", v)
}

func (s *Server) handleSubsidyUpdate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	id := r.PathValue("id")
	v := s.newView(r, farm, "Edit subsidy", "subsidies")
	v.Form = r.PostForm
	v.Data = subsidyFormData{Action: "/subsidies/" + id + "/edit", ID: id}

	sub, err := parseSubsidy(r.PostForm)
	if err == nil {
		sub.ID = id
		err = s.svc.Subsidies.Update(r.Context(), farm.ID, sub)
	}
	if err != nil {
		s.fail(w, r, "subsidy_form.html", v, err)
		return
	}
	NewHTMXResponse().Redirect("/subsidies").Write(w, r)
}

func (s *Server) handleSubsidyDelete(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if err := s.svc.Subsidies.Delete(r.Context(), farm.ID, r.PathValue("id")); err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	NewHTMXResponse().Redirect("/subsidies").Write(w, r)
}
