package http

import (
	"net/http"

	"farmledger/internal/core"
)

func (s *Server) handleHerdList(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Herds", "herds")
	herds, err := s.svc.Herds.ListHerds(r.Context(), farm.ID)
	if err != nil {
		s.fail(w, r, "herds.html", v, err)
		return
	}
	v.Data = herds
	s.render(w, r, http.StatusOK, "herds.html", v)
}

type herdFormData struct {
	Action string
	Herd   core.Herd
}

func (s *Server) handleHerdNew(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "New herd", "herds")
	v.Form.Set("animal_type", string(core.AnimalDairy))
	v.Data = herdFormData{Action: "/herds/new"}
	s.render(w, r, http.StatusOK, "herd_form.html", v)
}

func (s *Server) handleHerdCreate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, farm, "New herd", "herds")
	v.Form = r.PostForm
	v.Data = herdFormData{Action: "/herds/new"}

	h, err := s.svc.Herds.CreateHerd(r.Context(), farm.ID, parseHerd(r.PostForm))
	if err != nil {
		s.fail(w, r, "herd_form.html", v, err)
		return
	}
	NewHTMXResponse().Redirect("/herds/" + h.ID).Write(w, r)
}

type herdDetailData struct {
	Herd        core.Herd
	Animals     []core.Animal
	Profit      []core.ProfitPerAnimal
	ActiveCount int
}

func (s *Server) handleHerdDetail(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Herd", "herds")
	d, err := s.svc.Herds.Detail(r.Context(), farm.ID, r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	v.Title = d.Herd.Name
	v.Form.Set("status", string(core.AnimalActive))
	v.Data = herdDetailData{Herd: d.Herd, Animals: d.Animals, Profit: d.Profit, ActiveCount: d.ActiveCount()}
	s.render(w, r, http.StatusOK, "herd_detail.html", v)
}

func (s *Server) handleHerdEdit(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	h, err := s.svc.Herds.Detail(r.Context(), farm.ID, r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	v := s.newView(r, farm, "Edit herd", "herds")
	v.Form = herdValues(h.Herd)
	v.Data = herdFormData{Action: "/herds/" + h.Herd.ID + "/edit", Herd: h.Herd}
	s.render(w, r, http.StatusOK, "herd_form.html", v)
}

func (s *Server) handleHerdUpdate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	id := r.PathValue("id")
	v := s.newView(r, farm, "Edit herd", "herds")
	v.Form = r.PostForm
	v.Data = herdFormData{Action: "/herds/" + id + "/edit", Herd: core.Herd{ID: id}}

	h := parseHerd(r.PostForm)
	h.ID = id
	if err := s.svc.Herds.UpdateHerd(r.Context(), farm.ID, h); err != nil {
		s.fail(w, r, "herd_form.html", v, err)
		return
	}
	NewHTMXResponse().Redirect("/herds/" + id).Write(w, r)
}

func (s *Server) handleHerdDelete(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if err := s.svc.Herds.DeleteHerd(r.Context(), farm.ID, r.PathValue("id")); err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	NewHTMXResponse().Redirect("/herds").Write(w, r)
}

func (s *Server) handleAnimalCreate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	herdID := r.PathValue("id")
	d, err := s.svc.Herds.Detail(r.Context(), farm.ID, herdID)
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}

	a, err := parseAnimal(r.PostForm)
	if err == nil {
		_, err = s.svc.Herds.AddAnimal(r.Context(), farm.ID, herdID, a)
	}
	if err != nil {
		v := s.newView(r, farm, d.Herd.Name, "herds")
		v.Form = r.PostForm
		v.Data = herdDetailData{Herd: d.Herd, Animals: d.Animals, Profit: d.Profit, ActiveCount: d.ActiveCount()}
		s.fail(w, r, "herd_detail.html", v, err)
		return
	}
	NewHTMXResponse().Redirect("/herds/" + herdID).Write(w, r)
}

func (s *Server) handleAnimalStatus(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	saleDate, err := parseOptionalDateField(r.PostForm, "sale_date")
	if err != nil {
		ErrorResponse(http.StatusUnprocessableEntity, err.Error()).Write(w, r)
		return
	}
	a, err := s.svc.Herds.UpdateAnimalStatus(r.Context(), farm.ID, r.PathValue("id"),
		core.AnimalStatus(formValue(r.PostForm, "status")), saleDate)
	if err != nil {
		if core.IsValidation(err) {
			ErrorResponse(http.StatusUnprocessableEntity, err.Error()).Write(w, r)
			return
		}
		s.renderError(w, r, farm, err)
		return
	}
	NewHTMXResponse().Redirect("/herds/" + a.HerdID).Write(w, r)
}

func (s *Server) handleAnimalDelete(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	herdID, err := s.svc.Herds.DeleteAnimal(r.Context(), farm.ID, r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	NewHTMXResponse().Redirect("/herds/" + herdID).Write(w, r)
}
