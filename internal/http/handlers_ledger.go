package http

import (
	"net/http"

	"farmledger/internal/core"
	"farmledger/internal/log"
)

// ledgerFormData feeds the revenue and expense forms.
type ledgerFormData struct {
	Action  string
	ID      string
	Herds   []core.Option
	Animals []core.Option
}

func (s *Server) ledgerForm(r *http.Request, farm core.Profile, action, id string) ledgerFormData {
	d := ledgerFormData{Action: action, ID: id}
	herds, animals, err := s.svc.Herds.LinkOptions(r.Context(), farm.ID)
	if err != nil {
		// The selects are optional; the form still works without them.
		s.logger.WarnContext(r.Context(), "Herd options unavailable", log.FieldFarmID, farm.ID, log.FieldError, err)
		return d
	}
	d.Herds, d.Animals = herds, animals
	return d
}

func (s *Server) handleRevenueList(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Revenue", "revenue")
	rows, err := s.svc.Ledger.ListRevenue(r.Context(), farm.ID, listLimit)
	if err != nil {
		s.fail(w, r, "revenue_list.html", v, err)
		return
	}
	v.Data = rows
	s.render(w, r, http.StatusOK, "revenue_list.html", v)
}

func (s *Server) handleRevenueNew(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Record revenue", "revenue")
	v.Form.Set("revenue_type", string(core.RevenueMilk))
	v.Form.Set("transaction_date", core.Today().String())
	v.Data = s.ledgerForm(r, farm, "/revenue/new", "")
	s.render(w, r, http.StatusOK, "revenue_form.html", v)
}

func (s *Server) handleRevenueCreate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, farm, "Record revenue", "revenue")
	v.Form = r.PostForm

	rv, err := parseRevenue(r.PostForm)
	if err == nil {
		_, err = s.svc.Ledger.CreateRevenue(r.Context(), farm.ID, rv)
	}
	if err != nil {
		v.Data = s.ledgerForm(r, farm, "/revenue/new", "")
		s.fail(w, r, "revenue_form.html", v, err)
		return
	}
	NewHTMXResponse().TriggerLedgerChanged(core.KindRevenue).Redirect("/revenue").Write(w, r)
}

func (s *Server) handleRevenueEdit(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	rv, err := s.svc.Ledger.GetRevenue(r.Context(), farm.ID, r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	v := s.newView(r, farm, "Edit revenue", "revenue")
	v.Form = revenueValues(rv)
	v.Data = s.ledgerForm(r, farm, "/revenue/"+rv.ID+"/edit", rv.ID)
	s.render(w, r, http.StatusOK, "revenue_form.html", v)
}

func (s *Server) handleRevenueUpdate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	id := r.PathValue("id")
	v := s.newView(r, farm, "Edit revenue", "revenue")
	v.Form = r.PostForm

	rv, err := parseRevenue(r.PostForm)
	if err == nil {
		rv.ID = id
		err = s.svc.Ledger.UpdateRevenue(r.Context(), farm.ID, rv)
	}
	if err != nil {
		v.Data = s.ledgerForm(r, farm, "/revenue/"+id+"/edit", id)
		s.fail(w, r, "revenue_form.html", v, err)
		return
	}
	NewHTMXResponse().TriggerLedgerChanged(core.KindRevenue).Redirect("/revenue").Write(w, r)
}

func (s *Server) handleRevenueDelete(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if err := s.svc.Ledger.DeleteRevenue(r.Context(), farm.ID, r.PathValue("id")); err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	NewHTMXResponse().TriggerLedgerChanged(core.KindRevenue).Redirect("/revenue").Write(w, r)
}

func (s *Server) handleExpenseList(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Expenses", "expenses")
	rows, err := s.svc.Ledger.ListExpenses(r.Context(), farm.ID, listLimit)
	if err != nil {
		s.fail(w, r, "expense_list.html", v, err)
		return
	}
	v.Data = rows
	s.render(w, r, http.StatusOK, "expense_list.html", v)
}

func (s *Server) handleExpenseNew(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Record expense", "expenses")
	v.Form.Set("category", string(core.ExpenseFeedRoughage))
	v.Form.Set("transaction_date", core.Today().String())
	v.Data = s.ledgerForm(r, farm, "/expenses/new", "")
	s.render(w, r, http.StatusOK, "expense_form.html", v)
}

func (s *Server) handleExpenseCreate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, farm, "Record expense", "expenses")
	v.Form = r.PostForm

	e, err := parseExpense(r.PostForm)
	if err == nil {
		_, err = s.svc.Ledger.CreateExpense(r.Context(), farm.ID, e)
	}
	if err != nil {
		v.Data = s.ledgerForm(r, farm, "/expenses/new", "")
		s.fail(w, r, "expense_form.html", v, err)
		return
	}
	NewHTMXResponse().TriggerLedgerChanged(core.KindExpense).Redirect("/expenses").Write(w, r)
}

func (s *Server) handleExpenseEdit(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	e, err := s.svc.Ledger.GetExpense(r.Context(), farm.ID, r.PathValue("id"))
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	v := s.newView(r, farm, "Edit expense", "expenses")
	v.Form = expenseValues(e)
	v.Data = s.ledgerForm(r, farm, "/expenses/"+e.ID+"/edit", e.ID)
	s.render(w, r, http.StatusOK, "expense_form.html", v)
}

func (s *Server) handleExpenseUpdate(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if !s.parseForm(w, r) {
		return
	}
	id := r.PathValue("id")
	v := s.newView(r, farm, "Edit expense", "expenses")
	v.Form = r.PostForm

	e, err := parseExpense(r.PostForm)
	if err == nil {
		e.ID = id
		err = s.svc.Ledger.UpdateExpense(r.Context(), farm.ID, e)
	}
	if err != nil {
		v.Data = s.ledgerForm(r, farm, "/expenses/"+id+"/edit", id)
		s.fail(w, r, "expense_form.html", v, err)
		return
	}
	NewHTMXResponse().TriggerLedgerChanged(core.KindExpense).Redirect("/expenses").Write(w, r)
}

func (s *Server) handleExpenseDelete(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	if err := s.svc.Ledger.DeleteExpense(r.Context(), farm.ID, r.PathValue("id")); err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	NewHTMXResponse().TriggerLedgerChanged(core.KindExpense).Redirect("/expenses").Write(w, r)
}
