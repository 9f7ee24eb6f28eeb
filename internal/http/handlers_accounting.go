package http

import (
	"bytes"
	"net/http"
	"strconv"

	"farmledger/internal/core"
	"farmledger/internal/log"
	"farmledger/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleAccounting(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	v := s.newView(r, farm, "Accounting export", "accounting")
	rng, err := s.svc.Export.Range("", "")
	if err != nil {
		s.fail(w, r, "accounting.html", v, err)
		return
	}
	v.Form.Set("start", rng.Start.String())
	v.Form.Set("end", rng.End.String())
	s.render(w, r, http.StatusOK, "accounting.html", v)
}

// exportRange re-renders the accounting page on a bad range and reports false.
func (s *Server) exportRange(w http.ResponseWriter, r *http.Request, farm core.Profile) (services.ExportRange, bool) {
	q := r.URL.Query()
	rng, err := s.svc.Export.Range(q.Get("start"), q.Get("end"))
	if err != nil {
		v := s.newView(r, farm, "Accounting export", "accounting")
		v.Form = q
		s.fail(w, r, "accounting.html", v, err)
		return services.ExportRange{}, false
	}
	return rng, true
}

// handleExportCSV buffers the file so a storage error can still produce an error page.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	rng, ok := s.exportRange(w, r, farm)
	if !ok {
		return
	}
	var buf bytes.Buffer
	n, err := s.svc.Export.WriteCSV(r.Context(), &buf, farm.ID, rng)
	if err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	s.logger.InfoContext(r.Context(), "CSV export served", log.FieldFarmID, farm.ID, "rows", n)
	download(w, "text/csv; charset=utf-8", rng.Filename("csv"), buf.Bytes())
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request, farm core.Profile) {
	rng, ok := s.exportRange(w, r, farm)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.svc.Export.WriteXLSX(r.Context(), &buf, farm.ID, farm.DisplayName(s.svc.Farms.DefaultName()), rng); err != nil {
		s.renderError(w, r, farm, err)
		return
	}
	download(w, xlsxContentType, rng.Filename("xlsx"), buf.Bytes())
}

func download(w http.ResponseWriter, contentType, filename string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
