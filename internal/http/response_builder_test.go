package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"farmledger/internal/core"
)

func TestHTMXResponseBuilderTriggers(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/revenue/new", nil)

	NewHTMXResponse().
		TriggerLedgerChanged(core.KindRevenue).
		Trigger("form:reset", struct{}{}).
		Write(w, r)

	trigger := w.Header().Get("HX-Trigger")
	for _, part := range []string{`"ledger:changed"`, `"kind":"revenue"`, `"form:reset"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %s: %s", part, trigger)
		}
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHTMXResponseBuilderRedirect(t *testing.T) {
	tests := []struct {
		name       string
		htmx       bool
		wantStatus int
		header     string
	}{
		{"plain form", false, http.StatusSeeOther, "Location"},
		{"htmx", true, http.StatusOK, "HX-Redirect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/revenue/1/delete", nil)
			if tt.htmx {
				r.Header.Set("HX-Request", "true")
			}
			NewHTMXResponse().Redirect("/revenue").Write(w, r)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get(tt.header); got != "/revenue" {
				t.Fatalf("%s = %q", tt.header, got)
			}
		})
	}
}

func TestErrorResponseEscapes(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusUnprocessableEntity, `<b>amount</b>`).Write(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "<b>") || !strings.Contains(w.Body.String(), "&lt;b&gt;") {
		t.Fatalf("body not escaped: %s", w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatal("missing html content type")
	}
}
