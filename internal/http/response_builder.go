package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"farmledger/internal/core"
)

// HTMXResponseBuilder builds responses for both htmx and plain form posts.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       []byte
	headers    map[string]string
	redirect   string
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named event with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerLedgerChanged tells open dashboard widgets to reload.
func (b *HTMXResponseBuilder) TriggerLedgerChanged(kind core.LedgerKind) *HTMXResponseBuilder {
	return b.Trigger("ledger:changed", map[string]string{"kind": string(kind)})
}

// Redirect sends htmx requests an HX-Redirect and everyone else a 303.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	b.redirect = url
	return b
}

func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = []byte(html)
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter, r *http.Request) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	if b.redirect != "" {
		if isHTMX(r) {
			w.Header().Set("HX-Redirect", b.redirect)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, b.redirect, http.StatusSeeOther)
		return
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message as an alert fragment. The message is escaped.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML(`<div class="alert alert-error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
