// Package http serves the farm ledger web UI: server-rendered pages with htmx
// enhancements, behind the trace, security, rate limit and session middleware.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"farmledger/internal/auth"
	"farmledger/internal/cache"
	"farmledger/internal/core"
	"farmledger/internal/log"
	"farmledger/internal/middleware/ratelimit"
	"farmledger/internal/middleware/security"
	"farmledger/internal/middleware/session"
	"farmledger/internal/middleware/trace"
	"farmledger/internal/services"
	appweb "farmledger/web"
)

// Row limit on the revenue, expense and subsidy list pages.
const listLimit = 50

// Services are the application services the handlers call.
type Services struct {
	Auth      *auth.Service
	Farms     *services.FarmService
	Herds     *services.HerdService
	Ledger    *services.LedgerService
	Subsidies *services.SubsidyService
	Dashboard *services.DashboardService
	Export    *services.ExportService
	Seed      *services.SeedService
}

type Options struct {
	Addr               string
	CookieSecure       bool
	RateLimitPerMinute int
	SeedEnabled        bool
	// Ready checks storage for /readyz.
	Ready func(ctx context.Context) error
	// CacheStats feeds the dashboard cache counters on /metrics.
	CacheStats func() cache.Stats
}

type Server struct {
	http.Server
	svc     Services
	opts    Options
	pages   map[string]*template.Template
	cookies auth.CookieWriter
	logger  *log.Logger

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires routes and middleware.
func NewServer(svc Services, opts Options, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		svc:     svc,
		opts:    opts,
		cookies: auth.CookieWriter{ForceSecure: opts.CookieSecure},
		logger:  logger.WithComponent(log.ComponentHTTP),
		started: time.Now(),
	}

	pages, err := parsePages(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}
	s.pages = pages

	s.detector = security.NewDetector(logger)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}, logger)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = session.New(svc.Auth, s.cookies, logger).Middleware(h)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, nil)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("GET /auth/login", s.handleLoginForm)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/signup", s.handleSignupForm)
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	mux.HandleFunc("GET /dashboard", s.farm(s.handleDashboard))
	mux.HandleFunc("GET /profile", s.farm(s.handleProfileForm))
	mux.HandleFunc("POST /profile", s.farm(s.handleProfileUpdate))

	mux.HandleFunc("GET /herds", s.farm(s.handleHerdList))
	mux.HandleFunc("GET /herds/new", s.editor(s.handleHerdNew))
	mux.HandleFunc("POST /herds/new", s.editor(s.handleHerdCreate))
	mux.HandleFunc("GET /herds/{id}", s.farm(s.handleHerdDetail))
	mux.HandleFunc("GET /herds/{id}/edit", s.editor(s.handleHerdEdit))
	mux.HandleFunc("POST /herds/{id}/edit", s.editor(s.handleHerdUpdate))
	mux.HandleFunc("POST /herds/{id}/delete", s.editor(s.handleHerdDelete))
	mux.HandleFunc("POST /herds/{id}/animals", s.editor(s.handleAnimalCreate))
	mux.HandleFunc("POST /animals/{id}/status", s.editor(s.handleAnimalStatus))
	mux.HandleFunc("POST /animals/{id}/delete", s.editor(s.handleAnimalDelete))

	mux.HandleFunc("GET /revenue", s.farm(s.handleRevenueList))
	mux.HandleFunc("GET /revenue/new", s.editor(s.handleRevenueNew))
	mux.HandleFunc("POST /revenue/new", s.editor(s.handleRevenueCreate))
	mux.HandleFunc("GET /revenue/{id}/edit", s.editor(s.handleRevenueEdit))
	mux.HandleFunc("POST /revenue/{id}/edit", s.editor(s.handleRevenueUpdate))
	mux.HandleFunc("POST /revenue/{id}/delete", s.editor(s.handleRevenueDelete))

	mux.HandleFunc("GET /expenses", s.farm(s.handleExpenseList))
	mux.HandleFunc("GET /expenses/new", s.editor(s.handleExpenseNew))
	mux.HandleFunc("POST /expenses/new", s.editor(s.handleExpenseCreate))
	mux.HandleFunc("GET /expenses/{id}/edit", s.editor(s.handleExpenseEdit))
	mux.HandleFunc("POST /expenses/{id}/edit", s.editor(s.handleExpenseUpdate))
	mux.HandleFunc("POST /expenses/{id}/delete", s.editor(s.handleExpenseDelete))

	mux.HandleFunc("GET /subsidies", s.farm(s.handleSubsidyList))
	mux.HandleFunc("GET /subsidies/new", s.editor(s.handleSubsidyNew))
	mux.HandleFunc("POST /subsidies/new", s.editor(s.handleSubsidyCreate))
	mux.HandleFunc("GET /subsidies/{id}/edit", s.editor(s.handleSubsidyEdit))
	mux.HandleFunc("POST /subsidies/{id}/edit", s.editor(s.handleSubsidyUpdate))
	mux.HandleFunc("POST /subsidies/{id}/delete", s.editor(s.handleSubsidyDelete))

	mux.HandleFunc("GET /accounting", s.farm(s.handleAccounting))
	mux.HandleFunc("GET /accounting/export.csv", s.farm(s.handleExportCSV))
	mux.HandleFunc("GET /accounting/export.xlsx", s.farm(s.handleExportXLSX))

	mux.HandleFunc("GET /admin/seed", s.editor(s.handleSeedForm))
	mux.HandleFunc("POST /admin/seed", s.editor(s.handleSeed))
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// farmHandler receives the signed-in user's farm profile.
type farmHandler func(w http.ResponseWriter, r *http.Request, farm core.Profile)

// farm resolves the signed-in user's profile, creating it on first access.
func (s *Server) farm(next farmHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserID(r.Context())
		if !ok {
			NewHTMXResponse().Redirect("/auth/login").Write(w, r)
			return
		}
		p, err := s.svc.Farms.EnsureProfile(r.Context(), userID)
		if err != nil {
			s.renderError(w, r, core.Profile{}, err)
			return
		}
		next(w, r, p)
	}
}

// editor is farm plus the write permission check.
func (s *Server) editor(next farmHandler) http.HandlerFunc {
	return s.farm(func(w http.ResponseWriter, r *http.Request, farm core.Profile) {
		if !farm.Role.CanEdit() {
			s.logger.WarnContext(r.Context(), "Write blocked for read-only role",
				log.FieldFarmID, farm.ID,
				log.FieldPath, r.URL.Path,
				"role", farm.Role)
			s.renderError(w, r, farm, core.ErrForbidden)
			return
		}
		next(w, r, farm)
	})
}

// view is the data every page template receives.
type view struct {
	Title     string
	Nav       string
	SignedIn  bool
	Farm      core.Profile
	FarmName  string
	CanEdit   bool
	Error     string
	Field     string
	Notice    string
	Form      url.Values
	Data      any
	RequestID string
}

func (s *Server) newView(r *http.Request, farm core.Profile, title, nav string) view {
	_, signedIn := auth.UserID(r.Context())
	return view{
		Title:     title,
		Nav:       nav,
		SignedIn:  signedIn,
		Farm:      farm,
		FarmName:  farm.DisplayName(s.svc.Farms.DefaultName()),
		CanEdit:   farm.Role.CanEdit(),
		Form:      url.Values{},
		RequestID: trace.RequestID(r.Context()),
	}
}

// render executes the page into a buffer first so a template failure
// never leaves a half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, v view) {
	t, ok := s.pages[page]
	if !ok {
		s.logger.ErrorContext(r.Context(), "Unknown template", "template", page)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", "template", page, log.FieldError, err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// fail re-renders a form page with the error in its alert box.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, page string, v view, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound || status == http.StatusForbidden {
		s.renderError(w, r, v.Farm, err)
		return
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed", log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		v.Field = ve.Field
	}
	v.Error = err.Error()
	s.render(w, r, status, page, v)
}

// renderError shows the standalone error page.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, farm core.Profile, err error) {
	status := statusFor(err)
	v := s.newView(r, farm, http.StatusText(status), "")
	switch status {
	case http.StatusNotFound:
		v.Error = "The record you are looking for does not exist."
	case http.StatusForbidden:
		v.Error = "Your role can view this farm's records but not change them."
	default:
		s.logger.ErrorContext(r.Context(), "Request failed", log.FieldPath, r.URL.Path, log.FieldError, err)
		v.Error = err.Error()
	}
	if isHTMX(r) {
		ErrorResponse(status, v.Error).Write(w, r)
		return
	}
	s.render(w, r, status, "error.html", v)
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w, r)
		return false
	}
	return true
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("base").Funcs(templateFuncs()).ParseFS(fsys, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	names, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		page := strings.TrimPrefix(name, "templates/")
		if page == "layout.html" {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if t, err = t.ParseFS(fsys, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		pages[page] = t
	}
	return pages, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":             func(m core.Money) string { return m.String() },
		"date":              func(d core.Date) string { return d.String() },
		"roles":             core.RoleOptions,
		"animalTypes":       core.AnimalTypeOptions,
		"animalStatuses":    core.AnimalStatusOptions,
		"revenueTypes":      core.RevenueTypeOptions,
		"expenseCategories": core.ExpenseCategoryOptions,
		"subsidyStatuses":   core.SubsidyStatusOptions,
		"ym": func(year, month int) string {
			return core.YearMonth{Year: year, Month: month}.String()
		},
	}
}
