package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"farmledger/internal/amqp"
	"farmledger/internal/auth"
	"farmledger/internal/cache"
	"farmledger/internal/core"
	"farmledger/internal/middleware/trace"
	"farmledger/internal/services"
	"farmledger/internal/storage/memory"
)

const testSecret = "test-secret-test-secret-test-secret"

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []amqp.LedgerSyncMessage
}

func (p *recordingPublisher) PublishLedgerSync(_ context.Context, msg amqp.LedgerSyncMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type testApp struct {
	srv   *Server
	store *memory.Store
	pub   *recordingPublisher
}

func newTestApp(t *testing.T, opts Options) *testApp {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	lru := cache.NewLRUCache[services.Dashboard](10, time.Minute)
	dash := services.NewDashboardService(store, lru, nil)
	herds := services.NewHerdService(store, nil)
	ledger := services.NewLedgerService(store, pub, dash, nil)
	subs := services.NewSubsidyService(store, dash, nil)

	svc := Services{
		Auth:      auth.NewService(store, auth.NewIssuer(testSecret, time.Hour, 24*time.Hour), nil),
		Farms:     services.NewFarmService(store, "", nil),
		Herds:     herds,
		Ledger:    ledger,
		Subsidies: subs,
		Dashboard: dash,
		Export:    services.NewExportService(store, nil),
		Seed:      services.NewSeedService(herds, ledger, subs, nil),
	}
	opts.CacheStats = lru.Stats
	srv, err := NewServer(svc, opts, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testApp{srv: srv, store: store, pub: pub}
}

// do sends a request through the full middleware chain carrying cookies.
func (a *testApp) do(method, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, req)
	return rec
}

// signUp creates an account and returns its session cookies.
func (a *testApp) signUp(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	rec := a.do(http.MethodPost, "/auth/signup", url.Values{
		"email":     {email},
		"password":  {"correct-horse"},
		"farm_name": {"Hillside Dairy"},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("signup set %d cookies", len(cookies))
	}
	return cookies
}

func TestProtectedPagesRequireSession(t *testing.T) {
	app := newTestApp(t, Options{})

	rec := app.do(http.MethodGet, "/dashboard", nil, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/login" {
		t.Fatalf("got %d location %q", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/revenue", nil)
	req.Header.Set("HX-Request", "true")
	hx := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(hx, req)
	if hx.Code != http.StatusUnauthorized || hx.Header().Get("HX-Redirect") != "/auth/login" {
		t.Fatalf("htmx got %d redirect %q", hx.Code, hx.Header().Get("HX-Redirect"))
	}

	if rec := app.do(http.MethodGet, "/metrics", nil, nil); rec.Code != http.StatusSeeOther {
		t.Fatalf("metrics without session = %d", rec.Code)
	}
}

func TestSignupBootstrapsFarm(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")

	rec := app.do(http.MethodGet, "/dashboard", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Hillside Dairy") {
		t.Fatal("farm name missing from nav")
	}
	if rec.Header().Get(trace.HeaderRequestID) == "" {
		t.Fatal("request id header missing")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers not applied: %v", rec.Header())
	}

	dup := app.do(http.MethodPost, "/auth/signup", url.Values{
		"email":    {"owner@example.com"},
		"password": {"another-pass"},
	}, nil)
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate signup = %d", dup.Code)
	}
}

func TestLoginFailureKeepsEmail(t *testing.T) {
	app := newTestApp(t, Options{})
	app.signUp(t, "owner@example.com")

	rec := app.do(http.MethodPost, "/auth/login", url.Values{
		"email":    {"owner@example.com"},
		"password": {"wrong-password"},
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `value="owner@example.com"`) {
		t.Fatal("email not kept on the form")
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("failed login set cookies")
	}
}

func TestRefreshCookieRotatesSession(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")

	var refresh *http.Cookie
	for _, c := range cookies {
		if c.Name == auth.RefreshCookie {
			refresh = c
		}
	}
	if refresh == nil {
		t.Fatal("no refresh cookie")
	}

	rec := app.do(http.MethodGet, "/herds", nil, []*http.Cookie{refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rotated := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		rotated[c.Name] = c.Value
	}
	if rotated[auth.AccessCookie] == "" || rotated[auth.RefreshCookie] == "" {
		t.Fatalf("cookies not rotated: %v", rotated)
	}
	if rotated[auth.RefreshCookie] == refresh.Value {
		t.Fatal("refresh token reused")
	}

	// A parallel request still holding the old cookie joins the new session.
	again := app.do(http.MethodGet, "/herds", nil, []*http.Cookie{refresh})
	if again.Code != http.StatusOK {
		t.Fatalf("old refresh token inside the reuse window = %d", again.Code)
	}

	// Once the new session is logged out the old cookie is dead too.
	if out := app.do(http.MethodPost, "/auth/logout", nil, rec.Result().Cookies()); out.Code != http.StatusSeeOther {
		t.Fatalf("logout = %d", out.Code)
	}
	dead := app.do(http.MethodGet, "/herds", nil, []*http.Cookie{refresh})
	if dead.Code != http.StatusSeeOther {
		t.Fatalf("old refresh token after logout = %d", dead.Code)
	}
}

func TestRevenueCreate(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")

	bad := app.do(http.MethodPost, "/revenue/new", url.Values{
		"revenue_type":     {"milk"},
		"amount":           {"-5"},
		"transaction_date": {"2025-03-01"},
	}, cookies)
	if bad.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid amount = %d", bad.Code)
	}
	if !strings.Contains(bad.Body.String(), `value="-5"`) {
		t.Fatal("submitted amount not kept")
	}
	if app.pub.count() != 0 {
		t.Fatal("rejected input was published")
	}

	ok := app.do(http.MethodPost, "/revenue/new", url.Values{
		"revenue_type":     {"milk"},
		"amount":           {"125000"},
		"transaction_date": {"2025-03-01"},
		"customer_name":    {"Co-op"},
	}, cookies)
	if ok.Code != http.StatusSeeOther || ok.Header().Get("Location") != "/revenue" {
		t.Fatalf("create = %d location %q", ok.Code, ok.Header().Get("Location"))
	}
	if app.pub.count() != 1 {
		t.Fatalf("published %d messages", app.pub.count())
	}

	list := app.do(http.MethodGet, "/revenue", nil, cookies)
	if list.Code != http.StatusOK || !strings.Contains(list.Body.String(), "Co-op") {
		t.Fatalf("list = %d", list.Code)
	}
}

func TestHTMXCreateUsesHXRedirect(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")

	form := url.Values{"name": {"North pasture"}, "animal_type": {"beef"}}
	req := httptest.NewRequest(http.MethodPost, "/herds/new", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("HX-Redirect"), "/herds/") {
		t.Fatalf("got %d redirect %q", rec.Code, rec.Header().Get("HX-Redirect"))
	}
}

func TestAccountantCannotWrite(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")

	rec := app.do(http.MethodPost, "/profile", url.Values{
		"farm_name": {"Hillside Dairy"},
		"role":      {"accountant"},
	}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile update = %d", rec.Code)
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/revenue", http.StatusOK},
		{http.MethodGet, "/revenue/new", http.StatusForbidden},
		{http.MethodPost, "/expenses/new", http.StatusForbidden},
		{http.MethodGet, "/accounting", http.StatusOK},
		{http.MethodGet, "/profile", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var form url.Values
			if tt.method == http.MethodPost {
				form = url.Values{"category": {"fuel"}, "amount": {"100"}, "transaction_date": {"2025-03-01"}}
			}
			if rec := app.do(tt.method, tt.path, form, cookies); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestUnknownRecordIsNotFound(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")

	for _, path := range []string{"/revenue/missing/edit", "/expenses/missing/edit", "/subsidies/missing/edit", "/herds/missing"} {
		if rec := app.do(http.MethodGet, path, nil, cookies); rec.Code != http.StatusNotFound {
			t.Errorf("%s = %d", path, rec.Code)
		}
	}
}

func TestFarmsAreIsolated(t *testing.T) {
	app := newTestApp(t, Options{})
	alice := app.signUp(t, "alice@example.com")
	bob := app.signUp(t, "bob@example.com")

	farm, err := app.srv.svc.Farms.EnsureProfile(context.Background(), mustUserID(t, app, alice))
	if err != nil {
		t.Fatal(err)
	}
	rv, err := app.srv.svc.Ledger.CreateRevenue(context.Background(), farm.ID, core.Revenue{
		Type:   core.RevenueMilk,
		Amount: core.Money{Cents: 1000},
		Date:   core.NewDate(2025, 3, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	if rec := app.do(http.MethodGet, "/revenue/"+rv.ID+"/edit", nil, bob); rec.Code != http.StatusNotFound {
		t.Fatalf("other farm's row = %d", rec.Code)
	}
	if rec := app.do(http.MethodGet, "/revenue/"+rv.ID+"/edit", nil, alice); rec.Code != http.StatusOK {
		t.Fatalf("own row = %d", rec.Code)
	}
}

func mustUserID(t *testing.T, app *testApp, cookies []*http.Cookie) string {
	t.Helper()
	for _, c := range cookies {
		if c.Name == auth.AccessCookie {
			id, err := app.srv.svc.Auth.Authenticate(c.Value)
			if err != nil {
				t.Fatal(err)
			}
			return id
		}
	}
	t.Fatal("no access cookie")
	return ""
}

func TestCSVExport(t *testing.T) {
	app := newTestApp(t, Options{})
	cookies := app.signUp(t, "owner@example.com")
	app.do(http.MethodPost, "/expenses/new", url.Values{
		"category":         {"fuel"},
		"amount":           {"4500"},
		"transaction_date": {"2025-02-10"},
		"vendor_name":      {"Fuel Co"},
	}, cookies)

	rec := app.do(http.MethodGet, "/accounting/export.csv?start=2025-01-01&end=2025-03-31", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="accounting_export_2025-01-01_2025-03-31.csv"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "\ufefftype,date,category,amount,counterparty,description\n") {
		t.Fatalf("unexpected header: %q", body)
	}
	if !strings.Contains(body, "expense,2025-02-10,fuel,") || !strings.Contains(body, "Fuel Co") {
		t.Fatalf("expense row missing: %q", body)
	}

	bad := app.do(http.MethodGet, "/accounting/export.csv?start=2025-04-01&end=2025-03-01", nil, cookies)
	if bad.Code != http.StatusUnprocessableEntity {
		t.Fatalf("reversed range = %d", bad.Code)
	}
}

func TestSeedRequiresFlag(t *testing.T) {
	off := newTestApp(t, Options{})
	cookies := off.signUp(t, "owner@example.com")
	if rec := off.do(http.MethodPost, "/admin/seed", url.Values{}, cookies); rec.Code != http.StatusNotFound {
		t.Fatalf("seed disabled = %d", rec.Code)
	}

	on := newTestApp(t, Options{SeedEnabled: true})
	cookies = on.signUp(t, "owner@example.com")
	rec := on.do(http.MethodPost, "/admin/seed", url.Values{}, cookies)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Demo data created.") {
		t.Fatalf("seed = %d: %s", rec.Code, rec.Body.String())
	}
	if on.pub.count() == 0 {
		t.Fatal("seeded ledger rows were not published")
	}
}

func TestOpsEndpoints(t *testing.T) {
	app := newTestApp(t, Options{Ready: func(context.Context) error { return nil }})

	rec := app.do(http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
	if rec := app.do(http.MethodGet, "/readyz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	cookies := app.signUp(t, "owner@example.com")
	rec = app.do(http.MethodGet, "/metrics", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	for _, name := range []string{"http_requests_total", "rate_limit_hits_total", "dashboard_cache_hits_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestNotReady(t *testing.T) {
	app := newTestApp(t, Options{Ready: func(context.Context) error { return context.DeadlineExceeded }})
	if rec := app.do(http.MethodGet, "/readyz", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", rec.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	app := newTestApp(t, Options{})
	rec := app.do(http.MethodGet, "/static/app.css", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "max-age=3600") {
		t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}
