package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"farmledger/internal/log"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour},
		log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)}))
	t.Cleanup(rl.Stop)

	now := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWindow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("fourth request in the window should be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatal("other clients have their own budget")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("new window should reset the budget")
	}
	if got := rl.Metrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Fatalf("metrics = %+v", got)
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 10)
	rl.Allow("a")
	*now = now.Add(11 * time.Minute)
	rl.Allow("b")

	if n := rl.cleanupStaleEntries(); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if rl.ActiveClients() != 1 {
		t.Fatalf("active = %d", rl.ActiveClients())
	}
}

func TestMiddlewareLimitsWritesOnly(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusNoContent},
		{http.MethodPost, http.StatusNoContent},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodPost, http.StatusTooManyRequests},
	}
	for i, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/revenue/new", nil))
		if rec.Code != tt.want {
			t.Fatalf("#%d %s: status %d, want %d", i, tt.method, rec.Code, tt.want)
		}
		if tt.want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
			t.Fatal("missing Retry-After")
		}
	}
	rl.Stop()
}
