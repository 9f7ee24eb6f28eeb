package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"farmledger/internal/core"
	"farmledger/internal/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hay-bales")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$v=19$m=65536,t=1,p=4$") {
		t.Fatalf("unexpected encoding %q", hash)
	}
	if err := VerifyPassword(hash, "hay-bales"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "hay-bale"); err == nil {
		t.Fatal("wrong password accepted")
	}

	other, _ := HashPassword("hay-bales")
	if other == hash {
		t.Fatal("hashes should be salted")
	}
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	for _, h := range []string{"", "bcrypt$x", "argon2id$v=19$m=1$a$b", "argon2id$v=18$m=1,t=1,p=1$YQ$YQ", "argon2id$v=19$m=1,t=1,p=1$!!$YQ"} {
		if err := VerifyPassword(h, "pw"); !errors.Is(err, errHashFormat) {
			t.Errorf("VerifyPassword(%q) = %v, want errHashFormat", h, err)
		}
	}
}

func TestIssuerKinds(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour, 24*time.Hour)
	pair, err := iss.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := iss.VerifyAccess(pair.AccessToken)
	if err != nil || claims.Subject != "user-1" || claims.ID != pair.SessionID {
		t.Fatalf("VerifyAccess = %+v, %v", claims, err)
	}
	if _, err := iss.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
	if _, err := iss.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}

	other := NewIssuer("another-secret-another-secret-xx", time.Hour, 24*time.Hour)
	if _, err := other.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature accepted: %v", err)
	}
}

func TestIssuerExpiry(t *testing.T) {
	iss := NewIssuer(testSecret, time.Minute, time.Hour)
	start := time.Now()
	iss.now = func() time.Time { return start }
	pair, _ := iss.Issue("user-1")

	iss.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := iss.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired access token accepted: %v", err)
	}
	if _, err := iss.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewService(store, NewIssuer(testSecret, time.Hour, 24*time.Hour), nil), store
}

func TestSignUpAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, pair, err := svc.SignUp(ctx, "  Farmer@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if u.Email != "farmer@example.com" || pair.AccessToken == "" {
		t.Fatalf("SignUp = %+v", u)
	}

	if _, _, err := svc.SignUp(ctx, "farmer@example.com", "secret2"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate signup err = %v", err)
	}
	if _, _, err := svc.SignUp(ctx, "new@example.com", "short"); !core.IsValidation(err) {
		t.Fatalf("short password err = %v", err)
	}
	if _, _, err := svc.SignUp(ctx, "not-an-email", "secret1"); !core.IsValidation(err) {
		t.Fatalf("bad email err = %v", err)
	}

	if _, _, err := svc.Login(ctx, "FARMER@example.com", "secret1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, _, err := svc.Login(ctx, "farmer@example.com", "wrong-pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}

	userID, err := svc.Authenticate(pair.AccessToken)
	if err != nil || userID != u.ID {
		t.Fatalf("Authenticate = %q, %v", userID, err)
	}
}

func TestRefreshRotatesOnce(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	start := time.Now()
	svc.now = func() time.Time { return start }
	u, pair, err := svc.SignUp(ctx, "a@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	userID, next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil || userID != u.ID {
		t.Fatalf("Refresh = %q, %v", userID, err)
	}
	if next.SessionID == pair.SessionID {
		t.Fatal("refresh must open a new session")
	}
	if old, _ := store.GetSession(ctx, pair.SessionID); !old.Revoked || old.ReplacedBy != next.SessionID {
		t.Fatalf("old session = %+v, want revoked and replaced", old)
	}

	svc.now = func() time.Time { return start.Add(core.SessionReuseWindow + time.Second) }
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("refresh token reused after the grace window err = %v", err)
	}
	if _, _, err := svc.Refresh(ctx, next.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token used as refresh err = %v", err)
	}

	if err := svc.Logout(ctx, next.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("refresh after logout err = %v", err)
	}
	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("Logout with garbage token should be a no-op: %v", err)
	}

	n, err := svc.PurgeSessions(ctx)
	if err != nil || n != 2 {
		t.Fatalf("PurgeSessions = %d, %v", n, err)
	}
}

func TestRefreshReuseWithinWindowJoinsSuccessor(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	start := time.Now()
	svc.now = func() time.Time { return start }
	u, pair, err := svc.SignUp(ctx, "tabs@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	_, first, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	svc.now = func() time.Time { return start.Add(2 * time.Second) }
	userID, second, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil || userID != u.ID {
		t.Fatalf("second Refresh = %q, %v", userID, err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("reuse opened session %s, want successor %s", second.SessionID, first.SessionID)
	}
	if !second.RefreshExpiresAt.Equal(first.RefreshExpiresAt) {
		t.Fatalf("reused pair expires %v, successor %v", second.RefreshExpiresAt, first.RefreshExpiresAt)
	}

	// Both pairs keep working: either tab's cookies may be the ones the browser keeps.
	for name, p := range map[string]TokenPair{"first": first, "second": second} {
		if _, err := svc.Authenticate(p.AccessToken); err != nil {
			t.Fatalf("%s access token: %v", name, err)
		}
	}
	if _, _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("refresh with the reused pair: %v", err)
	}
	if old, _ := store.GetSession(ctx, first.SessionID); !old.Revoked {
		t.Fatal("successor should now be rotated too")
	}
}

func TestPurgeEveryDeletesLoggedOutSessions(t *testing.T) {
	svc, store := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, pair, err := svc.SignUp(ctx, "purge@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		svc.PurgeEvery(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := store.GetSession(context.Background(), pair.SessionID); errors.Is(err, core.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("logged out session never purged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PurgeEvery did not stop on cancel")
	}
}

func TestCookieWriter(t *testing.T) {
	pair := TokenPair{
		AccessToken:      "a",
		RefreshToken:     "r",
		AccessExpiresAt:  time.Now().Add(time.Hour),
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	CookieWriter{}.Set(rec, req, pair)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" || c.Secure {
			t.Errorf("cookie %s attributes = %+v", c.Name, c)
		}
	}
	if cookies[0].Name != AccessCookie || cookies[0].Value != "a" {
		t.Errorf("access cookie = %+v", cookies[0])
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	CookieWriter{}.Clear(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 || c.Value != "" || !c.Secure {
			t.Errorf("cleared cookie %s = %+v", c.Name, c)
		}
	}
}

func TestUserIDContext(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Fatal("empty context should carry no user")
	}
	ctx := WithUserID(context.Background(), "u1")
	if id, ok := UserID(ctx); !ok || id != "u1" {
		t.Fatalf("UserID = %q, %v", id, ok)
	}
}
