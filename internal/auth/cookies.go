package auth

import (
	"context"
	"net/http"
	"time"
)

const (
	AccessCookie  = "farm-access-token"
	RefreshCookie = "farm-refresh-token"
)

// CookieWriter sets and clears the session cookies.
type CookieWriter struct {
	// ForceSecure marks cookies Secure even on plain HTTP, for deployments behind a TLS proxy.
	ForceSecure bool
}

func (c CookieWriter) secure(r *http.Request) bool {
	return c.ForceSecure || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// Set writes both session cookies for pair.
func (c CookieWriter) Set(w http.ResponseWriter, r *http.Request, pair TokenPair) {
	secure := c.secure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		MaxAge:   maxAge(pair.AccessExpiresAt),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   maxAge(pair.RefreshExpiresAt),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires both session cookies.
func (c CookieWriter) Clear(w http.ResponseWriter, r *http.Request) {
	secure := c.secure(r)
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func maxAge(expires time.Time) int {
	secs := int(time.Until(expires).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// CookieValue returns the named cookie's value, or "" when absent.
func CookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

type userIDKey struct{}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}
