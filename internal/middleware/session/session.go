// Package session keeps the access and refresh cookies in sync on every request.
package session

import (
	"context"
	"net/http"
	"strings"

	"farmledger/internal/auth"
	"farmledger/internal/log"
)

// Authenticator is the part of auth.Service the middleware needs.
type Authenticator interface {
	Authenticate(accessToken string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (string, auth.TokenPair, error)
}

// Middleware resolves the signed-in user from the session cookies, rotating
// them when the access token has lapsed but the refresh token is still good.
type Middleware struct {
	auth      Authenticator
	cookies   auth.CookieWriter
	loginPath string
	logger    *log.Logger
}

func New(a Authenticator, cookies auth.CookieWriter, logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Middleware{
		auth:      a,
		cookies:   cookies,
		loginPath: "/auth/login",
		logger:    logger.WithComponent(log.ComponentAuth),
	}
}

// IsPublic reports whether path is reachable without a session.
func IsPublic(path string) bool {
	switch path {
	case "/", "/healthz", "/readyz":
		return true
	}
	return strings.HasPrefix(path, "/auth/") || strings.HasPrefix(path, "/static/")
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		public := IsPublic(r.URL.Path)

		if userID, err := m.auth.Authenticate(auth.CookieValue(r, auth.AccessCookie)); err == nil {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(ctx, userID)))
			return
		}

		refresh := auth.CookieValue(r, auth.RefreshCookie)
		if refresh != "" {
			userID, pair, err := m.auth.Refresh(ctx, refresh)
			if err == nil {
				m.cookies.Set(w, r, pair)
				// Later handlers in this request see the rotated cookies too.
				replaceCookie(r, auth.AccessCookie, pair.AccessToken)
				replaceCookie(r, auth.RefreshCookie, pair.RefreshToken)
				next.ServeHTTP(w, r.WithContext(auth.WithUserID(ctx, userID)))
				return
			}
			m.logger.DebugContext(ctx, "Session refresh failed", log.FieldError, err.Error(), log.FieldPath, r.URL.Path)
		}

		if refresh != "" || auth.CookieValue(r, auth.AccessCookie) != "" {
			m.cookies.Clear(w, r)
		}

		if public {
			next.ServeHTTP(w, r)
			return
		}
		m.redirectToLogin(w, r)
	})
}

func (m *Middleware) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", m.loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, m.loginPath, http.StatusSeeOther)
}

func replaceCookie(r *http.Request, name, value string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name == name {
			continue
		}
		r.AddCookie(c)
	}
	r.AddCookie(&http.Cookie{Name: name, Value: value})
}
