package http

import (
	"net/http"

	"farmledger/internal/auth"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserID(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "landing.html", s.newView(r, core.Profile{}, "Farm accounting", ""))
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserID(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", s.newView(r, core.Profile{}, "Sign in", ""))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, core.Profile{}, "Sign in", "")
	email := formValue(r.PostForm, "email")
	v.Form.Set("email", email)

	u, pair, err := s.svc.Auth.Login(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		log.NewStructuredLogger(s.logger).LogAuthEvent(r.Context(), "login", "", err)
		s.fail(w, r, "login.html", v, err)
		return
	}
	log.NewStructuredLogger(s.logger).LogAuthEvent(r.Context(), "login", u.ID, nil)
	s.cookies.Set(w, r, pair)
	NewHTMXResponse().Redirect("/dashboard").Write(w, r)
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup.html", s.newView(r, core.Profile{}, "Create account", ""))
}

// handleSignup creates the account, then the farm profile under the name
// given on the form.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	v := s.newView(r, core.Profile{}, "Create account", "")
	email := formValue(r.PostForm, "email")
	farmName := formValue(r.PostForm, "farm_name")
	v.Form.Set("email", email)
	v.Form.Set("farm_name", farmName)

	u, pair, err := s.svc.Auth.SignUp(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		log.NewStructuredLogger(s.logger).LogAuthEvent(r.Context(), "signup", "", err)
		s.fail(w, r, "signup.html", v, err)
		return
	}
	log.NewStructuredLogger(s.logger).LogAuthEvent(r.Context(), "signup", u.ID, nil)
	s.cookies.Set(w, r, pair)

	// The account exists either way; a failed profile insert is retried by
	// the bootstrap on the next page load.
	if _, err := s.svc.Farms.CreateInitialProfile(r.Context(), u.ID, farmName); err != nil {
		s.logger.WarnContext(r.Context(), "Initial profile not created", log.FieldUserID, u.ID, log.FieldError, err)
	}
	NewHTMXResponse().Redirect("/dashboard").Write(w, r)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	if err := s.svc.Auth.Logout(r.Context(), auth.CookieValue(r, auth.RefreshCookie)); err != nil {
		s.logger.WarnContext(r.Context(), "Logout failed", log.FieldUserID, userID, log.FieldError, err)
	}
	s.cookies.Clear(w, r)
	NewHTMXResponse().Redirect("/auth/login").Write(w, r)
}
