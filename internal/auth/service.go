// Package auth handles password accounts and the access/refresh token pair
// that backs browser sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"farmledger/internal/backend"
	"farmledger/internal/core"
	"farmledger/internal/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrSessionEnded       = errors.New("session expired, please sign in again")
)

type Store interface {
	backend.UserStore
	backend.SessionStore
}

// Service signs users up and in, and rotates their sessions.
type Service struct {
	store  Store
	tokens *Issuer
	logger *log.Logger
	now    func() time.Time
}

func NewService(store Store, tokens *Issuer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}
}

// SignUp creates the account and opens its first session.
func (s *Service) SignUp(ctx context.Context, email, password string) (core.User, TokenPair, error) {
	u := core.User{ID: uuid.NewString(), Email: core.NormalizeEmail(email)}
	if err := u.Validate(); err != nil {
		return core.User{}, TokenPair{}, err
	}
	if err := core.ValidatePassword(password); err != nil {
		return core.User{}, TokenPair{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return core.User{}, TokenPair{}, err
	}
	u.PasswordHash = hash
	u.CreatedAt = s.now().UTC()

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.User{}, TokenPair{}, ErrEmailTaken
		}
		return core.User{}, TokenPair{}, fmt.Errorf("sign up: %w", err)
	}

	pair, err := s.openSession(ctx, u.ID)
	if err != nil {
		return core.User{}, TokenPair{}, err
	}
	s.logger.InfoContext(ctx, "User signed up", log.FieldUserID, u.ID)
	return u, pair, nil
}

// Login verifies the password and opens a new session. Unknown emails and wrong
// passwords produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (core.User, TokenPair, error) {
	u, err := s.store.GetUserByEmail(ctx, core.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return core.User{}, TokenPair{}, fmt.Errorf("login: %w", err)
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Login rejected", log.FieldUserID, u.ID)
		return core.User{}, TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.openSession(ctx, u.ID)
	if err != nil {
		return core.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Authenticate returns the user id carried by a valid access token.
func (s *Service) Authenticate(accessToken string) (string, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh exchanges a refresh token for a new pair and revokes the old
// session. A token whose session was rotated within core.SessionReuseWindow
// gets a pair for the successor session instead of an error.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, TokenPair, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", TokenPair{}, err
	}

	sess, err := s.loadSession(ctx, claims.ID)
	if err != nil {
		return "", TokenPair{}, err
	}
	now := s.now()
	if sess.UserID != claims.Subject || !sess.ExpiresAt.After(now) {
		return "", TokenPair{}, ErrSessionEnded
	}
	if sess.Revoked {
		return s.reuseRotated(ctx, sess, now)
	}

	pair, err := s.tokens.Issue(sess.UserID)
	if err != nil {
		return "", TokenPair{}, err
	}
	next := core.Session{ID: pair.SessionID, UserID: sess.UserID, CreatedAt: now.UTC(), ExpiresAt: pair.RefreshExpiresAt}
	err = s.store.RotateSession(ctx, sess.ID, next, now.UTC())
	if errors.Is(err, core.ErrConflict) {
		// Another request rotated it first.
		if sess, err = s.loadSession(ctx, claims.ID); err != nil {
			return "", TokenPair{}, err
		}
		return s.reuseRotated(ctx, sess, now)
	}
	if err != nil {
		return "", TokenPair{}, fmt.Errorf("rotate session: %w", err)
	}
	s.logger.DebugContext(ctx, "Session rotated", log.FieldUserID, sess.UserID)
	return sess.UserID, pair, nil
}

// reuseRotated signs a pair for the session that replaced sess, if sess was
// rotated recently enough.
func (s *Service) reuseRotated(ctx context.Context, sess core.Session, now time.Time) (string, TokenPair, error) {
	if sess.ReplacedBy == "" || now.Sub(sess.RotatedAt) > core.SessionReuseWindow {
		return "", TokenPair{}, ErrSessionEnded
	}
	successor, err := s.loadSession(ctx, sess.ReplacedBy)
	if err != nil {
		return "", TokenPair{}, err
	}
	if successor.Revoked || successor.UserID != sess.UserID || !successor.ExpiresAt.After(now) {
		return "", TokenPair{}, ErrSessionEnded
	}
	pair, err := s.tokens.IssueFor(successor.UserID, successor.ID, successor.ExpiresAt)
	if err != nil {
		return "", TokenPair{}, err
	}
	s.logger.DebugContext(ctx, "Rotated refresh token reused within grace window", log.FieldUserID, sess.UserID)
	return successor.UserID, pair, nil
}

func (s *Service) loadSession(ctx context.Context, id string) (core.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Session{}, ErrSessionEnded
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("refresh: %w", err)
	}
	return sess, nil
}

// Logout revokes the session behind refreshToken. An unusable token is not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.store.RevokeSession(ctx, claims.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.InfoContext(ctx, "User logged out", log.FieldUserID, claims.Subject)
	return nil
}

// PurgeSessions deletes expired and revoked sessions.
func (s *Service) PurgeSessions(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Purged stale sessions", "count", n)
	}
	return n, nil
}

// PurgeEvery runs PurgeSessions on each tick until ctx is done.
func (s *Service) PurgeEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeSessions(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "Session purge failed", log.FieldError, err)
			}
		}
	}
}

func (s *Service) openSession(ctx context.Context, userID string) (TokenPair, error) {
	pair, err := s.tokens.Issue(userID)
	if err != nil {
		return TokenPair{}, err
	}
	err = s.store.CreateSession(ctx, core.Session{
		ID:        pair.SessionID,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
		ExpiresAt: pair.RefreshExpiresAt,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}
	return pair, nil
}
