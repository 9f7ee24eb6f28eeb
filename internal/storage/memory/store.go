// Package memory is a process-local repository used by tests and the
// DATA_BACKEND=memory development mode. It mirrors the SQLite repository's
// ordering, farm scoping and profit views.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"farmledger/internal/core"
)

type entry[T any] struct {
	val T
	seq int64
}

type ledgerMeta struct {
	version int64
	status  core.SyncStatus
}

type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	users     map[string]entry[core.User]
	sessions  map[string]core.Session
	profiles  map[string]entry[core.Profile]
	herds     map[string]entry[core.Herd]
	animals   map[string]entry[core.Animal]
	revenue   map[string]entry[core.Revenue]
	expenses  map[string]entry[core.Expense]
	subsidies map[string]entry[core.Subsidy]
	meta      map[core.LedgerKind]map[string]*ledgerMeta
}

func New() *Store {
	return &Store{
		now:       time.Now,
		users:     map[string]entry[core.User]{},
		sessions:  map[string]core.Session{},
		profiles:  map[string]entry[core.Profile]{},
		herds:     map[string]entry[core.Herd]{},
		animals:   map[string]entry[core.Animal]{},
		revenue:   map[string]entry[core.Revenue]{},
		expenses:  map[string]entry[core.Expense]{},
		subsidies: map[string]entry[core.Subsidy]{},
		meta: map[core.LedgerKind]map[string]*ledgerMeta{
			core.KindRevenue: {},
			core.KindExpense: {},
		},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// next must be called with the write lock held.
func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, core.ErrNotFound)
}

func conflict(op string) error {
	return fmt.Errorf("%s: %w", op, core.ErrConflict)
}

// sorted returns the values of m that pass keep, ordered by less.
func sorted[T any](m map[string]entry[T], keep func(T) bool, less func(a, b entry[T]) bool) []T {
	var rows []entry[T]
	for _, e := range m {
		if keep(e.val) {
			rows = append(rows, e)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	out := make([]T, 0, len(rows))
	for _, e := range rows {
		out = append(out, e.val)
	}
	return out
}

func sortBySeq[T any](rows []T, seq func(T) int64) {
	sort.Slice(rows, func(i, j int) bool { return seq(rows[i]) < seq(rows[j]) })
}

func limited[T any](in []T, limit int) []T {
	if limit >= 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// Users and sessions

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return conflict("create user")
	}
	for _, e := range s.users {
		if e.val.Email == u.Email {
			return conflict("create user")
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = entry[core.User]{val: u, seq: s.next()}
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.users {
		if e.val.Email == email {
			return e.val, nil
		}
	}
	return core.User{}, notFound("get user by email")
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[id]
	if !ok {
		return core.User{}, notFound("get user by id")
	}
	return e.val, nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return conflict("create session")
	}
	if _, ok := s.users[sess.UserID]; !ok {
		return fmt.Errorf("create session: unknown user %q", sess.UserID)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now().UTC()
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.Session{}, notFound("get session")
	}
	return sess, nil
}

func (s *Store) RevokeSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return notFound("revoke session")
	}
	sess.Revoked = true
	s.sessions[id] = sess
	return nil
}

func (s *Store) RotateSession(_ context.Context, oldID string, next core.Session, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sessions[oldID]
	if !ok {
		return notFound("rotate session")
	}
	if old.Revoked {
		return fmt.Errorf("rotate session %s: %w", oldID, core.ErrConflict)
	}
	if _, ok := s.sessions[next.ID]; ok {
		return conflict("rotate session")
	}
	old.Revoked = true
	old.ReplacedBy = next.ID
	old.RotatedAt = at
	s.sessions[oldID] = old

	if next.CreatedAt.IsZero() {
		next.CreatedAt = at
	}
	next.Revoked = false
	s.sessions[next.ID] = next
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-core.SessionReuseWindow)
	var n int64
	for id, sess := range s.sessions {
		rotating := !sess.RotatedAt.IsZero() && !sess.RotatedAt.Before(cutoff)
		if (sess.Revoked && !rotating) || sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Profiles

func (s *Store) GetProfileByUserID(_ context.Context, userID string) (core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.profiles {
		if e.val.UserID == userID {
			return e.val, nil
		}
	}
	return core.Profile{}, notFound("get profile")
}

func (s *Store) CreateProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return conflict("create profile")
	}
	for _, e := range s.profiles {
		if e.val.UserID == p.UserID {
			return conflict("create profile")
		}
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = entry[core.Profile]{val: p, seq: s.next()}
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.profiles[p.ID]
	if !ok || e.val.UserID != p.UserID {
		return notFound("update profile")
	}
	e.val.Role = p.Role
	e.val.FarmName = p.FarmName
	e.val.UpdatedAt = s.now().UTC()
	s.profiles[p.ID] = e
	return nil
}
