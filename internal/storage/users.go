package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"farmledger/internal/core"
)

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	created := u.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, created.UTC().Format(timeLayout))
	if err != nil {
		return conflict("create user", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, "get user by email", `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, "get user by id", `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, op, query string, arg string) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		return core.User{}, notFound(op, err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	created := s.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, revoked, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, boolInt(s.Revoked), created.UTC().Format(timeLayout), s.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return conflict("create session", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (core.Session, error) {
	var (
		s                core.Session
		revoked          int
		replacedBy       sql.NullString
		rotated          sql.NullString
		created, expires string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, revoked, replaced_by, rotated_at, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &revoked, &replacedBy, &rotated, &created, &expires)
	if err != nil {
		return core.Session{}, notFound("get session", err)
	}
	s.Revoked = revoked != 0
	s.ReplacedBy = replacedBy.String
	if rotated.Valid {
		s.RotatedAt = parseTime(rotated.String)
	}
	s.CreatedAt = parseTime(created)
	s.ExpiresAt = parseTime(expires)
	return s, nil
}

func (r *SQLiteRepository) RevokeSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked = 1 WHERE id = ?`, id)
	return expectOne("revoke session", res, err)
}

// RotateSession revokes oldID in favour of next and records the hand-over.
// It returns core.ErrConflict when oldID was already revoked, so only one of
// several concurrent rotations wins.
func (r *SQLiteRepository) RotateSession(ctx context.Context, oldID string, next core.Session, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked = 1, replaced_by = ?, rotated_at = ? WHERE id = ? AND revoked = 0`,
		next.ID, at.UTC().Format(timeLayout), oldID)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rotate session %s: %w", oldID, core.ErrConflict)
	}

	created := next.CreatedAt
	if created.IsZero() {
		created = at
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, revoked, created_at, expires_at) VALUES (?, ?, 0, ?, ?)`,
		next.ID, next.UserID, created.UTC().Format(timeLayout), next.ExpiresAt.UTC().Format(timeLayout))
	if err != nil {
		return conflict("rotate session", err)
	}
	return tx.Commit()
}

// DeleteExpiredSessions removes sessions that expired before now or were
// revoked. Rotated sessions stay until their reuse window has passed.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE expires_at < ?
		    OR (revoked = 1 AND (rotated_at IS NULL OR rotated_at < ?))`,
		now.UTC().Format(timeLayout), now.Add(-core.SessionReuseWindow).UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
