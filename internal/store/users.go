package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Roles understood by the access layer.
const (
	RoleClient    = "client"
	RoleTherapist = "therapist"
	RoleAdmin     = "admin"
)

// VerificationTTL is how long an email verification link stays valid.
const VerificationTTL = 24 * time.Hour

// User is an account row.
type User struct {
	ID                 int64
	Email              string
	PasswordHash       string
	Role               string
	Active             bool
	Verified           bool
	VerificationToken  string
	VerificationSentAt *time.Time
	FailedLogins       int
	Locked             bool
	LastLogin          *time.Time
	CreatedAt          time.Time
}

const userColumns = `id, email, password_hash, role, active, verified,
	COALESCE(verification_token, ''), verification_sent_at,
	failed_logins, locked, last_login, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var sentAt, lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&u.Verified, &u.VerificationToken, &sentAt, &u.FailedLogins, &u.Locked,
		&lastLogin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	if sentAt.Valid {
		t := sentAt.Time
		u.VerificationSentAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// CreateUser inserts a new unverified account and returns it.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, role, verificationToken string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ts := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, verification_token, verification_sent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		email, passwordHash, role, verificationToken, ts, ts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return s.UserByID(ctx, id)
}

// UserByID looks a user up by primary key.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UserByEmail looks a user up by email, case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// VerifyUser marks the account holding token as verified and clears
// the token. Tokens older than VerificationTTL are rejected with
// ErrTokenExpired. Returns the verified user.
func (s *Store) VerifyUser(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = ?`, token)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u.VerificationSentAt != nil && time.Since(*u.VerificationSentAt) > VerificationTTL {
		return nil, ErrTokenExpired
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET verified = 1, verification_token = NULL, verification_sent_at = NULL WHERE id = ?`, u.ID)
	if err != nil {
		return nil, fmt.Errorf("store: verify user: %w", err)
	}
	return s.UserByID(ctx, u.ID)
}

// RecordLoginSuccess resets the failure counter and stamps last_login.
func (s *Store) RecordLoginSuccess(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET failed_logins = 0, locked = 0, last_login = ? WHERE id = ?`,
		now(), id)
	if err != nil {
		return fmt.Errorf("store: record login: %w", err)
	}
	return nil
}

// RecordLoginFailure increments the failure counter and locks the
// account once it reaches limit. Returns the updated failure count and
// whether the account is now locked.
func (s *Store) RecordLoginFailure(ctx context.Context, id int64, limit int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("store: record failure: %w", err)
	}
	defer rollback(tx)

	var failures int
	if err := tx.QueryRowContext(ctx,
		`SELECT failed_logins FROM users WHERE id = ?`, id).Scan(&failures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, fmt.Errorf("store: record failure: %w", err)
	}

	failures++
	locked := failures >= limit
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET failed_logins = ?, locked = ? WHERE id = ?`,
		failures, locked, id); err != nil {
		return 0, false, fmt.Errorf("store: record failure: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("store: record failure: %w", err)
	}
	return failures, locked, nil
}

// SetActive toggles whether the account may log in.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("store: set active: %w", err)
	}
	return requireRow(res)
}

// UpdateUser changes an account's email and role.
func (s *Store) UpdateUser(ctx context.Context, id int64, email, role string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, role = ? WHERE id = ?`,
		strings.ToLower(strings.TrimSpace(email)), role, id)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("store: update user: %w", err)
	}
	return requireRow(res)
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("store: update password: %w", err)
	}
	return requireRow(res)
}

// DeleteUser removes the account and, via ON DELETE CASCADE, its turns.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	return requireRow(res)
}

// ListUsers returns all accounts ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
