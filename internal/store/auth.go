package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAdminNotFound      = errors.New("admin not found")
	ErrAdminAlreadyExists = errors.New("admin already exists")
	ErrSessionNotFound    = errors.New("session not found")
)

// Admin represents a staff account able to log into the dashboard.
type Admin struct {
	ID           int64        `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	LastLoginAt  sql.NullTime `json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// CreateAdmin inserts a new admin account.
func (s *Store) CreateAdmin(ctx context.Context, email, passwordHash string) (int64, error) {
	var id int64
	if s.dialect == DialectPostgres {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO admins(email, password_hash) VALUES($1, $2)
			ON CONFLICT(email) DO NOTHING
			RETURNING id;`, email, passwordHash).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAdminAlreadyExists
		}
		if err != nil {
			return 0, fmt.Errorf("create admin: %w", err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO admins(email, password_hash) VALUES($1, $2)
		ON CONFLICT(email) DO NOTHING;`, email, passwordHash)
	if err != nil {
		return 0, fmt.Errorf("create admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrAdminAlreadyExists
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create admin: %w", err)
	}
	return id, nil
}

// GetAdminByEmail looks up an admin account by (lowercased) email.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*Admin, error) {
	var a Admin
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, last_login_at, created_at
		FROM admins WHERE email=$1;`, email).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.LastLoginAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &a, nil
}

// ListAdmins returns all admin accounts ordered by id.
func (s *Store) ListAdmins(ctx context.Context) ([]Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password_hash, last_login_at, created_at
		FROM admins ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Admin
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.LastLoginAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TouchLastLogin stamps the admin's last successful login time.
func (s *Store) TouchLastLogin(ctx context.Context, adminID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE admins SET last_login_at=$1 WHERE id=$2;`, time.Now().UTC(), adminID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// InsertAdminSession stores a new session token hash with its expiry.
func (s *Store) InsertAdminSession(ctx context.Context, adminID int64, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_sessions(admin_id, token_hash, expires_at)
		VALUES($1, $2, $3);`, adminID, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert admin session: %w", err)
	}
	return nil
}

// GetSessionAdmin resolves a token hash to its admin, rejecting expired
// sessions. Returns ErrSessionNotFound when no live session matches.
func (s *Store) GetSessionAdmin(ctx context.Context, tokenHash string) (*Admin, error) {
	var a Admin
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email, a.password_hash, a.last_login_at, a.created_at
		FROM admin_sessions s
		INNER JOIN admins a ON a.id = s.admin_id
		WHERE s.token_hash=$1 AND s.expires_at > $2;`,
		tokenHash, time.Now().UTC()).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.LastLoginAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session admin: %w", err)
	}
	return &a, nil
}

// DeleteAdminSession removes a session by its token hash. Missing sessions
// are not an error; logout is idempotent.
func (s *Store) DeleteAdminSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM admin_sessions WHERE token_hash=$1;`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete admin session: %w", err)
	}
	return nil
}

// DeleteExpiredAdminSessions prunes sessions whose expiry has passed.
func (s *Store) DeleteExpiredAdminSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM admin_sessions WHERE expires_at <= $1;`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired admin sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
