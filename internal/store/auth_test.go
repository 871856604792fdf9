package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAdminAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAdmin(ctx, "ops@example.com", "bcrypt-hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}

	if _, err := s.CreateAdmin(ctx, "ops@example.com", "other-hash"); !errors.Is(err, ErrAdminAlreadyExists) {
		t.Fatalf("duplicate email should fail, got %v", err)
	}

	admin, err := s.GetAdminByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if admin.ID != id || admin.PasswordHash != "bcrypt-hash" {
		t.Fatalf("unexpected admin row: %+v", admin)
	}
	if admin.LastLoginAt.Valid {
		t.Fatalf("fresh admin has no last login")
	}

	if _, err := s.GetAdminByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrAdminNotFound) {
		t.Fatalf("expected ErrAdminNotFound, got %v", err)
	}
}

func TestAdminSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAdmin(ctx, "ops@example.com", "hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	expires := time.Now().Add(time.Hour).UTC()
	if err := s.InsertAdminSession(ctx, id, "token-hash", expires); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	admin, err := s.GetSessionAdmin(ctx, "token-hash")
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if admin.Email != "ops@example.com" {
		t.Fatalf("unexpected admin: %+v", admin)
	}

	if _, err := s.GetSessionAdmin(ctx, "unknown-hash"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := s.DeleteAdminSession(ctx, "token-hash"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.GetSessionAdmin(ctx, "token-hash"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session must not resolve, got %v", err)
	}
}

func TestExpiredSessionRejectedAndPurged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAdmin(ctx, "ops@example.com", "hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if err := s.InsertAdminSession(ctx, id, "stale", time.Now().Add(-time.Minute).UTC()); err != nil {
		t.Fatalf("insert session: %v", err)
	}

	if _, err := s.GetSessionAdmin(ctx, "stale"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session must not resolve, got %v", err)
	}
	n, err := s.DeleteExpiredAdminSessions(ctx)
	if err != nil {
		t.Fatalf("purge sessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned session, got %d", n)
	}
}

func TestTouchLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateAdmin(ctx, "ops@example.com", "hash")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if err := s.TouchLastLogin(ctx, id); err != nil {
		t.Fatalf("touch last login: %v", err)
	}
	admin, err := s.GetAdminByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if !admin.LastLoginAt.Valid {
		t.Fatalf("last login should be set")
	}
}
