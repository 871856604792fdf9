package auth

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

func newTestAuth(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	store.ResetRuntimeEnsured()
	st, err := store.Open(store.Config{Type: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	svc := NewService(st, Config{BcryptCost: bcrypt.MinCost})
	return svc, st
}

func seedAdmin(t *testing.T, svc *Service, st *store.Store, email, password string) {
	t.Helper()
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := st.CreateAdmin(context.Background(), email, hash); err != nil {
		t.Fatalf("create admin: %v", err)
	}
}

func TestLoginSuccessIssuesSession(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()
	seedAdmin(t, svc, st, "ops@example.com", "secret")

	session, err := svc.Login(ctx, "OPS@example.com ", "secret", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Token == "" {
		t.Fatalf("expected session token")
	}

	admin, err := svc.Resolve(ctx, session.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if admin.Email != "ops@example.com" {
		t.Fatalf("unexpected admin: %+v", admin)
	}
	if !admin.LastLoginAt.Valid {
		t.Fatalf("login must bump last_login_at")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, st := newTestAuth(t)
	seedAdmin(t, svc, st, "ops@example.com", "secret")

	_, err := svc.Login(context.Background(), "ops@example.com", "wrong", "10.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestAuth(t)
	_, err := svc.Login(context.Background(), "nobody@example.com", "x", "10.0.0.1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()
	seedAdmin(t, svc, st, "ops@example.com", "secret")

	for i := 0; i < rateLimitMaxAttempts; i++ {
		if _, err := svc.Login(ctx, "ops@example.com", "wrong", "10.0.0.1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	_, err := svc.Login(ctx, "ops@example.com", "secret", "10.0.0.1")
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter <= 0 {
		t.Fatalf("retry-after must be positive: %d", limited.RetryAfter)
	}

	// Another IP with the same email is still allowed.
	if _, err := svc.Login(ctx, "ops@example.com", "secret", "10.0.0.2"); err != nil {
		t.Fatalf("different ip should pass: %v", err)
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	svc, st := newTestAuth(t)
	ctx := context.Background()
	seedAdmin(t, svc, st, "ops@example.com", "secret")

	session, err := svc.Login(ctx, "ops@example.com", "secret", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, session.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("logged-out token must not resolve, got %v", err)
	}
}

func TestResolveEmptyToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	if _, err := svc.Resolve(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHashTokenStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("hash must be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatalf("different tokens must hash differently")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatalf("sha256 hex must be 64 chars")
	}
}
