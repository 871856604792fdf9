package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/RollSatrs/speechcenter-admin/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// SessionStore is the persistence surface the auth service needs.
type SessionStore interface {
	GetAdminByEmail(ctx context.Context, email string) (*store.Admin, error)
	TouchLastLogin(ctx context.Context, adminID int64) error
	InsertAdminSession(ctx context.Context, adminID int64, tokenHash string, expiresAt time.Time) error
	GetSessionAdmin(ctx context.Context, tokenHash string) (*store.Admin, error)
	DeleteAdminSession(ctx context.Context, tokenHash string) error
}

// Config carries cookie and hashing parameters.
type Config struct {
	CookieName    string
	SessionDays   int
	BcryptCost    int
	SecureCookies bool
}

// Service implements admin login, logout and session resolution. Session
// tokens are opaque random values; only their sha256 hash is persisted.
type Service struct {
	store      SessionStore
	cookieName string
	sessionTTL time.Duration
	bcryptCost int
	secure     bool
	limiter    *RateLimiter
}

// Session is a freshly issued login session. Token is the raw cookie value.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// NewService builds the auth service with defaults for unset config.
func NewService(st SessionStore, cfg Config) *Service {
	if cfg.CookieName == "" {
		cfg.CookieName = "admin_token"
	}
	if cfg.SessionDays <= 0 {
		cfg.SessionDays = 7
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:      st,
		cookieName: cfg.CookieName,
		sessionTTL: time.Duration(cfg.SessionDays) * 24 * time.Hour,
		bcryptCost: cfg.BcryptCost,
		secure:     cfg.SecureCookies,
		limiter:    NewRateLimiter(),
	}
}

func (s *Service) CookieName() string  { return s.cookieName }
func (s *Service) SecureCookies() bool { return s.secure }

// HashPassword produces a bcrypt hash for admin account creation.
func (s *Service) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Login verifies credentials and issues a session. Failed attempts count
// against the per-email+IP and per-IP rate limit buckets; a blocked caller
// gets ErrRateLimited with the remaining seconds.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := time.Now()
	emailKey := "email:" + email + "|ip:" + ip
	ipKey := "ip:" + ip

	if retry := s.limiter.BlockedFor(emailKey, now); retry > 0 {
		return nil, &RateLimitedError{RetryAfter: retry}
	}
	if retry := s.limiter.BlockedFor(ipKey, now); retry > 0 {
		return nil, &RateLimitedError{RetryAfter: retry}
	}

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAdminNotFound) {
			s.limiter.RegisterFailure(emailKey, now)
			s.limiter.RegisterFailure(ipKey, now)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		s.limiter.RegisterFailure(emailKey, now)
		s.limiter.RegisterFailure(ipKey, now)
		return nil, ErrInvalidCredentials
	}
	s.limiter.Clear(emailKey)
	s.limiter.Clear(ipKey)

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(s.sessionTTL)

	if err := s.store.TouchLastLogin(ctx, admin.ID); err != nil {
		return nil, err
	}
	if err := s.store.InsertAdminSession(ctx, admin.ID, HashToken(token), expiresAt); err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// Logout deletes the session behind the raw token. Unknown tokens are fine.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteAdminSession(ctx, HashToken(token))
}

// Resolve maps a raw cookie token to its admin, or ErrUnauthorized.
func (s *Service) Resolve(ctx context.Context, token string) (*store.Admin, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	admin, err := s.store.GetSessionAdmin(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return admin, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken derives the stored form of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
