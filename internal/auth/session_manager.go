package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teetime/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the token is unknown, revoked, or of the wrong kind.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrAccessTokenExpired indicates the bearer token is past its expiry.
	ErrAccessTokenExpired = errors.New("access token expired")
)

// TokenKind distinguishes bearer tokens from refresh tokens in the session store.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// tokenBytes is the entropy behind every opaque token.
const tokenBytes = 32

// SessionStore persists issued tokens so they survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Session is one token issued to a user.
type Session struct {
	Token     string
	Kind      TokenKind
	UserID    string
	ExpiresAt time.Time
}

// Manager issues, verifies and rotates opaque session tokens. Each login
// yields a short-lived access token and a longer-lived refresh token; a
// refresh token is single use.
type Manager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration

	store SessionStore
	now   func() time.Time
}

func NewManager(accessTTL, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Manager{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a fresh access and refresh token pair for userID.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("auth: user id must be provided")
	}

	now := m.now()
	access, err := m.mint(ctx, userID, TokenAccess, now.Add(m.accessTTL))
	if err != nil {
		return models.SessionTokens{}, err
	}
	refresh, err := m.mint(ctx, userID, TokenRefresh, now.Add(m.refreshTTL))
	if err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Authenticate resolves a bearer token to the user it was issued to.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (string, error) {
	session, err := m.verify(ctx, accessToken, TokenAccess, ErrAccessTokenExpired)
	if err != nil {
		return "", err
	}
	return session.UserID, nil
}

// Refresh consumes a refresh token and issues a new pair for the same user.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	session, err := m.verify(ctx, refreshToken, TokenRefresh, ErrRefreshTokenExpired)
	if err != nil {
		return models.SessionTokens{}, err
	}

	// A concurrent refresh that already consumed the token loses here.
	if err := m.store.Delete(ctx, refreshToken); err != nil {
		return models.SessionTokens{}, err
	}
	return m.Issue(ctx, session.UserID)
}

// Revoke forgets token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}
	_ = m.store.Delete(ctx, token)
}

// PurgeExpired drops every token already past its expiry.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// Sweep calls PurgeExpired every interval until ctx is cancelled.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.PurgeExpired(ctx)
			switch {
			case err != nil && ctx.Err() == nil:
				logger.Warn("purge expired sessions", "error", err)
			case removed > 0:
				logger.Debug("purged expired sessions", "count", removed)
			}
		}
	}
}

func (m *Manager) mint(ctx context.Context, userID string, kind TokenKind, expiresAt time.Time) (Session, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Session{}, fmt.Errorf("auth: generate %s token: %w", kind, err)
	}

	session := Session{
		Token:     base64.RawURLEncoding.EncodeToString(buf),
		Kind:      kind,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	if err := m.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// verify loads token and checks it is a live token of the wanted kind.
// Expired tokens are deleted on sight.
func (m *Manager) verify(ctx context.Context, token string, kind TokenKind, expired error) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if session.Kind != kind {
		return Session{}, ErrSessionNotFound
	}
	if m.now().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, token)
		return Session{}, expired
	}
	return session, nil
}
