package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/teetime/backend/internal/auth"
)

type authenticatorStub struct {
	users map[string]string
	err   error
}

func (a authenticatorStub) Authenticate(_ context.Context, token string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	userID, ok := a.users[token]
	if !ok {
		return "", auth.ErrSessionNotFound
	}
	return userID, nil
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, auth.UserIDFromContext(r.Context()))
	})
}

func TestRequireUser(t *testing.T) {
	authn := authenticatorStub{users: map[string]string{"good": "user-1"}}

	tests := []struct {
		name   string
		authn  Authenticator
		header string
		status int
		body   string
	}{
		{name: "valid token", authn: authn, header: "Bearer good", status: http.StatusOK, body: "user-1"},
		{name: "lowercase scheme", authn: authn, header: "bearer good", status: http.StatusOK, body: "user-1"},
		{name: "missing header", authn: authn, status: http.StatusUnauthorized},
		{name: "wrong scheme", authn: authn, header: "Basic good", status: http.StatusUnauthorized},
		{name: "unknown token", authn: authn, header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "expired token", authn: authenticatorStub{err: auth.ErrAccessTokenExpired}, header: "Bearer good", status: http.StatusUnauthorized},
		{name: "store down", authn: authenticatorStub{err: errors.New("connection reset")}, header: "Bearer good", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireUser(tt.authn)(echoUser()).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d got %d", tt.status, rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("expected body %q got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestKeyedRateLimiterRefills(t *testing.T) {
	limiter := NewKeyedRateLimiter(1, time.Minute, 2, time.Hour).(*keyedRateLimiter)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("alice") || !limiter.Allow("alice") {
		t.Fatal("expected burst of two to be allowed")
	}
	if limiter.Allow("alice") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("bob") {
		t.Fatal("expected other keys to have their own budget")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("alice") {
		t.Fatal("expected a token to refill after the window")
	}
}

func TestKeyedRateLimiterExpiresIdleKeys(t *testing.T) {
	limiter := NewKeyedRateLimiter(1, time.Hour, 1, time.Minute).(*keyedRateLimiter)
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	limiter.Allow("alice")
	now = now.Add(2 * time.Minute)
	limiter.Allow("bob")

	limiter.mu.Lock()
	_, ok := limiter.visitors["alice"]
	limiter.mu.Unlock()
	if ok {
		t.Fatal("expected idle visitor to be collected")
	}
}

type recordingLimiter struct {
	keys []string
}

func (l *recordingLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return true
}

func TestLimitKeysByUserThenIP(t *testing.T) {
	limiter := &recordingLimiter{}
	handler := Limit(limiter, "send")(echoUser())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.2, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"send:203.0.113.7", "send:user-1", "send:198.51.100.2"}
	if len(limiter.keys) != len(want) {
		t.Fatalf("expected %d keys got %v", len(want), limiter.keys)
	}
	for i := range want {
		if limiter.keys[i] != want[i] {
			t.Fatalf("expected key %q got %q", want[i], limiter.keys[i])
		}
	}
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	const incoming = "7c2f5b9e-9d1f-4a43-8a55-2f4e0f6b8b11"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, incoming)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != incoming {
		t.Fatalf("expected request id %q got %q", incoming, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "not a uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got == "" || got == "not a uuid" {
		t.Fatalf("expected a generated request id, got %q", got)
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("bad lie")
	})

	rec := httptest.NewRecorder()
	RequestLogger(logger)(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, err := rec.Write([]byte("fore")); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec.WriteHeader(http.StatusTeapot)

	if rec.code() != http.StatusOK || rec.bytes != 4 {
		t.Fatalf("expected 200 and 4 bytes got %d and %d", rec.code(), rec.bytes)
	}
}
