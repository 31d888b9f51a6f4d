package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/teetime/backend/internal/auth"
	"github.com/teetime/backend/internal/middleware"
	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/social"
)

type apiFixture struct {
	mux    *http.ServeMux
	tokens map[string]string
}

func newAPIFixture(t *testing.T, limiter middleware.RateLimiter, userIDs ...string) *apiFixture {
	t.Helper()

	users := newInMemoryUserStore()
	manager := newTestManager()
	store := social.NewMemoryStore()
	resolver := social.NewResolver(store, social.NewMemoryCache(), 0)
	coordinator := social.NewCoordinator(social.NewMutator(store, resolver, nil, nil), resolver, store)

	f := &apiFixture{mux: http.NewServeMux(), tokens: make(map[string]string)}
	for _, id := range userIDs {
		if err := users.Create(context.Background(), models.User{ID: id, Email: id + "@example.com", Handle: id}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
		tokens, err := manager.Issue(context.Background(), id)
		if err != nil {
			t.Fatalf("issue tokens for %s: %v", id, err)
		}
		f.tokens[id] = tokens.AccessToken
	}

	RegisterRoutes(f.mux, Dependencies{
		Users:       users,
		Sessions:    manager,
		Connections: coordinator,
		SendLimiter: limiter,
	})
	return f
}

func (f *apiFixture) do(t *testing.T, as, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[as])
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) social.Result {
	t.Helper()
	var res social.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return res
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var res errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return res
}

func (f *apiFixture) status(t *testing.T, viewer, target string) models.RelationshipStatus {
	t.Helper()
	rec := f.do(t, viewer, http.MethodGet, "/api/v1/connections/"+target+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %s->%s: expected 200 got %d", viewer, target, rec.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return resp.Status
}

func TestConnectionRoutesRequireAuthentication(t *testing.T) {
	f := newAPIFixture(t, nil, "alice", "bob")

	rec := f.do(t, "", http.MethodPost, "/api/v1/connections/requests", sendRequestBody{TargetID: "bob"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestConnectionFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t, nil, "alice", "bob")

	rec := f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests", sendRequestBody{TargetID: "bob"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}
	sent := decodeResult(t, rec)
	if sent.Status != models.StatusSent || sent.Outcome != social.OutcomeCreated || sent.Request == nil {
		t.Fatalf("unexpected send result: %+v", sent)
	}

	rec = f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests", sendRequestBody{TargetID: "bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected repeated send to return 200 got %d", rec.Code)
	}
	if again := decodeResult(t, rec); again.Outcome != social.OutcomeAlreadyPending {
		t.Fatalf("expected already_pending, got %s", again.Outcome)
	}

	if got := f.status(t, "bob", "alice"); got != models.StatusReceived {
		t.Fatalf("expected bob to see received, got %s", got)
	}

	rec = f.do(t, "bob", http.MethodGet, "/api/v1/connections/requests?direction=incoming", nil)
	var incoming requestsResponse
	if err := json.NewDecoder(rec.Body).Decode(&incoming); err != nil {
		t.Fatalf("decode requests: %v", err)
	}
	if len(incoming.Requests) != 1 || incoming.Requests[0].ID != sent.Request.ID {
		t.Fatalf("expected one incoming request, got %+v", incoming)
	}

	rec = f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests/"+sent.Request.ID+"/accept", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected sender accept to be forbidden, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Reason != social.ReasonNotRecipient {
		t.Fatalf("expected reason %s got %s", social.ReasonNotRecipient, body.Reason)
	}

	rec = f.do(t, "bob", http.MethodPost, "/api/v1/connections/requests/"+sent.Request.ID+"/accept", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected accept to succeed, got %d", rec.Code)
	}
	if accepted := decodeResult(t, rec); accepted.Status != models.StatusFriends {
		t.Fatalf("expected friends after accept, got %s", accepted.Status)
	}

	rec = f.do(t, "bob", http.MethodPost, "/api/v1/connections/requests/"+sent.Request.ID+"/accept", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected second accept to conflict, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Reason != social.ReasonStaleRequest {
		t.Fatalf("expected reason %s got %s", social.ReasonStaleRequest, body.Reason)
	}

	rec = f.do(t, "alice", http.MethodGet, "/api/v1/connections", nil)
	var friends friendsResponse
	if err := json.NewDecoder(rec.Body).Decode(&friends); err != nil {
		t.Fatalf("decode friends: %v", err)
	}
	if len(friends.Friends) != 1 || friends.Friends[0].UserID != "bob" || friends.Friends[0].Handle != "bob" {
		t.Fatalf("expected bob in alice's friend list, got %+v", friends)
	}

	rec = f.do(t, "bob", http.MethodDelete, "/api/v1/connections/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected remove to succeed, got %d", rec.Code)
	}
	if removed := decodeResult(t, rec); removed.Outcome != social.OutcomeRemoved || removed.Status != models.StatusNone {
		t.Fatalf("unexpected remove result: %+v", removed)
	}
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		if got := f.status(t, pair[0], pair[1]); got != models.StatusNone {
			t.Fatalf("expected none for %s->%s after remove, got %s", pair[0], pair[1], got)
		}
	}
}

func TestConnectionRejectOverHTTP(t *testing.T) {
	f := newAPIFixture(t, nil, "alice", "bob")

	sent := decodeResult(t, f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests", sendRequestBody{TargetID: "bob"}))

	rec := f.do(t, "bob", http.MethodPost, "/api/v1/connections/requests/"+sent.Request.ID+"/reject", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reject to succeed, got %d", rec.Code)
	}
	if got := f.status(t, "alice", "bob"); got != models.StatusNone {
		t.Fatalf("expected none after reject, got %s", got)
	}

	rec = f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests", sendRequestBody{TargetID: "bob"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected resend after reject to create, got %d", rec.Code)
	}
}

func TestConnectionSendValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		reason string
	}{
		{name: "self", body: sendRequestBody{TargetID: "alice"}, status: http.StatusBadRequest, reason: social.ReasonSelfRequest},
		{name: "unknown target", body: sendRequestBody{TargetID: "ghost"}, status: http.StatusNotFound, reason: social.ReasonNotFound},
		{name: "missing target", body: sendRequestBody{}, status: http.StatusBadRequest, reason: "invalid_body"},
		{name: "malformed body", body: "not-an-object", status: http.StatusBadRequest, reason: "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil, "alice", "bob")

			rec := f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d got %d", tt.status, rec.Code)
			}
			if body := decodeError(t, rec); body.Reason != tt.reason {
				t.Fatalf("expected reason %s got %s", tt.reason, body.Reason)
			}
		})
	}
}

func TestConnectionRequestsRejectsUnknownDirection(t *testing.T) {
	f := newAPIFixture(t, nil, "alice")

	rec := f.do(t, "alice", http.MethodGet, "/api/v1/connections/requests?direction=sideways", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func TestConnectionSendIsRateLimited(t *testing.T) {
	f := newAPIFixture(t, denyLimiter{}, "alice", "bob")

	rec := f.do(t, "alice", http.MethodPost, "/api/v1/connections/requests", sendRequestBody{TargetID: "bob"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}

	// Reads are not limited.
	if got := f.status(t, "alice", "bob"); got != models.StatusNone {
		t.Fatalf("expected none, got %s", got)
	}
}

type failingConnections struct {
	ConnectionService
	err error
}

func (f failingConnections) SendRequest(context.Context, string, string) (social.Result, error) {
	return social.Result{}, f.err
}

func TestConnectionErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{err: social.ErrSelfReference, status: http.StatusBadRequest, reason: social.ReasonSelfRequest},
		{err: social.ErrNotRecipient, status: http.StatusForbidden, reason: social.ReasonNotRecipient},
		{err: social.ErrStaleState, status: http.StatusConflict, reason: social.ReasonStaleRequest},
		{err: social.ErrNotFound, status: http.StatusNotFound, reason: social.ReasonNotFound},
		{err: social.ErrConflict, status: http.StatusConflict, reason: social.ReasonConflict},
		{err: fmt.Errorf("%w: %w", social.ErrStoreUnavailable, errors.New("dial tcp: refused")), status: http.StatusServiceUnavailable, reason: social.ReasonStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			handler := ConnectionHandler{Connections: failingConnections{err: &social.MutationError{Op: social.OpSend, Err: tt.err}}}

			raw, _ := json.Marshal(sendRequestBody{TargetID: "bob"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/requests", bytes.NewReader(raw))
			req = req.WithContext(auth.WithUserID(req.Context(), "alice"))
			rec := httptest.NewRecorder()

			handler.Send(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d got %d", tt.status, rec.Code)
			}
			body := decodeError(t, rec)
			if body.Reason != tt.reason {
				t.Fatalf("expected reason %s got %s", tt.reason, body.Reason)
			}
			if tt.reason == social.ReasonStoreUnavailable && body.Error != "connection store unavailable" {
				t.Fatalf("expected store details to be hidden, got %q", body.Error)
			}
		})
	}
}
