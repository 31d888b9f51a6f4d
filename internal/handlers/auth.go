package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teetime/backend/internal/auth"
	"github.com/teetime/backend/internal/logging"
	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/repositories"
)

const minPasswordLength = 8

// AuthHandler implements account and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	NowFunc  func() time.Time
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	UserID string               `json:"userId,omitempty"`
	Tokens models.SessionTokens `json:"tokens"`
}

// validate normalises the request in place and returns a client-facing
// message for the first problem found.
func (req *signUpRequest) validate() string {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Handle = strings.TrimSpace(req.Handle)

	switch {
	case req.Email == "" || req.Password == "":
		return "email and password are required"
	case !validEmail(req.Email):
		return "invalid email address"
	case !validHandle(req.Handle):
		return "handle must be 3-32 letters, digits, '.', '_' or '-'"
	case len(req.Password) < minPasswordLength:
		return "password must be at least 8 characters"
	}
	return ""
}

// Login handles POST /api/v1/auth/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "email and password are required", Reason: "invalid_body"})
		return
	}

	logger := logging.FromContext(ctx).With("email", email)
	user, err := h.Users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		logger.Warn("login for unknown account")
		h.rejectCredentials(w, r)
		return
	case err != nil:
		logger.Error("login user lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "account store unavailable", Reason: "store_unavailable"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		h.rejectCredentials(w, r)
		return
	}

	h.issue(w, r, user.ID, http.StatusOK)
}

// SignUp handles POST /api/v1/auth/signup.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ready(w, r) {
		return
	}

	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: msg, Reason: "invalid_body"})
		return
	}

	logger := logging.FromContext(ctx).With("email", req.Email, "handle", req.Handle)

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to secure password", Reason: "internal"})
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Handle:    req.Handle,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The store's unique email constraint decides races between signups.
	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("signup for existing account")
			respondJSON(ctx, w, http.StatusConflict, errorResponse{Error: "account already exists", Reason: "account_exists"})
			return
		}
		logger.Error("create user", "error", err)
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "account store unavailable", Reason: "store_unavailable"})
		return
	}

	logger.Info("account created", "userId", user.ID)
	h.issue(w, r, user.ID, http.StatusCreated)
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token is consumed either way.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Sessions == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "session service unavailable", Reason: "internal"})
		return
	}

	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "refresh token is required", Reason: "invalid_body"})
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, token)
	switch {
	case errors.Is(err, auth.ErrRefreshTokenExpired), errors.Is(err, auth.ErrSessionNotFound):
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "unable to refresh session", Reason: "unauthenticated"})
		return
	case err != nil:
		logging.FromContext(ctx).Error("refresh session", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "unable to refresh session", Reason: "internal"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout revokes the bearer token and, when the body carries one, the paired
// refresh token. It succeeds even when neither token is known.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		respondJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Error: "session service unavailable", Reason: "internal"})
		return
	}

	ctx := r.Context()
	if _, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok {
		h.Sessions.Revoke(ctx, strings.TrimSpace(token))
	}

	if r.ContentLength != 0 {
		var req refreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken))
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h AuthHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Users != nil && h.Sessions != nil {
		return true
	}
	logging.FromContext(r.Context()).Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
	respondJSON(r.Context(), w, http.StatusInternalServerError, errorResponse{Error: "authentication services unavailable", Reason: "internal"})
	return false
}

func (h AuthHandler) rejectCredentials(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials", Reason: "invalid_credentials"})
}

func (h AuthHandler) issue(w http.ResponseWriter, r *http.Request, userID string, status int) {
	ctx := r.Context()
	tokens, err := h.Sessions.Issue(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("issue session", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to create session", Reason: "internal"})
		return
	}
	respondJSON(ctx, w, status, authResponse{UserID: userID, Tokens: tokens})
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validHandle(handle string) bool {
	if len(handle) < 3 || len(handle) > 32 {
		return false
	}
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
