package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/teetime/backend/internal/auth"
	"github.com/teetime/backend/internal/logging"
	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/repositories"
	"github.com/teetime/backend/internal/social"
)

// ConnectionHandler exposes the connection state machine over HTTP. Every
// route expects RequireUser to have placed the caller's id on the context.
type ConnectionHandler struct {
	Connections ConnectionService
	Users       UserStore
}

type sendRequestBody struct {
	TargetID string `json:"targetId"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type statusResponse struct {
	TargetID string                    `json:"targetId"`
	Status   models.RelationshipStatus `json:"status"`
}

type friendResponse struct {
	UserID string `json:"userId"`
	Handle string `json:"handle,omitempty"`
	Since  string `json:"since"`
}

type friendsResponse struct {
	Friends []friendResponse `json:"friends"`
}

type requestsResponse struct {
	Direction social.Direction           `json:"direction"`
	Requests  []models.ConnectionRequest `json:"requests"`
}

// Send handles POST /api/v1/connections/requests.
func (h ConnectionHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var body sendRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	body.TargetID = strings.TrimSpace(body.TargetID)
	if body.TargetID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "targetId is required", Reason: "invalid_body"})
		return
	}

	if body.TargetID != actorID && !h.userExists(w, r, body.TargetID) {
		return
	}

	res, err := h.Connections.SendRequest(ctx, actorID, body.TargetID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == social.OutcomeCreated {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, res)
}

// Accept handles POST /api/v1/connections/requests/{id}/accept.
func (h ConnectionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.Connections.AcceptRequest(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, res)
}

// Reject handles POST /api/v1/connections/requests/{id}/reject.
func (h ConnectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.Connections.RejectRequest(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, res)
}

// Remove handles DELETE /api/v1/connections/{targetId}.
func (h ConnectionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.Connections.RemoveFriend(r.Context(), actorID, r.PathValue("targetId"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, res)
}

// Status handles GET /api/v1/connections/{targetId}/status.
func (h ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	targetID := r.PathValue("targetId")
	status, err := h.Connections.GetStatus(r.Context(), actorID, targetID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, statusResponse{TargetID: targetID, Status: status})
}

// Friends handles GET /api/v1/connections.
func (h ConnectionHandler) Friends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	friendships, err := h.Connections.ListFriends(ctx, actorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	friends := make([]friendResponse, 0, len(friendships))
	for _, f := range friendships {
		friend := friendResponse{UserID: f.Other(actorID), Since: f.CreatedAt.UTC().Format(time.RFC3339)}
		if h.Users != nil {
			if user, err := h.Users.FindByID(ctx, friend.UserID); err == nil {
				friend.Handle = user.Handle
			}
		}
		friends = append(friends, friend)
	}
	respondJSON(ctx, w, http.StatusOK, friendsResponse{Friends: friends})
}

// Requests handles GET /api/v1/connections/requests?direction=incoming|outgoing.
func (h ConnectionHandler) Requests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.caller(w, r)
	if !ok {
		return
	}

	dir := social.Direction(strings.ToLower(r.URL.Query().Get("direction")))
	switch dir {
	case "":
		dir = social.Incoming
	case social.Incoming, social.Outgoing:
	default:
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "direction must be incoming or outgoing", Reason: "invalid_direction"})
		return
	}

	requests, err := h.Connections.ListRequests(ctx, actorID, dir)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if requests == nil {
		requests = []models.ConnectionRequest{}
	}
	respondJSON(ctx, w, http.StatusOK, requestsResponse{Direction: dir, Requests: requests})
}

func (h ConnectionHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.Connections == nil {
		logging.FromContext(ctx).Error("connection service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "connection service unavailable", Reason: social.ReasonStoreUnavailable})
		return "", false
	}

	userID := auth.UserIDFromContext(ctx)
	if userID == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Reason: "unauthenticated"})
		return "", false
	}
	return userID, true
}

// userExists reports whether targetID names a known account, writing the
// error response when it does not.
func (h ConnectionHandler) userExists(w http.ResponseWriter, r *http.Request, targetID string) bool {
	if h.Users == nil {
		return true
	}

	ctx := r.Context()
	if _, err := h.Users.FindByID(ctx, targetID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "user not found", Reason: social.ReasonNotFound})
			return false
		}
		logging.FromContext(ctx).Error("lookup connection target", "error", err, "targetId", targetID)
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "unable to verify user", Reason: social.ReasonStoreUnavailable})
		return false
	}
	return true
}

func (h ConnectionHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	reason := social.Reason(err)
	message := err.Error()
	if reason == social.ReasonStoreUnavailable {
		logging.FromContext(r.Context()).Error("connection store failure", "error", err)
		message = "connection store unavailable"
	}
	respondJSON(r.Context(), w, statusForReason(reason), errorResponse{Error: message, Reason: reason})
}

func statusForReason(reason string) int {
	switch reason {
	case social.ReasonSelfRequest:
		return http.StatusBadRequest
	case social.ReasonNotRecipient:
		return http.StatusForbidden
	case social.ReasonNotFound:
		return http.StatusNotFound
	case social.ReasonStaleRequest, social.ReasonConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}
