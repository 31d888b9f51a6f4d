package handlers

import (
	"context"

	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/social"
)

// UserStore captures the persistence operations required by the auth and connection handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, refreshes and verifies authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
	Revoke(ctx context.Context, token string)
}

// ConnectionService is the caller-facing connection API. *social.Coordinator implements it.
type ConnectionService interface {
	SendRequest(ctx context.Context, actorID, targetID string) (social.Result, error)
	AcceptRequest(ctx context.Context, actorID, requestID string) (social.Result, error)
	RejectRequest(ctx context.Context, actorID, requestID string) (social.Result, error)
	RemoveFriend(ctx context.Context, actorID, targetID string) (social.Result, error)
	GetStatus(ctx context.Context, viewerID, targetID string) (models.RelationshipStatus, error)
	ListFriends(ctx context.Context, userID string) ([]models.Friendship, error)
	ListRequests(ctx context.Context, userID string, dir social.Direction) ([]models.ConnectionRequest, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
