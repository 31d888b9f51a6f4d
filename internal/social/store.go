package social

import (
	"context"

	"github.com/teetime/backend/internal/models"
)

// Store is the durable record of connection requests and friendships.
//
// Lookups that find nothing return ErrNotFound. InsertPendingRequest returns
// ErrConflict when a row for the ordered (sender, receiver) pair already exists.
type Store interface {
	InsertPendingRequest(ctx context.Context, senderID, receiverID string) (models.ConnectionRequest, error)
	GetRequest(ctx context.Context, requestID string) (models.ConnectionRequest, error)
	// GetRequestBetween returns the row for the ordered pair, whatever its status.
	GetRequestBetween(ctx context.Context, senderID, receiverID string) (models.ConnectionRequest, error)
	// GetPendingBetween returns the most recent pending row in either direction.
	GetPendingBetween(ctx context.Context, a, b string) (models.ConnectionRequest, error)
	// UpdateRequestStatus moves a request from one status to another and returns
	// ErrStaleState if the row is no longer in the expected status.
	UpdateRequestStatus(ctx context.Context, requestID string, from, to models.RequestStatus) error
	DeleteRequest(ctx context.Context, requestID string) error

	GetFriendship(ctx context.Context, a, b string) (models.Friendship, error)
	DeleteFriendship(ctx context.Context, a, b string) error

	ListFriendships(ctx context.Context, userID string) ([]models.Friendship, error)
	ListPendingRequests(ctx context.Context, userID string, dir Direction) ([]models.ConnectionRequest, error)

	// WithinTx runs fn atomically. Either every write made through tx commits or none does.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view used by accept.
type Tx interface {
	// LockPendingBetween locks and returns the pending rows of the unordered pair, ordered by id.
	LockPendingBetween(ctx context.Context, a, b string) ([]models.ConnectionRequest, error)
	SetRequestStatus(ctx context.Context, requestID string, status models.RequestStatus) error
	// InsertFriendship creates the friendship for the pair, or returns the existing one.
	InsertFriendship(ctx context.Context, a, b string) (models.Friendship, error)
}

// Direction filters pending request listings.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)
