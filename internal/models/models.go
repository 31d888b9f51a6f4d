package models

import "time"

// User represents a golfer account. Only the ID takes part in connection logic.
type User struct {
	ID        string
	Email     string
	Handle    string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequestStatus is the lifecycle state of a ConnectionRequest.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestRejected:
		return true
	}
	return false
}

// ConnectionRequest is a one-directional ask from Sender to Receiver.
type ConnectionRequest struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"senderId"`
	ReceiverID  string        `json:"receiverId"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
}

// Involves reports whether the request is between a and b in either direction.
func (r ConnectionRequest) Involves(a, b string) bool {
	return (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a)
}

// Friendship is an established symmetric connection. User1ID < User2ID always holds
// for persisted rows.
type Friendship struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1Id"`
	User2ID   string    `json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Other returns the friend of userID in this friendship.
func (f Friendship) Other(userID string) string {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}

// CanonicalPair orders two user ids the way friendships are stored.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// RelationshipStatus is the viewer-relative projection of the request and
// friendship tables.
type RelationshipStatus string

const (
	StatusNone     RelationshipStatus = "none"
	StatusSent     RelationshipStatus = "sent"
	StatusReceived RelationshipStatus = "received"
	StatusFriends  RelationshipStatus = "friends"
)

// Mirror returns the status as seen from the other side of the pair.
func (s RelationshipStatus) Mirror() RelationshipStatus {
	switch s {
	case StatusSent:
		return StatusReceived
	case StatusReceived:
		return StatusSent
	}
	return s
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
