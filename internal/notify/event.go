package notify

import (
	"context"
	"time"
)

// EventType names a connection lifecycle event.
type EventType string

const (
	EventConnectionAccepted EventType = "connection_accepted"
	EventConnectionRejected EventType = "connection_rejected"
)

// Event is emitted after a request is accepted or rejected. ActorID is the user
// whose action caused it and CounterpartyID is the other side of the request.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ActorID        string    `json:"actorId"`
	CounterpartyID string    `json:"counterpartyId"`
	RequestID      string    `json:"requestId"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher delivers events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
