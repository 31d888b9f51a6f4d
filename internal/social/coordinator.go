package social

import (
	"context"

	"github.com/teetime/backend/internal/metrics"
	"github.com/teetime/backend/internal/models"
)

// Coordinator is the caller-facing connection API. Send and remove update the
// caller's cached status before the store round trip and restore the previous
// value if the mutation fails.
type Coordinator struct {
	mutator  *Mutator
	resolver *Resolver
	store    Store
}

// NewCoordinator builds a Coordinator over an existing Mutator and Resolver.
func NewCoordinator(mutator *Mutator, resolver *Resolver, store Store) *Coordinator {
	return &Coordinator{mutator: mutator, resolver: resolver, store: store}
}

// SendRequest speculatively shows target as sent, then runs Mutator.Send.
func (c *Coordinator) SendRequest(ctx context.Context, actorID, targetID string) (Result, error) {
	return c.optimistic(ctx, OpSend, actorID, targetID, models.StatusSent, func(ctx context.Context) (Result, error) {
		return c.mutator.Send(ctx, actorID, targetID)
	})
}

// RemoveFriend speculatively shows target as none, then runs Mutator.Remove.
func (c *Coordinator) RemoveFriend(ctx context.Context, actorID, targetID string) (Result, error) {
	return c.optimistic(ctx, OpRemove, actorID, targetID, models.StatusNone, func(ctx context.Context) (Result, error) {
		return c.mutator.Remove(ctx, actorID, targetID)
	})
}

func (c *Coordinator) optimistic(
	ctx context.Context,
	op string,
	actorID, targetID string,
	speculative models.RelationshipStatus,
	run func(context.Context) (Result, error),
) (Result, error) {
	if actorID == targetID {
		return run(ctx)
	}

	previous, cached := c.resolver.Cached(ctx, actorID, targetID)
	c.resolver.Put(ctx, actorID, targetID, speculative, false)

	res, err := run(ctx)
	if err != nil {
		if cached {
			c.resolver.Put(ctx, actorID, targetID, previous, false)
		} else {
			c.resolver.Forget(ctx, actorID, targetID)
		}
		metrics.Rollbacks.WithLabelValues(op).Inc()
		return Result{}, err
	}

	c.resolver.Put(ctx, actorID, targetID, res.Status, true)
	return res, nil
}

// AcceptRequest accepts requestID on behalf of actorID.
func (c *Coordinator) AcceptRequest(ctx context.Context, actorID, requestID string) (Result, error) {
	res, err := c.mutator.Accept(ctx, actorID, requestID)
	if err != nil {
		return Result{}, err
	}
	if res.Request != nil {
		c.resolver.Put(ctx, actorID, res.Request.SenderID, res.Status, true)
	}
	return res, nil
}

// RejectRequest rejects requestID on behalf of actorID.
func (c *Coordinator) RejectRequest(ctx context.Context, actorID, requestID string) (Result, error) {
	return c.mutator.Reject(ctx, actorID, requestID)
}

// GetStatus resolves the relationship between viewer and target.
func (c *Coordinator) GetStatus(ctx context.Context, viewerID, targetID string) (models.RelationshipStatus, error) {
	return c.resolver.Resolve(ctx, viewerID, targetID)
}

// ListFriends returns the friendships of userID, newest first.
func (c *Coordinator) ListFriends(ctx context.Context, userID string) ([]models.Friendship, error) {
	friends, err := c.store.ListFriendships(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	return friends, nil
}

// ListRequests returns the pending requests of userID in the given direction.
func (c *Coordinator) ListRequests(ctx context.Context, userID string, dir Direction) ([]models.ConnectionRequest, error) {
	requests, err := c.store.ListPendingRequests(ctx, userID, dir)
	if err != nil {
		return nil, classify(err)
	}
	return requests, nil
}
