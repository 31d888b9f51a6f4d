package social

import (
	"context"
	"errors"
	"time"

	"github.com/teetime/backend/internal/metrics"
	"github.com/teetime/backend/internal/models"
)

// Resolver computes the viewer-relative relationship status for a pair.
type Resolver struct {
	store Store
	cache StatusCache
	ttl   time.Duration
}

// NewResolver builds a Resolver. A nil cache gets a fresh MemoryCache and a
// non-positive ttl falls back to DefaultStatusTTL.
func NewResolver(store Store, cache StatusCache, ttl time.Duration) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &Resolver{store: store, cache: cache, ttl: ttl}
}

// Resolve returns none, sent, received or friends for viewer looking at target.
func (r *Resolver) Resolve(ctx context.Context, viewer, target string) (models.RelationshipStatus, error) {
	if viewer == target {
		return "", ErrSelfReference
	}

	if status, ok := r.cache.Get(ctx, viewer, target); ok {
		metrics.StatusLookups.WithLabelValues("hit").Inc()
		return status, nil
	}
	metrics.StatusLookups.WithLabelValues("miss").Inc()

	status, err := r.Authoritative(ctx, viewer, target)
	if err != nil {
		return "", err
	}
	r.cache.Set(ctx, viewer, target, status, r.ttl)
	return status, nil
}

// Authoritative reads the store directly, bypassing the cache.
func (r *Resolver) Authoritative(ctx context.Context, viewer, target string) (models.RelationshipStatus, error) {
	pending, err := r.store.GetPendingBetween(ctx, viewer, target)
	hasPending := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", classify(err)
	}

	if _, err := r.store.GetFriendship(ctx, viewer, target); err == nil {
		return models.StatusFriends, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", classify(err)
	}

	switch {
	case !hasPending:
		return models.StatusNone, nil
	case pending.SenderID == viewer:
		return models.StatusSent, nil
	default:
		return models.StatusReceived, nil
	}
}

// Invalidate drops the cached status for both directions of the pair.
func (r *Resolver) Invalidate(ctx context.Context, a, b string) {
	r.cache.Delete(ctx, a, b)
	r.cache.Delete(ctx, b, a)
}

// Cached returns the cached status without touching the store.
func (r *Resolver) Cached(ctx context.Context, viewer, target string) (models.RelationshipStatus, bool) {
	return r.cache.Get(ctx, viewer, target)
}

// Put writes a status for the pair. With mirror set, the other direction is
// written as well.
func (r *Resolver) Put(ctx context.Context, viewer, target string, status models.RelationshipStatus, mirror bool) {
	r.cache.Set(ctx, viewer, target, status, r.ttl)
	if mirror {
		r.cache.Set(ctx, target, viewer, status.Mirror(), r.ttl)
	}
}

// Forget removes the cached status for viewer only.
func (r *Resolver) Forget(ctx context.Context, viewer, target string) {
	r.cache.Delete(ctx, viewer, target)
}
