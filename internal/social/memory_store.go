package social

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teetime/backend/internal/models"
)

// MemoryStore implements Store in process memory. It is used by tests and by
// `serve` when no database is configured.
type MemoryStore struct {
	mu          sync.Mutex
	requests    map[string]models.ConnectionRequest
	friendships map[[2]string]models.Friendship
	now         func() time.Time
	seq         int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:    make(map[string]models.ConnectionRequest),
		friendships: make(map[[2]string]models.Friendship),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func pairKey(a, b string) [2]string {
	lo, hi := models.CanonicalPair(a, b)
	return [2]string{lo, hi}
}

// stamp returns a strictly increasing creation time so "most recent" is well defined.
func (s *MemoryStore) stamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Nanosecond)
}

func (s *MemoryStore) InsertPendingRequest(_ context.Context, senderID, receiverID string) (models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		if existing.SenderID == senderID && existing.ReceiverID == receiverID {
			return models.ConnectionRequest{}, ErrConflict
		}
	}
	req := models.ConnectionRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  s.stamp(),
	}
	s.requests[req.ID] = req
	return req, nil
}

func (s *MemoryStore) GetRequest(_ context.Context, requestID string) (models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return models.ConnectionRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *MemoryStore) GetRequestBetween(_ context.Context, senderID, receiverID string) (models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.requests {
		if req.SenderID == senderID && req.ReceiverID == receiverID {
			return req, nil
		}
	}
	return models.ConnectionRequest{}, ErrNotFound
}

func (s *MemoryStore) GetPendingBetween(_ context.Context, a, b string) (models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked(s.requests, a, b)
	if len(pending) == 0 {
		return models.ConnectionRequest{}, ErrNotFound
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })
	return pending[0], nil
}

func (s *MemoryStore) UpdateRequestStatus(_ context.Context, requestID string, from, to models.RequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if req.Status != from {
		return ErrStaleState
	}
	s.requests[requestID] = s.withStatus(req, to)
	return nil
}

func (s *MemoryStore) DeleteRequest(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[requestID]; !ok {
		return ErrNotFound
	}
	delete(s.requests, requestID)
	return nil
}

func (s *MemoryStore) GetFriendship(_ context.Context, a, b string) (models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.friendships[pairKey(a, b)]
	if !ok {
		return models.Friendship{}, ErrNotFound
	}
	return f, nil
}

func (s *MemoryStore) DeleteFriendship(_ context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(a, b)
	if _, ok := s.friendships[key]; !ok {
		return ErrNotFound
	}
	delete(s.friendships, key)
	return nil
}

func (s *MemoryStore) ListFriendships(_ context.Context, userID string) ([]models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Friendship
	for _, f := range s.friendships {
		if f.User1ID == userID || f.User2ID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListPendingRequests(_ context.Context, userID string, dir Direction) ([]models.ConnectionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ConnectionRequest
	for _, req := range s.requests {
		if req.Status != models.RequestPending {
			continue
		}
		if (dir == Incoming && req.ReceiverID == userID) || (dir == Outgoing && req.SenderID == userID) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// WithinTx holds the store lock for the whole of fn and applies its writes only
// when fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:       s,
		requests:    maps.Clone(s.requests),
		friendships: maps.Clone(s.friendships),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.requests = tx.requests
	s.friendships = tx.friendships
	return nil
}

func (s *MemoryStore) pendingLocked(requests map[string]models.ConnectionRequest, a, b string) []models.ConnectionRequest {
	var out []models.ConnectionRequest
	for _, req := range requests {
		if req.Status == models.RequestPending && req.Involves(a, b) {
			out = append(out, req)
		}
	}
	return out
}

func (s *MemoryStore) withStatus(req models.ConnectionRequest, status models.RequestStatus) models.ConnectionRequest {
	req.Status = status
	if status != models.RequestPending {
		respondedAt := s.now()
		req.RespondedAt = &respondedAt
	} else {
		req.RespondedAt = nil
	}
	return req
}

// Counts reports the number of pending requests and friendships for the pair.
// Tests use it to check the no-coexistence invariant.
func (s *MemoryStore) Counts(a, b string) (pending int, friendships int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending = len(s.pendingLocked(s.requests, a, b))
	if _, ok := s.friendships[pairKey(a, b)]; ok {
		friendships = 1
	}
	return pending, friendships
}

type memoryTx struct {
	store       *MemoryStore
	requests    map[string]models.ConnectionRequest
	friendships map[[2]string]models.Friendship
}

func (t *memoryTx) LockPendingBetween(_ context.Context, a, b string) ([]models.ConnectionRequest, error) {
	pending := t.store.pendingLocked(t.requests, a, b)
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (t *memoryTx) SetRequestStatus(_ context.Context, requestID string, status models.RequestStatus) error {
	req, ok := t.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	t.requests[requestID] = t.store.withStatus(req, status)
	return nil
}

func (t *memoryTx) InsertFriendship(_ context.Context, a, b string) (models.Friendship, error) {
	key := pairKey(a, b)
	if existing, ok := t.friendships[key]; ok {
		return existing, nil
	}
	f := models.Friendship{
		ID:        uuid.NewString(),
		User1ID:   key[0],
		User2ID:   key[1],
		CreatedAt: t.store.stamp(),
	}
	t.friendships[key] = f
	return f, nil
}
