package social

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/teetime/backend/internal/logging"
	"github.com/teetime/backend/internal/metrics"
	"github.com/teetime/backend/internal/models"
	"github.com/teetime/backend/internal/notify"
)

// Operation names used for errors, metrics and spans.
const (
	OpSend   = "send"
	OpAccept = "accept"
	OpReject = "reject"
	OpRemove = "remove"
)

// Outcome describes which transition a successful mutation took.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeAlreadyPending Outcome = "already_pending"
	OutcomeAlreadyFriends Outcome = "already_friends"
	OutcomeImplicitAccept Outcome = "implicit_accept"
	OutcomeAccepted       Outcome = "accepted"
	OutcomeRejected       Outcome = "rejected"
	OutcomeRemoved        Outcome = "removed"
	OutcomeNotFriends     Outcome = "not_friends"
)

// Result is returned by every successful mutation. Status is the relationship
// as seen by the acting user after the mutation.
type Result struct {
	Status     models.RelationshipStatus `json:"status"`
	Outcome    Outcome                   `json:"outcome"`
	Request    *models.ConnectionRequest `json:"request,omitempty"`
	Friendship *models.Friendship        `json:"friendship,omitempty"`
}

// Notifier receives connection events after accept and reject.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event) error
}

// Archiver keeps a copy of request rows that send is about to delete.
type Archiver interface {
	Archive(ctx context.Context, request models.ConnectionRequest, reason string) error
}

// Mutator applies connection state transitions against a Store.
type Mutator struct {
	store    Store
	resolver *Resolver
	notifier Notifier
	archiver Archiver
}

// NewMutator wires a Mutator. notifier and archiver may be nil.
func NewMutator(store Store, resolver *Resolver, notifier Notifier, archiver Archiver) *Mutator {
	return &Mutator{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		archiver: archiver,
	}
}

// Send asks receiver to connect with sender. A reversed pending request is
// accepted instead of creating a second row, and a uniqueness conflict from a
// concurrent send re-runs the decision once.
func (m *Mutator) Send(ctx context.Context, senderID, receiverID string) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "social.send")
	defer span.End()

	if senderID == receiverID {
		return Result{}, m.fail(ctx, OpSend, ErrSelfReference)
	}

	for attempt := 0; ; attempt++ {
		res, err := m.send(ctx, senderID, receiverID)
		if err == nil {
			m.succeed(ctx, OpSend, res, senderID, receiverID)
			return res, nil
		}
		if attempt == 0 && errors.Is(err, ErrConflict) {
			metrics.RaceRecoveries.Inc()
			logging.FromContext(ctx).Info("send raced with a concurrent mutation, retrying",
				"senderId", senderID, "receiverId", receiverID, "error", err)
			continue
		}
		return Result{}, m.fail(ctx, OpSend, err)
	}
}

func (m *Mutator) send(ctx context.Context, senderID, receiverID string) (Result, error) {
	if friendship, err := m.store.GetFriendship(ctx, senderID, receiverID); err == nil {
		return Result{Status: models.StatusFriends, Outcome: OutcomeAlreadyFriends, Friendship: &friendship}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}

	if res, ok, err := m.acceptReversed(ctx, senderID, receiverID); err != nil || ok {
		return res, err
	}

	own, err := m.store.GetRequestBetween(ctx, senderID, receiverID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Result{}, err
	default:
		switch own.Status {
		case models.RequestPending:
			return Result{Status: models.StatusSent, Outcome: OutcomeAlreadyPending, Request: &own}, nil
		case models.RequestRejected:
			if err := m.supersede(ctx, own, "rejected"); err != nil {
				return Result{}, err
			}
		case models.RequestAccepted:
			friendship, err := m.store.GetFriendship(ctx, senderID, receiverID)
			if err == nil {
				return Result{Status: models.StatusFriends, Outcome: OutcomeAlreadyFriends, Friendship: &friendship}, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return Result{}, err
			}
			logging.FromContext(ctx).Warn("repairing accepted request without friendship",
				"requestId", own.ID, "senderId", senderID, "receiverId", receiverID, "error", ErrInconsistentData)
			if err := m.supersede(ctx, own, "accepted_without_friendship"); err != nil {
				return Result{}, err
			}
		}
	}

	created, err := m.store.InsertPendingRequest(ctx, senderID, receiverID)
	if err != nil {
		return Result{}, err
	}

	// The receiver may have sent to us between our reversed check and the insert.
	if res, ok, err := m.acceptReversed(ctx, senderID, receiverID); err != nil || ok {
		return res, err
	}
	// Or a friendship formed in the meantime. Our new row must not stay
	// pending next to it, so it is settled as accepted.
	if friendship, err := m.store.GetFriendship(ctx, senderID, receiverID); err == nil {
		accepted, _, err := m.acceptTx(ctx, created)
		switch {
		case errors.Is(err, ErrStaleState):
			accepted = created
		case err != nil:
			return Result{}, err
		}
		return Result{Status: models.StatusFriends, Outcome: OutcomeAlreadyFriends, Request: &accepted, Friendship: &friendship}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}

	return Result{Status: models.StatusSent, Outcome: OutcomeCreated, Request: &created}, nil
}

// acceptReversed accepts receiver's pending request to sender if there is one.
// A request resolved by someone else in the meantime is reported as a conflict
// so Send re-reads the pair.
func (m *Mutator) acceptReversed(ctx context.Context, senderID, receiverID string) (Result, bool, error) {
	reversed, err := m.store.GetRequestBetween(ctx, receiverID, senderID)
	if errors.Is(err, ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	if reversed.Status != models.RequestPending {
		return Result{}, false, nil
	}

	accepted, friendship, err := m.acceptTx(ctx, reversed)
	if errors.Is(err, ErrStaleState) {
		return Result{}, false, ErrConflict
	}
	if err != nil {
		return Result{}, false, err
	}

	m.emit(ctx, notify.EventConnectionAccepted, senderID, receiverID, accepted.ID)
	return Result{
		Status:     models.StatusFriends,
		Outcome:    OutcomeImplicitAccept,
		Request:    &accepted,
		Friendship: &friendship,
	}, true, nil
}

// supersede removes a resolved row so a fresh pending one can take its place.
func (m *Mutator) supersede(ctx context.Context, req models.ConnectionRequest, kind string) error {
	if m.archiver != nil {
		if err := m.archiver.Archive(ctx, req, kind); err != nil {
			logging.FromContext(ctx).Warn("archive superseded request failed", "requestId", req.ID, "error", err)
		}
	}
	if err := m.store.DeleteRequest(ctx, req.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	metrics.Repairs.WithLabelValues(kind).Inc()
	return nil
}

// Accept marks a pending request accepted and creates the friendship in one
// transaction. Only the receiver may accept.
func (m *Mutator) Accept(ctx context.Context, actorID, requestID string) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "social.accept")
	defer span.End()

	req, err := m.loadForAnswer(ctx, actorID, requestID)
	if err != nil {
		return Result{}, m.fail(ctx, OpAccept, err)
	}

	accepted, friendship, err := m.acceptTx(ctx, req)
	if err != nil {
		return Result{}, m.fail(ctx, OpAccept, err)
	}

	res := Result{Status: models.StatusFriends, Outcome: OutcomeAccepted, Request: &accepted, Friendship: &friendship}
	m.succeed(ctx, OpAccept, res, req.SenderID, req.ReceiverID)
	m.emit(ctx, notify.EventConnectionAccepted, actorID, req.SenderID, req.ID)
	return res, nil
}

// acceptTx re-verifies req under lock and accepts every pending row of the
// pair, so a crossed request in the other direction cannot outlive the
// friendship.
func (m *Mutator) acceptTx(ctx context.Context, req models.ConnectionRequest) (models.ConnectionRequest, models.Friendship, error) {
	var friendship models.Friendship
	err := m.store.WithinTx(ctx, func(tx Tx) error {
		pending, err := tx.LockPendingBetween(ctx, req.SenderID, req.ReceiverID)
		if err != nil {
			return err
		}

		found := false
		for _, row := range pending {
			if row.ID == req.ID {
				found = true
				break
			}
		}
		if !found {
			return ErrStaleState
		}

		for _, row := range pending {
			if err := tx.SetRequestStatus(ctx, row.ID, models.RequestAccepted); err != nil {
				return err
			}
		}

		friendship, err = tx.InsertFriendship(ctx, req.SenderID, req.ReceiverID)
		return err
	})
	if err != nil {
		return models.ConnectionRequest{}, models.Friendship{}, err
	}

	respondedAt := time.Now().UTC()
	req.Status = models.RequestAccepted
	req.RespondedAt = &respondedAt
	return req, friendship, nil
}

// Reject moves a pending request to rejected. Only the receiver may reject.
func (m *Mutator) Reject(ctx context.Context, actorID, requestID string) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "social.reject")
	defer span.End()

	req, err := m.loadForAnswer(ctx, actorID, requestID)
	if err != nil {
		return Result{}, m.fail(ctx, OpReject, err)
	}

	if err := m.store.UpdateRequestStatus(ctx, req.ID, models.RequestPending, models.RequestRejected); err != nil {
		return Result{}, m.fail(ctx, OpReject, err)
	}

	respondedAt := time.Now().UTC()
	req.Status = models.RequestRejected
	req.RespondedAt = &respondedAt

	res := Result{Status: models.StatusNone, Outcome: OutcomeRejected, Request: &req}
	m.succeed(ctx, OpReject, res, req.SenderID, req.ReceiverID)
	m.emit(ctx, notify.EventConnectionRejected, actorID, req.SenderID, req.ID)
	return res, nil
}

func (m *Mutator) loadForAnswer(ctx context.Context, actorID, requestID string) (models.ConnectionRequest, error) {
	req, err := m.store.GetRequest(ctx, requestID)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if req.ReceiverID != actorID {
		return models.ConnectionRequest{}, ErrNotRecipient
	}
	if req.Status != models.RequestPending {
		return models.ConnectionRequest{}, ErrStaleState
	}
	return req, nil
}

// Remove deletes the friendship between a and b. Request history is kept.
// Removing a friendship that does not exist succeeds with OutcomeNotFriends.
func (m *Mutator) Remove(ctx context.Context, a, b string) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "social.remove")
	defer span.End()

	if a == b {
		return Result{}, m.fail(ctx, OpRemove, ErrSelfReference)
	}

	err := m.store.DeleteFriendship(ctx, a, b)
	switch {
	case err == nil:
		res := Result{Status: models.StatusNone, Outcome: OutcomeRemoved}
		m.succeed(ctx, OpRemove, res, a, b)
		return res, nil
	case errors.Is(err, ErrNotFound):
		m.resolver.Invalidate(ctx, a, b)
		status, err := m.resolver.Authoritative(ctx, a, b)
		if err != nil {
			return Result{}, m.fail(ctx, OpRemove, err)
		}
		res := Result{Status: status, Outcome: OutcomeNotFriends}
		m.succeed(ctx, OpRemove, res, a, b)
		return res, nil
	default:
		return Result{}, m.fail(ctx, OpRemove, err)
	}
}

func (m *Mutator) succeed(ctx context.Context, op string, res Result, a, b string) {
	m.resolver.Invalidate(ctx, a, b)
	metrics.Transitions.WithLabelValues(op, string(res.Outcome)).Inc()
	logging.SpanFromContext(ctx).SetAttributes(slog.String("outcome", string(res.Outcome)))
	logging.FromContext(ctx).Info("connection mutation applied",
		slog.String("op", op),
		slog.String("outcome", string(res.Outcome)),
		slog.String("status", string(res.Status)),
	)
}

func (m *Mutator) fail(ctx context.Context, op string, err error) error {
	wrapped := mutationFailed(op, err)
	reason := Reason(wrapped)
	metrics.MutationFailures.WithLabelValues(op, reason).Inc()
	logging.SpanFromContext(ctx).RecordError(wrapped)

	logger := logging.FromContext(ctx)
	if reason == ReasonStoreUnavailable || reason == ReasonConflict {
		logger.Error("connection mutation failed", "op", op, "reason", reason, "error", err)
	} else {
		logger.Info("connection mutation refused", "op", op, "reason", reason, "error", err)
	}
	return wrapped
}

func (m *Mutator) emit(ctx context.Context, eventType notify.EventType, actorID, counterpartyID, requestID string) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Notify(ctx, notify.Event{
		Type:           eventType,
		ActorID:        actorID,
		CounterpartyID: counterpartyID,
		RequestID:      requestID,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("queue connection event failed", "type", eventType, "requestId", requestID, "error", err)
	}
}
