package social

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfReference indicates a user tried to connect with themselves.
	ErrSelfReference = errors.New("cannot connect with yourself")
	// ErrConflict indicates a uniqueness violation on the request table. The
	// mutator recovers from one conflict per call; a second one is surfaced.
	ErrConflict = errors.New("connection request conflict")
	// ErrStaleState indicates the targeted request is no longer pending.
	ErrStaleState = errors.New("connection request is no longer pending")
	// ErrStoreUnavailable wraps backend failures that are not recognized races.
	ErrStoreUnavailable = errors.New("relationship store unavailable")
	// ErrInconsistentData marks an accepted request without a friendship. It is
	// repaired in place and only ever logged.
	ErrInconsistentData = errors.New("accepted request without friendship")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("connection record not found")
	// ErrNotRecipient indicates someone other than the receiver tried to answer a request.
	ErrNotRecipient = errors.New("only the receiver can answer a connection request")
)

// MutationError is returned by every failed Mutator operation.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

func mutationFailed(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *MutationError
	if errors.As(err, &existing) {
		return err
	}
	return &MutationError{Op: op, Err: classify(err)}
}

// classify keeps known sentinels and tags anything else as a store failure.
func classify(err error) error {
	for _, known := range []error{ErrSelfReference, ErrConflict, ErrStaleState, ErrNotFound, ErrNotRecipient, ErrStoreUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Reason codes returned to API callers.
const (
	ReasonSelfRequest      = "self_request"
	ReasonNotRecipient     = "not_recipient"
	ReasonStaleRequest     = "stale_request"
	ReasonNotFound         = "not_found"
	ReasonConflict         = "conflict"
	ReasonStoreUnavailable = "store_unavailable"
)

// Reason maps an error onto a stable reason code callers can render.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelfReference):
		return ReasonSelfRequest
	case errors.Is(err, ErrNotRecipient):
		return ReasonNotRecipient
	case errors.Is(err, ErrStaleState):
		return ReasonStaleRequest
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrConflict):
		return ReasonConflict
	default:
		return ReasonStoreUnavailable
	}
}
