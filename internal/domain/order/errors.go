package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound              = errors.New("order not found")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrNoteTooLong           = errors.New("order note too long")
	ErrInvalidDeliveryCharge = errors.New("delivery charge must not be negative")
	ErrPersistence           = errors.New("persistence failure")
)

// TransitionError reports a status change the transition table forbids.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatus }

// PersistenceError wraps a store failure on a write path. Its message never
// includes the underlying store text.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrPersistence)
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
