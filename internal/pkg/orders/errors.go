package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrOrderInFlight means another worker holds the fulfillment lease.
	ErrOrderInFlight = errors.New("order fulfillment already in progress")
	// ErrCancelledMeanwhile means the order was cancelled while its provider
	// order was being created. The provider order id is still recorded.
	ErrCancelledMeanwhile = errors.New("order cancelled during fulfillment")
)

// StorageError wraps a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("order storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TransitionError carries the status that blocked a transition.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
