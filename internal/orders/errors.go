package orders

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrDuplicateOrder    = errors.New("order already exists for idempotency key")
)

// TransitionError reports the state an order was actually in when a transition was refused.
type TransitionError struct {
	OrderID uuid.UUID
	Current Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: order %s is %s, cannot move to %s", e.OrderID, e.Current, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
