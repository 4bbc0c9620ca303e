package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
)

var (
	ErrCartNotFound   = cart.ErrCartNotFound
	ErrOutOfStock     = errors.New("out of stock")
	ErrPaymentSession = errors.New("payment session could not be created")
	ErrInvalidRequest = errors.New("invalid checkout request")
)

// OutOfStockError lists the variants that could not be supplied.
type OutOfStockError struct {
	VariantIDs []uuid.UUID
}

func (e *OutOfStockError) Error() string {
	ids := lo.Map(e.VariantIDs, func(id uuid.UUID, _ int) string { return id.String() })
	return "out of stock: " + strings.Join(ids, ", ")
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRequest }

func invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }
