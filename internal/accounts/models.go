package accounts

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const RoleCustomer = "Customer"

type Tier string

const (
	TierMuse    Tier = "Muse"
	TierIcon    Tier = "Icon"
	TierEmpress Tier = "Empress"

	EntryTier = TierMuse
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientPoints   = errors.New("insufficient loyalty points")
)

// ExistsError carries the id of the account that already owns the email.
type ExistsError struct {
	ID uuid.UUID
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("account %s already exists", e.ID)
}

func (e *ExistsError) Is(target error) bool { return target == ErrAccountAlreadyExists }

type Account struct {
	ID                        uuid.UUID `json:"id"`
	Email                     string    `json:"email"`
	Role                      string    `json:"role"`
	Tier                      Tier      `json:"tier"`
	HasUpdatedDefaultPassword bool      `json:"has_updated_default_password"`
	LoyaltyPoints             int       `json:"loyalty_points"`
	CreatedAt                 time.Time `json:"created_at"`
}

type Registration struct {
	Email    string
	Password string
	Role     string
	Tier     Tier
	// false forces a password change on first login
	HasUpdatedDefaultPassword bool
}
