package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

const (
	DefaultPromotionMin = 200000
	DefaultPromotionMax = 500000
	DefaultGuestPrefix  = "kezura"

	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	passwordLength   = 16
)

type IdentityProvider interface {
	CreateOrLinkAccount(ctx context.Context, r Registration) (uuid.UUID, error)
}

type OrderLinker interface {
	AttachAccount(ctx context.Context, orderID, accountID uuid.UUID) error
}

// Promoter turns qualifying guest checkouts into accounts.
type Promoter struct {
	Identity IdentityProvider
	Orders   OrderLinker
	Min, Max decimal.Decimal // inclusive band on the order total
	Prefix   string
	Events   orders.EventSink
	Producer string
	Logger   *slog.Logger
}

type Input struct {
	OrderID uuid.UUID
	Guest   bool
	Email   string
	Total   decimal.Decimal
}

// Outcome describes the account a guest order ended up attached to.
type Outcome struct {
	AccountID                 uuid.UUID `json:"account_id"`
	Email                     string    `json:"email"`
	Tier                      Tier      `json:"tier,omitempty"`
	Created                   bool      `json:"created"`
	HasUpdatedDefaultPassword *bool     `json:"has_updated_default_password,omitempty"`

	// only set when Created; delivered out of band, never serialized
	Password string `json:"-"`
}

func (p *Promoter) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Promoter) band() (decimal.Decimal, decimal.Decimal) {
	lo, hi := p.Min, p.Max
	if lo.IsZero() && hi.IsZero() {
		lo, hi = decimal.NewFromInt(DefaultPromotionMin), decimal.NewFromInt(DefaultPromotionMax)
	}
	return lo, hi
}

// Qualifies reports whether in triggers promotion.
func (p *Promoter) Qualifies(in Input) bool {
	if !in.Guest || strings.TrimSpace(in.Email) == "" {
		return false
	}
	lo, hi := p.band()
	return in.Total.GreaterThanOrEqual(lo) && in.Total.LessThanOrEqual(hi)
}

// Evaluate creates an account for a qualifying guest order and links the order
// to it. When the email already has an account the order is linked to that one
// instead. A nil Outcome means the order did not qualify.
func (p *Promoter) Evaluate(ctx context.Context, in Input) (*Outcome, error) {
	if !p.Qualifies(in) {
		return nil, nil
	}

	prefix := p.Prefix
	if prefix == "" {
		prefix = DefaultGuestPrefix
	}
	password, err := GeneratePassword(prefix)
	if err != nil {
		return nil, err
	}

	log := p.logger().With(slog.String("order_id", in.OrderID.String()))
	out := &Outcome{Email: in.Email}

	id, err := p.Identity.CreateOrLinkAccount(ctx, Registration{
		Email:    in.Email,
		Password: password,
		Role:     RoleCustomer,
		Tier:     EntryTier,
	})
	var exists *ExistsError
	switch {
	case errors.As(err, &exists):
		out.AccountID = exists.ID
		log.Info("guest email already registered, linking order",
			slog.String("action", "accounts.link"), slog.String("account_id", exists.ID.String()))
	case err != nil:
		return nil, fmt.Errorf("accounts.Evaluate: %w", err)
	default:
		out.AccountID = id
		out.Created = true
		out.Tier = EntryTier
		out.HasUpdatedDefaultPassword = new(bool)
		out.Password = password
		log.Info("guest promoted to account",
			slog.String("action", "accounts.promote"), slog.String("account_id", id.String()))
	}

	if err := p.Orders.AttachAccount(ctx, in.OrderID, out.AccountID); err != nil {
		return nil, fmt.Errorf("accounts.Evaluate attach: %w", err)
	}

	if out.Created {
		orders.Emit(p.Events, orders.TopicAccountPromoted, orders.EventAccountPromoted, p.Producer, "", in.OrderID,
			orders.AccountPromotedPayload{OrderID: in.OrderID, AccountID: out.AccountID, Email: in.Email, Tier: string(EntryTier)})
	}
	return out, nil
}

// GeneratePassword returns "<prefix>_" followed by 16 random alphanumerics.
func GeneratePassword(prefix string) (string, error) {
	size := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	b.Grow(len(prefix) + 1 + passwordLength)
	b.WriteString(prefix)
	b.WriteByte('_')
	for range passwordLength {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}
