// Package payments talks to the payment gateway and folds its reports into
// order state.
package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// ParseStatus maps a gateway transaction status onto the three outcomes the
// order lifecycle cares about. Anything unknown is still pending.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "successful", "completed":
		return StatusSuccess
	case "failed", "abandoned", "reversed", "expired":
		return StatusFailed
	}
	return StatusPending
}

var ErrGateway = errors.New("payment gateway error")

type SessionRequest struct {
	Reference   string
	Email       string
	Amount      decimal.Decimal // major units
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

type Session struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
}

type Verification struct {
	Reference string
	Status    Status
	Amount    decimal.Decimal
	Currency  string
}

// Gateway is the payment provider capability.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	Verify(ctx context.Context, reference string) (Verification, error)
}

const (
	referencePrefix   = "pst_"
	referenceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	referenceLength   = 20
)

// NewReference returns a fresh payment reference. It is created before the
// gateway is called so retries of session creation reuse it.
func NewReference() (string, error) {
	size := big.NewInt(int64(len(referenceAlphabet)))
	b := make([]byte, referenceLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = referenceAlphabet[n.Int64()]
	}
	return referencePrefix + string(b), nil
}
