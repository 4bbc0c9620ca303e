package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/money"
)

const SignatureHeader = "x-paystack-signature"

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature checks the hex HMAC-SHA512 of body under secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// Sign is the inverse of VerifySignature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type Webhook struct {
	Event     string
	Reference string
	Status    Status
	Amount    *decimal.Decimal
	Currency  string
}

// Reconcilable reports whether the event carries a payment outcome.
func (w Webhook) Reconcilable() bool {
	return w.Event == EventChargeSuccess || w.Event == EventChargeFailed
}

func ParseWebhook(body []byte) (Webhook, error) {
	var raw struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
			Status    string `json:"status"`
			Amount    *int64 `json:"amount"`
			Currency  string `json:"currency"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Webhook{}, fmt.Errorf("payments.ParseWebhook: %w", err)
	}

	w := Webhook{
		Event:     raw.Event,
		Reference: raw.Data.Reference,
		Status:    ParseStatus(raw.Data.Status),
		Currency:  raw.Data.Currency,
	}
	switch raw.Event {
	case EventChargeSuccess:
		w.Status = StatusSuccess
	case EventChargeFailed:
		w.Status = StatusFailed
	}
	if raw.Data.Amount != nil {
		amt := money.FromMinor(*raw.Data.Amount)
		w.Amount = &amt
	}
	return w, nil
}
