package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Checkouter interface {
	CheckoutJSON(ctx context.Context, req checkout.Request) ([]byte, error)
}

type AccountLookup interface {
	Get(ctx context.Context, id uuid.UUID) (accounts.Account, error)
}

type CheckoutHandler struct {
	Service  Checkouter
	Accounts AccountLookup // optional; fills the contact email for signed-in callers
	Logger   *slog.Logger
}

type checkoutBody struct {
	CartID          *uuid.UUID     `json:"cart_id"`
	ShippingAddress orders.Address `json:"shipping_address"`
	ShippingMethod  string         `json:"shipping_method"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentToken    string         `json:"payment_token"`
	Currency        string         `json:"currency"`
	ApplyPoints     bool           `json:"apply_points"`
	PointsToRedeem  int            `json:"points_to_redeem"`
	IdempotencyKey  string         `json:"idempotency_key"`
	Email           string         `json:"email"`
	Phone           string         `json:"phone"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
}

func (h *CheckoutHandler) Register(public, _ chi.Router) {
	public.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	log := logger(h.Logger)
	var body checkoutBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, log, err)
		return
	}

	key, err := idempotencyKey(r.Header.Get(HeaderIdempotencyKey), body.IdempotencyKey)
	if err != nil {
		writeError(w, r, log, err)
		return
	}

	caller := CallerFrom(r.Context())
	req := checkout.Request{
		Cart:            cart.Ref{UserID: caller.AccountID, GuestToken: caller.GuestToken, CartID: body.CartID},
		ShippingAddress: body.ShippingAddress,
		ShippingMethod:  body.ShippingMethod,
		PaymentMethod:   body.PaymentMethod,
		PaymentToken:    body.PaymentToken,
		Currency:        body.Currency,
		ApplyPoints:     body.ApplyPoints,
		PointsToRedeem:  body.PointsToRedeem,
		IdempotencyKey:  key,
		Contact: orders.Contact{
			Email:     strings.TrimSpace(body.Email),
			Phone:     strings.TrimSpace(body.Phone),
			FirstName: body.FirstName,
			LastName:  body.LastName,
		},
	}
	if caller.AccountID != nil && req.Contact.Email == "" && h.Accounts != nil {
		acc, err := h.Accounts.Get(r.Context(), *caller.AccountID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		req.Contact.Email = acc.Email
	}

	b, err := h.Service.CheckoutJSON(r.Context(), req)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	writeRaw(w, http.StatusCreated, b)
}

// idempotencyKey accepts the key from either the header or the body. Sending
// both with different values is rejected rather than guessing which one wins.
func idempotencyKey(header, body string) (string, error) {
	header, body = strings.TrimSpace(header), strings.TrimSpace(body)
	switch {
	case header != "" && body != "" && header != body:
		return "", badRequest("idempotency key in header and body differ")
	case header != "":
		return header, nil
	}
	return body, nil
}
