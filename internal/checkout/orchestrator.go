// Package checkout turns a cart into a pending order with reserved stock and
// a payment session.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/idempotency"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/money"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/payments"
)

const (
	ReasonPaymentSessionFailed = "payment_session_failed"
	ReasonCartConsumed         = "cart_already_consumed"

	PaymentStatusPending = "pending"
	DefaultPaymentMethod = "card"
)

// Request is one checkout attempt. The caller identity travels in Cart.
type Request struct {
	Cart            cart.Ref
	ShippingAddress orders.Address
	ShippingMethod  string
	PaymentMethod   string
	PaymentToken    string
	Currency        string
	ApplyPoints     bool
	PointsToRedeem  int
	IdempotencyKey  string
	Contact         orders.Contact
}

// Result is the checkout response. Its JSON encoding is what duplicate
// requests replay.
type Result struct {
	OrderID          uuid.UUID         `json:"order_id"`
	OrderNumber      string            `json:"order_number"`
	Status           orders.Status     `json:"status"`
	PaymentStatus    string            `json:"payment_status"`
	PaymentReference string            `json:"payment_reference"`
	AuthorizationURL string            `json:"authorization_url"`
	Currency         string            `json:"currency"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	ShippingCost     decimal.Decimal   `json:"shipping_cost"`
	ShippingETA      string            `json:"shipping_eta,omitempty"`
	Discount         decimal.Decimal   `json:"discount"`
	PointsRedeemed   int               `json:"points_redeemed"`
	Total            decimal.Decimal   `json:"total"`
	ChargeAmount     decimal.Decimal   `json:"charge_amount"`
	ChargeCurrency   string            `json:"charge_currency"`
	Account          *accounts.Outcome `json:"account,omitempty"`
}

type Service struct {
	Carts       Carts
	Catalog     Catalog
	Inventory   Inventory
	Orders      Orders
	Machine     Canceller
	Loyalty     Loyalty  // optional
	Promoter    Promoter // optional
	Gateway     payments.Gateway
	Shipping    ShippingQuoter
	Converter   *Converter
	Idempotency *idempotency.Cache // nil runs every request

	Events   orders.EventSink
	Producer string
	Logger   *slog.Logger
	Now      func() time.Time

	Currency       string // default charge currency
	CallbackURL    string
	PaymentTimeout time.Duration
	PaymentRetries int
	PaymentBackoff time.Duration
	ReleaseBackoff time.Duration
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) shipping() ShippingQuoter {
	if s.Shipping == nil {
		return ZoneQuoter{}
	}
	return s.Shipping
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CheckoutJSON runs a checkout at most once per idempotency key and returns
// the encoded Result. A repeated key gets the first call's bytes back.
func (s *Service) CheckoutJSON(ctx context.Context, req Request) ([]byte, error) {
	compute := func(ctx context.Context) ([]byte, error) {
		res, err := s.checkout(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	if s.Idempotency == nil {
		return compute(ctx)
	}
	return s.Idempotency.GetOrCompute(ctx, strings.TrimSpace(req.IdempotencyKey), compute)
}

func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	b, err := s.CheckoutJSON(ctx, req)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		return Result{}, fmt.Errorf("checkout: decode result: %w", err)
	}
	return res, nil
}

func (s *Service) validate(req *Request) (currency.Unit, error) {
	guest := req.Cart.UserID == nil
	addr := req.ShippingAddress

	switch {
	case strings.TrimSpace(addr.Country) == "":
		return currency.Unit{}, invalid("shipping_address.country", "required")
	case strings.TrimSpace(addr.State) == "":
		return currency.Unit{}, invalid("shipping_address.state", "required")
	case strings.TrimSpace(addr.FullName) == "":
		return currency.Unit{}, invalid("shipping_address.full_name", "required")
	case strings.TrimSpace(addr.Phone) == "":
		return currency.Unit{}, invalid("shipping_address.phone", "required")
	case guest && strings.TrimSpace(req.Contact.Email) == "":
		return currency.Unit{}, invalid("email", "required for guest checkout")
	case guest && strings.TrimSpace(req.Contact.Phone) == "":
		return currency.Unit{}, invalid("phone", "required for guest checkout")
	case req.PointsToRedeem < 0:
		return currency.Unit{}, invalid("points_to_redeem", "must not be negative")
	case guest && req.ApplyPoints && req.PointsToRedeem > 0:
		return currency.Unit{}, invalid("apply_points", "requires an account")
	case req.ApplyPoints && req.PointsToRedeem > 0 && s.Loyalty == nil:
		return currency.Unit{}, invalid("apply_points", "loyalty points are not available")
	}

	switch req.ShippingMethod {
	case "":
		req.ShippingMethod = MethodStandard
	case MethodStandard, MethodExpress:
	default:
		return currency.Unit{}, invalid("shipping_method", "must be standard or express")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = DefaultPaymentMethod
	}

	code := req.Currency
	if code == "" {
		code = s.Currency
	}
	cur, err := money.ParseCurrency(code)
	if err != nil {
		return currency.Unit{}, invalid("currency", err.Error())
	}
	return cur, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (Result, error) {
	cur, err := s.validate(&req)
	if err != nil {
		return Result{}, err
	}
	rate, err := s.Converter.Rate(ctx, cur)
	if err != nil {
		return Result{}, invalid("currency", cur.String()+" is not supported for payment")
	}

	c, err := s.Carts.Resolve(ctx, req.Cart)
	if err != nil {
		return Result{}, fmt.Errorf("checkout: %w", err)
	}
	guest := req.Cart.UserID == nil

	variants, err := s.Catalog.Variants(ctx, lo.Map(c.Items, func(it cart.Item, _ int) uuid.UUID { return it.VariantID }))
	if err != nil {
		return Result{}, fmt.Errorf("checkout: load variants: %w", err)
	}
	short := lo.FilterMap(c.Items, func(it cart.Item, _ int) (uuid.UUID, bool) {
		v, ok := variants[it.VariantID]
		return it.VariantID, !ok || v.Quantity < it.Quantity
	})
	if len(short) > 0 {
		return Result{}, &OutOfStockError{VariantIDs: short}
	}

	// totals come from the prices captured in the cart, not the live catalog
	subtotal := c.Subtotal()
	quote, err := s.shipping().GetShippingQuote(ctx, ZoneFor(req.ShippingAddress.Country), req.ShippingMethod)
	if err != nil {
		return Result{}, fmt.Errorf("checkout: shipping quote: %w", err)
	}
	var (
		points   int
		discount = decimal.Zero
	)
	if req.ApplyPoints && req.PointsToRedeem > 0 {
		points, discount = accounts.Redemption(req.PointsToRedeem, subtotal)
	}
	total := subtotal.Add(quote.Cost).Sub(discount)
	charge := s.Converter.Convert(total, cur, rate)

	orderID := uuid.New()
	log := s.logger().With(slog.String("order_id", orderID.String()), slog.String("cart_id", c.ID.String()))
	if req.IdempotencyKey != "" {
		log = log.With(slog.String("idempotency_key", req.IdempotencyKey))
	}

	// a fixed lock order keeps concurrent checkouts sharing variants from deadlocking
	lines := slices.Clone(c.Items)
	slices.SortFunc(lines, func(a, b cart.Item) int { return strings.Compare(a.VariantID.String(), b.VariantID.String()) })
	for _, it := range lines {
		if err := s.Inventory.Reserve(ctx, orderID, it.VariantID, it.Quantity); err != nil {
			s.compensate(ctx, orderID, nil, 0)
			if errors.Is(err, inventory.ErrInsufficientStock) || errors.Is(err, inventory.ErrVariantNotFound) {
				log.Info("reservation refused", slog.String("action", "checkout.reserve"), slog.String("variant_id", it.VariantID.String()))
				return Result{}, &OutOfStockError{VariantIDs: []uuid.UUID{it.VariantID}}
			}
			return Result{}, fmt.Errorf("checkout: reserve: %w", err)
		}
	}

	if points > 0 {
		if err := s.Loyalty.RedeemPoints(ctx, *req.Cart.UserID, points); err != nil {
			s.compensate(ctx, orderID, nil, 0)
			if errors.Is(err, accounts.ErrInsufficientPoints) {
				return Result{}, invalid("points_to_redeem", "exceeds loyalty balance")
			}
			return Result{}, fmt.Errorf("checkout: redeem points: %w", err)
		}
	}

	ref, err := payments.NewReference()
	if err != nil {
		s.compensate(ctx, orderID, req.Cart.UserID, points)
		return Result{}, fmt.Errorf("checkout: payment reference: %w", err)
	}

	o := orders.Order{
		ID:               orderID,
		Number:           orders.NewNumber(s.now()),
		UserID:           req.Cart.UserID,
		Status:           orders.StatusPendingPayment,
		Currency:         money.NGN.String(),
		Subtotal:         subtotal,
		ShippingCost:     quote.Cost,
		Discount:         discount,
		PointsRedeemed:   points,
		Total:            total,
		ChargeAmount:     charge,
		ChargeCurrency:   cur.String(),
		ShippingAddress:  req.ShippingAddress,
		ShippingMethod:   req.ShippingMethod,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: ref,
		IdempotencyKey:   lo.EmptyableToPtr(req.IdempotencyKey),
		Contact:          req.Contact,
		Items: lo.Map(lines, func(it cart.Item, _ int) orders.Item {
			return orders.Item{
				VariantID: it.VariantID,
				SKU:       lo.CoalesceOrEmpty(variants[it.VariantID].SKU, it.SKU),
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				LineTotal: it.LineTotal(),
			}
		}),
	}
	if err := s.Orders.Insert(ctx, o); err != nil {
		s.compensate(ctx, orderID, req.Cart.UserID, points)
		return Result{}, fmt.Errorf("checkout: %w", err)
	}
	orders.Emit(s.Events, orders.TopicOrderCreated, orders.EventOrderCreated, s.Producer, "", orderID, orders.OrderCreatedPayload{
		OrderID:     orderID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		Items: lo.Map(o.Items, func(it orders.Item, _ int) orders.ItemQty {
			return orders.ItemQty{VariantID: it.VariantID, Qty: it.Quantity}
		}),
		Total:            total,
		Currency:         o.Currency,
		PaymentReference: ref,
	})

	email := req.Contact.Email
	sess, err := s.createSession(ctx, o, email)
	if err != nil {
		log.Error("payment session failed", slog.String("action", "checkout.payment_session"), slog.Any("err", err))
		s.abandon(ctx, o, ReasonPaymentSessionFailed)
		return Result{}, fmt.Errorf("%w: %w", ErrPaymentSession, err)
	}

	if err := s.Carts.MarkConsumed(ctx, c.ID, orderID); err != nil {
		// a concurrent checkout of the same cart got there first
		s.abandon(ctx, o, ReasonCartConsumed)
		return Result{}, fmt.Errorf("checkout: %w", err)
	}

	res := Result{
		OrderID:          orderID,
		OrderNumber:      o.Number,
		Status:           o.Status,
		PaymentStatus:    PaymentStatusPending,
		PaymentReference: ref,
		AuthorizationURL: sess.AuthorizationURL,
		Currency:         o.Currency,
		Subtotal:         subtotal,
		ShippingCost:     quote.Cost,
		ShippingETA:      quote.ETA,
		Discount:         discount,
		PointsRedeemed:   points,
		Total:            total,
		ChargeAmount:     charge,
		ChargeCurrency:   o.ChargeCurrency,
	}

	if guest && s.Promoter != nil {
		out, err := s.Promoter.Evaluate(ctx, accounts.Input{OrderID: orderID, Guest: true, Email: email, Total: total})
		if err != nil {
			log.Error("guest promotion failed", slog.String("action", "checkout.promote"), slog.Any("err", err))
		}
		res.Account = out
	}

	log.Info("checkout completed",
		slog.String("action", "checkout.complete"),
		slog.String("reference", ref),
		slog.String("total", total.String()))
	return res, nil
}

func (s *Service) createSession(ctx context.Context, o orders.Order, email string) (payments.Session, error) {
	timeout := s.PaymentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if s.PaymentBackoff > 0 {
		b.InitialInterval = s.PaymentBackoff
	}

	var sess payments.Session
	err := backoff.Retry(func() error {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var err error
		sess, err = s.Gateway.CreateSession(actx, payments.SessionRequest{
			Reference:   o.PaymentReference,
			Email:       email,
			Amount:      o.ChargeAmount,
			Currency:    o.ChargeCurrency,
			CallbackURL: s.CallbackURL,
			Metadata:    map[string]string{"order_id": o.ID.String(), "order_number": o.Number},
		})
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.PaymentRetries, 0))), ctx))
	return sess, err
}

// compensate undoes the side effects of an attempt that never produced an order.
func (s *Service) compensate(ctx context.Context, orderID uuid.UUID, accountID *uuid.UUID, points int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	log := s.logger().With(slog.String("order_id", orderID.String()), slog.String("action", "checkout.compensate"))

	if err := s.retry(ctx, func() error {
		_, err := s.Inventory.ReleaseOrder(ctx, orderID)
		return err
	}); err != nil {
		log.Error("release failed, handing off to worker", slog.Any("err", err))
		orders.Emit(s.Events, orders.TopicReleaseRequested, orders.EventReleaseRequested, s.Producer, "", orderID,
			orders.ReleaseRequestedPayload{OrderID: orderID, Reason: "checkout_failed"})
	}

	if accountID != nil && points > 0 && s.Loyalty != nil {
		if err := s.retry(ctx, func() error { return s.Loyalty.RefundPoints(ctx, *accountID, points) }); err != nil {
			log.Error("loyalty refund failed", slog.Int("points", points), slog.Any("err", err))
		}
	}
}

// abandon cancels a created order, which releases its stock and points, and
// frees its idempotency key for a retry.
func (s *Service) abandon(ctx context.Context, o orders.Order, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	log := s.logger().With(slog.String("order_id", o.ID.String()), slog.String("action", "checkout.abandon"))

	if err := s.retry(ctx, func() error {
		_, err := s.Machine.Cancel(ctx, o.ID, reason)
		return err
	}); err != nil {
		log.Error("cancel failed, compensating directly", slog.Any("err", err))
		s.compensate(ctx, o.ID, o.UserID, o.PointsRedeemed)
		return
	}
	if o.IdempotencyKey != nil {
		if err := s.Orders.ClearIdempotencyKey(ctx, o.ID); err != nil {
			log.Error("idempotency key not freed", slog.Any("err", err))
		}
	}
}

func (s *Service) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if s.ReleaseBackoff > 0 {
		b.InitialInterval = s.ReleaseBackoff
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, 4), ctx))
}
