package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/money"
)

const DefaultPaystackURL = "https://api.paystack.co"

// Paystack implements Gateway over the Paystack REST API. Amounts cross the
// wire in minor units (kobo).
type Paystack struct {
	SecretKey string
	BaseURL   string
	HTTP      *http.Client
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paystackInit struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTxn struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (p *Paystack) client() *http.Client {
	if p.HTTP == nil {
		return &http.Client{Timeout: 15 * time.Second}
	}
	return p.HTTP
}

func (p *Paystack) base() string {
	if p.BaseURL == "" {
		return DefaultPaystackURL
	}
	return strings.TrimRight(p.BaseURL, "/")
}

func (p *Paystack) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    money.ToMinor(req.Amount),
		"currency":  req.Currency,
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var out paystackEnvelope[paystackInit]
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return Session{}, fmt.Errorf("paystack.CreateSession: %w", err)
	}
	ref := out.Data.Reference
	if ref == "" {
		ref = req.Reference
	}
	return Session{Reference: ref, AuthorizationURL: out.Data.AuthorizationURL, AccessCode: out.Data.AccessCode}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (Verification, error) {
	var out paystackEnvelope[paystackTxn]
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return Verification{}, fmt.Errorf("paystack.Verify: %w", err)
	}
	return Verification{
		Reference: reference,
		Status:    ParseStatus(out.Data.Status),
		Amount:    money.FromMinor(out.Data.Amount),
		Currency:  out.Data.Currency,
	}, nil
}

func (p *Paystack) do(ctx context.Context, method, path string, in any, out interface{ ok() (bool, string) }) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.base()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrGateway, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrGateway, err)
	}
	if ok, msg := out.ok(); !ok || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s (status %d)", ErrGateway, msg, resp.StatusCode)
	}
	return nil
}

func (e *paystackEnvelope[T]) ok() (bool, string) { return e.Status, e.Message }
