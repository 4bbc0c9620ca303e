package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/payments"
)

type PaymentReconciler interface {
	Reconcile(ctx context.Context, rep payments.Report) (orders.Order, error)
	Verify(ctx context.Context, reference string) (orders.Order, error)
}

type PaymentsHandler struct {
	Reconciler PaymentReconciler
	Secret     string
	Cache      StatusStore // optional
	Logger     *slog.Logger
}

func (h *PaymentsHandler) Register(public, _ chi.Router) {
	public.Get("/payments/verify/{reference}", h.verify)
	public.Post("/payments/webhook", h.webhook)
}

func (h *PaymentsHandler) verify(w http.ResponseWriter, r *http.Request) {
	o, err := h.Reconciler.Verify(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	writeRaw(w, http.StatusOK, cacheStatus(r.Context(), h.Cache, o, logger(h.Logger)))
}

// webhook answers 2xx only once the report has been applied or is known to be
// irrelevant. Anything else makes the provider redeliver.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	log := logger(h.Logger)
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, log, badRequest("unreadable body"))
		return
	}
	if !payments.VerifySignature(h.Secret, body, r.Header.Get(payments.SignatureHeader)) {
		log.Warn("webhook signature rejected", slog.String("action", "payment.webhook"))
		writeError(w, r, log, payments.ErrInvalidSignature)
		return
	}

	hook, err := payments.ParseWebhook(body)
	if err != nil {
		writeError(w, r, log, badRequest(err.Error()))
		return
	}
	if !hook.Reconcilable() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	o, err := h.Reconciler.Reconcile(r.Context(), payments.Report{
		Reference: hook.Reference,
		Status:    hook.Status,
		Amount:    hook.Amount,
		Source:    payments.SourceWebhook,
	})
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			log.Warn("webhook for unknown reference",
				slog.String("action", "payment.webhook"),
				slog.String("reference", hook.Reference))
		}
		writeError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusView(o))
}

// statusView is the small, cacheable projection polling clients read.
type statusView struct {
	OrderID          string        `json:"order_id"`
	OrderNumber      string        `json:"order_number"`
	Status           orders.Status `json:"status"`
	PaymentReference string        `json:"payment_reference"`
	Total            string        `json:"total"`
	Currency         string        `json:"currency"`
	UpdatedAt        string        `json:"updated_at"`
}

func newStatusView(o orders.Order) statusView {
	return statusView{
		OrderID:          o.ID.String(),
		OrderNumber:      o.Number,
		Status:           o.Status,
		PaymentReference: o.PaymentReference,
		Total:            o.Total.StringFixed(2),
		Currency:         o.Currency,
		UpdatedAt:        o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
