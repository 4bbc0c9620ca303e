package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
)

type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID) (orders.Order, error)
	History(ctx context.Context, orderID uuid.UUID) ([]orders.Status, error)
}

type OrderMachine interface {
	Transition(ctx context.Context, id uuid.UUID, fromAllowed []orders.Status, to orders.Status, reason string) (orders.Order, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (orders.Order, error)
}

// StatusStore is satisfied by *redisx.StatusCache.
type StatusStore interface {
	Get(ctx context.Context, orderID string) ([]byte, bool)
	Set(ctx context.Context, orderID string, body []byte) error
}

type OrdersHandler struct {
	Orders  OrderReader
	Machine OrderMachine
	Cache   StatusStore // optional
	Logger  *slog.Logger
}

func (h *OrdersHandler) Register(public, admin chi.Router) {
	public.Get("/orders/{id}/status", h.status)
	public.Get("/orders/{id}", h.get)
	public.Post("/orders/{id}/cancel", h.cancel)

	admin.Get("/admin/orders/{id}", h.adminGet)
	admin.Post("/admin/orders/{id}/transition", h.transition)
}

// status serves the polling projection, from cache when it is warm.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	if b, ok := cachedStatus(r.Context(), h.Cache, id); ok {
		w.Header().Set("X-Cache", "hit")
		writeRaw(w, http.StatusOK, b)
		return
	}

	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	b := cacheStatus(r.Context(), h.Cache, o, logger(h.Logger))
	w.Header().Set("X-Cache", "miss")
	writeRaw(w, http.StatusOK, b)
}

func cachedStatus(ctx context.Context, c StatusStore, id uuid.UUID) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.Get(ctx, id.String())
}

// cacheStatus renders the status view and stores it only once the order is
// terminal. A live order can transition between this read and the write, and
// the transition's invalidate would already have run.
func cacheStatus(ctx context.Context, c StatusStore, o orders.Order, log *slog.Logger) []byte {
	b, _ := json.Marshal(newStatusView(o))
	if c == nil || !o.Status.Terminal() {
		return b
	}
	if err := c.Set(ctx, o.ID.String(), b); err != nil {
		log.Warn("status cache set failed", slog.String("order_id", o.ID.String()), slog.Any("err", err))
	}
	return b
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.owned(r)
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type cancelBody struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	log := logger(h.Logger)
	var body cancelBody
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			writeError(w, r, log, err)
			return
		}
	}
	o, err := h.owned(r)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	reason := lo.Ternary(body.Reason == "", "customer_request", body.Reason)
	o, err = h.Machine.Cancel(r.Context(), o.ID, reason)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type orderDetail struct {
	orders.Order
	History []orders.Status `json:"history"`
}

func (h *OrdersHandler) adminGet(w http.ResponseWriter, r *http.Request) {
	log := logger(h.Logger)
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	hist, err := h.Orders.History(r.Context(), id)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderDetail{Order: o, History: hist})
}

type transitionBody struct {
	To     orders.Status   `json:"to"`
	From   []orders.Status `json:"from"`
	Reason string          `json:"reason"`
}

// transition is the fulfilment path (paid -> processing -> shipped -> delivered).
// Payment outcomes never come through here.
func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	log := logger(h.Logger)
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	var body transitionBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, log, err)
		return
	}
	to, err := orders.ParseStatus(string(body.To))
	if err != nil {
		writeError(w, r, log, badRequest(err.Error()))
		return
	}
	if to == orders.StatusPaid || to == orders.StatusPendingPayment {
		writeError(w, r, log, badRequest("status "+string(to)+" is set by payment reconciliation only"))
		return
	}

	reason := lo.Ternary(body.Reason == "", "admin", body.Reason)
	var o orders.Order
	if to == orders.StatusCancelled {
		o, err = h.Machine.Cancel(r.Context(), id, reason)
	} else {
		from := body.From
		if len(from) == 0 {
			from = lo.Filter(orders.AllStatuses, func(s orders.Status, _ int) bool { return orders.CanTransition(s, to) })
		}
		o, err = h.Machine.Transition(r.Context(), id, from, to, reason)
	}
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// owned loads the order and hides it from callers who neither placed it nor
// administer the store. Guest orders are reachable by id alone.
func (h *OrdersHandler) owned(r *http.Request) (orders.Order, error) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		return orders.Order{}, err
	}
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		return orders.Order{}, err
	}
	c := CallerFrom(r.Context())
	if o.UserID != nil && !c.IsAdmin() && (c.AccountID == nil || *c.AccountID != *o.UserID) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}
