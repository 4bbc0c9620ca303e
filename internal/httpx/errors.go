package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/accounts"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/checkout"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/idempotency"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/payments"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error      string        `json:"error"`
	Field      string        `json:"field,omitempty"`
	VariantIDs []uuid.UUID   `json:"variant_ids,omitempty"`
	Current    orders.Status `json:"current_status,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

// writeError maps domain errors onto status codes. Anything unrecognised is a
// 500 and is logged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		oos *checkout.OutOfStockError
		ve  *checkout.ValidationError
		te  *orders.TransitionError
	)
	switch {
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, errorBody{Error: "out of stock", VariantIDs: oos.VariantIDs})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Reason, Field: ve.Field})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid transition", Current: te.Current})

	case errors.Is(err, idempotency.ErrKeyInFlight):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this idempotency key is in progress"})

	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrVariantNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, inventory.ErrVariantNotFound),
		errors.Is(err, accounts.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})

	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, orders.ErrDuplicateOrder):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})

	case errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidCursor),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrNoOwner),
		errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})

	case errors.Is(err, payments.ErrAmountMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, payments.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid signature"})
	case errors.Is(err, checkout.ErrPaymentSession),
		errors.Is(err, payments.ErrGateway):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "payment provider unavailable"})

	default:
		log.Error("request failed",
			slog.String("req_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json: " + err.Error())
	}
	return nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid id")
	}
	return id, nil
}
