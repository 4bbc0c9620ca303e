package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/inventory"
)

type StockLedger interface {
	Adjust(ctx context.Context, adj inventory.Adjustment) (inventory.Record, error)
	Get(ctx context.Context, variantID uuid.UUID) (inventory.Record, error)
	List(ctx context.Context, f inventory.Filter) (inventory.Page, error)
}

type InventoryHandler struct {
	Ledger StockLedger
	Logger *slog.Logger
}

func (h *InventoryHandler) Register(_, admin chi.Router) {
	admin.Post("/admin/inventory/adjust", h.adjust)
	admin.Get("/admin/inventory/{variant_id}", h.get)
	admin.Get("/admin/inventory", h.list)
}

// adjustBody treats quantity as a signed delta when adjust_delta is set and as
// the new absolute quantity otherwise.
type adjustBody struct {
	VariantID         uuid.UUID `json:"variant_id"`
	Quantity          *int      `json:"quantity"`
	AdjustDelta       bool      `json:"adjust_delta"`
	LowStockThreshold *int      `json:"low_stock_threshold"`
	Reason            string    `json:"reason"`
}

func (b adjustBody) adjustment() (inventory.Adjustment, error) {
	switch {
	case b.VariantID == uuid.Nil:
		return inventory.Adjustment{}, badRequest("variant_id is required")
	case b.Quantity == nil:
		return inventory.Adjustment{}, badRequest("quantity is required")
	}
	return inventory.Adjustment{
		VariantID:         b.VariantID,
		Amount:            *b.Quantity,
		Mode:              lo.Ternary(b.AdjustDelta, inventory.ModeDelta, inventory.ModeAbsolute),
		LowStockThreshold: b.LowStockThreshold,
		Reason:            b.Reason,
	}, nil
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	log := logger(h.Logger)
	var body adjustBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, log, err)
		return
	}
	adj, err := body.adjustment()
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	rec, err := h.Ledger.Adjust(r.Context(), adj)
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "variant_id"))
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	rec, err := h.Ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := inventory.Filter{
		SKU:    q.Get("sku"),
		Cursor: q.Get("cursor"),
	}
	if v := q.Get("low_stock"); v != "" {
		low, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, logger(h.Logger), badRequest("low_stock must be a boolean"))
			return
		}
		f.LowStockOnly = low
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, logger(h.Logger), badRequest("limit must be a positive integer"))
			return
		}
		f.Limit = n
	}
	page, err := h.Ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
