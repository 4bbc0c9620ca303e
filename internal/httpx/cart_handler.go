package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-realtime-checkout.git/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout.git/internal/catalog"
)

type CartStore interface {
	Get(ctx context.Context, ref cart.Ref) (cart.Cart, error)
	AddItem(ctx context.Context, ref cart.Ref, variantID uuid.UUID, qty int) (cart.Cart, error)
	UpdateItem(ctx context.Context, ref cart.Ref, itemID uuid.UUID, qty int) (cart.Cart, error)
	RemoveItem(ctx context.Context, ref cart.Ref, itemID uuid.UUID) (cart.Cart, error)
}

type ProductReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.ProductView, error)
}

// CartHandler also serves product reads, the only catalog surface a shopper needs.
type CartHandler struct {
	Carts    CartStore
	Products ProductReader
	Logger   *slog.Logger
}

func (h *CartHandler) Register(public, _ chi.Router) {
	public.Get("/products/{id}", h.product)

	public.Get("/cart", h.get)
	public.Post("/cart/items", h.add)
	public.Patch("/cart/items/{item_id}", h.update)
	public.Delete("/cart/items/{item_id}", h.remove)
}

type cartView struct {
	cart.Cart
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, c cart.Cart, err error) {
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, cartView{Cart: c, Subtotal: c.Subtotal()})
}

func ref(r *http.Request) cart.Ref {
	c := CallerFrom(r.Context())
	ref := cart.Ref{UserID: c.AccountID, GuestToken: c.GuestToken}
	if raw := r.URL.Query().Get("cart_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			ref.CartID = &id
		}
	}
	return ref
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Carts.Get(r.Context(), ref(r))
	h.respond(w, r, c, err)
}

type addItemBody struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var body addItemBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	c, err := h.Carts.AddItem(r.Context(), ref(r), body.VariantID, body.Quantity)
	h.respond(w, r, c, err)
}

type updateItemBody struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseID(chi.URLParam(r, "item_id"))
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	var body updateItemBody
	if err := decode(r, &body); err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	c, err := h.Carts.UpdateItem(r.Context(), ref(r), itemID, body.Quantity)
	h.respond(w, r, c, err)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseID(chi.URLParam(r, "item_id"))
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	c, err := h.Carts.RemoveItem(r.Context(), ref(r), itemID)
	h.respond(w, r, c, err)
}

func (h *CartHandler) product(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	p, err := h.Products.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, r, logger(h.Logger), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
