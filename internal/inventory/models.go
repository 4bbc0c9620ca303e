package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInvalidCursor     = errors.New("invalid cursor")
)

const DefaultLowStockThreshold = 5

type Mode string

const (
	ModeAbsolute Mode = "absolute"
	ModeDelta    Mode = "delta"
)

type Record struct {
	VariantID         uuid.UUID `json:"variant_id"`
	SKU               string    `json:"sku"`
	Quantity          int       `json:"quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	IsLowStock        bool      `json:"is_low_stock"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (r *Record) recompute() { r.IsLowStock = r.Quantity <= r.LowStockThreshold }

type Adjustment struct {
	VariantID         uuid.UUID
	Amount            int
	Mode              Mode
	LowStockThreshold *int
	Reason            string
}

type Filter struct {
	LowStockOnly bool
	SKU          string // prefix match
	Cursor       string
	Limit        int
}

type Page struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

const (
	ReservationReserved = "RESERVED"
	ReservationReleased = "RELEASED"
)

type Reservation struct {
	OrderID    uuid.UUID
	VariantID  uuid.UUID
	Qty        int
	Status     string
	CreatedAt  time.Time
	ReleasedAt *time.Time
}
