package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Direction enumerates stock movement directions against the item master.
type Direction string

const (
	// DirectionInward represents a purchase arrival.
	DirectionInward Direction = "INWARD"
	// DirectionOutward represents an approved issue to a project.
	DirectionOutward Direction = "OUTWARD"
)

// Batch models a purchased stock lot. Batches are append-only: quantity
// remaining is decremented by allocations but rows are never deleted, so the
// original cost and arrival order survive.
type Batch struct {
	ID           int64
	ItemID       int64
	GodownID     int64
	ProductID    int64
	QtyRemaining float64
	UnitPrice    decimal.Decimal
	PurchasedAt  time.Time
}

// Item is the item-master record carrying the company-wide stock level.
type Item struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Unit      string
	StockQty  float64
}

// GodownStock is the derived (godown, item) aggregate. Batch quantity
// remaining is ground truth; this row is a cache reconciled by the worker.
type GodownStock struct {
	GodownID  int64
	ItemID    int64
	Qty       float64
	UpdatedAt time.Time
}

// GodownDelta describes a pending aggregate adjustment for one godown/item.
type GodownDelta struct {
	GodownID int64
	ItemID   int64
	Qty      float64
}

// Draw is one batch consumption decided by the FIFO allocator.
type Draw struct {
	BatchID   int64
	GodownID  int64
	ProductID int64
	Qty       float64
	UnitPrice decimal.Decimal
}

// Plan is the full allocation breakdown for one requested quantity.
type Plan struct {
	Draws     []Draw
	Allocated float64
	Shortfall float64
}

// Value prices the plan at each batch's own unit cost.
func (p Plan) Value() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Draws {
		total = total.Add(decimal.NewFromFloat(d.Qty).Mul(d.UnitPrice))
	}
	return total
}

var (
	// ErrInsufficientStock triggered when an outward movement would drive the
	// item-master stock level negative.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrItemNotFound indicates a missing item-master row.
	ErrItemNotFound = errors.New("stock: item not found")
	// ErrBatchShortfall indicates the batch ledger held less than the item
	// master promised; the allocator refuses to draw phantom stock.
	ErrBatchShortfall = errors.New("stock: batch ledger short of requested quantity")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
)
