package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrItemNotFound indicates the inventory item does not exist for the shop.
var ErrItemNotFound = errors.New("catalog: item not found")

// ErrInsufficientStock is the sentinel matched by errors.Is against
// InsufficientStockError.
var ErrInsufficientStock = errors.New("catalog: insufficient stock")

// Item is the catalog master data consulted before pricing a line.
type Item struct {
	ID               uuid.UUID
	ShopID           uuid.UUID
	SKU              string
	Name             string
	MakingChargeType string
	MakingChargeRate decimal.Decimal
	StockQuantity    int64
}

// InsufficientStockError reports the offending item with requested versus
// available quantity so POS staff can correct the cart and retry.
type InsufficientStockError struct {
	ItemID    uuid.UUID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("catalog: insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
