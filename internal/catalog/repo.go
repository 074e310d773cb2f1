package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to inventory master data and
// stock levels.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetItem loads an item with its current stock quantity. Rates returned here
// are snapshots for display; settlement prices from the request payload.
func (r *Repository) GetItem(ctx context.Context, shopID, itemID uuid.UUID) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT i.id, i.shop_id, i.sku, i.name, i.making_charge_type, i.making_charge_rate, COALESCE(s.quantity, 0)
FROM inventory_items i
LEFT JOIN stock_levels s ON s.item_id = i.id
WHERE i.id = $1 AND i.shop_id = $2`, itemID, shopID).
		Scan(&item.ID, &item.ShopID, &item.SKU, &item.Name, &item.MakingChargeType, &item.MakingChargeRate, &item.StockQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// LockStock acquires row locks on the stock rows of the given items and
// returns the on-hand quantity observed under the lock. Rows are locked one
// at a time in ascending item-id order; every settlement uses the same order,
// after the shop settings row, so concurrent sales cannot deadlock.
func (r *Repository) LockStock(ctx context.Context, tx pgx.Tx, itemIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	sorted := make([]uuid.UUID, len(itemIDs))
	copy(sorted, itemIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	quantities := make(map[uuid.UUID]int64, len(sorted))
	for _, id := range sorted {
		if _, seen := quantities[id]; seen {
			continue
		}
		var qty int64
		err := tx.QueryRow(ctx, `SELECT quantity FROM stock_levels WHERE item_id = $1 FOR UPDATE`, id).Scan(&qty)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrItemNotFound
			}
			return nil, err
		}
		quantities[id] = qty
	}
	return quantities, nil
}

// DecrementStock subtracts a committed sale's quantity from the locked stock
// row. Callers must have validated availability under LockStock first.
func (r *Repository) DecrementStock(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, quantity int64) error {
	tag, err := tx.Exec(ctx, `UPDATE stock_levels SET quantity = quantity - $2, updated_at = NOW() WHERE item_id = $1`, itemID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
