package customer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCustomerNotFound indicates the referenced customer does not exist for
// the shop.
var ErrCustomerNotFound = errors.New("customer: not found")

// Repository provides the existence check the settlement path needs from the
// customer directory; directory CRUD lives elsewhere.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Exists verifies the customer belongs to the shop.
func (r *Repository) Exists(ctx context.Context, shopID, customerID uuid.UUID) error {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 AND shop_id = $2`, customerID, shopID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCustomerNotFound
		}
		return err
	}
	return nil
}
