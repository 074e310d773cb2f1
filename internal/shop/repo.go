package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrSequenceUnavailable indicates the shop's settings row could not be read
// or locked; transient, the caller may retry.
var ErrSequenceUnavailable = errors.New("shop: invoice sequence unavailable")

// Settings is the per-shop billing configuration read before settlement.
type Settings struct {
	ShopID              uuid.UUID
	BillingPrefix       string
	NextInvoiceNumber   int64
	InvoicePadWidth     int
	MakingChargeTaxRate decimal.Decimal
}

// InvoiceNumber is the allocated, formatted invoice identity.
type InvoiceNumber struct {
	Number   string
	Sequence int64
}

// FormatInvoiceNumber renders prefix plus zero-padded sequence, e.g.
// "INV-000042" for width 6.
func FormatInvoiceNumber(prefix string, sequence int64, width int) string {
	if width <= 0 {
		return fmt.Sprintf("%s%d", prefix, sequence)
	}
	return fmt.Sprintf("%s%0*d", prefix, width, sequence)
}

// Repository provides PostgreSQL backed access to shop settings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Settings reads the shop configuration outside of any settlement
// transaction, for pricing inputs such as the making charge tax rate.
func (r *Repository) Settings(ctx context.Context, shopID uuid.UUID) (Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `SELECT shop_id, billing_prefix, next_invoice_number, invoice_pad_width, making_charge_tax_rate
FROM shop_settings WHERE shop_id = $1`, shopID).
		Scan(&s.ShopID, &s.BillingPrefix, &s.NextInvoiceNumber, &s.InvoicePadWidth, &s.MakingChargeTaxRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrSequenceUnavailable
		}
		return Settings{}, err
	}
	return s, nil
}

// AllocateInvoiceNumber locks the shop's settings row, formats the next
// invoice number, and advances the counter, all inside the caller's
// transaction. Two concurrent settlements for the same shop serialize on the
// row lock, so numbers are never duplicated; an aborted transaction rolls the
// counter back with everything else.
func (r *Repository) AllocateInvoiceNumber(ctx context.Context, tx pgx.Tx, shopID uuid.UUID) (InvoiceNumber, error) {
	var (
		prefix string
		next   int64
		width  int
	)
	err := tx.QueryRow(ctx, `SELECT billing_prefix, next_invoice_number, invoice_pad_width
FROM shop_settings WHERE shop_id = $1 FOR UPDATE`, shopID).
		Scan(&prefix, &next, &width)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvoiceNumber{}, ErrSequenceUnavailable
		}
		return InvoiceNumber{}, fmt.Errorf("%w: %v", ErrSequenceUnavailable, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE shop_settings SET next_invoice_number = next_invoice_number + 1, updated_at = NOW()
WHERE shop_id = $1`, shopID); err != nil {
		return InvoiceNumber{}, fmt.Errorf("%w: advance counter: %v", ErrSequenceUnavailable, err)
	}
	return InvoiceNumber{Number: FormatInvoiceNumber(prefix, next, width), Sequence: next}, nil
}
