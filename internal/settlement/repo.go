package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSaleNotFound indicates the sale does not exist for the shop.
var ErrSaleNotFound = errors.New("settlement: sale not found")

// Repository persists sales and their nested lines and allocations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertSale writes the sale aggregate inside the settlement transaction.
func (r *Repository) InsertSale(ctx context.Context, tx pgx.Tx, sale *Sale) error {
	_, err := tx.Exec(ctx, `INSERT INTO sales (id, shop_id, invoice_number, customer_id, currency_code, sold_at, net_subtotal, total_discount, total_tax, final_amount, rounding_adjustment, payment_status, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		sale.ID, sale.ShopID, sale.InvoiceNumber, sale.CustomerID, sale.CurrencyCode, sale.SoldAt,
		sale.NetSubtotal, sale.TotalDiscount, sale.TotalTax, sale.FinalAmount,
		sale.RoundingAdjustment, sale.PaymentStatus, sale.Status, sale.CreatedBy)
	if err != nil {
		return err
	}
	for _, line := range sale.Lines {
		_, err := tx.Exec(ctx, `INSERT INTO sale_lines (id, sale_id, item_id, quantity, gross_weight, wastage_pct, making_charge_type, making_charge_rate, discount_kind, discount_value, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			line.ID, sale.ID, line.ItemID, line.Quantity, line.GrossWeight, line.WastagePct,
			line.MakingChargeType, line.MakingChargeRate, line.DiscountKind, line.DiscountValue, line.LineTotal)
		if err != nil {
			return err
		}
		for _, alloc := range line.Materials {
			if err := insertAllocation(ctx, tx, "sale_line_materials", line.ID, alloc); err != nil {
				return err
			}
		}
		for _, alloc := range line.Gemstones {
			if err := insertAllocation(ctx, tx, "sale_line_gemstones", line.ID, alloc); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertAllocation(ctx context.Context, tx pgx.Tx, table string, lineID uuid.UUID, alloc Allocation) error {
	_, err := tx.Exec(ctx, `INSERT INTO `+table+` (id, sale_line_id, weight, rate_per_unit, tax_rate, value, tax)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		alloc.ID, lineID, alloc.Weight, alloc.RatePerUnit, alloc.TaxRate, alloc.Value, alloc.Tax)
	return err
}

// GetSale hydrates one sale with its lines and allocation snapshots.
func (r *Repository) GetSale(ctx context.Context, shopID, saleID uuid.UUID) (Sale, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `SELECT id, shop_id, invoice_number, customer_id, currency_code, sold_at, net_subtotal, total_discount, total_tax, final_amount, rounding_adjustment, payment_status, status, created_by
FROM sales WHERE id = $1 AND shop_id = $2`, saleID, shopID).
		Scan(&sale.ID, &sale.ShopID, &sale.InvoiceNumber, &sale.CustomerID, &sale.CurrencyCode, &sale.SoldAt,
			&sale.NetSubtotal, &sale.TotalDiscount, &sale.TotalTax, &sale.FinalAmount,
			&sale.RoundingAdjustment, &sale.PaymentStatus, &sale.Status, &sale.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	if err := r.loadLines(ctx, &sale); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// ListSales returns the shop's sales ordered newest first, without nested
// allocations; retrieval of a single sale hydrates the full aggregate.
func (r *Repository) ListSales(ctx context.Context, shopID uuid.UUID, limit, offset int32) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shop_id, invoice_number, customer_id, currency_code, sold_at, net_subtotal, total_discount, total_tax, final_amount, rounding_adjustment, payment_status, status, created_by
FROM sales WHERE shop_id = $1 ORDER BY sold_at DESC, id DESC LIMIT $2 OFFSET $3`, shopID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sales := []Sale{}
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(&sale.ID, &sale.ShopID, &sale.InvoiceNumber, &sale.CustomerID, &sale.CurrencyCode, &sale.SoldAt,
			&sale.NetSubtotal, &sale.TotalDiscount, &sale.TotalTax, &sale.FinalAmount,
			&sale.RoundingAdjustment, &sale.PaymentStatus, &sale.Status, &sale.CreatedBy); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (r *Repository) loadLines(ctx context.Context, sale *Sale) error {
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, quantity, gross_weight, wastage_pct, making_charge_type, making_charge_rate, discount_kind, discount_value, line_total
FROM sale_lines WHERE sale_id = $1 ORDER BY id`, sale.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.ItemID, &line.Quantity, &line.GrossWeight, &line.WastagePct,
			&line.MakingChargeType, &line.MakingChargeRate, &line.DiscountKind, &line.DiscountValue, &line.LineTotal); err != nil {
			return err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range sale.Lines {
		line := &sale.Lines[i]
		if line.Materials, err = r.loadAllocations(ctx, "sale_line_materials", line.ID); err != nil {
			return err
		}
		if line.Gemstones, err = r.loadAllocations(ctx, "sale_line_gemstones", line.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) loadAllocations(ctx context.Context, table string, lineID uuid.UUID) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, weight, rate_per_unit, tax_rate, value, tax FROM `+table+` WHERE sale_line_id = $1 ORDER BY id`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	allocs := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.Weight, &a.RatePerUnit, &a.TaxRate, &a.Value, &a.Tax); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}
