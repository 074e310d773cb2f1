package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-permata/internal/catalog"
	"github.com/noah-isme/backend-permata/internal/db"
	"github.com/noah-isme/backend-permata/internal/discount"
	"github.com/noah-isme/backend-permata/internal/events"
	"github.com/noah-isme/backend-permata/internal/obs"
	"github.com/noah-isme/backend-permata/internal/pricing"
	"github.com/noah-isme/backend-permata/internal/shop"
)

// SaleStore persists and reads back settled sales.
type SaleStore interface {
	InsertSale(ctx context.Context, tx pgx.Tx, sale *Sale) error
	GetSale(ctx context.Context, shopID, saleID uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, shopID uuid.UUID, limit, offset int32) ([]Sale, error)
}

// ItemCatalog looks up inventory master data before pricing.
type ItemCatalog interface {
	GetItem(ctx context.Context, shopID, itemID uuid.UUID) (catalog.Item, error)
}

// StockLedger locks and decrements on-hand stock inside the settlement
// transaction.
type StockLedger interface {
	LockStock(ctx context.Context, tx pgx.Tx, itemIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, quantity int64) error
}

// ShopConfig reads billing configuration and allocates invoice numbers.
type ShopConfig interface {
	Settings(ctx context.Context, shopID uuid.UUID) (shop.Settings, error)
	AllocateInvoiceNumber(ctx context.Context, tx pgx.Tx, shopID uuid.UUID) (shop.InvoiceNumber, error)
}

// CustomerDirectory checks that an attached customer exists.
type CustomerDirectory interface {
	Exists(ctx context.Context, shopID, customerID uuid.UUID) error
}

// EventEmitter receives the settled-sale event after commit.
type EventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error
}

// Service orchestrates the sale settlement: pricing, discounting, tax,
// totals, invoice number allocation, stock decrement, and persistence, all as
// one all-or-nothing unit of work.
type Service struct {
	Tx        db.Runner
	Sales     SaleStore
	Catalog   ItemCatalog
	Stock     StockLedger
	Shops     ShopConfig
	Customers CustomerDirectory
	Events    EventEmitter

	// TaxBasis names when tax is computed relative to discounts; the
	// domain default taxes pre-discount value.
	TaxBasis pricing.TaxBasis
	// Currency is the ISO 4217 code stamped on every settled sale.
	Currency string
	// DefaultMakingTaxRate applies when the shop settings carry no
	// making-charge tax rate.
	DefaultMakingTaxRate decimal.Decimal

	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Settle prices, totals, and atomically commits the cart as a sale. On
// serialization conflicts the whole transaction is retried a bounded number
// of times; sub-steps are never retried in isolation.
func (s *Service) Settle(ctx context.Context, shopID, userID uuid.UUID, in Input) (Sale, error) {
	if s == nil || s.Tx == nil || s.Sales == nil || s.Stock == nil || s.Shops == nil {
		return Sale{}, errors.New("settlement: service not configured")
	}
	if len(in.Lines) == 0 {
		return Sale{}, fmt.Errorf("%w: at least one line is required", pricing.ErrInvalidAllocation)
	}

	customerID, err := s.verifyCustomer(ctx, shopID, in.CustomerID)
	if err != nil {
		return Sale{}, err
	}

	lines, itemQuantities, err := s.resolveLines(ctx, shopID, in.Lines)
	if err != nil {
		return Sale{}, err
	}

	settings, err := s.Shops.Settings(ctx, shopID)
	if err != nil {
		return Sale{}, err
	}
	makingTaxRate := settings.MakingChargeTaxRate
	if !makingTaxRate.IsPositive() {
		makingTaxRate = s.DefaultMakingTaxRate
	}

	// Pure computation over the request payload; safe to keep across
	// transaction retries.
	results := make([]pricing.LineResult, len(lines))
	bases := make([]decimal.Decimal, len(lines))
	lineDiscounts := make([]*discount.Discount, len(lines))
	for i, line := range lines {
		result, err := pricing.ComputeLine(line.priced, makingTaxRate)
		if err != nil {
			return Sale{}, err
		}
		results[i] = result
		bases[i] = result.Base
		if d := in.Lines[i].Discount; d != nil {
			lineDiscounts[i] = &discount.Discount{Kind: discount.Kind(d.Kind), Value: d.Value}
		}
	}
	var orderDiscount *discount.Discount
	if in.OrderDiscount != nil {
		orderDiscount = &discount.Discount{Kind: discount.Kind(in.OrderDiscount.Kind), Value: in.OrderDiscount.Value}
	}
	resolution, err := discount.Resolve(bases, lineDiscounts, orderDiscount)
	if err != nil {
		return Sale{}, err
	}
	totals := pricing.AssembleTotals(results, resolution.Total, s.taxBasis())

	sale := s.buildSale(shopID, userID, customerID, in, lines, results, resolution, totals)

	start := s.now()
	if err := s.commitWithRetry(ctx, shopID, &sale, itemQuantities); err != nil {
		obs.ObserveSettlement(s.now().Sub(start), "rejected")
		return Sale{}, err
	}
	obs.ObserveSettlement(s.now().Sub(start), "settled")

	s.emitSettled(ctx, sale)
	return sale, nil
}

// GetSale reads back a committed sale with nested lines and allocations.
func (s *Service) GetSale(ctx context.Context, shopID, saleID uuid.UUID) (Sale, error) {
	return s.Sales.GetSale(ctx, shopID, saleID)
}

// ListSales returns the shop's sales, newest first.
func (s *Service) ListSales(ctx context.Context, shopID uuid.UUID, limit, offset int32) ([]Sale, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Sales.ListSales(ctx, shopID, limit, offset)
}

// resolvedLine couples the parsed request line with its pricing input.
type resolvedLine struct {
	itemID uuid.UUID
	input  LineInput
	priced pricing.Line
}

func (s *Service) resolveLines(ctx context.Context, shopID uuid.UUID, inputs []LineInput) ([]resolvedLine, map[uuid.UUID]int64, error) {
	lines := make([]resolvedLine, 0, len(inputs))
	quantities := make(map[uuid.UUID]int64)
	for i, in := range inputs {
		itemID, err := uuid.Parse(in.ItemID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: lines[%d].itemId is not a valid id", pricing.ErrInvalidAllocation, i)
		}
		if s.Catalog != nil {
			if _, err := s.Catalog.GetItem(ctx, shopID, itemID); err != nil {
				return nil, nil, err
			}
		}
		priced := pricing.Line{
			Quantity:         int(in.Quantity),
			GrossWeight:      in.GrossWeight,
			WastagePct:       in.WastagePct,
			MakingChargeType: pricing.MakingChargeType(in.MakingChargeType),
			MakingChargeRate: in.MakingChargeRate,
			Materials:        toAllocations(in.Materials),
			Gemstones:        toAllocations(in.Gemstones),
		}
		lines = append(lines, resolvedLine{itemID: itemID, input: in, priced: priced})
		quantities[itemID] += in.Quantity
	}
	return lines, quantities, nil
}

func toAllocations(inputs []AllocationInput) []pricing.Allocation {
	if len(inputs) == 0 {
		return nil
	}
	out := make([]pricing.Allocation, len(inputs))
	for i, a := range inputs {
		out[i] = pricing.Allocation{Weight: a.Weight, Rate: a.RatePerUnit, TaxRate: a.TaxRate}
	}
	return out
}

func (s *Service) verifyCustomer(ctx context.Context, shopID uuid.UUID, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, fmt.Errorf("%w: customerId is not a valid id", pricing.ErrInvalidAllocation)
	}
	if s.Customers != nil {
		if err := s.Customers.Exists(ctx, shopID, id); err != nil {
			return nil, err
		}
	}
	return &id, nil
}

func (s *Service) buildSale(shopID, userID uuid.UUID, customerID *uuid.UUID, in Input, lines []resolvedLine, results []pricing.LineResult, resolution discount.Resolution, totals pricing.Totals) Sale {
	sale := Sale{
		ID:                 uuid.New(),
		ShopID:             shopID,
		CustomerID:         customerID,
		CurrencyCode:       s.currency(),
		SoldAt:             s.now(),
		NetSubtotal:        totals.NetSubtotal,
		TotalDiscount:      totals.TotalDiscount,
		TotalTax:           totals.TotalTax,
		FinalAmount:        totals.FinalAmount,
		RoundingAdjustment: totals.RoundingAdjustment,
		PaymentStatus:      PaymentStatusUnpaid,
		Status:             StatusCompleted,
		CreatedBy:          userID,
		Lines:              make([]SaleLine, len(lines)),
	}
	for i, line := range lines {
		result := results[i]
		sl := SaleLine{
			ID:               uuid.New(),
			ItemID:           line.itemID,
			Quantity:         line.input.Quantity,
			GrossWeight:      line.input.GrossWeight,
			WastagePct:       line.input.WastagePct,
			MakingChargeType: line.input.MakingChargeType,
			MakingChargeRate: line.input.MakingChargeRate,
			LineTotal:        result.Base.Sub(resolution.PerLine[i]),
			Materials:        make([]Allocation, len(line.input.Materials)),
			Gemstones:        make([]Allocation, len(line.input.Gemstones)),
		}
		if d := line.input.Discount; d != nil {
			kind := d.Kind
			value := d.Value
			sl.DiscountKind = &kind
			sl.DiscountValue = &value
		}
		for j, a := range line.input.Materials {
			sl.Materials[j] = Allocation{
				ID:          uuid.New(),
				Weight:      a.Weight,
				RatePerUnit: a.RatePerUnit,
				TaxRate:     a.TaxRate,
				Value:       result.MaterialDetail[j].Value,
				Tax:         result.MaterialDetail[j].Tax,
			}
		}
		for j, a := range line.input.Gemstones {
			sl.Gemstones[j] = Allocation{
				ID:          uuid.New(),
				Weight:      a.Weight,
				RatePerUnit: a.RatePerUnit,
				TaxRate:     a.TaxRate,
				Value:       result.GemstoneDetail[j].Value,
				Tax:         result.GemstoneDetail[j].Tax,
			}
		}
		sale.Lines[i] = sl
	}
	return sale
}

// commitWithRetry runs the transactional tail of settlement: invoice number
// allocation, stock validation and decrement, and sale persistence. The shop
// settings row is always locked before any stock row, and stock rows in
// ascending item-id order, so concurrent settlements queue instead of
// deadlocking.
func (s *Service) commitWithRetry(ctx context.Context, shopID uuid.UUID, sale *Sale, itemQuantities map[uuid.UUID]int64) error {
	itemIDs := make([]uuid.UUID, 0, len(itemQuantities))
	for id := range itemQuantities {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i].String() < itemIDs[j].String() })

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := s.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	commit := func(ctx context.Context, tx pgx.Tx) error {
		invoice, err := s.Shops.AllocateInvoiceNumber(ctx, tx, shopID)
		if err != nil {
			return err
		}
		sale.InvoiceNumber = invoice.Number
		obs.IncInvoiceAllocation()

		available, err := s.Stock.LockStock(ctx, tx, itemIDs)
		if err != nil {
			return err
		}
		for _, id := range itemIDs {
			requested := itemQuantities[id]
			if available[id] < requested {
				return &catalog.InsufficientStockError{ItemID: id, Requested: requested, Available: available[id]}
			}
		}
		for _, id := range itemIDs {
			if err := s.Stock.DecrementStock(ctx, tx, id, itemQuantities[id]); err != nil {
				return err
			}
		}
		return s.Sales.InsertSale(ctx, tx, sale)
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = s.Tx.WithTx(ctx, commit)
		if err == nil {
			return nil
		}
		if !db.IsSerializationFailure(err) || attempt >= attempts {
			return err
		}
		obs.IncSettlementRetry()
		s.Logger.Warn().Err(err).Int("attempt", attempt).Msg("settlement conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << (attempt - 1)):
		}
	}
}

func (s *Service) emitSettled(ctx context.Context, sale Sale) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"saleId":        sale.ID.String(),
		"shopId":        sale.ShopID.String(),
		"invoiceNumber": sale.InvoiceNumber,
		"finalAmount":   sale.FinalAmount.String(),
		"currencyCode":  sale.CurrencyCode,
	}
	if err := s.Events.Emit(ctx, events.TopicSaleSettled, sale.ID, payload); err != nil {
		// A committed sale is never failed by notification trouble.
		s.Logger.Error().Err(err).Str("sale_id", sale.ID.String()).Msg("emit sale.settled")
	}
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "INR"
	}
	return s.Currency
}

func (s *Service) taxBasis() pricing.TaxBasis {
	if s.TaxBasis == "" {
		return pricing.TaxBasisPreDiscount
	}
	return s.TaxBasis
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
