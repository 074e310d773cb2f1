package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-permata/internal/catalog"
	"github.com/noah-isme/backend-permata/internal/customer"
	"github.com/noah-isme/backend-permata/internal/db"
	"github.com/noah-isme/backend-permata/internal/discount"
	"github.com/noah-isme/backend-permata/internal/events"
	"github.com/noah-isme/backend-permata/internal/obs"
	"github.com/noah-isme/backend-permata/internal/pricing"
	"github.com/noah-isme/backend-permata/internal/shop"
)

// fakeRunner executes the transactional function without a database. A nil
// pgx.Tx is fine because all fake stores ignore it.
type fakeRunner struct {
	beforeCommit func() error
	calls        int
}

func (r *fakeRunner) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	r.calls++
	if r.beforeCommit != nil {
		if err := r.beforeCommit(); err != nil {
			return err
		}
	}
	return fn(ctx, nil)
}

type fakeSales struct {
	inserted []*Sale
	err      error
}

func (s *fakeSales) InsertSale(_ context.Context, _ pgx.Tx, sale *Sale) error {
	if s.err != nil {
		return s.err
	}
	copied := *sale
	s.inserted = append(s.inserted, &copied)
	return nil
}

func (s *fakeSales) GetSale(_ context.Context, _, saleID uuid.UUID) (Sale, error) {
	for _, sale := range s.inserted {
		if sale.ID == saleID {
			return *sale, nil
		}
	}
	return Sale{}, ErrSaleNotFound
}

func (s *fakeSales) ListSales(_ context.Context, _ uuid.UUID, limit, _ int32) ([]Sale, error) {
	out := make([]Sale, 0, len(s.inserted))
	for _, sale := range s.inserted {
		out = append(out, *sale)
	}
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCatalog struct {
	items map[uuid.UUID]catalog.Item
}

func (c *fakeCatalog) GetItem(_ context.Context, shopID, itemID uuid.UUID) (catalog.Item, error) {
	item, ok := c.items[itemID]
	if !ok {
		return catalog.Item{}, catalog.ErrItemNotFound
	}
	item.ShopID = shopID
	return item, nil
}

type fakeStock struct {
	levels     map[uuid.UUID]int64
	locked     [][]uuid.UUID
	decrements map[uuid.UUID]int64
}

func (s *fakeStock) LockStock(_ context.Context, _ pgx.Tx, itemIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.locked = append(s.locked, append([]uuid.UUID(nil), itemIDs...))
	out := make(map[uuid.UUID]int64, len(itemIDs))
	for _, id := range itemIDs {
		out[id] = s.levels[id]
	}
	return out, nil
}

func (s *fakeStock) DecrementStock(_ context.Context, _ pgx.Tx, itemID uuid.UUID, quantity int64) error {
	if s.levels[itemID] < quantity {
		return errors.New("stock went negative")
	}
	s.levels[itemID] -= quantity
	if s.decrements == nil {
		s.decrements = make(map[uuid.UUID]int64)
	}
	s.decrements[itemID] += quantity
	return nil
}

type fakeShops struct {
	settings shop.Settings
	next     int64
	allocs   int
}

func (s *fakeShops) Settings(_ context.Context, _ uuid.UUID) (shop.Settings, error) {
	return s.settings, nil
}

func (s *fakeShops) AllocateInvoiceNumber(_ context.Context, _ pgx.Tx, _ uuid.UUID) (shop.InvoiceNumber, error) {
	s.allocs++
	seq := s.next
	s.next++
	return shop.InvoiceNumber{
		Number:   shop.FormatInvoiceNumber(s.settings.BillingPrefix, seq, s.settings.InvoicePadWidth),
		Sequence: seq,
	}, nil
}

type fakeCustomers struct {
	known map[uuid.UUID]bool
}

func (c *fakeCustomers) Exists(_ context.Context, _, customerID uuid.UUID) error {
	if !c.known[customerID] {
		return customer.ErrCustomerNotFound
	}
	return nil
}

type fakeEmitter struct {
	topics []string
	ids    []uuid.UUID
}

func (e *fakeEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) error {
	e.topics = append(e.topics, topic)
	e.ids = append(e.ids, aggregateID)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc    *Service
	runner *fakeRunner
	sales  *fakeSales
	stock  *fakeStock
	shops  *fakeShops
	events *fakeEmitter
	itemID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	itemID := uuid.New()
	runner := &fakeRunner{}
	sales := &fakeSales{}
	stock := &fakeStock{levels: map[uuid.UUID]int64{itemID: 10}}
	shops := &fakeShops{
		settings: shop.Settings{
			BillingPrefix:       "PJ-",
			InvoicePadWidth:     6,
			MakingChargeTaxRate: dec("5"),
		},
		next: 42,
	}
	emitter := &fakeEmitter{}
	svc := &Service{
		Tx:    runner,
		Sales: sales,
		Catalog: &fakeCatalog{items: map[uuid.UUID]catalog.Item{
			itemID: {ID: itemID, SKU: "RING-22K", Name: "Gold ring"},
		}},
		Stock:                stock,
		Shops:                shops,
		Customers:            &fakeCustomers{known: map[uuid.UUID]bool{}},
		Events:               emitter,
		Currency:             "INR",
		DefaultMakingTaxRate: dec("5"),
		Logger:               zerolog.Nop(),
		Now:                  func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
	return &fixture{svc: svc, runner: runner, sales: sales, stock: stock, shops: shops, events: emitter, itemID: itemID}
}

func goldRingInput(itemID uuid.UUID) Input {
	return Input{
		Lines: []LineInput{{
			ItemID:           itemID.String(),
			Quantity:         1,
			GrossWeight:      dec("8.5"),
			MakingChargeType: "PERCENTAGE",
			MakingChargeRate: dec("12"),
			Materials: []AllocationInput{{
				Weight:      dec("8.5"),
				RatePerUnit: dec("5850"),
				TaxRate:     dec("3"),
			}},
		}},
	}
}

func TestSettleGoldRing(t *testing.T) {
	f := newFixture(t)
	shopID, userID := uuid.New(), uuid.New()

	sale, err := f.svc.Settle(context.Background(), shopID, userID, goldRingInput(f.itemID))
	require.NoError(t, err)

	// 8.5g x 5850 = 49725, making 12% = 5967, base = 55692
	// tax = 3% of 49725 + 5% of 5967 = 1491.75 + 298.35 = 1790.10
	// raw total 57482.10 rounds to 57482, adjustment -0.10
	require.True(t, sale.NetSubtotal.Equal(dec("55692")), "net=%s", sale.NetSubtotal)
	require.True(t, sale.TotalTax.Equal(dec("1790.1")), "tax=%s", sale.TotalTax)
	require.True(t, sale.FinalAmount.Equal(dec("57482")), "final=%s", sale.FinalAmount)
	require.True(t, sale.RoundingAdjustment.Equal(dec("-0.1")), "adj=%s", sale.RoundingAdjustment)

	require.Equal(t, "PJ-000042", sale.InvoiceNumber)
	require.Equal(t, "INR", sale.CurrencyCode)
	require.Equal(t, StatusCompleted, sale.Status)
	require.Equal(t, PaymentStatusUnpaid, sale.PaymentStatus)
	require.Equal(t, userID, sale.CreatedBy)

	require.Len(t, sale.Lines, 1)
	line := sale.Lines[0]
	require.True(t, line.LineTotal.Equal(dec("55692")))
	require.Len(t, line.Materials, 1)
	require.True(t, line.Materials[0].Value.Equal(dec("49725")))
	require.True(t, line.Materials[0].Tax.Equal(dec("1491.75")))

	require.Equal(t, int64(9), f.stock.levels[f.itemID])
	require.Len(t, f.sales.inserted, 1)
	require.Equal(t, []string{events.TopicSaleSettled}, f.events.topics)
}

func TestSettleDiscounts(t *testing.T) {
	f := newFixture(t)
	in := goldRingInput(f.itemID)
	in.Lines[0].Discount = &DiscountInput{Kind: "AMOUNT", Value: dec("692")}
	in.OrderDiscount = &DiscountInput{Kind: "PERCENT", Value: dec("10")}

	sale, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), in)
	require.NoError(t, err)

	// item-level 692 leaves 55000; 10% order discount on 55000 adds 5500
	require.True(t, sale.TotalDiscount.Equal(dec("6192")), "discount=%s", sale.TotalDiscount)
	require.True(t, sale.Lines[0].LineTotal.Equal(dec("55000")))
	// tax stays against pre-discount values by default
	require.True(t, sale.TotalTax.Equal(dec("1790.1")))
	// 55692 - 6192 + 1790.1 = 51290.1 -> 51290
	require.True(t, sale.FinalAmount.Equal(dec("51290")), "final=%s", sale.FinalAmount)
}

func TestSettleDiscountExceedsBase(t *testing.T) {
	f := newFixture(t)
	in := goldRingInput(f.itemID)
	in.Lines[0].Discount = &DiscountInput{Kind: "AMOUNT", Value: dec("60000")}

	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), in)
	require.ErrorIs(t, err, discount.ErrDiscountExceedsBase)
	require.Zero(t, f.runner.calls, "pricing failures must not open a transaction")
	require.Empty(t, f.sales.inserted)
}

func TestSettleInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.stock.levels[f.itemID] = 0

	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)

	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, f.itemID, stockErr.ItemID)
	require.Equal(t, int64(1), stockErr.Requested)
	require.Equal(t, int64(0), stockErr.Available)

	require.Empty(t, f.sales.inserted)
	require.Empty(t, f.stock.decrements)
	require.Empty(t, f.events.topics)
}

func TestSettleUnknownItem(t *testing.T) {
	f := newFixture(t)
	in := goldRingInput(uuid.New())

	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), in)
	require.ErrorIs(t, err, catalog.ErrItemNotFound)
	require.Zero(t, f.runner.calls)
}

func TestSettleUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	in := goldRingInput(f.itemID)
	unknown := uuid.New().String()
	in.CustomerID = &unknown

	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), in)
	require.ErrorIs(t, err, customer.ErrCustomerNotFound)
}

func TestSettleRetriesSerializationConflicts(t *testing.T) {
	f := newFixture(t)
	failures := 2
	f.runner.beforeCommit = func() error {
		if failures > 0 {
			failures--
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	}
	f.svc.RetryBackoff = time.Millisecond

	sale, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
	require.NoError(t, err)
	require.Equal(t, 3, f.runner.calls)
	require.Equal(t, "PJ-000042", sale.InvoiceNumber)
	require.Len(t, f.sales.inserted, 1)
}

func TestSettleGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.runner.beforeCommit = func() error { return &pgconn.PgError{Code: "40001"} }
	f.svc.MaxAttempts = 2
	f.svc.RetryBackoff = time.Millisecond

	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
	require.Error(t, err)
	require.True(t, db.IsSerializationFailure(err))
	require.Equal(t, 2, f.runner.calls)
	require.Empty(t, f.sales.inserted)
}

func TestSettleAggregatesQuantitiesAcrossLines(t *testing.T) {
	f := newFixture(t)
	in := goldRingInput(f.itemID)
	in.Lines = append(in.Lines, in.Lines[0])
	in.Lines[1].Quantity = 2
	f.stock.levels[f.itemID] = 3

	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), in)
	require.NoError(t, err)
	require.Equal(t, int64(0), f.stock.levels[f.itemID])
	require.Equal(t, int64(3), f.stock.decrements[f.itemID])
}

func TestSettlePostDiscountTaxBasis(t *testing.T) {
	f := newFixture(t)
	f.svc.TaxBasis = pricing.TaxBasisPostDiscount
	in := goldRingInput(f.itemID)
	in.OrderDiscount = &DiscountInput{Kind: "PERCENT", Value: dec("50")}

	sale, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), in)
	require.NoError(t, err)
	// halving the taxable value halves the tax
	require.True(t, sale.TotalTax.Equal(dec("895.05")), "tax=%s", sale.TotalTax)
}

func TestSettleRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), Input{})
	require.ErrorIs(t, err, pricing.ErrInvalidAllocation)
}

func TestSettleStampsConfiguredCurrency(t *testing.T) {
	f := newFixture(t)
	f.svc.Currency = "AED"

	sale, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
	require.NoError(t, err)
	require.Equal(t, "AED", sale.CurrencyCode)

	f = newFixture(t)
	f.svc.Currency = ""
	sale, err = f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
	require.NoError(t, err)
	require.Equal(t, "INR", sale.CurrencyCode)
}

func TestSettleCountsInvoiceAllocations(t *testing.T) {
	obs.MustRegisterDomainMetrics("permata", prometheus.NewRegistry())
	f := newFixture(t)

	before := testutil.ToFloat64(obs.InvoiceAllocations)
	_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(obs.InvoiceAllocations))
}

func TestListSalesClampsLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Settle(context.Background(), uuid.New(), uuid.New(), goldRingInput(f.itemID))
		require.NoError(t, err)
	}

	sales, err := f.svc.ListSales(context.Background(), uuid.New(), -5, 0)
	require.NoError(t, err)
	require.Len(t, sales, 3)
}
