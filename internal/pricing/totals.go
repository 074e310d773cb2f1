package pricing

import "github.com/shopspring/decimal"

// TaxBasis names the point in the pipeline at which tax is computed. The
// local indirect-tax treatment of jewelry levies tax on the goods' value
// before discounts are netted out, so PreDiscount is the default; the basis
// is an explicit configuration point rather than a hard-coded ordering.
type TaxBasis string

const (
	// TaxBasisPreDiscount taxes the full pre-discount value of goods.
	TaxBasisPreDiscount TaxBasis = "PRE_DISCOUNT"
	// TaxBasisPostDiscount scales tax down in proportion to the discount.
	TaxBasisPostDiscount TaxBasis = "POST_DISCOUNT"
)

// Totals are the order-level figures persisted on a settled sale.
// Invariants: FinalAmount = round(NetSubtotal - TotalDiscount + TotalTax)
// and RoundingAdjustment = FinalAmount - the unrounded figure.
type Totals struct {
	NetSubtotal        decimal.Decimal
	TotalDiscount      decimal.Decimal
	TotalTax           decimal.Decimal
	FinalAmountRaw     decimal.Decimal
	FinalAmount        decimal.Decimal
	RoundingAdjustment decimal.Decimal
}

// AssembleTotals folds line results and the resolved discount into the final
// sale figures. Rounding is half-up to the nearest whole currency unit; the
// signed adjustment is kept for audit reconciliation, never dropped.
func AssembleTotals(lines []LineResult, totalDiscount decimal.Decimal, basis TaxBasis) Totals {
	var net, tax decimal.Decimal
	for _, line := range lines {
		net = net.Add(line.Base)
		tax = tax.Add(line.TotalTax())
	}
	if basis == TaxBasisPostDiscount && net.IsPositive() {
		taxable := net.Sub(totalDiscount)
		if taxable.IsNegative() {
			taxable = decimal.Zero
		}
		tax = tax.Mul(taxable).Div(net)
	}
	raw := net.Sub(totalDiscount).Add(tax)
	final := raw.Round(0)
	return Totals{
		NetSubtotal:        net,
		TotalDiscount:      totalDiscount,
		TotalTax:           tax,
		FinalAmountRaw:     raw,
		FinalAmount:        final,
		RoundingAdjustment: final.Sub(raw),
	}
}
