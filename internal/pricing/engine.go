package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAllocation is returned when a line carries a non-positive weight,
// rate, or quantity, or an unrecognized making charge policy.
var ErrInvalidAllocation = errors.New("pricing: invalid allocation")

// MakingChargeType enumerates the supported making charge policies.
type MakingChargeType string

const (
	// MakingChargePercentage charges a percentage of material plus gemstone value.
	MakingChargePercentage MakingChargeType = "PERCENTAGE"
	// MakingChargePerWeightUnit charges a flat rate per unit of gross weight.
	MakingChargePerWeightUnit MakingChargeType = "PER_WEIGHT_UNIT"
	// MakingChargeFixed charges the configured rate verbatim.
	MakingChargeFixed MakingChargeType = "FIXED"
)

// ParseMakingChargeType validates a wire value against the known policies.
func ParseMakingChargeType(value string) (MakingChargeType, error) {
	switch MakingChargeType(value) {
	case MakingChargePercentage, MakingChargePerWeightUnit, MakingChargeFixed:
		return MakingChargeType(value), nil
	default:
		return "", fmt.Errorf("%w: unrecognized making charge type %q", ErrInvalidAllocation, value)
	}
}

// Allocation is a weighted, rated portion of material or gemstone attached to
// a line. Rates and tax rates are snapshots taken at sale time; they never
// follow later catalog changes.
type Allocation struct {
	Weight  decimal.Decimal
	Rate    decimal.Decimal
	TaxRate decimal.Decimal
}

// Line is one cart line submitted for pricing.
type Line struct {
	Quantity         int
	GrossWeight      decimal.Decimal
	WastagePct       decimal.Decimal
	MakingChargeType MakingChargeType
	MakingChargeRate decimal.Decimal
	Materials        []Allocation
	Gemstones        []Allocation
}

// AllocationValue is the computed value and tax of a single allocation,
// persisted with the sale as a point-in-time snapshot.
type AllocationValue struct {
	Value decimal.Decimal
	Tax   decimal.Decimal
}

// LineResult carries the computed value and tax components of one line.
// Base = MaterialValue + GemstoneValue + MakingCharge, exact with no
// intermediate rounding.
type LineResult struct {
	MaterialValue  decimal.Decimal
	GemstoneValue  decimal.Decimal
	MakingCharge   decimal.Decimal
	Base           decimal.Decimal
	TaxOnMaterials decimal.Decimal
	TaxOnGemstones decimal.Decimal
	TaxOnMaking    decimal.Decimal
	MaterialDetail []AllocationValue
	GemstoneDetail []AllocationValue
}

// TotalTax sums the per-component taxes of the line.
func (r LineResult) TotalTax() decimal.Decimal {
	return r.TaxOnMaterials.Add(r.TaxOnGemstones).Add(r.TaxOnMaking)
}

var oneHundred = decimal.NewFromInt(100)

// ComputeLine prices a single line. makingTaxRate is the shop's configured
// tax rate for making charges, expressed as a percentage. Wastage is assumed
// already folded into GrossWeight by the catalog before this stage; the field
// is carried for the sale record only.
func ComputeLine(line Line, makingTaxRate decimal.Decimal) (LineResult, error) {
	if line.Quantity <= 0 {
		return LineResult{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidAllocation, line.Quantity)
	}
	if !line.GrossWeight.IsPositive() {
		return LineResult{}, fmt.Errorf("%w: grossWeight must be positive, got %s", ErrInvalidAllocation, line.GrossWeight)
	}
	if line.WastagePct.IsNegative() {
		return LineResult{}, fmt.Errorf("%w: wastagePct must not be negative, got %s", ErrInvalidAllocation, line.WastagePct)
	}
	if len(line.Materials) == 0 {
		return LineResult{}, fmt.Errorf("%w: at least one material allocation is required", ErrInvalidAllocation)
	}
	if _, err := ParseMakingChargeType(string(line.MakingChargeType)); err != nil {
		return LineResult{}, err
	}
	if line.MakingChargeRate.IsNegative() {
		return LineResult{}, fmt.Errorf("%w: makingChargeRate must not be negative, got %s", ErrInvalidAllocation, line.MakingChargeRate)
	}

	var result LineResult
	for i, alloc := range line.Materials {
		value, tax, err := allocationValue(alloc, fmt.Sprintf("materials[%d]", i))
		if err != nil {
			return LineResult{}, err
		}
		result.MaterialValue = result.MaterialValue.Add(value)
		result.TaxOnMaterials = result.TaxOnMaterials.Add(tax)
		result.MaterialDetail = append(result.MaterialDetail, AllocationValue{Value: value, Tax: tax})
	}
	for i, alloc := range line.Gemstones {
		value, tax, err := allocationValue(alloc, fmt.Sprintf("gemstones[%d]", i))
		if err != nil {
			return LineResult{}, err
		}
		result.GemstoneValue = result.GemstoneValue.Add(value)
		result.TaxOnGemstones = result.TaxOnGemstones.Add(tax)
		result.GemstoneDetail = append(result.GemstoneDetail, AllocationValue{Value: value, Tax: tax})
	}

	switch line.MakingChargeType {
	case MakingChargePercentage:
		result.MakingCharge = result.MaterialValue.Add(result.GemstoneValue).
			Mul(line.MakingChargeRate).Div(oneHundred)
	case MakingChargePerWeightUnit:
		result.MakingCharge = line.GrossWeight.Mul(line.MakingChargeRate)
	case MakingChargeFixed:
		result.MakingCharge = line.MakingChargeRate
	}
	if makingTaxRate.IsNegative() {
		return LineResult{}, fmt.Errorf("%w: making charge tax rate must not be negative, got %s", ErrInvalidAllocation, makingTaxRate)
	}
	result.TaxOnMaking = result.MakingCharge.Mul(makingTaxRate).Div(oneHundred)

	result.Base = result.MaterialValue.Add(result.GemstoneValue).Add(result.MakingCharge)
	return result, nil
}

func allocationValue(alloc Allocation, field string) (value, tax decimal.Decimal, err error) {
	if !alloc.Weight.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s.weight must be positive, got %s", ErrInvalidAllocation, field, alloc.Weight)
	}
	if !alloc.Rate.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s.rate must be positive, got %s", ErrInvalidAllocation, field, alloc.Rate)
	}
	if alloc.TaxRate.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s.taxRate must not be negative, got %s", ErrInvalidAllocation, field, alloc.TaxRate)
	}
	value = alloc.Weight.Mul(alloc.Rate)
	tax = value.Mul(alloc.TaxRate).Div(oneHundred)
	return value, tax, nil
}
