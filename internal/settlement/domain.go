package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale statuses. Settlement commits straight to COMPLETED; the richer
// lifecycle (draft, cancelled, returned) is reserved for future flows.
const (
	StatusCompleted = "COMPLETED"
)

// Payment statuses. Settlement records UNPAID; payment transitions are
// handled outside this core.
const (
	PaymentStatusUnpaid = "UNPAID"
	PaymentStatusPaid   = "PAID"
)

// Sale is one settled transaction, immutable once committed except for
// payment status transitions handled elsewhere.
type Sale struct {
	ID                 uuid.UUID       `json:"id"`
	ShopID             uuid.UUID       `json:"shopId"`
	InvoiceNumber      string          `json:"invoiceNumber"`
	CustomerID         *uuid.UUID      `json:"customerId,omitempty"`
	CurrencyCode       string          `json:"currencyCode"`
	SoldAt             time.Time       `json:"soldAt"`
	NetSubtotal        decimal.Decimal `json:"netSubtotal"`
	TotalDiscount      decimal.Decimal `json:"totalDiscount"`
	TotalTax           decimal.Decimal `json:"totalTax"`
	FinalAmount        decimal.Decimal `json:"finalAmount"`
	RoundingAdjustment decimal.Decimal `json:"roundingAdjustment"`
	PaymentStatus      string          `json:"paymentStatus"`
	Status             string          `json:"status"`
	CreatedBy          uuid.UUID       `json:"createdBy"`
	Lines              []SaleLine      `json:"lines"`
}

// SaleLine is one sold inventory item within a sale, owned exclusively by it.
type SaleLine struct {
	ID               uuid.UUID        `json:"id"`
	ItemID           uuid.UUID        `json:"itemId"`
	Quantity         int64            `json:"quantity"`
	GrossWeight      decimal.Decimal  `json:"grossWeight"`
	WastagePct       decimal.Decimal  `json:"wastagePct"`
	MakingChargeType string           `json:"makingChargeType"`
	MakingChargeRate decimal.Decimal  `json:"makingChargeRate"`
	DiscountKind     *string          `json:"discountKind,omitempty"`
	DiscountValue    *decimal.Decimal `json:"discountValue,omitempty"`
	LineTotal        decimal.Decimal  `json:"lineTotal"`
	Materials        []Allocation     `json:"materials"`
	Gemstones        []Allocation     `json:"gemstones"`
}

// Allocation is an owned, copied snapshot of the rate at time of sale; it
// never follows later catalog rate changes.
type Allocation struct {
	ID          uuid.UUID       `json:"id"`
	Weight      decimal.Decimal `json:"weight"`
	RatePerUnit decimal.Decimal `json:"ratePerUnit"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Value       decimal.Decimal `json:"value"`
	Tax         decimal.Decimal `json:"tax"`
}

// AllocationInput is one material or gemstone portion of a cart line.
type AllocationInput struct {
	Weight      decimal.Decimal `json:"weight"`
	RatePerUnit decimal.Decimal `json:"ratePerUnit"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

// DiscountInput is an optional flat or percentage discount.
type DiscountInput struct {
	Kind  string          `json:"kind" validate:"required,oneof=AMOUNT PERCENT"`
	Value decimal.Decimal `json:"value"`
}

// LineInput is one cart line of the settlement request.
type LineInput struct {
	ItemID           string            `json:"itemId" validate:"required,uuid"`
	Quantity         int64             `json:"quantity" validate:"required,gt=0"`
	GrossWeight      decimal.Decimal   `json:"grossWeight"`
	WastagePct       decimal.Decimal   `json:"wastagePct"`
	MakingChargeType string            `json:"makingChargeType" validate:"required"`
	MakingChargeRate decimal.Decimal   `json:"makingChargeRate"`
	Materials        []AllocationInput `json:"materials" validate:"required,min=1"`
	Gemstones        []AllocationInput `json:"gemstones"`
	Discount         *DiscountInput    `json:"discount"`
}

// Input is the validated settlement request.
type Input struct {
	CustomerID    *string        `json:"customerId" validate:"omitempty,uuid"`
	Lines         []LineInput    `json:"lines" validate:"required,min=1,dive"`
	OrderDiscount *DiscountInput `json:"orderDiscount"`
}
