package program

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
)

var (
	// ErrNotFound is returned when a program, item, or therapy does not exist.
	ErrNotFound = errors.New("program: not found")
	// ErrFinancesMissing is returned when a program has no finance record.
	ErrFinancesMissing = errors.New("program: finance record missing")
)

// Status is the lifecycle state of a program.
type Status string

const (
	StatusQuote     Status = "quote"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusQuote, StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Program is a sellable engagement for a member. TotalCost and TotalCharge
// are cached sums over the program's active items.
type Program struct {
	ID          uuid.UUID       `json:"id"`
	MemberName  string          `json:"memberName"`
	Status      Status          `json:"status"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	TotalCharge decimal.Decimal `json:"totalCharge"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Therapy is the read-only service definition an item references. It is the
// source of truth for whether an item's charge is taxable.
type Therapy struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Taxable bool      `json:"taxable"`
}

// Item is one line item attached to a program. Unit economics are fixed once
// the program is active; Active implements soft delete.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	ProgramID   uuid.UUID       `json:"programId"`
	TherapyID   uuid.UUID       `json:"therapyId"`
	TherapyName string          `json:"therapyName"`
	Quantity    int64           `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	UnitCharge  decimal.Decimal `json:"unitCharge"`
	Taxable     bool            `json:"taxable"`
	Active      bool            `json:"active"`
}

// Finances is the one-to-one adjustment record for a program. FinanceCharges
// is signed: negative means an external financing cost that erodes margin
// only, positive means an internal fee that also raises the price. Discounts
// are stored as non-positive amounts.
type Finances struct {
	ProgramID          uuid.UUID        `json:"programId"`
	FinanceCharges     decimal.Decimal  `json:"financeCharges"`
	Discounts          decimal.Decimal  `json:"discounts"`
	Taxes              decimal.Decimal  `json:"taxes"`
	FinalTotalPrice    decimal.Decimal  `json:"finalTotalPrice"`
	Margin             decimal.Decimal  `json:"margin"`
	ContractedAtMargin *decimal.Decimal `json:"contractedAtMargin,omitempty"`
	Variance           decimal.Decimal  `json:"variance"`
}

// Mode returns the pricing mode for the record. Presence of the contracted
// margin is the lock signal, independent of the program's current status.
func (f Finances) Mode() pricing.Mode {
	if f.ContractedAtMargin != nil {
		return pricing.LockedMode(*f.ContractedAtMargin)
	}
	return pricing.ProjectedMode()
}

// PricingItems converts active items into the calculator's input shape.
func PricingItems(items []Item) []pricing.Item {
	out := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		if !it.Active {
			continue
		}
		out = append(out, pricing.Item{
			Quantity:   it.Quantity,
			UnitCost:   it.UnitCost,
			UnitCharge: it.UnitCharge,
			Taxable:    it.Taxable,
		})
	}
	return out
}
