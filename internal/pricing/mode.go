package pricing

import "github.com/shopspring/decimal"

// Kind selects which margin formula applies to a program's finances.
type Kind int

const (
	// Projected means the program has never been contracted: its price and
	// margin track the live item set.
	Projected Kind = iota
	// Locked means the price and a margin floor were fixed at contract time
	// and item edits may only drift the variance, never the locked price.
	Locked
)

// Mode carries the pricing state of a program. Call sites branch on Kind
// instead of inferring contract state from a nullable column.
type Mode struct {
	Kind Kind
	// ContractedMargin is the margin floor fixed at contract time. It is
	// meaningful only when Kind is Locked.
	ContractedMargin decimal.Decimal
}

func (k Kind) String() string {
	if k == Locked {
		return "locked"
	}
	return "projected"
}

// ProjectedMode returns the mode for a never-contracted program.
func ProjectedMode() Mode {
	return Mode{Kind: Projected}
}

// LockedMode returns the mode for a contracted program with the given
// margin floor.
func LockedMode(contractedMargin decimal.Decimal) Mode {
	return Mode{Kind: Locked, ContractedMargin: contractedMargin}
}

// IsLocked reports whether the program is under contract lock.
func (m Mode) IsLocked() bool {
	return m.Kind == Locked
}
