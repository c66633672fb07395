// Package contract enforces the lock invariants of contracted programs: a
// price ceiling fixed at activation and a margin floor that later item edits
// may not erode.
package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

// Store captures the persistence operations the validator needs.
type Store interface {
	GetProgram(ctx context.Context, id uuid.UUID) (program.Program, error)
	ListActiveItems(ctx context.Context, programID uuid.UUID) ([]program.Item, error)
	GetFinances(ctx context.Context, programID uuid.UUID) (program.Finances, error)
	GetTherapy(ctx context.Context, id uuid.UUID) (program.Therapy, error)
	ApplyItemChange(ctx context.Context, m program.ItemMutation) error
	Activate(ctx context.Context, params program.ActivateParams) error
}

// Locker serializes the validate-then-write sequence per program. The redis
// implementation in internal/lock satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ItemChange is one proposed mutation to a program's item set.
type ItemChange struct {
	Op         program.ItemOp
	ItemID     uuid.UUID
	TherapyID  uuid.UUID
	Quantity   int64
	UnitCost   decimal.Decimal
	UnitCharge decimal.Decimal
}

// Result reports the reconciled finance state after a successful mutation.
type Result struct {
	ProjectedPrice  decimal.Decimal `json:"projectedPrice"`
	Margin          decimal.Decimal `json:"margin"`
	Variance        decimal.Decimal `json:"variance"`
	FinalTotalPrice decimal.Decimal `json:"finalTotalPrice"`
}

// ValidationError rejects a contracted change. Reasons holds one entry per
// violated bound; OverBudget quantifies the price overage for additions.
type ValidationError struct {
	Reasons    []string
	OverBudget decimal.Decimal
}

func (e *ValidationError) Error() string {
	return "contract validation failed: " + strings.Join(e.Reasons, "; ")
}

// ErrAlreadyLocked is returned when activating a program that already
// carries a contract lock.
var ErrAlreadyLocked = errors.New("contract: program already locked")

// Service validates and applies item mutations. Unlocked programs mutate
// freely; locked programs are simulated first and rejected when the change
// would breach the contracted price ceiling or margin floor.
type Service struct {
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	TaxRate decimal.Decimal
}

func (s *Service) taxRate() decimal.Decimal {
	if s.TaxRate.IsZero() {
		return pricing.DefaultTaxRate
	}
	return s.TaxRate
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func lockKey(programID uuid.UUID) string {
	return "program:mutate:" + programID.String()
}

// Apply validates the proposed change and, when it passes, persists the item
// write together with the recomputed totals and finance fields. The whole
// read-simulate-write sequence runs under a per-program lock so at most one
// mutation is in flight per program.
func (s *Service) Apply(ctx context.Context, programID uuid.UUID, change ItemChange) (Result, error) {
	if s == nil || s.Store == nil {
		return Result{}, errors.New("contract service not configured")
	}
	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.apply(ctx, programID, change)
		return err
	}
	if s.Locker == nil {
		return res, run(ctx)
	}
	err := s.Locker.WithLock(ctx, lockKey(programID), s.lockTTL(), run)
	return res, err
}

func (s *Service) apply(ctx context.Context, programID uuid.UUID, change ItemChange) (Result, error) {
	if _, err := s.Store.GetProgram(ctx, programID); err != nil {
		return Result{}, err
	}
	items, err := s.Store.ListActiveItems(ctx, programID)
	if err != nil {
		return Result{}, fmt.Errorf("load items: %w", err)
	}
	fin, err := s.Store.GetFinances(ctx, programID)
	if err != nil {
		return Result{}, fmt.Errorf("load finances: %w", err)
	}

	simulated, changeTaxable, err := s.simulate(ctx, items, change)
	if err != nil {
		return Result{}, err
	}

	rate := s.taxRate()
	totals := pricing.Aggregate(simulated)
	taxes := pricing.Taxes(totals.Charge, totals.TaxableCharge, fin.Discounts, rate)
	price := pricing.ProjectedPrice(totals.Charge, taxes, fin.FinanceCharges, fin.Discounts)

	mutation := program.ItemMutation{
		ProgramID:   programID,
		Op:          change.Op,
		ItemID:      change.ItemID,
		TherapyID:   change.TherapyID,
		Quantity:    change.Quantity,
		UnitCost:    change.UnitCost,
		UnitCharge:  change.UnitCharge,
		TotalCost:   totals.Cost,
		TotalCharge: totals.Charge,
		Taxes:       taxes,
	}

	mode := fin.Mode()
	if mode.IsLocked() {
		// Margin is measured against the locked price, not the live
		// projection, using the same projected-margin formula.
		margin := pricing.ProjectedMargin(fin.FinalTotalPrice, totals.Cost, fin.FinanceCharges, taxes)
		if vErr := s.checkBounds(fin, mode, items, change, changeTaxable, price, margin); vErr != nil {
			return Result{}, vErr
		}
		mutation.Margin = margin
		mutation.Variance = price.Sub(fin.FinalTotalPrice)
		mutation.FinalTotalPrice = fin.FinalTotalPrice
	} else {
		mutation.Margin = pricing.ProjectedMargin(price, totals.Cost, fin.FinanceCharges, taxes)
		mutation.Variance = decimal.Zero
		mutation.FinalTotalPrice = price
	}

	if err := s.Store.ApplyItemChange(ctx, mutation); err != nil {
		return Result{}, err
	}
	return Result{
		ProjectedPrice:  price,
		Margin:          mutation.Margin,
		Variance:        mutation.Variance,
		FinalTotalPrice: mutation.FinalTotalPrice,
	}, nil
}

// checkBounds evaluates the post-mutation state against the price ceiling
// and margin floor, with the shared tolerances absorbing float noise.
func (s *Service) checkBounds(fin program.Finances, mode pricing.Mode, current []program.Item, change ItemChange, changeTaxable bool, price, margin decimal.Decimal) error {
	var reasons []string
	overBudget := decimal.Zero

	ceiling := fin.FinalTotalPrice.Add(pricing.PriceTolerance)
	if price.GreaterThan(ceiling) {
		overBudget = price.Sub(fin.FinalTotalPrice)
		reason := fmt.Sprintf(
			"projected price %s exceeds the contracted price %s by %s",
			pricing.RoundCurrency(price), pricing.RoundCurrency(fin.FinalTotalPrice), pricing.RoundCurrency(overBudget),
		)
		if change.Op == program.OpAdd {
			reason += "; " + s.addShortfall(fin, current, change, changeTaxable)
		}
		reasons = append(reasons, reason)
	}

	floor := mode.ContractedMargin.Sub(pricing.MarginTolerance)
	if margin.LessThan(floor) {
		reasons = append(reasons, fmt.Sprintf(
			"projected margin %s%% falls below the contracted margin %s%%",
			margin.Round(2), mode.ContractedMargin.Round(2),
		))
	}

	if len(reasons) > 0 {
		return &ValidationError{Reasons: reasons, OverBudget: overBudget}
	}
	return nil
}

// addShortfall explains an add-item rejection in terms of the item's fully
// loaded cost against the credit still available under the locked price. The
// taxable flag comes from the simulation, which already resolved the therapy.
func (s *Service) addShortfall(fin program.Finances, current []program.Item, change ItemChange, taxable bool) string {
	rate := s.taxRate()
	totals := pricing.Aggregate(program.PricingItems(current))
	taxes := pricing.Taxes(totals.Charge, totals.TaxableCharge, fin.Discounts, rate)
	currentPrice := pricing.ProjectedPrice(totals.Charge, taxes, fin.FinanceCharges, fin.Discounts)
	remaining := fin.FinalTotalPrice.Sub(currentPrice)

	loaded := change.UnitCharge.Mul(decimal.NewFromInt(change.Quantity))
	if taxable {
		loaded = loaded.Add(loaded.Mul(rate))
	}
	return fmt.Sprintf(
		"item cost %s (tax included) vs remaining credit %s",
		pricing.RoundCurrency(loaded), pricing.RoundCurrency(remaining),
	)
}

// simulate builds the post-mutation item set without touching storage. The
// returned flag reports whether the changed item is taxable.
func (s *Service) simulate(ctx context.Context, current []program.Item, change ItemChange) ([]pricing.Item, bool, error) {
	switch change.Op {
	case program.OpAdd:
		if change.Quantity < 1 {
			return nil, false, fmt.Errorf("quantity must be at least 1")
		}
		therapy, err := s.Store.GetTherapy(ctx, change.TherapyID)
		if err != nil {
			return nil, false, fmt.Errorf("resolve therapy: %w", err)
		}
		out := program.PricingItems(current)
		return append(out, pricing.Item{
			Quantity:   change.Quantity,
			UnitCost:   change.UnitCost,
			UnitCharge: change.UnitCharge,
			Taxable:    therapy.Taxable,
		}), therapy.Taxable, nil
	case program.OpUpdate:
		if change.Quantity < 1 {
			return nil, false, fmt.Errorf("quantity must be at least 1")
		}
		found := false
		changeTaxable := false
		out := make([]pricing.Item, 0, len(current))
		for _, it := range current {
			if it.ID == change.ItemID {
				found = true
				taxable := it.Taxable
				if change.TherapyID != it.TherapyID {
					therapy, err := s.Store.GetTherapy(ctx, change.TherapyID)
					if err != nil {
						return nil, false, fmt.Errorf("resolve therapy: %w", err)
					}
					taxable = therapy.Taxable
				}
				changeTaxable = taxable
				out = append(out, pricing.Item{
					Quantity:   change.Quantity,
					UnitCost:   it.UnitCost,
					UnitCharge: it.UnitCharge,
					Taxable:    taxable,
				})
				continue
			}
			out = append(out, pricing.Item{
				Quantity:   it.Quantity,
				UnitCost:   it.UnitCost,
				UnitCharge: it.UnitCharge,
				Taxable:    it.Taxable,
			})
		}
		if !found {
			return nil, false, program.ErrNotFound
		}
		return out, changeTaxable, nil
	case program.OpRemove:
		found := false
		out := make([]pricing.Item, 0, len(current))
		for _, it := range current {
			if it.ID == change.ItemID {
				found = true
				continue
			}
			out = append(out, pricing.Item{
				Quantity:   it.Quantity,
				UnitCost:   it.UnitCost,
				UnitCharge: it.UnitCharge,
				Taxable:    it.Taxable,
			})
		}
		if !found {
			return nil, false, program.ErrNotFound
		}
		return out, false, nil
	default:
		return nil, false, fmt.Errorf("unknown item op %q", change.Op)
	}
}

// Activate fixes the contract lock: the live projection becomes the locked
// price and the live margin becomes the contracted floor. The lock is
// entered exactly once and persists for the program's lifetime.
func (s *Service) Activate(ctx context.Context, programID uuid.UUID) (Result, error) {
	if s == nil || s.Store == nil {
		return Result{}, errors.New("contract service not configured")
	}
	var res Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.activate(ctx, programID)
		return err
	}
	if s.Locker == nil {
		return res, run(ctx)
	}
	err := s.Locker.WithLock(ctx, lockKey(programID), s.lockTTL(), run)
	return res, err
}

func (s *Service) activate(ctx context.Context, programID uuid.UUID) (Result, error) {
	if _, err := s.Store.GetProgram(ctx, programID); err != nil {
		return Result{}, err
	}
	fin, err := s.Store.GetFinances(ctx, programID)
	if err != nil {
		return Result{}, fmt.Errorf("load finances: %w", err)
	}
	if fin.Mode().IsLocked() {
		return Result{}, ErrAlreadyLocked
	}
	items, err := s.Store.ListActiveItems(ctx, programID)
	if err != nil {
		return Result{}, fmt.Errorf("load items: %w", err)
	}

	rate := s.taxRate()
	totals := pricing.Aggregate(program.PricingItems(items))
	taxes := pricing.Taxes(totals.Charge, totals.TaxableCharge, fin.Discounts, rate)
	price := pricing.ProjectedPrice(totals.Charge, taxes, fin.FinanceCharges, fin.Discounts)
	margin := pricing.ProjectedMargin(price, totals.Cost, fin.FinanceCharges, taxes)

	err = s.Store.Activate(ctx, program.ActivateParams{
		ProgramID:          programID,
		Taxes:              taxes,
		FinalTotalPrice:    price,
		Margin:             margin,
		ContractedAtMargin: margin,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		ProjectedPrice:  price,
		Margin:          margin,
		Variance:        decimal.Zero,
		FinalTotalPrice: price,
	}, nil
}
