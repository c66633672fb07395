// Package audit recomputes every program's financials from source line items
// and reports drift between stored and derived values, optionally repairing
// it in place.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/obs"
	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

// Store captures the persistence operations the auditor needs.
type Store interface {
	ListProgramIDs(ctx context.Context) ([]uuid.UUID, error)
	GetProgram(ctx context.Context, id uuid.UUID) (program.Program, error)
	ListActiveItems(ctx context.Context, programID uuid.UUID) ([]program.Item, error)
	GetFinances(ctx context.Context, programID uuid.UUID) (program.Finances, error)
	ApplyFix(ctx context.Context, params program.FixParams) error
}

// Options selects the audit scope. A nil ProgramID audits every program.
type Options struct {
	ProgramID *uuid.UUID
	AutoFix   bool
}

// Service recomputes and reconciles program financials. Programs are
// processed independently; one broken program never aborts the batch.
type Service struct {
	Store       Store
	TaxRate     decimal.Decimal
	Concurrency int
	Logger      zerolog.Logger
}

func (s *Service) taxRate() decimal.Decimal {
	if s.TaxRate.IsZero() {
		return pricing.DefaultTaxRate
	}
	return s.TaxRate
}

func (s *Service) concurrency() int {
	if s.Concurrency <= 0 {
		return 4
	}
	return s.Concurrency
}

// Run audits the selected programs with a bounded worker pool and returns
// the aggregated report.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	if s == nil || s.Store == nil {
		return Report{}, errors.New("audit service not configured")
	}
	started := time.Now()

	var ids []uuid.UUID
	if opts.ProgramID != nil {
		ids = []uuid.UUID{*opts.ProgramID}
	} else {
		var err error
		ids, err = s.Store.ListProgramIDs(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("list programs: %w", err)
		}
	}

	results := make([]ProgramResult, len(ids))
	sem := make(chan struct{}, s.concurrency())
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.checkProgram(ctx, id, opts.AutoFix)
		}(i, id)
	}
	wg.Wait()

	report := buildReport(results)
	obs.ObserveAuditRun(report.Summary.WithIssues > 0, report.Summary.TotalIssues, time.Since(started))
	s.Logger.Info().
		Int("checked", report.Summary.Checked).
		Int("with_issues", report.Summary.WithIssues).
		Int("with_warnings", report.Summary.WithWarnings).
		Int("total_issues", report.Summary.TotalIssues).
		Bool("auto_fix", opts.AutoFix).
		Dur("elapsed", time.Since(started)).
		Msg("integrity audit complete")
	return report, nil
}

// checkProgram recomputes one program and compares stored against expected.
// Lookup failures become issue strings so the batch can continue.
func (s *Service) checkProgram(ctx context.Context, id uuid.UUID, autoFix bool) ProgramResult {
	res := ProgramResult{ProgramID: id, Passed: true}

	prog, err := s.Store.GetProgram(ctx, id)
	if err != nil {
		res.fail("program lookup failed: " + err.Error())
		return res
	}
	res.MemberName = prog.MemberName

	items, err := s.Store.ListActiveItems(ctx, id)
	if err != nil {
		res.fail("item lookup failed: " + err.Error())
		return res
	}

	rate := s.taxRate()
	totals := pricing.Aggregate(program.PricingItems(items))

	compareCurrency(&res, "total_cost", prog.TotalCost, totals.Cost)
	compareCurrency(&res, "total_charge", prog.TotalCharge, totals.Charge)

	fin, err := s.Store.GetFinances(ctx, id)
	if err != nil {
		if errors.Is(err, program.ErrFinancesMissing) {
			res.warn("no finance record; finance checks skipped")
			s.maybeFix(ctx, &res, autoFix, program.FixParams{
				ProgramID:   id,
				TotalCost:   totals.Cost,
				TotalCharge: totals.Charge,
			})
			return res
		}
		res.fail("finance lookup failed: " + err.Error())
		return res
	}

	taxes := pricing.Taxes(totals.Charge, totals.TaxableCharge, fin.Discounts, rate)
	price := pricing.ProjectedPrice(totals.Charge, taxes, fin.FinanceCharges, fin.Discounts)

	mode := fin.Mode()
	var expectedMargin decimal.Decimal
	if mode.IsLocked() {
		// Only a negative finance charge (an absorbed cost) adjusts the cost
		// side when margin is measured against the locked price.
		absorbed := decimal.Min(fin.FinanceCharges, decimal.Zero)
		expectedMargin = pricing.ProjectedMargin(fin.FinalTotalPrice, totals.Cost, absorbed, taxes)
	} else {
		expectedMargin = pricing.ProjectedMargin(price, totals.Cost, fin.FinanceCharges, taxes)
	}

	compareCurrency(&res, "taxes", fin.Taxes, taxes)
	compareCurrency(&res, "final_total_price", price.Sub(fin.Variance), fin.FinalTotalPrice)
	compareMargin(&res, "margin", fin.Margin, expectedMargin)

	if mode.IsLocked() {
		compareCurrency(&res, "variance", fin.Variance, price.Sub(fin.FinalTotalPrice))

		floor := mode.ContractedMargin.Sub(pricing.MarginTolerance)
		if fin.Margin.LessThan(floor) {
			res.warn(fmt.Sprintf("stored margin %s%% is below the contracted margin %s%%",
				fin.Margin.Round(2), mode.ContractedMargin.Round(2)))
		}
		if expectedMargin.LessThan(floor) {
			res.warn(fmt.Sprintf("recomputed margin %s%% is below the contracted margin %s%%",
				expectedMargin.Round(2), mode.ContractedMargin.Round(2)))
		}
	}

	if len(res.Issues) == 0 {
		return res
	}

	fix := program.FixParams{
		ProgramID:   id,
		TotalCost:   totals.Cost,
		TotalCharge: totals.Charge,
		Finance: &program.FinanceFix{
			Taxes:  taxes,
			Margin: expectedMargin,
		},
	}
	if mode.IsLocked() {
		variance := price.Sub(fin.FinalTotalPrice)
		fix.Finance.Variance = &variance
	} else {
		// The projection is authoritative for unlocked programs; a stale
		// variance is zeroed so the price identity holds on the next run.
		fix.Finance.FinalTotalPrice = &price
		zero := decimal.Zero
		fix.Finance.Variance = &zero
	}
	s.maybeFix(ctx, &res, autoFix, fix)
	return res
}

func (s *Service) maybeFix(ctx context.Context, res *ProgramResult, autoFix bool, params program.FixParams) {
	if !autoFix || len(res.Issues) == 0 {
		return
	}
	if err := s.Store.ApplyFix(ctx, params); err != nil {
		res.fail("auto-fix failed: " + err.Error())
		return
	}
	res.Fixed = true
	obs.ObserveAuditFix()
}

func compareCurrency(res *ProgramResult, field string, stored, expected decimal.Decimal) {
	delta := stored.Sub(expected)
	if delta.Abs().LessThanOrEqual(pricing.PriceTolerance) {
		return
	}
	res.fail(fmt.Sprintf("%s mismatch: stored %s expected %s (delta %s)",
		field, pricing.RoundCurrency(stored), pricing.RoundCurrency(expected), pricing.RoundCurrency(delta)))
}

func compareMargin(res *ProgramResult, field string, stored, expected decimal.Decimal) {
	delta := stored.Sub(expected)
	if delta.Abs().LessThanOrEqual(pricing.MarginTolerance) {
		return
	}
	res.fail(fmt.Sprintf("%s mismatch: stored %s%% expected %s%% (delta %s)",
		field, stored.Round(2), expected.Round(2), delta.Round(2)))
}
