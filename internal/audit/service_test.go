package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

type fakeStore struct {
	mu       sync.Mutex
	programs map[uuid.UUID]program.Program
	items    map[uuid.UUID][]program.Item
	finances map[uuid.UUID]program.Finances
	fixes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		programs: map[uuid.UUID]program.Program{},
		items:    map[uuid.UUID][]program.Item{},
		finances: map[uuid.UUID]program.Finances{},
	}
}

func (f *fakeStore) ListProgramIDs(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(f.programs))
	for id := range f.programs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) GetProgram(_ context.Context, id uuid.UUID) (program.Program, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.programs[id]
	if !ok {
		return program.Program{}, program.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListActiveItems(_ context.Context, id uuid.UUID) ([]program.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

func (f *fakeStore) GetFinances(_ context.Context, id uuid.UUID) (program.Finances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fin, ok := f.finances[id]
	if !ok {
		return program.Finances{}, program.ErrFinancesMissing
	}
	return fin, nil
}

func (f *fakeStore) ApplyFix(_ context.Context, params program.FixParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixes++

	p := f.programs[params.ProgramID]
	p.TotalCost = params.TotalCost
	p.TotalCharge = params.TotalCharge
	f.programs[params.ProgramID] = p

	if params.Finance == nil {
		return nil
	}
	fin := f.finances[params.ProgramID]
	fin.Taxes = params.Finance.Taxes
	fin.Margin = params.Finance.Margin
	if params.Finance.Variance != nil {
		fin.Variance = *params.Finance.Variance
	}
	if params.Finance.FinalTotalPrice != nil {
		fin.FinalTotalPrice = *params.Finance.FinalTotalPrice
	}
	f.finances[params.ProgramID] = fin
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedProgram stores a program with one taxable item: cost 80, charge 200,
// which at the 10% test rate projects taxes 20 and price 220.
func seedProgram(store *fakeStore, fin *program.Finances) uuid.UUID {
	id := uuid.New()
	store.programs[id] = program.Program{
		ID:          id,
		MemberName:  "Jordan Avery",
		Status:      program.StatusActive,
		TotalCost:   dec("80"),
		TotalCharge: dec("200"),
	}
	store.items[id] = []program.Item{{
		ID:         uuid.New(),
		ProgramID:  id,
		Quantity:   2,
		UnitCost:   dec("40"),
		UnitCharge: dec("100"),
		Taxable:    true,
		Active:     true,
	}}
	if fin != nil {
		fin.ProgramID = id
		store.finances[id] = *fin
	}
	return id
}

func newService(store *fakeStore) *Service {
	return &Service{Store: store, TaxRate: dec("0.1"), Logger: zerolog.Nop()}
}

func TestRunHealthyProgramPasses(t *testing.T) {
	store := newFakeStore()
	contracted := dec("60")
	seedProgram(store, &program.Finances{
		Taxes:              dec("20"),
		FinalTotalPrice:    dec("220"),
		Margin:             dec("60"),
		ContractedAtMargin: &contracted,
		Variance:           decimal.Zero,
	})

	report, err := newService(store).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Checked)
	require.Zero(t, report.Summary.WithIssues)
	require.True(t, report.Results[0].Passed)
	require.Equal(t, "Jordan Avery", report.Results[0].MemberName)
}

func TestRunDetectsDrift(t *testing.T) {
	store := newFakeStore()
	id := seedProgram(store, &program.Finances{
		Taxes:           dec("15"),
		FinalTotalPrice: dec("165"),
		Margin:          dec("50"),
		Variance:        dec("5"),
	})
	p := store.programs[id]
	p.TotalCharge = dec("150")
	store.programs[id] = p

	report, err := newService(store).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.WithIssues)
	res := report.Results[0]
	require.False(t, res.Passed)
	require.False(t, res.Fixed, "read-only run must not repair")
	require.GreaterOrEqual(t, len(res.Issues), 3)
	require.Zero(t, store.fixes)
}

func TestRunAutoFixIsIdempotent(t *testing.T) {
	store := newFakeStore()
	id := seedProgram(store, &program.Finances{
		Taxes:           dec("15"),
		FinalTotalPrice: dec("165"),
		Margin:          dec("50"),
		Variance:        dec("5"),
	})
	p := store.programs[id]
	p.TotalCharge = dec("150")
	store.programs[id] = p

	svc := newService(store)
	first, err := svc.Run(context.Background(), Options{AutoFix: true})
	require.NoError(t, err)
	require.True(t, first.Results[0].Fixed)
	require.Equal(t, 1, store.fixes)

	// Repaired state must audit clean: projection is authoritative for an
	// unlocked program, so the final price moved to 220 and variance to 0.
	fin := store.finances[id]
	require.True(t, fin.FinalTotalPrice.Equal(dec("220")), "final %s", fin.FinalTotalPrice)
	require.True(t, fin.Variance.IsZero())

	second, err := svc.Run(context.Background(), Options{AutoFix: true})
	require.NoError(t, err)
	require.Zero(t, second.Summary.WithIssues)
	require.True(t, second.Results[0].Passed)
	require.Equal(t, 1, store.fixes, "clean run must not write")
}

func TestRunLockedStaleVariance(t *testing.T) {
	store := newFakeStore()
	contracted := dec("60")
	id := seedProgram(store, &program.Finances{
		Taxes:              dec("20"),
		FinalTotalPrice:    dec("220"),
		Margin:             dec("60"),
		ContractedAtMargin: &contracted,
		Variance:           decimal.Zero,
	})
	// An extra free-of-cost item pushed the projection to 230 but variance
	// was never updated.
	store.items[id] = append(store.items[id], program.Item{
		ID:         uuid.New(),
		ProgramID:  id,
		Quantity:   1,
		UnitCost:   decimal.Zero,
		UnitCharge: dec("10"),
		Active:     true,
	})
	p := store.programs[id]
	p.TotalCharge = dec("210")
	store.programs[id] = p

	svc := newService(store)
	report, err := svc.Run(context.Background(), Options{ProgramID: &id, AutoFix: true})
	require.NoError(t, err)
	require.True(t, report.Results[0].Fixed)

	fin := store.finances[id]
	require.True(t, fin.FinalTotalPrice.Equal(dec("220")), "locked price must not move")
	require.True(t, fin.Variance.Equal(dec("10")), "variance %s", fin.Variance)

	second, err := svc.Run(context.Background(), Options{ProgramID: &id})
	require.NoError(t, err)
	require.True(t, second.Results[0].Passed)
}

func TestRunMissingFinancesWarns(t *testing.T) {
	store := newFakeStore()
	seedProgram(store, nil)

	report, err := newService(store).Run(context.Background(), Options{AutoFix: true})
	require.NoError(t, err)
	res := report.Results[0]
	require.True(t, res.Passed)
	require.False(t, res.Fixed)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, 1, report.Summary.WithWarnings)
	require.Zero(t, store.fixes)
}

func TestRunContractFloorBreachIsWarning(t *testing.T) {
	store := newFakeStore()
	contracted := dec("75")
	seedProgram(store, &program.Finances{
		Taxes:              dec("20"),
		FinalTotalPrice:    dec("220"),
		Margin:             dec("60"),
		ContractedAtMargin: &contracted,
		Variance:           decimal.Zero,
	})

	svc := newService(store)
	report, err := svc.Run(context.Background(), Options{AutoFix: true})
	require.NoError(t, err)
	res := report.Results[0]
	require.True(t, res.Passed, "floor breach alone is not an issue")
	require.Len(t, res.Warnings, 2)
	require.Zero(t, store.fixes, "warnings never trigger a repair")
}
