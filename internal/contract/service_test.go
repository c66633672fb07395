package contract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

type fakeStore struct {
	program   program.Program
	items     []program.Item
	finances  program.Finances
	therapies map[uuid.UUID]program.Therapy

	appliedMutation *program.ItemMutation
	activated       *program.ActivateParams
}

func (f *fakeStore) GetProgram(_ context.Context, id uuid.UUID) (program.Program, error) {
	if id != f.program.ID {
		return program.Program{}, program.ErrNotFound
	}
	return f.program, nil
}

func (f *fakeStore) ListActiveItems(context.Context, uuid.UUID) ([]program.Item, error) {
	return f.items, nil
}

func (f *fakeStore) GetFinances(context.Context, uuid.UUID) (program.Finances, error) {
	return f.finances, nil
}

func (f *fakeStore) GetTherapy(_ context.Context, id uuid.UUID) (program.Therapy, error) {
	t, ok := f.therapies[id]
	if !ok {
		return program.Therapy{}, program.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) ApplyItemChange(_ context.Context, m program.ItemMutation) error {
	f.appliedMutation = &m
	return nil
}

func (f *fakeStore) Activate(_ context.Context, params program.ActivateParams) error {
	f.activated = &params
	margin := params.ContractedAtMargin
	f.finances.ContractedAtMargin = &margin
	f.finances.FinalTotalPrice = params.FinalTotalPrice
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	taxableTherapy    = program.Therapy{ID: uuid.New(), Name: "IV Therapy", Taxable: true}
	nonTaxableTherapy = program.Therapy{ID: uuid.New(), Name: "Lab Panel", Taxable: false}
)

// lockedStore returns a program locked at price 500 with an 80% contracted
// margin, carrying one non-taxable item (cost 100, charge 500).
func lockedStore() *fakeStore {
	progID := uuid.New()
	contracted := dec("80")
	return &fakeStore{
		program: program.Program{ID: progID, Status: program.StatusActive},
		items: []program.Item{{
			ID:         uuid.New(),
			ProgramID:  progID,
			TherapyID:  nonTaxableTherapy.ID,
			Quantity:   1,
			UnitCost:   dec("100"),
			UnitCharge: dec("500"),
			Active:     true,
		}},
		finances: program.Finances{
			ProgramID:          progID,
			FinalTotalPrice:    dec("500"),
			Margin:             dec("80"),
			ContractedAtMargin: &contracted,
		},
		therapies: map[uuid.UUID]program.Therapy{
			taxableTherapy.ID:    taxableTherapy,
			nonTaxableTherapy.ID: nonTaxableTherapy,
		},
	}
}

func newService(store *fakeStore) *Service {
	return &Service{Store: store, TaxRate: dec("0.1")}
}

func TestApplyUnlockedTracksProjection(t *testing.T) {
	progID := uuid.New()
	store := &fakeStore{
		program:  program.Program{ID: progID, Status: program.StatusQuote},
		finances: program.Finances{ProgramID: progID},
		therapies: map[uuid.UUID]program.Therapy{
			taxableTherapy.ID: taxableTherapy,
		},
	}
	svc := newService(store)

	res, err := svc.Apply(context.Background(), progID, ItemChange{
		Op:         program.OpAdd,
		TherapyID:  taxableTherapy.ID,
		Quantity:   2,
		UnitCost:   dec("40"),
		UnitCharge: dec("100"),
	})
	require.NoError(t, err)

	// charge 200, taxes 20, price 220, margin (200-80)/200.
	require.True(t, res.ProjectedPrice.Equal(dec("220")), "price %s", res.ProjectedPrice)
	require.True(t, res.Margin.Equal(dec("60")), "margin %s", res.Margin)
	require.True(t, res.Variance.IsZero())
	require.True(t, res.FinalTotalPrice.Equal(dec("220")))

	require.NotNil(t, store.appliedMutation)
	require.True(t, store.appliedMutation.FinalTotalPrice.Equal(dec("220")))
	require.True(t, store.appliedMutation.Variance.IsZero())
}

func TestApplyLockedAcceptsWithinPriceTolerance(t *testing.T) {
	store := lockedStore()
	svc := newService(store)

	res, err := svc.Apply(context.Background(), store.program.ID, ItemChange{
		Op:         program.OpAdd,
		TherapyID:  nonTaxableTherapy.ID,
		Quantity:   1,
		UnitCost:   decimal.Zero,
		UnitCharge: dec("0.01"),
	})
	require.NoError(t, err)
	require.True(t, res.Variance.Equal(dec("0.01")), "variance %s", res.Variance)
	require.True(t, res.FinalTotalPrice.Equal(dec("500")), "locked price must not move")
}

func TestApplyLockedRejectsOverPriceCeiling(t *testing.T) {
	store := lockedStore()
	svc := newService(store)

	_, err := svc.Apply(context.Background(), store.program.ID, ItemChange{
		Op:         program.OpAdd,
		TherapyID:  nonTaxableTherapy.ID,
		Quantity:   1,
		UnitCost:   decimal.Zero,
		UnitCharge: dec("0.02"),
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.True(t, vErr.OverBudget.Equal(dec("0.02")), "overBudget %s", vErr.OverBudget)
	require.Len(t, vErr.Reasons, 1)
	require.Contains(t, vErr.Reasons[0], "exceeds the contracted price")
	require.Contains(t, vErr.Reasons[0], "remaining credit")
	require.Nil(t, store.appliedMutation, "rejected change must not be persisted")
}

// singleFetchStore fails any repeated therapy lookup, so a rejection message
// must reuse the taxable flag resolved during simulation.
type singleFetchStore struct {
	*fakeStore
	therapyCalls int
}

func (s *singleFetchStore) GetTherapy(ctx context.Context, id uuid.UUID) (program.Therapy, error) {
	s.therapyCalls++
	if s.therapyCalls > 1 {
		return program.Therapy{}, errors.New("therapy lookup repeated")
	}
	return s.fakeStore.GetTherapy(ctx, id)
}

func TestApplyLockedAddShortfallIncludesTax(t *testing.T) {
	store := lockedStore()
	single := &singleFetchStore{fakeStore: store}
	svc := &Service{Store: single, TaxRate: dec("0.1")}

	_, err := svc.Apply(context.Background(), store.program.ID, ItemChange{
		Op:         program.OpAdd,
		TherapyID:  taxableTherapy.ID,
		Quantity:   1,
		UnitCost:   decimal.Zero,
		UnitCharge: dec("100"),
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.True(t, vErr.OverBudget.Equal(dec("110")), "overBudget %s", vErr.OverBudget)
	require.Contains(t, vErr.Reasons[0], "item cost 110 (tax included)")
	require.Contains(t, vErr.Reasons[0], "remaining credit 0")
	require.Equal(t, 1, single.therapyCalls, "therapy resolved once during simulation")
}

func TestApplyLockedRejectsBelowMarginFloor(t *testing.T) {
	store := lockedStore()
	svc := newService(store)

	// Costs 1.00 but charges a cent: price stays inside tolerance while the
	// margin against the locked price drops to 79.8%, under the 79.9 floor.
	_, err := svc.Apply(context.Background(), store.program.ID, ItemChange{
		Op:         program.OpAdd,
		TherapyID:  nonTaxableTherapy.ID,
		Quantity:   1,
		UnitCost:   dec("1"),
		UnitCharge: dec("0.01"),
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Reasons, 1)
	require.Contains(t, vErr.Reasons[0], "falls below the contracted margin")
	require.True(t, vErr.OverBudget.IsZero())
}

func TestApplyLockedRemoveLowersVariance(t *testing.T) {
	store := lockedStore()
	svc := newService(store)

	res, err := svc.Apply(context.Background(), store.program.ID, ItemChange{
		Op:     program.OpRemove,
		ItemID: store.items[0].ID,
	})
	require.NoError(t, err)
	require.True(t, res.Variance.Equal(dec("-500")), "variance %s", res.Variance)
	require.True(t, res.FinalTotalPrice.Equal(dec("500")))
}

func TestApplyUpdateUnknownItem(t *testing.T) {
	store := lockedStore()
	svc := newService(store)

	_, err := svc.Apply(context.Background(), store.program.ID, ItemChange{
		Op:       program.OpUpdate,
		ItemID:   uuid.New(),
		Quantity: 1,
	})
	require.ErrorIs(t, err, program.ErrNotFound)
}

func TestApplyUnknownProgram(t *testing.T) {
	store := lockedStore()
	svc := newService(store)

	_, err := svc.Apply(context.Background(), uuid.New(), ItemChange{Op: program.OpRemove, ItemID: uuid.New()})
	require.ErrorIs(t, err, program.ErrNotFound)
}

func TestActivateCapturesContractLock(t *testing.T) {
	store := lockedStore()
	store.finances.ContractedAtMargin = nil
	store.finances.FinalTotalPrice = decimal.Zero
	svc := newService(store)

	res, err := svc.Activate(context.Background(), store.program.ID)
	require.NoError(t, err)
	require.True(t, res.FinalTotalPrice.Equal(dec("500")))
	require.True(t, res.Margin.Equal(dec("80")))
	require.True(t, res.Variance.IsZero())

	require.NotNil(t, store.activated)
	require.True(t, store.activated.ContractedAtMargin.Equal(dec("80")))

	_, err = svc.Activate(context.Background(), store.program.ID)
	require.ErrorIs(t, err, ErrAlreadyLocked)
}

type errLocker struct{ err error }

func (l errLocker) WithLock(context.Context, string, time.Duration, func(context.Context) error) error {
	return l.err
}

func TestApplyPropagatesLockerFailure(t *testing.T) {
	store := lockedStore()
	svc := newService(store)
	svc.Locker = errLocker{err: errors.New("lock held elsewhere")}

	_, err := svc.Apply(context.Background(), store.program.ID, ItemChange{Op: program.OpRemove, ItemID: store.items[0].ID})
	require.EqualError(t, err, "lock held elsewhere")
	require.Nil(t, store.appliedMutation)
}
