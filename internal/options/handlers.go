package options

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/common"
	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

// Store is the read surface the generator needs.
type Store interface {
	GetProgram(ctx context.Context, id uuid.UUID) (program.Program, error)
	ListActiveItems(ctx context.Context, programID uuid.UUID) ([]program.Item, error)
	GetFinances(ctx context.Context, programID uuid.UUID) (program.Finances, error)
}

// Handler serves payment scenarios for a program.
type Handler struct {
	Store   Store
	TaxRate decimal.Decimal
}

// Get computes the scenario set from the program's live projection.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid program id", nil)
		return
	}
	ctx := r.Context()

	if _, err := h.Store.GetProgram(ctx, id); err != nil {
		if errors.Is(err, program.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "program not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load program", nil)
		return
	}
	items, err := h.Store.ListActiveItems(ctx, id)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load items", nil)
		return
	}
	fin, err := h.Store.GetFinances(ctx, id)
	if err != nil && !errors.Is(err, program.ErrFinancesMissing) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load finances", nil)
		return
	}

	totals := pricing.Aggregate(program.PricingItems(items))
	opts := Build(Input{
		TotalCharge:    totals.Charge,
		TotalCost:      totals.Cost,
		TaxableCharge:  totals.TaxableCharge,
		FinanceCharges: fin.FinanceCharges,
		Discounts:      fin.Discounts,
		TaxRate:        h.TaxRate,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": opts})
}
