package program

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/common"
	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
)

// Handler exposes program read endpoints and program creation.
type Handler struct {
	Repo     *Repo
	Validate *validator.Validate
	TaxRate  decimal.Decimal
}

type createProgramRequest struct {
	MemberName     string          `json:"memberName" validate:"required,max=200"`
	FinanceCharges decimal.Decimal `json:"financeCharges"`
	Discounts      decimal.Decimal `json:"discounts"`
}

// Create registers a new quote-status program with an empty item set.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	req.MemberName = strings.TrimSpace(req.MemberName)
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "memberName is required", nil)
			return
		}
	}
	if req.Discounts.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "discounts must be zero or negative", nil)
		return
	}

	created, err := h.Repo.CreateProgram(r.Context(), CreateProgramParams{
		MemberName:     req.MemberName,
		FinanceCharges: req.FinanceCharges,
		Discounts:      req.Discounts,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create program", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// ListTherapies returns the therapy catalog.
func (h Handler) ListTherapies(w http.ResponseWriter, r *http.Request) {
	therapies, err := h.Repo.ListTherapies(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list therapies", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": therapies})
}

// List returns all programs with their cached totals.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	programs, err := h.Repo.ListPrograms(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list programs", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": programs})
}

// Get returns one program together with its items, finance record, and a
// freshly computed pricing summary.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid program id", nil)
		return
	}
	ctx := r.Context()

	prog, err := h.Repo.GetProgram(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "program not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load program", nil)
		return
	}
	items, err := h.Repo.ListActiveItems(ctx, id)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load items", nil)
		return
	}

	response := map[string]any{
		"program": prog,
		"items":   items,
	}
	fin, err := h.Repo.GetFinances(ctx, id)
	switch {
	case err == nil:
		response["finances"] = fin
		response["pricing"] = h.summary(items, fin)
	case errors.Is(err, ErrFinancesMissing):
		// Surface the gap rather than failing the read; the auditor flags it.
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load finances", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": response})
}

// summary recomputes the live projection for display. Stored fields stay
// authoritative; this is what the numbers are "right now".
func (h Handler) summary(items []Item, fin Finances) map[string]any {
	rate := h.TaxRate
	if rate.IsZero() {
		rate = pricing.DefaultTaxRate
	}
	totals := pricing.Aggregate(PricingItems(items))
	taxes := pricing.Taxes(totals.Charge, totals.TaxableCharge, fin.Discounts, rate)
	price := pricing.ProjectedPrice(totals.Charge, taxes, fin.FinanceCharges, fin.Discounts)
	margin := pricing.ProjectedMargin(price, totals.Cost, fin.FinanceCharges, taxes)

	mode := fin.Mode()
	out := map[string]any{
		"mode":           mode.Kind.String(),
		"totalCost":      totals.Cost,
		"totalCharge":    totals.Charge,
		"taxes":          pricing.RoundCurrency(taxes),
		"projectedPrice": pricing.RoundCurrency(price),
		"margin":         margin,
	}
	if mode.IsLocked() {
		out["contractedAtMargin"] = mode.ContractedMargin
		out["finalTotalPrice"] = fin.FinalTotalPrice
		out["variance"] = pricing.RoundCurrency(price.Sub(fin.FinalTotalPrice))
		out["marginOnLockedPrice"] = pricing.MarginOnLockedPrice(fin.FinalTotalPrice, totals.Cost)
	}
	return out
}
