// Package quote exposes the pricing calculators as stateless endpoints so
// front-of-house staff can price a hypothetical program without saving it.
package quote

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/common"
	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
)

// Handler computes quotes from caller-supplied figures. DefaultTaxRate is
// used when a request omits taxRate.
type Handler struct {
	DefaultTaxRate decimal.Decimal
}

type quoteRequest struct {
	TotalCharge    decimal.Decimal  `json:"totalCharge"`
	TaxableCharge  decimal.Decimal  `json:"taxableCharge"`
	TotalCost      decimal.Decimal  `json:"totalCost"`
	FinanceCharges decimal.Decimal  `json:"financeCharges"`
	Discounts      decimal.Decimal  `json:"discounts"`
	LockedPrice    *decimal.Decimal `json:"lockedPrice,omitempty"`
	TaxRate        *decimal.Decimal `json:"taxRate,omitempty"`
}

func (h Handler) rate(req quoteRequest) decimal.Decimal {
	if req.TaxRate != nil {
		return *req.TaxRate
	}
	if !h.DefaultTaxRate.IsZero() {
		return h.DefaultTaxRate
	}
	return pricing.DefaultTaxRate
}

func decode(w http.ResponseWriter, r *http.Request) (quoteRequest, bool) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return req, false
	}
	if req.Discounts.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "discounts must be zero or negative", nil)
		return req, false
	}
	return req, true
}

// Taxes quotes the tax amount for the supplied charges and discounts.
func (h Handler) Taxes(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	taxes := pricing.Taxes(req.TotalCharge, req.TaxableCharge, req.Discounts, h.rate(req))
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"taxes": pricing.RoundCurrency(taxes),
	}})
}

// Price quotes the projected program price.
func (h Handler) Price(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	taxes := pricing.Taxes(req.TotalCharge, req.TaxableCharge, req.Discounts, h.rate(req))
	price := pricing.ProjectedPrice(req.TotalCharge, taxes, req.FinanceCharges, req.Discounts)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"taxes":          pricing.RoundCurrency(taxes),
		"projectedPrice": pricing.RoundCurrency(price),
	}})
}

// Margin quotes the projected margin, or the margin against a locked price
// when lockedPrice is supplied.
func (h Handler) Margin(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(w, r)
	if !ok {
		return
	}
	if req.LockedPrice != nil {
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"margin": pricing.MarginOnLockedPrice(*req.LockedPrice, req.TotalCost),
		}})
		return
	}
	taxes := pricing.Taxes(req.TotalCharge, req.TaxableCharge, req.Discounts, h.rate(req))
	price := pricing.ProjectedPrice(req.TotalCharge, taxes, req.FinanceCharges, req.Discounts)
	margin := pricing.ProjectedMargin(price, req.TotalCost, req.FinanceCharges, taxes)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"taxes":          pricing.RoundCurrency(taxes),
		"projectedPrice": pricing.RoundCurrency(price),
		"margin":         margin,
	}})
}
