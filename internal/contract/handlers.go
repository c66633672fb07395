package contract

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/common"
	"github.com/myowjaYOY/program-tracker-sub001/internal/obs"
	"github.com/myowjaYOY/program-tracker-sub001/internal/program"
)

// Handler exposes the item mutation and activation endpoints. Every write
// goes through the contract validator.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type itemRequest struct {
	TherapyID  uuid.UUID       `json:"therapyId"`
	Quantity   int64           `json:"quantity" validate:"min=1"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	UnitCharge decimal.Decimal `json:"unitCharge"`
}

func (h Handler) validateItem(req itemRequest) bool {
	if h.Validate == nil {
		return req.Quantity >= 1
	}
	return h.Validate.Struct(req) == nil
}

// AddItem appends a line item to the program.
func (h Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	programID, ok := h.programID(w, r)
	if !ok {
		return
	}
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.TherapyID == uuid.Nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "therapyId is required", nil)
		return
	}
	if !h.validateItem(req) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "quantity must be at least 1", nil)
		return
	}
	if req.UnitCost.IsNegative() || req.UnitCharge.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "unit amounts must not be negative", nil)
		return
	}

	h.apply(w, r, programID, ItemChange{
		Op:         program.OpAdd,
		TherapyID:  req.TherapyID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		UnitCharge: req.UnitCharge,
	})
}

// UpdateItem changes an existing item's quantity or therapy reference.
func (h Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	programID, ok := h.programID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if !h.validateItem(req) {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "quantity must be at least 1", nil)
		return
	}

	h.apply(w, r, programID, ItemChange{
		Op:         program.OpUpdate,
		ItemID:     itemID,
		TherapyID:  req.TherapyID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		UnitCharge: req.UnitCharge,
	})
}

// RemoveItem soft-deletes an item.
func (h Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	programID, ok := h.programID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	h.apply(w, r, programID, ItemChange{Op: program.OpRemove, ItemID: itemID})
}

// Activate locks the program's price and margin at their current projection.
func (h Handler) Activate(w http.ResponseWriter, r *http.Request) {
	programID, ok := h.programID(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Activate(r.Context(), programID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h Handler) apply(w http.ResponseWriter, r *http.Request, programID uuid.UUID, change ItemChange) {
	res, err := h.Svc.Apply(r.Context(), programID, change)
	if err != nil {
		var vErr *ValidationError
		obs.ObserveContractValidation(errors.As(err, &vErr))
		h.writeError(w, err)
		return
	}
	obs.ObserveContractValidation(false)
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h Handler) programID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid program id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h Handler) writeError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		details := map[string]any{"reasons": vErr.Reasons}
		if vErr.OverBudget.IsPositive() {
			details["overBudget"] = vErr.OverBudget
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "CONTRACT_VIOLATION", "change would breach the contract lock", details)
	case errors.Is(err, ErrAlreadyLocked):
		common.JSONError(w, http.StatusConflict, "ALREADY_LOCKED", "program is already locked", nil)
	case errors.Is(err, program.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "program, item, or therapy not found", nil)
	case errors.Is(err, program.ErrFinancesMissing):
		common.JSONError(w, http.StatusConflict, "FINANCES_MISSING", "program has no finance record", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to apply change", nil)
	}
}
