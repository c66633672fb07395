package audit

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/myowjaYOY/program-tracker-sub001/internal/common"
)

// Handler exposes the on-demand audit endpoint.
type Handler struct {
	Svc *Service
}

type runRequest struct {
	ProgramID *uuid.UUID `json:"programId,omitempty"`
	AutoFix   bool       `json:"autoFix,omitempty"`
}

// Run triggers an audit. autoFix rewrites derived fields and is restricted
// to admins; read-only audits are open to any authenticated caller.
func (h Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.AutoFix && !common.HasRole(r.Context(), "admin") {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "autoFix requires the admin role", nil)
		return
	}

	report, err := h.Svc.Run(r.Context(), Options{ProgramID: req.ProgramID, AutoFix: req.AutoFix})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "audit failed", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}
