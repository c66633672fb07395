// Package tasks defines the background jobs processed by the worker.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/myowjaYOY/program-tracker-sub001/internal/audit"
)

// TypeIntegrityAudit is the task type for a scheduled or enqueued audit run.
const TypeIntegrityAudit = "audit:integrity"

// IntegrityAuditPayload scopes an audit task. A nil ProgramID audits all
// programs.
type IntegrityAuditPayload struct {
	ProgramID *uuid.UUID `json:"programId,omitempty"`
	AutoFix   bool       `json:"autoFix"`
}

// NewIntegrityAuditTask builds the asynq task for an audit run.
func NewIntegrityAuditTask(payload IntegrityAuditPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return asynq.NewTask(TypeIntegrityAudit, body, asynq.MaxRetry(3)), nil
}

// AuditProcessor executes integrity audit tasks.
type AuditProcessor struct {
	Svc    *audit.Service
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (p AuditProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal audit payload: %w", asynq.SkipRetry)
	}

	report, err := p.Svc.Run(ctx, audit.Options{ProgramID: payload.ProgramID, AutoFix: payload.AutoFix})
	if err != nil {
		return fmt.Errorf("run audit: %w", err)
	}
	p.Logger.Info().
		Int("checked", report.Summary.Checked).
		Int("with_issues", report.Summary.WithIssues).
		Bool("auto_fix", payload.AutoFix).
		Msg("scheduled audit finished")
	return nil
}

// Mux returns an asynq mux with all task handlers registered.
func Mux(processor AuditProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeIntegrityAudit, processor)
	return mux
}
