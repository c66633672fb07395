package audit

import "github.com/google/uuid"

// ProgramResult is the audit outcome for a single program. Issues are
// stored-vs-expected mismatches (auto-correctable); warnings flag conditions
// that cannot be repaired by rewriting derived fields.
type ProgramResult struct {
	ProgramID  uuid.UUID `json:"programId"`
	MemberName string    `json:"memberName,omitempty"`
	Passed     bool      `json:"passed"`
	Issues     []string  `json:"issues,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	Fixed      bool      `json:"fixed,omitempty"`
}

func (r *ProgramResult) fail(issue string) {
	r.Passed = false
	r.Issues = append(r.Issues, issue)
}

func (r *ProgramResult) warn(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Summary aggregates a whole audit run.
type Summary struct {
	Checked      int `json:"checked"`
	WithIssues   int `json:"withIssues"`
	WithWarnings int `json:"withWarnings"`
	TotalIssues  int `json:"totalIssues"`
}

// Report is the full response of an audit run.
type Report struct {
	Summary Summary         `json:"summary"`
	Results []ProgramResult `json:"results"`
}

func buildReport(results []ProgramResult) Report {
	summary := Summary{Checked: len(results)}
	for _, r := range results {
		if len(r.Issues) > 0 {
			summary.WithIssues++
			summary.TotalIssues += len(r.Issues)
		}
		if len(r.Warnings) > 0 {
			summary.WithWarnings++
		}
	}
	return Report{Summary: summary, Results: results}
}
