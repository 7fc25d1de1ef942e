package dto

import (
	"time"

	automation "github.com/stockflow/backend/internal/application/invoicing"
)

// StageSummaryResponse is the per-stage part of a run report
type StageSummaryResponse struct {
	Stage      string         `json:"stage"`
	Candidates int            `json:"candidates"`
	Ineligible map[string]int `json:"ineligible,omitempty"`
	Sent       int            `json:"sent"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
}

// OutcomeResponse describes what happened to one invoice in one stage
type OutcomeResponse struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	TenantID      string `json:"tenant_id"`
	Stage         string `json:"stage"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RunReportResponse is the API representation of an automation run
type RunReportResponse struct {
	RunID       string                 `json:"run_id"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	DurationMS  int64                  `json:"duration_ms"`
	GuardHeld   bool                   `json:"guard_held"`
	Interrupted bool                   `json:"interrupted"`
	Sent        int                    `json:"sent"`
	Skipped     int                    `json:"skipped"`
	Failed      int                    `json:"failed"`
	Stages      []StageSummaryResponse `json:"stages"`
	Outcomes    []OutcomeResponse      `json:"outcomes,omitempty"`
}

// NewRunReportResponse converts a run report. Outcomes are included only when
// withOutcomes is set.
func NewRunReportResponse(report *automation.RunReport, withOutcomes bool) *RunReportResponse {
	if report == nil {
		return nil
	}

	resp := &RunReportResponse{
		RunID:       report.RunID.String(),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		DurationMS:  report.Duration().Milliseconds(),
		GuardHeld:   report.GuardHeld,
		Interrupted: report.Interrupted,
		Sent:        report.Count(automation.OutcomeSent),
		Skipped:     report.Count(automation.OutcomeSkipped),
		Failed:      report.Count(automation.OutcomeFailed),
		Stages:      make([]StageSummaryResponse, 0, len(report.Stages)),
	}

	for _, s := range report.Stages {
		summary := StageSummaryResponse{
			Stage:      string(s.Stage),
			Candidates: s.Candidates,
			Sent:       s.Sent,
			Skipped:    s.Skipped,
			Failed:     s.Failed,
		}
		if len(s.Ineligible) > 0 {
			summary.Ineligible = make(map[string]int, len(s.Ineligible))
			for reason, n := range s.Ineligible {
				summary.Ineligible[string(reason)] = n
			}
		}
		resp.Stages = append(resp.Stages, summary)
	}

	if withOutcomes {
		resp.Outcomes = make([]OutcomeResponse, 0, len(report.Outcomes))
		for _, o := range report.Outcomes {
			resp.Outcomes = append(resp.Outcomes, OutcomeResponse{
				InvoiceID:     o.InvoiceID.String(),
				InvoiceNumber: o.InvoiceNumber,
				TenantID:      o.TenantID.String(),
				Stage:         string(o.Stage),
				Status:        string(o.Status),
				Reason:        o.Reason,
				Error:         o.Error,
			})
		}
	}
	return resp
}
