package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
)

// OutcomeStatus is the result of one attempted invoice stage
type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ReasonLeaseUnavailable is the skip reason when another run holds the stage lease or
// completed the stage first
const ReasonLeaseUnavailable = "lease_unavailable"

// Outcome records what happened to one invoice in one stage
type Outcome struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Stage         invoicing.Stage `json:"stage"`
	Status        OutcomeStatus   `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// StageSummary counts the candidates of one stage
type StageSummary struct {
	Stage      invoicing.Stage                    `json:"stage"`
	Candidates int                                `json:"candidates"`
	Ineligible map[invoicing.IneligibleReason]int `json:"ineligible,omitempty"`
	Sent       int                                `json:"sent"`
	Skipped    int                                `json:"skipped"`
	Failed     int                                `json:"failed"`
}

// RunReport is the result of one automation run
type RunReport struct {
	RunID      uuid.UUID      `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stages     []StageSummary `json:"stages"`
	Outcomes   []Outcome      `json:"outcomes"`

	// GuardHeld is set when another run held the run guard and this run did nothing
	GuardHeld bool `json:"guard_held,omitempty"`

	// Interrupted is set when the run deadline expired before every stage finished
	Interrupted bool `json:"interrupted,omitempty"`
}

func newRunReport(runID uuid.UUID, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartedAt: startedAt,
		Stages:    []StageSummary{},
		Outcomes:  []Outcome{},
	}
}

func (r *RunReport) addStage(summary StageSummary, outcomes []Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeSent:
			summary.Sent++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	r.Stages = append(r.Stages, summary)
	r.Outcomes = append(r.Outcomes, outcomes...)
}

// Count returns the number of outcomes with the given status
func (r *RunReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// OutcomesFor returns the outcomes of one invoice in stage order
func (r *RunReport) OutcomesFor(invoiceID uuid.UUID) []Outcome {
	var outcomes []Outcome
	for _, o := range r.Outcomes {
		if o.InvoiceID == invoiceID {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}

// Stage returns the summary of one stage, or false if the stage did not run
func (r *RunReport) Stage(stage invoicing.Stage) (StageSummary, bool) {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s, true
		}
	}
	return StageSummary{}, false
}

// Duration returns how long the run took
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
