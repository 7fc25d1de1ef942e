package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage identifies one step of the collection pipeline. The value doubles as the
// notification type written to the audit log.
type Stage string

const (
	StageReminder    Stage = "reminder_24h"
	StageLateFee     Stage = "overdue"
	StageFinalNotice Stage = "second_reminder"
)

// Stages returns the pipeline stages in processing order
func Stages() []Stage {
	return []Stage{StageReminder, StageLateFee, StageFinalNotice}
}

// IsValid checks if the stage is known
func (s Stage) IsValid() bool {
	switch s {
	case StageReminder, StageLateFee, StageFinalNotice:
		return true
	}
	return false
}

// String returns the string representation of Stage
func (s Stage) String() string {
	return string(s)
}

// IneligibleReason explains why an invoice is not eligible for a stage.
// The empty reason means eligible.
type IneligibleReason string

const (
	ReasonEligible          IneligibleReason = ""
	ReasonFullyPaid         IneligibleReason = "fully_paid"
	ReasonStageCompleted    IneligibleReason = "stage_completed"
	ReasonNoClientEmail     IneligibleReason = "no_client_email"
	ReasonNotSent           IneligibleReason = "not_sent"
	ReasonReminderNotDue    IneligibleReason = "reminder_not_due"
	ReasonNotOverdue        IneligibleReason = "not_overdue"
	ReasonLateFeeApplied    IneligibleReason = "late_fee_already_applied"
	ReasonLateFeeNotApplied IneligibleReason = "late_fee_not_applied"
)

// CheckEligibility evaluates the stage preconditions against the invoice state at now
func CheckEligibility(stage Stage, inv *Invoice, now time.Time, policy Policy) IneligibleReason {
	switch stage {
	case StageReminder:
		return reminderEligibility(inv, now, policy)
	case StageLateFee:
		return lateFeeEligibility(inv, now, policy)
	case StageFinalNotice:
		return finalNoticeEligibility(inv, now, policy)
	}
	return ReasonStageCompleted
}

func reminderEligibility(inv *Invoice, now time.Time, policy Policy) IneligibleReason {
	if IsFullyPaid(inv) {
		return ReasonFullyPaid
	}
	if inv.ReminderSentAt != nil {
		return ReasonStageCompleted
	}
	if inv.SentAt == nil {
		return ReasonNotSent
	}
	if now.Sub(*inv.SentAt) < policy.ReminderDelay {
		return ReasonReminderNotDue
	}
	if !inv.HasClientEmail() {
		return ReasonNoClientEmail
	}
	return ReasonEligible
}

func lateFeeEligibility(inv *Invoice, now time.Time, policy Policy) IneligibleReason {
	if IsFullyPaid(inv) {
		return ReasonFullyPaid
	}
	if inv.LateFeeEmailSentAt != nil {
		return ReasonStageCompleted
	}
	if !IsOverdue(inv, now, policy.Location) {
		return ReasonNotOverdue
	}
	if !inv.LateFee.IsZero() {
		return ReasonLateFeeApplied
	}
	if !inv.HasClientEmail() {
		return ReasonNoClientEmail
	}
	return ReasonEligible
}

// finalNoticeEligibility intentionally does not look at LateFee: a late fee waived after
// the overdue notice still leads to the final notice.
func finalNoticeEligibility(inv *Invoice, now time.Time, policy Policy) IneligibleReason {
	if IsFullyPaid(inv) {
		return ReasonFullyPaid
	}
	if inv.SecondOverdueReminderSentAt != nil {
		return ReasonStageCompleted
	}
	if inv.LateFeeEmailSentAt == nil {
		return ReasonLateFeeNotApplied
	}
	if !IsOverdue(inv, now, policy.Location) {
		return ReasonNotOverdue
	}
	if !inv.HasClientEmail() {
		return ReasonNoClientEmail
	}
	return ReasonEligible
}

// LateFeeAssessment holds the invoice fields rewritten when a late fee is applied
type LateFeeAssessment struct {
	LateFee            decimal.Decimal
	InvoiceDate        time.Time
	DueDate            time.Time
	OutstandingBalance decimal.Decimal
}

// AssessLateFee computes the late fee change without mutating the invoice. The invoice
// date is re-based to today and the due date to tomorrow, both at local midnight.
func AssessLateFee(inv *Invoice, now time.Time, policy Policy) LateFeeAssessment {
	today := LocalMidnight(now, policy.Location)

	updated := *inv
	updated.LateFee = policy.LateFeeAmount.Round(2)

	return LateFeeAssessment{
		LateFee:            updated.LateFee,
		InvoiceDate:        today,
		DueDate:            today.AddDate(0, 0, 1),
		OutstandingBalance: OutstandingBalance(&updated),
	}
}

// Apply copies the assessment onto the invoice
func (a LateFeeAssessment) Apply(inv *Invoice) {
	inv.LateFee = a.LateFee
	invoiceDate := a.InvoiceDate
	dueDate := a.DueDate
	inv.InvoiceDate = &invoiceDate
	inv.DueDate = &dueDate
	inv.OutstandingBalance = a.OutstandingBalance
}
