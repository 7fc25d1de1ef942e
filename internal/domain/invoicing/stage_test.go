package invoicing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Location = time.UTC
	return p
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var stageNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func TestStage_IsValid(t *testing.T) {
	for _, s := range Stages() {
		assert.True(t, s.IsValid(), s.String())
	}
	assert.False(t, Stage("first_reminder").IsValid())
	assert.Equal(t, []Stage{StageReminder, StageLateFee, StageFinalNotice}, Stages())
}

// ============================================
// Reminder Eligibility Tests
// ============================================

func TestCheckEligibility_Reminder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(inv *Invoice)
		want   IneligibleReason
	}{
		{"sent more than 24h ago", func(inv *Invoice) {}, ReasonEligible},
		{"sent exactly 24h ago", func(inv *Invoice) { inv.SentAt = timePtr(stageNow.Add(-24 * time.Hour)) }, ReasonEligible},
		{"sent 23h ago", func(inv *Invoice) { inv.SentAt = timePtr(stageNow.Add(-23 * time.Hour)) }, ReasonReminderNotDue},
		{"never sent", func(inv *Invoice) { inv.SentAt = nil }, ReasonNotSent},
		{"reminder already sent", func(inv *Invoice) { inv.ReminderSentAt = timePtr(stageNow.Add(-time.Hour)) }, ReasonStageCompleted},
		{"fully paid", func(inv *Invoice) { inv.AmountPaid = dec("100") }, ReasonFullyPaid},
		{"no client email", func(inv *Invoice) { inv.ClientEmail = "" }, ReasonNoClientEmail},
		{"partially paid still eligible", func(inv *Invoice) {
			inv.Status = InvoiceStatusPartiallyPaid
			inv.AmountPaid = dec("40")
		}, ReasonEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := createTestInvoice(t, 100)
			inv.SentAt = timePtr(stageNow.Add(-30 * time.Hour))
			tt.mutate(inv)

			assert.Equal(t, tt.want, CheckEligibility(StageReminder, inv, stageNow, testPolicy()))
		})
	}
}

// ============================================
// Late Fee Eligibility Tests
// ============================================

func TestCheckEligibility_LateFee(t *testing.T) {
	yesterday := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(inv *Invoice)
		want   IneligibleReason
	}{
		{"overdue without late fee", func(inv *Invoice) {}, ReasonEligible},
		{"due today", func(inv *Invoice) { inv.DueDate = timePtr(today) }, ReasonNotOverdue},
		{"no due date", func(inv *Invoice) { inv.DueDate = nil }, ReasonNotOverdue},
		{"late fee already present", func(inv *Invoice) { inv.LateFee = dec("19") }, ReasonLateFeeApplied},
		{"stage already completed", func(inv *Invoice) { inv.LateFeeEmailSentAt = timePtr(stageNow) }, ReasonStageCompleted},
		{"fully paid", func(inv *Invoice) { inv.AmountPaid = dec("100") }, ReasonFullyPaid},
		{"no client email", func(inv *Invoice) { inv.ClientEmail = "" }, ReasonNoClientEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := createTestInvoice(t, 100)
			inv.DueDate = timePtr(yesterday)
			tt.mutate(inv)

			assert.Equal(t, tt.want, CheckEligibility(StageLateFee, inv, stageNow, testPolicy()))
		})
	}
}

// ============================================
// Final Notice Eligibility Tests
// ============================================

func TestCheckEligibility_FinalNotice(t *testing.T) {
	yesterday := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(inv *Invoice)
		want   IneligibleReason
	}{
		{"overdue after late fee notice", func(inv *Invoice) {}, ReasonEligible},
		{"late fee waived after notice", func(inv *Invoice) { inv.LateFee = dec("0") }, ReasonEligible},
		{"late fee notice not sent", func(inv *Invoice) { inv.LateFeeEmailSentAt = nil }, ReasonLateFeeNotApplied},
		{"re-based due date not passed", func(inv *Invoice) { inv.DueDate = timePtr(tomorrow) }, ReasonNotOverdue},
		{"final notice already sent", func(inv *Invoice) { inv.SecondOverdueReminderSentAt = timePtr(stageNow) }, ReasonStageCompleted},
		{"paid after late fee", func(inv *Invoice) { inv.AmountPaid = dec("119") }, ReasonFullyPaid},
		{"no client email", func(inv *Invoice) { inv.ClientEmail = "" }, ReasonNoClientEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := createTestInvoice(t, 100)
			inv.LateFee = dec("19")
			inv.LateFeeEmailSentAt = timePtr(stageNow.Add(-48 * time.Hour))
			inv.DueDate = timePtr(yesterday)
			tt.mutate(inv)

			assert.Equal(t, tt.want, CheckEligibility(StageFinalNotice, inv, stageNow, testPolicy()))
		})
	}
}

func TestCheckEligibility_UnknownStage(t *testing.T) {
	inv := createTestInvoice(t, 100)
	assert.NotEqual(t, ReasonEligible, CheckEligibility(Stage("bogus"), inv, stageNow, testPolicy()))
}

// ============================================
// Late Fee Assessment Tests
// ============================================

func TestAssessLateFee(t *testing.T) {
	t.Run("applies fee and re-bases dates", func(t *testing.T) {
		inv := createTestInvoice(t, 100)
		inv.DueDate = timePtr(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

		a := AssessLateFee(inv, stageNow, testPolicy())

		assert.Equal(t, "19.00", a.LateFee.StringFixed(2))
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), a.InvoiceDate)
		assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), a.DueDate)
		assert.Equal(t, "119.00", a.OutstandingBalance.StringFixed(2))

		// the invoice itself is untouched until Apply
		assert.True(t, inv.LateFee.IsZero())
	})

	t.Run("balance reflects discount and payments", func(t *testing.T) {
		inv := createTestInvoice(t, 100)
		inv.DiscountType = DiscountTypePercentage
		inv.DiscountValue = dec("10")
		inv.AmountPaid = dec("7.10")

		a := AssessLateFee(inv, stageNow, testPolicy())

		// 100 - 11.90 + 19 - 7.10
		assert.Equal(t, "100.00", a.OutstandingBalance.StringFixed(2))
	})

	t.Run("apply copies fields", func(t *testing.T) {
		inv := createTestInvoice(t, 100)
		a := AssessLateFee(inv, stageNow, testPolicy())
		a.Apply(inv)

		assert.Equal(t, "19.00", inv.LateFee.StringFixed(2))
		assert.Equal(t, a.DueDate, *inv.DueDate)
		assert.Equal(t, a.InvoiceDate, *inv.InvoiceDate)
		assert.Equal(t, "119.00", inv.OutstandingBalance.StringFixed(2))
		assert.True(t, inv.HasLateFee())

		// after the fee the due date is tomorrow, so the invoice is not overdue today
		assert.False(t, IsOverdue(inv, stageNow, time.UTC))
		assert.Equal(t, ReasonNotOverdue, CheckEligibility(StageFinalNotice, withNoticeSent(inv), stageNow, testPolicy()))
	})
}

func withNoticeSent(inv *Invoice) *Invoice {
	inv.LateFeeEmailSentAt = timePtr(stageNow)
	return inv
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.LeaseDuration = 0
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.LateFeeAmount = dec("0")
	assert.Error(t, p.Validate())

	assert.Equal(t, 35*time.Minute, DefaultPolicy().WorstCaseStaleness(5*time.Minute))
}
