package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	automation "github.com/stockflow/backend/internal/application/invoicing"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stockflow/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sender = "billing@stockflow.test"

// recordingGateway records every message and fails for recipients in failFor
type recordingGateway struct {
	mu      sync.Mutex
	sent    []invoicing.Message
	failFor map[string]bool
}

func (g *recordingGateway) Send(ctx context.Context, msg invoicing.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[msg.To] {
		return errors.New("550 mailbox unavailable")
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *recordingGateway) Sender() string { return sender }

func (g *recordingGateway) sentTo(to string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, m := range g.sent {
		if m.To == to {
			n++
		}
	}
	return n
}

type automationSetup struct {
	db       *TestDB
	invoices *persistence.GormInvoiceRepository
	auditLog *persistence.GormNotificationLogRepository
	policy   invoicing.Policy
}

func newAutomationSetup(t *testing.T) *automationSetup {
	t.Helper()
	tdb := NewTestDB(t)

	policy := invoicing.DefaultPolicy()
	policy.Location = time.UTC

	return &automationSetup{
		db:       tdb,
		invoices: persistence.NewGormInvoiceRepository(tdb.DB, time.UTC),
		auditLog: persistence.NewGormNotificationLogRepository(tdb.DB),
		policy:   policy,
	}
}

// driverAt returns a driver whose clock is fixed at now
func (s *automationSetup) driverAt(t *testing.T, now time.Time, gw invoicing.NotificationGateway, concurrency int) *automation.Driver {
	t.Helper()
	composer, err := automation.NewComposer(s.policy)
	require.NoError(t, err)

	clock := func() time.Time { return now }
	leases := persistence.NewGormLeaseManager(s.db.DB).WithClock(clock)

	return automation.NewDriver(automation.ProcessorDeps{
		Invoices:    s.invoices,
		Leases:      persistence.NewGormInvoiceStageLeaser(leases, time.UTC),
		AuditLog:    s.auditLog,
		Composer:    composer,
		Policy:      s.policy,
		Concurrency: concurrency,
		Logger:      zap.NewNop(),
		Clock:       clock,
	}, func(ctx context.Context) (invoicing.NotificationGateway, error) {
		return gw, nil
	})
}

func (s *automationSetup) createInvoice(t *testing.T, email string, sentAt, due time.Time) *invoicing.Invoice {
	t.Helper()
	inv, err := invoicing.NewInvoice(uuid.New(), "INV-"+uuid.NewString()[:8], email, "Acme Ltd", decimal.NewFromInt(100))
	require.NoError(t, err)
	inv.SentAt = &sentAt
	inv.DueDate = &due
	require.NoError(t, s.invoices.Save(context.Background(), inv))
	return inv
}

func TestAutomation_FullLifecycle(t *testing.T) {
	s := newAutomationSetup(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	inv := s.createInvoice(t, "client@example.com", day1.Add(-48*time.Hour), time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	gw := &recordingGateway{}

	// Day 1: reminder and late fee go out; the late fee moves the due date to tomorrow.
	report, err := s.driverAt(t, day1, gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(automation.OutcomeSent))

	found, err := s.invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, found.ReminderSentAt)
	assert.NotNil(t, found.LateFeeEmailSentAt)
	assert.Nil(t, found.SecondOverdueReminderSentAt)
	assert.Nil(t, found.ReminderProcessingUntil)
	assert.Nil(t, found.OverdueProcessingUntil)
	assert.Equal(t, "19.00", found.LateFee.StringFixed(2))
	assert.Equal(t, "119.00", found.OutstandingBalance.StringFixed(2))
	require.NotNil(t, found.DueDate)
	assert.True(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC).Equal(*found.DueDate))

	// Same day again: nothing left to do.
	report, err = s.driverAt(t, day1.Add(time.Hour), gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count(automation.OutcomeSent))

	// Day 3: the re-based due date has passed, the final notice goes out.
	report, err = s.driverAt(t, day1.Add(48*time.Hour), gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(automation.OutcomeSent))

	found, err = s.invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, found.SecondOverdueReminderSentAt)
	assert.Equal(t, "19.00", found.LateFee.StringFixed(2), "the late fee is applied once")

	entries, err := s.auditLog.FindByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, invoicing.StageReminder, entries[0].Type)
	assert.Equal(t, invoicing.StageLateFee, entries[1].Type)
	assert.Equal(t, invoicing.StageFinalNotice, entries[2].Type)
	for _, e := range entries {
		assert.Equal(t, sender, e.SentBy)
		assert.Equal(t, inv.TenantID, e.TenantID)
	}
	assert.Equal(t, 3, gw.sentTo("client@example.com"))
}

func TestAutomation_FailedSendIsRetriedNextRun(t *testing.T) {
	s := newAutomationSetup(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	inv := s.createInvoice(t, "bounce@example.com", now.Add(-48*time.Hour), now.AddDate(0, 0, 10))
	gw := &recordingGateway{failFor: map[string]bool{"bounce@example.com": true}}

	report, err := s.driverAt(t, now, gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(automation.OutcomeFailed))

	found, err := s.invoices.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, found.ReminderSentAt)
	assert.Nil(t, found.ReminderProcessingUntil, "a failed send releases the lease")

	gw.failFor = nil
	report, err = s.driverAt(t, now.Add(time.Hour), gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(automation.OutcomeSent))
}

func TestAutomation_ConcurrentRunsSendOnce(t *testing.T) {
	s := newAutomationSetup(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	const invoiceCount = 20
	emails := make([]string, invoiceCount)
	for i := range emails {
		emails[i] = fmt.Sprintf("client-%02d@example.com", i)
		// not yet overdue, so only the reminder stage applies
		s.createInvoice(t, emails[i], now.Add(-48*time.Hour), now.AddDate(0, 0, 10))
	}

	gw := &recordingGateway{}
	const runners = 4
	reports := make([]*automation.RunReport, runners)
	var wg sync.WaitGroup
	for r := 0; r < runners; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			report, err := s.driverAt(t, now, gw, 4).Run(ctx)
			assert.NoError(t, err)
			reports[r] = report
		}(r)
	}
	wg.Wait()

	for _, email := range emails {
		assert.Equal(t, 1, gw.sentTo(email), "recipient %s", email)
	}

	sent := 0
	for _, report := range reports {
		require.NotNil(t, report)
		sent += report.Count(automation.OutcomeSent)
		assert.Zero(t, report.Count(automation.OutcomeFailed))
	}
	assert.Equal(t, invoiceCount, sent)

	var logCount int64
	require.NoError(t, s.db.DB.Table("notification_logs").Count(&logCount).Error)
	assert.Equal(t, int64(invoiceCount), logCount)
}

func TestAutomation_ExpiredLeaseIsReclaimed(t *testing.T) {
	s := newAutomationSetup(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	inv := s.createInvoice(t, "client@example.com", now.Add(-48*time.Hour), now.AddDate(0, 0, 10))

	// a crashed run left a lease behind
	held := now.Add(10 * time.Minute)
	require.NoError(t, s.db.DB.Table("invoices").Where("id = ?", inv.ID).
		Update("reminder_processing_until", held).Error)

	gw := &recordingGateway{}
	report, err := s.driverAt(t, now, gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count(automation.OutcomeSent))
	outcomes := report.OutcomesFor(inv.ID)
	require.Len(t, outcomes, 3)
	assert.Equal(t, invoicing.StageReminder, outcomes[0].Stage)
	assert.Equal(t, automation.OutcomeSkipped, outcomes[0].Status)
	assert.Equal(t, automation.ReasonLeaseUnavailable, outcomes[0].Reason)

	report, err = s.driverAt(t, held.Add(time.Second), gw, 1).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(automation.OutcomeSent))
}

func TestMigrations_DownAndUp(t *testing.T) {
	tdb := NewTestDB(t)

	m := tdb.Migrator()
	defer m.Close()

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, m.Steps(-1))
	assert.False(t, tdb.DB.Migrator().HasTable("notification_logs"))
	assert.True(t, tdb.DB.Migrator().HasTable("invoices"))

	require.NoError(t, m.Up())
	assert.True(t, tdb.DB.Migrator().HasTable("notification_logs"))
}
