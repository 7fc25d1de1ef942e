package persistence

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stockflow/backend/internal/domain/invoicing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// fixedClock is a settable clock for lease expiry tests
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStageLeaser(t *testing.T) (*GormInvoiceStageLeaser, *GormInvoiceRepository, *fixedClock) {
	db := setupInvoiceTestDB(t)
	clock := &fixedClock{now: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)}
	leases := NewGormLeaseManager(db).WithClock(clock.Now)
	return NewGormInvoiceStageLeaser(leases, time.UTC), NewGormInvoiceRepository(db, time.UTC), clock
}

func TestGormInvoiceStageLeaser_TryAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires free stage and returns snapshot", func(t *testing.T) {
		leaser, repo, clock := newTestStageLeaser(t)
		inv := createTestInvoice(t, repo, nil)

		snapshot, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, snapshot)

		assert.Equal(t, inv.ID, snapshot.ID)
		require.NotNil(t, snapshot.ReminderProcessingUntil)
		assert.True(t, clock.Now().Add(30*time.Minute).Equal(*snapshot.ReminderProcessingUntil))
		assert.Equal(t, inv.Version+1, snapshot.Version)
	})

	t.Run("live lease blocks a second acquisition", func(t *testing.T) {
		leaser, repo, _ := newTestStageLeaser(t)
		inv := createTestInvoice(t, repo, nil)

		_, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		snapshot, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, snapshot)
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		leaser, repo, clock := newTestStageLeaser(t)
		inv := createTestInvoice(t, repo, nil)

		_, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(31 * time.Minute)

		_, ok, err = leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lease expiring exactly now is free", func(t *testing.T) {
		leaser, repo, clock := newTestStageLeaser(t)
		inv := createTestInvoice(t, repo, nil)

		_, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(30 * time.Minute)

		_, ok, err = leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("completed stage is never acquired", func(t *testing.T) {
		leaser, repo, clock := newTestStageLeaser(t)
		sentAt := clock.Now().Add(-time.Hour)
		inv := createTestInvoice(t, repo, func(inv *invoicing.Invoice) { inv.ReminderSentAt = &sentAt })

		_, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing invoice is not acquired", func(t *testing.T) {
		leaser, _, _ := newTestStageLeaser(t)

		_, ok, err := leaser.TryAcquire(ctx, uuid.New(), invoicing.StageReminder, 30*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stages lease independently", func(t *testing.T) {
		leaser, repo, _ := newTestStageLeaser(t)
		inv := createTestInvoice(t, repo, nil)

		for _, stage := range invoicing.Stages() {
			_, ok, err := leaser.TryAcquire(ctx, inv.ID, stage, 30*time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, stage.String())
		}
	})

	t.Run("unknown stage", func(t *testing.T) {
		leaser, repo, _ := newTestStageLeaser(t)
		inv := createTestInvoice(t, repo, nil)

		_, _, err := leaser.TryAcquire(ctx, inv.ID, invoicing.Stage("bogus"), time.Minute)
		assert.ErrorIs(t, err, invoicing.ErrUnknownStage)
	})
}

func TestGormInvoiceStageLeaser_Release(t *testing.T) {
	ctx := context.Background()
	leaser, repo, _ := newTestStageLeaser(t)
	inv := createTestInvoice(t, repo, nil)

	_, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageLateFee, 30*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, leaser.Release(ctx, inv.ID, invoicing.StageLateFee))

	found, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, found.OverdueProcessingUntil)
	assert.Nil(t, found.LateFeeEmailSentAt)
	// acquisition bumps the version once; release does not
	assert.Equal(t, inv.Version+1, found.Version)

	// released lease is immediately available again
	_, ok, err = leaser.TryAcquire(ctx, inv.ID, invoicing.StageLateFee, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGormInvoiceStageLeaser_ConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	leaser, repo, _ := newTestStageLeaser(t)
	inv := createTestInvoice(t, repo, nil)

	const workers = 10
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok, err := leaser.TryAcquire(ctx, inv.ID, invoicing.StageReminder, 30*time.Minute)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&winners))
}

// newMockLeaseManager creates a lease manager over a mocked PostgreSQL connection
func newMockLeaseManager(t *testing.T) (*GormLeaseManager, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	return NewGormLeaseManager(gormDB).WithClock(func() time.Time { return now }), mock, mockDB
}

var reminderLeaseSpec = LeaseSpec{
	Table:            "invoices",
	LeaseColumn:      "reminder_processing_until",
	CompletionColumn: "reminder_sent_at",
}

// TestGormLeaseManager_SQL checks the statements issued against PostgreSQL
func TestGormLeaseManager_SQL(t *testing.T) {
	id := uuid.New()
	ctx := context.Background()

	t.Run("locks row then updates with version guard", func(t *testing.T) {
		leases, mock, mockDB := newMockLeaseManager(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT reminder_processing_until,reminder_sent_at,version FROM "invoices" WHERE id = \$1 .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"reminder_processing_until", "reminder_sent_at", "version"}).
				AddRow(nil, nil, 3))
		mock.ExpectExec(`UPDATE "invoices" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := leases.TryAcquire(ctx, reminderLeaseSpec, id, 30*time.Minute, nil)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost version race is not acquired", func(t *testing.T) {
		leases, mock, mockDB := newMockLeaseManager(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM "invoices" .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"reminder_processing_until", "reminder_sent_at", "version"}).
				AddRow(nil, nil, 3))
		mock.ExpectExec(`UPDATE "invoices" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := leases.TryAcquire(ctx, reminderLeaseSpec, id, 30*time.Minute, nil)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed marker skips the update", func(t *testing.T) {
		leases, mock, mockDB := newMockLeaseManager(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM "invoices" .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"reminder_processing_until", "reminder_sent_at", "version"}).
				AddRow(nil, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), 4))
		mock.ExpectCommit()

		ok, err := leases.TryAcquire(ctx, reminderLeaseSpec, id, 30*time.Minute, nil)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("live lease stored as text skips the update", func(t *testing.T) {
		leases, mock, mockDB := newMockLeaseManager(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM "invoices" .*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"reminder_processing_until", "reminder_sent_at", "version"}).
				AddRow("2026-03-15T09:10:00Z", nil, 4))
		mock.ExpectCommit()

		ok, err := leases.TryAcquire(ctx, reminderLeaseSpec, id, 30*time.Minute, nil)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error rolls back", func(t *testing.T) {
		leases, mock, mockDB := newMockLeaseManager(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM "invoices"`).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		ok, err := leases.TryAcquire(ctx, reminderLeaseSpec, id, 30*time.Minute, nil)

		require.Error(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
