package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceRepository reads invoices and writes the fields owned by the automation engine
type InvoiceRepository interface {
	// FindByStatuses returns invoices of every tenant whose status is one of statuses
	FindByStatuses(ctx context.Context, statuses []InvoiceStatus) ([]Invoice, error)

	// FindByID returns the invoice or shared.ErrNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// CompleteStage sets the stage marker, clears the stage lease and writes the stage's
	// field changes in one update. Returns ErrStageAlreadyCompleted if the marker was set
	// by someone else in the meantime.
	CompleteStage(ctx context.Context, id uuid.UUID, completion StageCompletion) error
}

// StageCompletion describes the durable write that finishes a stage
type StageCompletion struct {
	Stage       Stage
	CompletedAt time.Time

	// LateFee is set only for StageLateFee
	LateFee *LateFeeAssessment
}

// StageLeaser grants time-bounded exclusive ownership of one stage of one invoice
type StageLeaser interface {
	// TryAcquire takes the stage lease unless the stage is completed or a live lease
	// exists. On success it returns the invoice as read inside the acquiring transaction.
	TryAcquire(ctx context.Context, id uuid.UUID, stage Stage, duration time.Duration) (*Invoice, bool, error)

	// Release clears the stage lease
	Release(ctx context.Context, id uuid.UUID, stage Stage) error
}

// NotificationLogRepository is the append-only audit log of sent notifications
type NotificationLogRepository interface {
	Append(ctx context.Context, entry *NotificationLog) error
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]NotificationLog, error)
}

// RunGuard is a best-effort lock that lets overlapping runs bail out early.
// It is an optimisation only; stage leases keep overlapping runs correct without it.
type RunGuard interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
