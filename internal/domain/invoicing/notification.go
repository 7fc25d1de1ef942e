package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is an outbound transactional email
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// NotificationGateway sends transactional email. Any returned error is a transport
// failure (authentication, connectivity, rejected recipient).
type NotificationGateway interface {
	Send(ctx context.Context, msg Message) error

	// Sender returns the identity recorded as the sender of audit entries
	Sender() string
}

// GatewayFactory builds the notification gateway for one automation run. It returns
// ErrNotificationNotConfigured when transport credentials are unavailable.
type GatewayFactory func(ctx context.Context) (NotificationGateway, error)

// NotificationLog is the immutable audit record of one sent notification
type NotificationLog struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	InvoiceID     uuid.UUID
	RunID         uuid.UUID
	Recipient     string
	Subject       string
	Type          Stage
	InvoiceNumber string
	ClientName    string
	SentAt        time.Time
	SentBy        string
}

// NewNotificationLog creates the audit record for a message that was just sent
func NewNotificationLog(inv *Invoice, stage Stage, msg Message, runID uuid.UUID, sentBy string, sentAt time.Time) *NotificationLog {
	return &NotificationLog{
		ID:            uuid.New(),
		TenantID:      inv.TenantID,
		InvoiceID:     inv.ID,
		RunID:         runID,
		Recipient:     msg.To,
		Subject:       msg.Subject,
		Type:          stage,
		InvoiceNumber: inv.InvoiceNumber,
		ClientName:    inv.ClientName,
		SentAt:        sentAt,
		SentBy:        sentBy,
	}
}
