package invoicing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stockflow/backend/internal/domain/shared"
)

// InvoiceStatus represents the billing status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusSent          InvoiceStatus = "sent"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
	InvoiceStatusDisputed      InvoiceStatus = "disputed"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusPaid,
		InvoiceStatusCancelled, InvoiceStatusDisputed:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further collection activity applies
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled || s == InvoiceStatusDisputed
}

// IsCollectable returns true if the automation engine may act on the invoice
func (s InvoiceStatus) IsCollectable() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPartiallyPaid
}

// CollectableStatuses returns the statuses queried by the automation engine
func CollectableStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusSent, InvoiceStatusPartiallyPaid}
}

// DiscountType represents how the invoice discount is expressed
type DiscountType string

const (
	DiscountTypeNone       DiscountType = "none"
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// IsValid checks if the discount type is valid. Empty is treated as none.
func (d DiscountType) IsValid() bool {
	switch d {
	case "", DiscountTypeNone, DiscountTypePercentage, DiscountTypeFixed:
		return true
	}
	return false
}

// Invoice is a client invoice owned by a tenant.
//
// Fields fall into three ownership groups: the billing UI owns identity and amounts,
// payment webhooks own Status and AmountPaid, and the automation engine owns the stage
// markers, stage leases, LateFee, InvoiceDate, DueDate and OutstandingBalance.
type Invoice struct {
	shared.TenantAggregateRoot
	InvoiceNumber string
	ClientEmail   string
	ClientName    string

	Total              decimal.Decimal
	DiscountType       DiscountType
	DiscountValue      decimal.Decimal
	LateFee            decimal.Decimal
	AmountPaid         decimal.Decimal
	OutstandingBalance decimal.Decimal

	Status InvoiceStatus

	// InvoiceDate and DueDate are calendar dates at local midnight; nil when the stored
	// value could not be parsed.
	InvoiceDate *time.Time
	DueDate     *time.Time
	SentAt      *time.Time

	ReminderSentAt              *time.Time
	LateFeeEmailSentAt          *time.Time
	SecondOverdueReminderSentAt *time.Time

	ReminderProcessingUntil      *time.Time
	OverdueProcessingUntil       *time.Time
	FinalReminderProcessingUntil *time.Time
}

// NewInvoice creates an invoice in sent status with no discount, late fee or payment
func NewInvoice(tenantID uuid.UUID, invoiceNumber, clientEmail, clientName string, total decimal.Decimal) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if total.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice total cannot be negative")
	}

	inv := &Invoice{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		InvoiceNumber:       invoiceNumber,
		ClientEmail:         clientEmail,
		ClientName:          clientName,
		Total:               total,
		DiscountType:        DiscountTypeNone,
		DiscountValue:       decimal.Zero,
		LateFee:             decimal.Zero,
		AmountPaid:          decimal.Zero,
		Status:              InvoiceStatusSent,
	}
	inv.OutstandingBalance = OutstandingBalance(inv)
	return inv, nil
}

// HasClientEmail returns true if the invoice has a non-blank recipient address
func (inv *Invoice) HasClientEmail() bool {
	return strings.TrimSpace(inv.ClientEmail) != ""
}

// HasLateFee returns true if a late fee is currently applied
func (inv *Invoice) HasLateFee() bool {
	return inv.LateFee.IsPositive()
}

// StageMarker returns the completion marker for the given stage
func (inv *Invoice) StageMarker(stage Stage) *time.Time {
	switch stage {
	case StageReminder:
		return inv.ReminderSentAt
	case StageLateFee:
		return inv.LateFeeEmailSentAt
	case StageFinalNotice:
		return inv.SecondOverdueReminderSentAt
	}
	return nil
}

// StageLease returns the lease expiry for the given stage
func (inv *Invoice) StageLease(stage Stage) *time.Time {
	switch stage {
	case StageReminder:
		return inv.ReminderProcessingUntil
	case StageLateFee:
		return inv.OverdueProcessingUntil
	case StageFinalNotice:
		return inv.FinalReminderProcessingUntil
	}
	return nil
}

// IsStageCompleted returns true once the stage marker is set
func (inv *Invoice) IsStageCompleted(stage Stage) bool {
	return inv.StageMarker(stage) != nil
}
