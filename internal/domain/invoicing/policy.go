package invoicing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the collection policy constants
type Policy struct {
	// ReminderDelay is how long after SentAt the first reminder goes out
	ReminderDelay time.Duration

	// LeaseDuration bounds how long a crashed run can block a stage for an invoice
	LeaseDuration time.Duration

	// LateFeeAmount is the fixed fee applied once an invoice becomes overdue
	LateFeeAmount decimal.Decimal

	// Currency is the ISO 4217 code used when rendering amounts
	Currency string

	// Location defines "today" for due date comparisons
	Location *time.Location
}

// DefaultPolicy returns the default collection policy
func DefaultPolicy() Policy {
	return Policy{
		ReminderDelay: 24 * time.Hour,
		LeaseDuration: 30 * time.Minute,
		LateFeeAmount: decimal.NewFromInt(19),
		Currency:      "USD",
		Location:      time.Local,
	}
}

// Validate checks the policy for unusable values
func (p Policy) Validate() error {
	if p.ReminderDelay < 0 {
		return errors.New("reminder delay cannot be negative")
	}
	if p.LeaseDuration <= 0 {
		return errors.New("lease duration must be positive")
	}
	if !p.LateFeeAmount.IsPositive() {
		return errors.New("late fee amount must be positive")
	}
	return nil
}

// WorstCaseStaleness is the longest an interrupted stage waits before a retry:
// one lease duration plus one scheduling interval.
func (p Policy) WorstCaseStaleness(interval time.Duration) time.Duration {
	return p.LeaseDuration + interval
}
