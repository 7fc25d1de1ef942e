package invoicing

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// round2 rounds half away from zero to two decimal places
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DiscountAmount returns the discount granted on the invoice.
// Percentage discounts apply to Total+LateFee once a late fee exists, otherwise to Total.
// Fixed discounts never exceed the amount they discount from.
func DiscountAmount(inv *Invoice) decimal.Decimal {
	if inv == nil || inv.DiscountType == "" || inv.DiscountType == DiscountTypeNone {
		return decimal.Zero
	}
	if !inv.DiscountValue.IsPositive() {
		return decimal.Zero
	}

	base := inv.Total
	if inv.HasLateFee() {
		base = inv.Total.Add(inv.LateFee)
	}

	switch inv.DiscountType {
	case DiscountTypePercentage:
		return round2(base.Mul(inv.DiscountValue).Div(hundred))
	case DiscountTypeFixed:
		if inv.DiscountValue.GreaterThan(base) {
			return base
		}
		return inv.DiscountValue
	}
	return decimal.Zero
}

// GrandTotal returns Total - discount + LateFee rounded to two decimals
func GrandTotal(inv *Invoice) decimal.Decimal {
	if inv == nil {
		return decimal.Zero
	}
	return round2(inv.Total.Sub(DiscountAmount(inv)).Add(inv.LateFee))
}

// OutstandingBalance returns max(0, GrandTotal - AmountPaid)
func OutstandingBalance(inv *Invoice) decimal.Decimal {
	if inv == nil {
		return decimal.Zero
	}
	balance := round2(GrandTotal(inv).Sub(inv.AmountPaid))
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// IsFullyPaid reports whether nothing remains to collect. A nil invoice counts as paid.
func IsFullyPaid(inv *Invoice) bool {
	if inv == nil {
		return true
	}
	if inv.Status.IsTerminal() {
		return true
	}
	return inv.AmountPaid.GreaterThanOrEqual(GrandTotal(inv))
}

// IsOverdue reports whether the due date lies strictly before today. Both sides are
// compared as calendar dates in loc, so the time of day never matters.
func IsOverdue(inv *Invoice, now time.Time, loc *time.Location) bool {
	if IsFullyPaid(inv) {
		return false
	}
	if !inv.Status.IsCollectable() {
		return false
	}
	if inv.DueDate == nil {
		return false
	}
	return LocalMidnight(*inv.DueDate, loc).Before(LocalMidnight(now, loc))
}

// LocalMidnight truncates t to the start of its calendar day in loc
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
