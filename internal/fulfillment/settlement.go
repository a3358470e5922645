package fulfillment

import (
	"github.com/shopspring/decimal"
)

// Settle derives a bill's status and net paid amount from its payments.
// Reversal entries carry negative amounts; a net sum at or below zero is
// pending.
func Settle(amount decimal.Decimal, payments []Payment) (BillStatus, decimal.Decimal) {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	switch {
	case !paid.IsPositive():
		return BillPending, paid
	case paid.GreaterThanOrEqual(amount):
		return BillPaid, paid
	default:
		return BillPartiallyPaid, paid
	}
}

// withSettlement returns b with Payments, Paid and Status populated.
func withSettlement(b Bill, payments []Payment) Bill {
	b.Payments = payments
	if b.Payments == nil {
		b.Payments = []Payment{}
	}
	b.Status, b.Paid = Settle(b.Amount, payments)
	return b
}

// computeTotals fills Subtotal and Total from the draft's items and tax.
func computeTotals(d *Draft) {
	subtotal := decimal.Zero
	for _, it := range d.Items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	d.Subtotal = subtotal
	d.Total = subtotal.Add(d.Tax)
}
