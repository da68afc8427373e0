// Package aggregates derives payment figures from roster rows.
package aggregates

import (
	"errors"

	"github.com/shopspring/decimal"

	"gymroster/internal/domain/roster"
)

// ErrInvalidAmount is returned when instructor amount text holds no number.
var ErrInvalidAmount = errors.New("amount is not a number")

// UnpaidEmails returns the email of every unpaid row that has one, in row order.
func UnpaidEmails(rows []roster.Row) []string {
	var emails []string
	for _, r := range rows {
		if !r.Paid && r.Email != "" {
			emails = append(emails, r.Email)
		}
	}
	return emails
}

// MonthlyPaidTotal sums the amounts of paid rows. Unreadable amounts count as zero.
// INVARIANT: the result does not depend on row order
func MonthlyPaidTotal(rows []roster.Row) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		if r.Paid {
			total = total.Add(roster.AmountOrZero(r.PaidAmount))
		}
	}
	return total
}

// ParseInstructorAmount reads an amount the admin typed, comma or dot decimal.
func ParseInstructorAmount(text string) (decimal.Decimal, error) {
	d, ok := roster.ParseAmount(text)
	if !ok {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatEuro renders an amount with two decimals and a euro sign, "15.75 €".
func FormatEuro(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}
