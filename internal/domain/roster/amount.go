package roster

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount reads free-form amount text. The first comma is treated as
// the decimal separator and the longest leading numeric prefix is used,
// so "10,50" is 10.50 and "12 euro" is 12. The bool is false when no
// number could be read at all.
func ParseAmount(text string) (decimal.Decimal, bool) {
	s := strings.Replace(strings.TrimSpace(text), ",", ".", 1)
	prefix := numericPrefix(s)
	if prefix == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// AmountOrZero is ParseAmount with unreadable text counted as zero.
func AmountOrZero(text string) decimal.Decimal {
	d, _ := ParseAmount(text)
	return d
}

// numericPrefix returns the longest prefix of s shaped like
// [sign] digits [. digits] [e [sign] digits], or "" when it holds no digit.
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	out := s[:i]
	if strings.HasSuffix(out, ".") {
		out = strings.TrimSuffix(out, ".")
	}
	if strings.HasPrefix(out, ".") || strings.HasPrefix(out, "-.") || strings.HasPrefix(out, "+.") {
		out = strings.Replace(out, ".", "0.", 1)
	}
	return out
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
