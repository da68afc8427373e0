package month

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Names are the month names used in month keys, January first.
var Names = [12]string{
	"Gennaio", "Febbraio", "Marzo", "Aprile", "Maggio", "Giugno",
	"Luglio", "Agosto", "Settembre", "Ottobre", "Novembre", "Dicembre",
}

// Sequence defaults.
const (
	DefaultStartYear   = 2025
	DefaultStartNumber = 10
	ConsoleYears       = 10
	ServerYears        = 6
)

// Default is the month a course view opens on when none was chosen.
var Default = Month{Year: DefaultStartYear, Number: DefaultStartNumber}

// DefaultKey is the key of Default.
var DefaultKey = Default.Key()

// Domain errors
var (
	ErrMalformedKey = errors.New("month key must look like 'Ottobre-2025'")
	ErrUnknownName  = errors.New("unknown month name")
)

// Month is a calendar month in a given year.
type Month struct {
	Year   int
	Number int // 1..12
}

// Validate checks the month number range.
// PRE: none
// POST: Returns nil if 1 <= Number <= 12
func (m Month) Validate() error {
	if m.Number < 1 || m.Number > 12 {
		return fmt.Errorf("month number %d out of range", m.Number)
	}
	return nil
}

// Name returns the month name.
// PRE: m is valid
func (m Month) Name() string {
	return Names[m.Number-1]
}

// Key returns the wire identifier, for example "Ottobre-2025".
// PRE: m is valid
// INVARIANT: Parse(m.Key()) == m
func (m Month) Key() string {
	return m.Name() + "-" + strconv.Itoa(m.Year)
}

// Label returns a display label, for example "Ottobre 2025".
func (m Month) Label() string {
	return m.Name() + " " + strconv.Itoa(m.Year)
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	if m.Number == 12 {
		return Month{Year: m.Year + 1, Number: 1}
	}
	return Month{Year: m.Year, Number: m.Number + 1}
}

// Before reports whether m comes strictly before o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Number < o.Number
}

// Parse turns a month key back into a Month.
// PRE: none
// POST: Returns the month or ErrMalformedKey / ErrUnknownName
func Parse(key string) (Month, error) {
	name, yearText, ok := strings.Cut(strings.TrimSpace(key), "-")
	if !ok {
		return Month{}, ErrMalformedKey
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return Month{}, ErrMalformedKey
	}
	for i, n := range Names {
		if strings.EqualFold(n, name) {
			return Month{Year: year, Number: i + 1}, nil
		}
	}
	return Month{}, ErrUnknownName
}

// Sequence returns every month from start through December of the
// (years-1)th year after start.Year.
// PRE: start is valid, years >= 1
// POST: Returns months in calendar order, start first
func Sequence(start Month, years int) []Month {
	if years < 1 {
		years = 1
	}
	last := Month{Year: start.Year + years - 1, Number: 12}
	var out []Month
	for m := start; !last.Before(m); m = m.Next() {
		out = append(out, m)
	}
	return out
}

// Keys maps a sequence to its keys.
func Keys(months []Month) []string {
	keys := make([]string, len(months))
	for i, m := range months {
		keys[i] = m.Key()
	}
	return keys
}

// Resolve returns key if it names a month in seq, otherwise the first
// month of seq (or DefaultKey when seq is empty).
func Resolve(key string, seq []Month) string {
	for _, m := range seq {
		if m.Key() == key {
			return key
		}
	}
	if len(seq) == 0 {
		return DefaultKey
	}
	return seq[0].Key()
}
