// Package export describes a course month as an exportable sheet.
package export

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"gymroster/internal/domain/roster"
)

// Format constants for export files.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Domain errors.
var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrNoHeader      = errors.New("sheet has no header row")
)

// Record is one roster row as written to a file. Column names are the
// remote store's wire names so files round-trip through the API unchanged.
type Record struct {
	FirstName       string `csv:"nome" json:"nome"`
	LastName        string `csv:"cognome" json:"cognome"`
	Email           string `csv:"email" json:"email"`
	Phone           string `csv:"cell" json:"cell"`
	CardNumber      string `csv:"tessera" json:"tessera"`
	CertificateDate string `csv:"dataCert" json:"dataCert"`
	Paid            bool   `csv:"pagato" json:"pagato"`
	PaidAmount      string `csv:"importo" json:"importo"`
	MemberID        string `csv:"id,omitempty" json:"id,omitempty"`
}

// Columns is the header order shared by every tabular format.
var Columns = []string{"nome", "cognome", "email", "cell", "tessera", "dataCert", "pagato", "importo", "id"}

// Sheet is one exported course month.
type Sheet struct {
	Course     string          `json:"course"`
	Month      string          `json:"mese"`
	Records    []Record        `json:"rows"`
	Cash       decimal.Decimal `json:"total_cassa"`
	Instructor decimal.Decimal `json:"total_istruttore"`
}

// FromRow converts a roster row.
func FromRow(r roster.Row) Record {
	return Record{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Phone:           r.Phone,
		CardNumber:      r.CardNumber,
		CertificateDate: r.CertificateDate,
		Paid:            r.Paid,
		PaidAmount:      r.PaidAmount,
		MemberID:        r.RemoteID,
	}
}

// Row converts back to a trimmed roster row.
func (rec Record) Row() roster.Row {
	return roster.Row{
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		Email:           rec.Email,
		Phone:           rec.Phone,
		CardNumber:      rec.CardNumber,
		CertificateDate: rec.CertificateDate,
		Paid:            rec.Paid,
		PaidAmount:      rec.PaidAmount,
		RemoteID:        rec.MemberID,
	}.Trimmed()
}

// NewSheet builds the sheet of a course month.
func NewSheet(key roster.Key, rows []roster.Row) Sheet {
	s := Sheet{Course: key.Course, Month: key.Month, Records: make([]Record, len(rows))}
	for i, r := range rows {
		s.Records[i] = FromRow(r)
	}
	return s
}

// Rows returns the sheet's rows without blank ones.
// POST: no returned row is blank
func (s Sheet) Rows() []roster.Row {
	rows := make([]roster.Row, 0, len(s.Records))
	for _, rec := range s.Records {
		row := rec.Row()
		if isBlank(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func isBlank(r roster.Row) bool {
	r.RemoteID = ""
	return r == roster.EmptyRow()
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", ErrUnknownFormat
	}
}

// ParseBool reads a paid cell as written by spreadsheets and people.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "si", "sì", "yes", "x", "on":
		return true
	}
	return false
}
