package roster

import (
	"errors"
	"strings"
)

// Course kinds.
const (
	KindStandard = "standard"
	KindDocument = "document"
)

// DraftKeyPrefix prefixes every draft key.
const DraftKeyPrefix = "temp_course_"

// Domain errors
var (
	ErrEmptyCourse = errors.New("course cannot be empty")
	ErrEmptyMonth  = errors.New("month cannot be empty")
	ErrNoRemoteID  = errors.New("row has no remote identity")
)

// Row is one attendance and payment record in a course month.
// JSON names match the remote store's wire format.
type Row struct {
	FirstName       string `json:"nome"`
	LastName        string `json:"cognome"`
	Email           string `json:"email"`
	Phone           string `json:"cell"`
	CardNumber      string `json:"tessera"`
	CertificateDate string `json:"dataCert"`
	Paid            bool   `json:"pagato"`
	PaidAmount      string `json:"importo"`
	RemoteID        string `json:"id,omitempty"`
}

// EmptyRow returns a row with every text field empty and Paid false.
func EmptyRow() Row {
	return Row{}
}

// HasRemoteID reports whether the row was persisted at least once.
// INVARIANT: Row fields are not mutated
func (r Row) HasRemoteID() bool {
	return r.RemoteID != ""
}

// Trimmed returns a copy with surrounding whitespace removed from every text field.
func (r Row) Trimmed() Row {
	return Row{
		FirstName:       strings.TrimSpace(r.FirstName),
		LastName:        strings.TrimSpace(r.LastName),
		Email:           strings.TrimSpace(r.Email),
		Phone:           strings.TrimSpace(r.Phone),
		CardNumber:      strings.TrimSpace(r.CardNumber),
		CertificateDate: strings.TrimSpace(r.CertificateDate),
		Paid:            r.Paid,
		PaidAmount:      strings.TrimSpace(r.PaidAmount),
		RemoteID:        strings.TrimSpace(r.RemoteID),
	}
}

// Normalize returns rows, or a single empty row when rows is empty.
// POST: len(result) >= 1
func Normalize(rows []Row) []Row {
	if len(rows) == 0 {
		return []Row{EmptyRow()}
	}
	return rows
}

// Clone copies a row sequence so callers can mutate it freely.
func Clone(rows []Row) []Row {
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}

// Key identifies one course month.
type Key struct {
	Course string
	Month  string
}

// Validate checks both halves are present.
// PRE: none
// POST: Returns nil if Course and Month are non-empty
func (k Key) Validate() error {
	if strings.TrimSpace(k.Course) == "" {
		return ErrEmptyCourse
	}
	if strings.TrimSpace(k.Month) == "" {
		return ErrEmptyMonth
	}
	return nil
}

// DraftKey returns the session storage key, for example
// "temp_course_Yoga_Ottobre-2025".
func (k Key) DraftKey() string {
	return DraftKeyPrefix + k.Course + "_" + k.Month
}

// KindForCourse returns KindDocument when course is one of documentCourses.
func KindForCourse(course string, documentCourses []string) string {
	for _, c := range documentCourses {
		if c == course {
			return KindDocument
		}
	}
	return KindStandard
}
