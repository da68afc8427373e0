package member

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength     = 255
	MaxEmailLength    = 254
	MinPasswordLength = 8
)

// Domain errors
var (
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrInvalidEmail     = errors.New("email must contain '@'")
	ErrNameTooLong      = errors.New("name cannot exceed 255 characters")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrWrongPassword    = errors.New("incorrect password")
	ErrNoDocument       = errors.New("no document on file")
)

// Member is a person known to the roster store by email.
// Members created from an admin roster row have no password and cannot log in.
type Member struct {
	ID           string
	FullName     string
	Email        string
	Phone        string
	PasswordHash string
	DocumentPath string // file name inside the upload directory
	CreatedAt    time.Time
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: Email must be present
func (m *Member) Validate() error {
	email := strings.TrimSpace(m.Email)
	if email == "" {
		return ErrEmptyEmail
	}
	if len(email) > MaxEmailLength {
		return errors.New("email cannot exceed 254 characters")
	}
	if len(m.FullName) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// SetPassword hashes and stores a password using bcrypt.
// PRE: plaintext is at least MinPasswordLength characters
// POST: PasswordHash is set to bcrypt hash
func (m *Member) SetPassword(plaintext string) error {
	if len(plaintext) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// INVARIANT: Member fields are not mutated
func (m *Member) CheckPassword(plaintext string) error {
	if m.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// HasDocument returns true if a document has been attached.
func (m *Member) HasDocument() bool {
	return m.DocumentPath != ""
}

// SplitName splits a full name into first name and the remaining words.
// "Anna Maria Rossi" becomes ("Anna", "Maria Rossi").
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// JoinName is the inverse of SplitName for a roster row's two name cells.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
