package account

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role constants
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Domain errors
var (
	ErrEmptyUsername    = errors.New("username cannot be empty")
	ErrEmptyPassword    = errors.New("password cannot be empty")
	ErrWrongCredentials = errors.New("incorrect username or password")
)

// Admin is the single configured administrator credential.
// The plaintext password is hashed once at startup and never kept.
type Admin struct {
	Username     string
	PasswordHash string
}

// NewAdmin hashes password and returns the credential.
// PRE: username and password are non-empty
// POST: PasswordHash holds a bcrypt hash of password
func NewAdmin(username, password string) (Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Admin{}, ErrEmptyUsername
	}
	if password == "" {
		return Admin{}, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Admin{}, err
	}
	return Admin{Username: username, PasswordHash: string(hash)}, nil
}

// Check verifies a login attempt against the credential.
// INVARIANT: Admin fields are not mutated
func (a Admin) Check(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(a.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	if !userOK || passErr != nil {
		return ErrWrongCredentials
	}
	return nil
}
