package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds. bcrypt ignores input past 72 bytes, so longer
// passwords are refused instead of silently truncated.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

// ErrWrongPassword is returned by ComparePassword on a mismatch.
var ErrWrongPassword = errors.New("wrong password")

// HashPassword returns the bcrypt hash stored in users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword returns ErrWrongPassword when password does not match hash
// and a wrapped error when hash is not a bcrypt hash.
func ComparePassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrWrongPassword
	default:
		return fmt.Errorf("compare password: %w", err)
	}
}
