// Package auth implements credential handling and bearer token issuing.
package auth

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/conclave-chat/conclave/internal/platform/errors"
)

// MinPasswordLength is the minimum accepted password length in bytes.
const MinPasswordLength = 8

// MaxPasswordLength caps passwords at the bcrypt input limit. Longer inputs
// would be silently truncated by the hash otherwise.
const MaxPasswordLength = 72

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = apperrors.New(apperrors.CodeInvalidCredentials, "invalid credentials")

// ValidateUsername checks the service-wide username shape: lowercase
// alphanumerics and underscore, 3 to 32 characters.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return apperrors.New(apperrors.CodeUsernameInvalid,
			"username must be 3-32 lowercase letters, digits, or underscores")
	}
	return nil
}

// HashPassword validates length bounds and returns a bcrypt hash.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", apperrors.New(apperrors.CodePasswordTooWeak,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return "", apperrors.New(apperrors.CodePasswordTooLong,
			fmt.Sprintf("password must be at most %d characters", MaxPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plain text password against a stored hash.
// Mismatches return ErrInvalidCredentials so callers never leak which
// credential failed.
func VerifyPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}
