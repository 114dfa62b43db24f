package auth

import (
	"unicode/utf8"

	"github.com/example/ec-shop/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// Password length rules. The maximum is bcrypt's input limit; longer input
// would be truncated silently.
const (
	MinPasswordRunes = 8
	MaxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = apperr.InvalidArgument("password must be at least 8 characters")
	ErrPasswordTooLong  = apperr.InvalidArgument("password must be at most 72 bytes")
)

const bcryptCost = 12

// ValidatePassword checks a candidate password against the length rules.
func ValidatePassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordRunes:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword validates password and returns its bcrypt hash.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. A password longer
// than MaxPasswordBytes never matches, since it could not have been hashed.
func CheckPassword(password, hash string) bool {
	if len(password) > MaxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
