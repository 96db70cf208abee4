// Package auth provides password hashing, password policy checks and
// session token issuance for haven.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the policy minimum.
const MinPasswordLength = 12

const specialChars = `!@#$%^&*(),.?":{}|<>`

// Password policy errors, safe to show to the user.
var (
	ErrPasswordTooShort  = errors.New("password must be at least 12 characters long")
	ErrPasswordUppercase = errors.New("password must contain at least one uppercase letter")
	ErrPasswordLowercase = errors.New("password must contain at least one lowercase letter")
	ErrPasswordDigit     = errors.New("password must contain at least one number")
	ErrPasswordSpecial   = errors.New("password must contain at least one special character")
)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks the password policy: minimum length
// plus at least one uppercase, lowercase, digit and special character.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	switch {
	case !upper:
		return ErrPasswordUppercase
	case !lower:
		return ErrPasswordLowercase
	case !digit:
		return ErrPasswordDigit
	case !special:
		return ErrPasswordSpecial
	}
	return nil
}

// NewVerificationToken returns a URL-safe random token for email
// verification links.
func NewVerificationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
