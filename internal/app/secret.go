package app

import (
	"fmt"
	"unicode"
)

// minSecretLength is the minimum number of characters of a master secret.
const minSecretLength = 12

// ErrWeakSecret is returned when the master secret fails the strength policy.
var ErrWeakSecret = fmt.Errorf(
	"master secret is too weak (must be at least %d characters and include upper, lower, "+
		"number, and symbol)",
	minSecretLength,
)

// CheckMasterSecret enforces a basic strength policy on the secret that
// protects keys at rest. It is applied when an account is created.
func CheckMasterSecret(secret string) error {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len([]rune(secret)) < minSecretLength {
		return ErrWeakSecret
	}
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if !(hasUpper && hasLower && hasDigit && hasSymbol) {
		return ErrWeakSecret
	}
	return nil
}
