// Package verify holds the text checks shared by request validation.
package verify

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// SafeTextTag is the validator tag registered by RegisterSafeText.
const SafeTextTag = "safe_text"

// allowedSafeSymbols are the punctuation marks accepted next to letters and digits.
var allowedSafeSymbols = map[rune]bool{
	'_':  true,
	'-':  true,
	'.':  true,
	'@':  true,
	'#':  true,
	' ':  true,
	'\'': true,
}

// IsSecureString reports whether s only holds letters, digits and allowed symbols.
func IsSecureString(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if !allowedSafeSymbols[r] {
			return false
		}
	}
	return true
}

// VerifyStringRequest accepts non-empty safe strings of at most maxLen runes.
func VerifyStringRequest(s string, maxLen int) bool {
	n := len([]rune(s))
	return n > 0 && n <= maxLen && IsSecureString(s)
}

// RegisterSafeText adds the safe_text tag to v.
func RegisterSafeText(v *validator.Validate) error {
	return v.RegisterValidation(SafeTextTag, func(fl validator.FieldLevel) bool {
		return IsSecureString(fl.Field().String())
	})
}
