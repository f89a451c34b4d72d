// Package banking validates bank account numbers and maintains the
// per-vendor account history used for fraud detection.
package banking

import (
	"strings"
	"unicode"
)

// NormalizeIBAN strips spaces and dashes and uppercases the account string.
func NormalizeIBAN(iban string) string {
	var b strings.Builder
	for _, r := range iban {
		if r == ' ' || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// ValidateIBAN checks an IBAN with the ISO 7064 MOD-97 algorithm: move the
// first four characters to the end, map letters to numbers (A=10..Z=35), and
// the resulting numeric string mod 97 must equal 1. The country code must be
// alphabetic.
func ValidateIBAN(iban string) bool {
	n := NormalizeIBAN(iban)
	if len(n) < 5 || len(n) > 34 {
		return false
	}
	if !isUpperAlpha(n[0]) || !isUpperAlpha(n[1]) {
		return false
	}

	rearranged := n[4:] + n[:4]

	// Digit-by-digit modulo keeps the intermediate value small enough for
	// int arithmetic regardless of IBAN length.
	remainder := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			remainder = (remainder*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			v := int(r-'A') + 10
			remainder = (remainder*100 + v) % 97
		default:
			return false
		}
	}
	return remainder == 1
}

// CountryCode returns the two-letter country code of a normalized IBAN, or
// an empty string when the prefix is not alphabetic.
func CountryCode(iban string) string {
	n := NormalizeIBAN(iban)
	if len(n) < 2 || !isUpperAlpha(n[0]) || !isUpperAlpha(n[1]) {
		return ""
	}
	return n[:2]
}

func isUpperAlpha(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
