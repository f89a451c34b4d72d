// Package identity derives stable vendor identities from noisy extracted
// fields: name normalization, similarity and homoglyph analysis, fingerprint
// generation, and rule-based categorization.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are trailing legal-entity markers stripped during
// normalization so "Vendor" matches "Vendor Inc.".
var legalSuffixes = []string{
	"inc", "incorporated", "llc", "ltd", "limited", "gmbh", "ag", "kg",
	"corp", "corporation", "co", "company", "plc", "sa", "srl", "bv", "nv",
	"oy", "ab", "as", "sro", "ev", "se",
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, folds diacritics, collapses whitespace, strips
// punctuation, and removes trailing legal-entity suffixes. Identical vendors
// spelled differently normalize to the same string.
func Normalize(name string) string {
	folded, _, err := transform.String(diacriticFolder, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '.' || r == ',' || r == '/':
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 {
		last := words[len(words)-1]
		if !isLegalSuffix(last) {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isLegalSuffix(word string) bool {
	for _, s := range legalSuffixes {
		if word == s {
			return true
		}
	}
	return false
}
