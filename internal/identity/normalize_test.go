package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases and keeps words",
			input: "PowerCo Energy",
			want:  "powerco energy",
		},
		{
			name:  "strips legal suffix",
			input: "PowerCo Energy GmbH",
			want:  "powerco energy",
		},
		{
			name:  "strips stacked legal suffixes",
			input: "Acme Holdings Co Ltd",
			want:  "acme holdings",
		},
		{
			name:  "keeps a name that is only a suffix word",
			input: "Ltd",
			want:  "ltd",
		},
		{
			name:  "folds diacritics",
			input: "Müller & Söhne GmbH",
			want:  "muller sohne",
		},
		{
			name:  "punctuation becomes word boundaries",
			input: "tele.com-services, inc",
			want:  "tele com services",
		},
		{
			name:  "collapses repeated whitespace",
			input: "  Big   Power\tCorp  ",
			want:  "big power",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}
