package identity

// confusables maps visually deceptive characters to the Latin letter they
// imitate: Cyrillic and Greek lookalikes plus common digit substitutions.
var confusables = map[rune]rune{
	// Cyrillic lowercase
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', 'у': 'y',
	'і': 'i', 'ѕ': 's', 'ј': 'j', 'ԁ': 'd', 'ɡ': 'g',
	// Cyrillic uppercase
	'А': 'a', 'В': 'b', 'Е': 'e', 'К': 'k', 'М': 'm', 'Н': 'h', 'О': 'o',
	'Р': 'p', 'С': 'c', 'Т': 't', 'Х': 'x',
	// Greek
	'ο': 'o', 'α': 'a', 'ν': 'v', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'ι': 'i',
	'κ': 'k', 'Α': 'a', 'Β': 'b', 'Ε': 'e', 'Ζ': 'z', 'Η': 'h', 'Ι': 'i',
	'Κ': 'k', 'Μ': 'm', 'Ν': 'n', 'Ο': 'o', 'Ρ': 'p', 'Τ': 't', 'Υ': 'y',
	'Χ': 'x',
	// Digit/letter swaps
	'0': 'o', '1': 'l', '5': 's',
}

// DefaultSimilarityThreshold is the normalized-similarity bar above which two
// distinct vendor names are treated as suspiciously alike.
const DefaultSimilarityThreshold = 0.85

// homoglyphSuspicionBar is the spoof-confidence level above which homoglyph
// evidence alone marks a pair suspicious.
const homoglyphSuspicionBar = 0.3

// EditDistance returns the Levenshtein distance between the normalized forms
// of a and b, using a rolling two-row matrix.
func EditDistance(a, b string) int {
	ra := []rune(Normalize(a))
	rb := []rune(Normalize(b))
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity returns a normalized similarity in [0,1]: 1 for identical
// normalized strings, 0 when either side is empty.
func Similarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1 - float64(EditDistance(a, b))/float64(longest)
}

// HomoglyphReport describes homoglyph substitutions found in a suspicious
// string relative to an original.
type HomoglyphReport struct {
	Positions  []int
	Characters []rune
	Confidence float64
}

// Detected reports whether any substitution was found.
func (r HomoglyphReport) Detected() bool {
	return len(r.Positions) > 0
}

// DetectHomoglyphs scans suspicious for confusable characters. A character
// counts only when the Latin letter it imitates actually occurs in the
// normalized original, which separates intentional substitution from
// coincidental non-Latin text.
func DetectHomoglyphs(suspicious, original string) HomoglyphReport {
	origSet := make(map[rune]bool)
	for _, r := range Normalize(original) {
		origSet[r] = true
	}

	var report HomoglyphReport
	runes := []rune(suspicious)
	for i, r := range runes {
		latin, ok := confusables[r]
		if !ok || !origSet[latin] {
			continue
		}
		report.Positions = append(report.Positions, i)
		report.Characters = append(report.Characters, r)
	}

	if n := len(report.Positions); n > 0 && len(runes) > 0 {
		conf := float64(n)*0.2 + float64(n)/float64(len(runes))*0.5
		if conf > 1 {
			conf = 1
		}
		report.Confidence = conf
	}
	return report
}

// AreSuspiciouslySimilar reports whether two vendor names look like the same
// vendor without being the same vendor. Identical normalized strings are the
// same identity, never suspicious.
func AreSuspiciouslySimilar(a, b string, threshold float64) bool {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" || na == nb {
		return false
	}
	if Similarity(a, b) >= threshold {
		return true
	}
	if DetectHomoglyphs(a, b).Confidence > homoglyphSuspicionBar {
		return true
	}
	if DetectHomoglyphs(b, a).Confidence > homoglyphSuspicionBar {
		return true
	}
	// Short names leave little room for edit distance; one or two edits is
	// already a near-identical name.
	if len([]rune(na)) < 10 && len([]rune(nb)) < 10 {
		if d := EditDistance(a, b); d == 1 || d == 2 {
			return true
		}
	}
	return false
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
