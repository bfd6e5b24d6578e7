package record

import (
	"strings"
	"unicode"
)

// Normalize lowercases, strips punctuation and collapses whitespace so that
// "Type-2 Diabetes" and "type 2 diabetes" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Similarity is the Dice coefficient over normalized token sets, in [0, 1].
func Similarity(a, b string) float64 {
	ta := tokenSet(Normalize(a))
	tb := tokenSet(Normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	common := 0
	for tok := range ta {
		if tb[tok] {
			common++
		}
	}
	return 2 * float64(common) / float64(len(ta)+len(tb))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// negationPrefixes are the phrasings that invert a history statement. Checked
// against normalized text, longest first.
var negationPrefixes = []string{
	"negative for ",
	"denies any ",
	"denies ",
	"without ",
	"no history of ",
	"not ",
	"no ",
}

// StripNegation removes a leading negation from normalized text, reporting
// whether one was present. "no chest pain" -> ("chest pain", true).
func StripNegation(s string) (string, bool) {
	norm := Normalize(s)
	for _, prefix := range negationPrefixes {
		if strings.HasPrefix(norm, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(norm, prefix)), true
		}
	}
	return norm, false
}
