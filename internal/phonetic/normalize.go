package phonetic

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, replaces punctuation with spaces and collapses runs
// of whitespace. Letters (including umlauts) and digits are kept. For German
// ("de", "de-DE") the sharp s is folded to "ss" so "Schließen" and "schliessen"
// compare equal.
//
// Grammar patterns and transcripts must both pass through Normalize with the
// same language so their tokens line up.
func Normalize(s, lang string) string {
	var b strings.Builder
	b.Grow(len(s))
	german := isGerman(lang)
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == 'ß' && german:
			b.WriteString("ss")
			space = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case r == '{' || r == '}' || r == '_':
			// Slot placeholders survive normalisation.
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Tokens returns the whitespace-separated tokens of Normalize(s, lang).
func Tokens(s, lang string) []string {
	return strings.Fields(Normalize(s, lang))
}

// LanguageMatches reports whether a grammar or phrase language tag applies to
// a transcript language. An empty tag on either side matches everything, and
// region subtags are ignored ("de" matches "de-AT").
func LanguageMatches(tag, transcript string) bool {
	if tag == "" || transcript == "" {
		return true
	}
	return strings.EqualFold(base(tag), base(transcript))
}

func base(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}

func isGerman(lang string) bool {
	return strings.EqualFold(base(lang), "de")
}
