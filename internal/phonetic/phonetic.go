// Package phonetic provides the text normalisation and sound-alike helpers
// shared by the intent resolver and the wake-phrase spotter.
//
// Speech recognisers misspell short command words in predictable ways
// ("stum" for "stumm", "solow" for "solo"). Two tools catch these:
//
//  1. Double Metaphone codes: two tokens are phonetically equivalent when
//     their primary or secondary codes overlap.
//  2. Jaro-Winkler similarity ranks near-misses between whole phrases.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// minPhoneticLen is the shortest token considered for phonetic equivalence.
// Shorter tokens collapse to one-letter codes and would match too much.
const minPhoneticLen = 4

// Equivalent reports whether tokens a and b sound alike according to Double
// Metaphone. Tokens shorter than four runes never match phonetically.
func Equivalent(a, b string) bool {
	if a == b {
		return true
	}
	if len([]rune(a)) < minPhoneticLen || len([]rune(b)) < minPhoneticLen {
		return false
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	return overlap(ap, as, bp, bs)
}

func overlap(ap, as, bp, bs string) bool {
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

// EditDistance returns the Levenshtein distance between two tokens.
func EditDistance(a, b string) int {
	if a == b {
		return 0
	}
	return matchr.Levenshtein(a, b)
}

// Similarity scores how closely the spoken tokens match the phrase tokens, in
// [0, 1]. An exact token match scores 1. Otherwise the score is the best
// Jaro-Winkler similarity of the space-joined and the concatenated forms
// ("hey logic" vs "heylogik"), raised to at least 0.9 when every token pair
// is phonetically equivalent.
func Similarity(spoken, phrase []string) float64 {
	if len(spoken) == 0 || len(phrase) == 0 {
		return 0
	}
	joinedS, joinedP := strings.Join(spoken, " "), strings.Join(phrase, " ")
	if joinedS == joinedP {
		return 1
	}

	score := matchr.JaroWinkler(joinedS, joinedP, false)
	if s := matchr.JaroWinkler(strings.Join(spoken, ""), strings.Join(phrase, ""), false); s > score {
		score = s
	}

	if len(spoken) == len(phrase) {
		all := true
		for i := range spoken {
			if !Equivalent(spoken[i], phrase[i]) {
				all = false
				break
			}
		}
		if all && score < 0.9 {
			score = 0.9
		}
	}
	return score
}

// BestWindow slides a window of len(phrase) tokens (and one token shorter and
// longer, to absorb split or merged words) over spoken and returns the best
// [Similarity] found.
func BestWindow(spoken, phrase []string) float64 {
	var best float64
	n := len(phrase)
	for _, w := range []int{n, n - 1, n + 1} {
		if w <= 0 || w > len(spoken) {
			continue
		}
		for i := 0; i+w <= len(spoken); i++ {
			if s := Similarity(spoken[i:i+w], phrase); s > best {
				best = s
				if best == 1 {
					return 1
				}
			}
		}
	}
	return best
}
