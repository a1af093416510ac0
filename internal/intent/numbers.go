package intent

import (
	"strconv"
	"strings"
)

// maxNumberTokens bounds how many tokens a spoken number may span
// ("one hundred and twenty eight").
const maxNumberTokens = 5

var deUnits = map[string]int{
	"null": 0, "eins": 1, "ein": 1, "eine": 1, "einen": 1, "zwei": 2, "zwo": 2,
	"drei": 3, "vier": 4, "fünf": 5, "fuenf": 5, "sechs": 6, "sieben": 7,
	"acht": 8, "neun": 9, "zehn": 10, "elf": 11, "zwölf": 12, "zwoelf": 12,
	"dreizehn": 13, "vierzehn": 14, "fünfzehn": 15, "fuenfzehn": 15,
	"sechzehn": 16, "siebzehn": 17, "achtzehn": 18, "neunzehn": 19,
}

var deTens = map[string]int{
	"zwanzig": 20, "dreissig": 30, "dreißig": 30, "vierzig": 40,
	"fünfzig": 50, "fuenfzig": 50, "sechzig": 60, "siebzig": 70,
	"achtzig": 80, "neunzig": 90,
}

// deCompoundUnits are the unit forms used before "und" in compounds.
var deCompoundUnits = map[string]int{
	"ein": 1, "zwei": 2, "drei": 3, "vier": 4, "fünf": 5, "fuenf": 5,
	"sechs": 6, "sieben": 7, "acht": 8, "neun": 9,
}

var enUnits = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var enTens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
	"seventy": 70, "eighty": 80, "ninety": 90,
}

var ordinals = map[string]int{
	"erste": 1, "zweite": 2, "dritte": 3, "vierte": 4, "fünfte": 5, "fuenfte": 5,
	"sechste": 6, "siebte": 7, "siebente": 7, "achte": 8, "neunte": 9, "zehnte": 10,
	"elfte": 11, "zwölfte": 12, "zwoelfte": 12,
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5, "sixth": 6,
	"seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10, "eleventh": 11, "twelfth": 12,
}

// parseNumber reads a number from the start of toks. It returns every
// possible (value, consumed) reading, longest first.
func parseNumber(toks []string) []numberReading {
	if len(toks) == 0 {
		return nil
	}
	var out []numberReading
	for n := min(len(toks), maxNumberTokens); n >= 2; n-- {
		if v, ok := parseEnglish(toks[:n]); ok {
			out = append(out, numberReading{value: v, consumed: n})
		}
	}
	if v, ok := parseNumberToken(toks[0]); ok {
		out = append(out, numberReading{value: v, consumed: 1})
	} else if v, ok := parseEnglish(toks[:1]); ok {
		out = append(out, numberReading{value: v, consumed: 1})
	}
	return out
}

type numberReading struct {
	value    int
	consumed int
}

// parseNumberToken parses a single-token number: digits, a German word
// (including compounds such as "einundzwanzig" and "hundertzwölf"), an
// English unit or tens word, or an ordinal.
func parseNumberToken(tok string) (int, bool) {
	if n, err := strconv.Atoi(tok); err == nil {
		return n, n >= 0
	}
	if n, ok := parseGerman(tok); ok {
		return n, true
	}
	if n, ok := enUnits[tok]; ok {
		return n, true
	}
	if n, ok := enTens[tok]; ok {
		return n, true
	}
	if n, ok := ordinals[tok]; ok {
		return n, true
	}
	// German ordinals inflect: "dritten", "dritter", "drittes".
	if len(tok) > 4 {
		if n, ok := ordinals[strings.TrimRight(tok, "nrsm")]; ok {
			return n, true
		}
	}
	return 0, false
}

func parseGerman(tok string) (int, bool) {
	if tok == "" {
		return 0, false
	}
	for _, prefix := range []string{"einhundert", "hundert"} {
		if rest, ok := strings.CutPrefix(tok, prefix); ok {
			if rest == "" {
				return 100, true
			}
			rest = strings.TrimPrefix(rest, "und")
			if n, ok := parseGerman(rest); ok && n < 100 {
				return 100 + n, true
			}
			return 0, false
		}
	}
	if n, ok := deUnits[tok]; ok {
		return n, true
	}
	if n, ok := deTens[tok]; ok {
		return n, true
	}
	if unit, tens, ok := strings.Cut(tok, "und"); ok {
		u, unitOK := deCompoundUnits[unit]
		t, tensOK := deTens[tens]
		if unitOK && tensOK {
			return t + u, true
		}
	}
	return 0, false
}

// parseEnglish parses a complete multi-token English number such as
// "twenty one", "one hundred" or "a hundred and five". Every token must take
// part.
func parseEnglish(toks []string) (int, bool) {
	var (
		hundreds int
		rest     int
		sawTens  bool
		sawUnit  bool
		sawHund  bool
		sawAnd   bool
	)
	for i, t := range toks {
		switch {
		case t == "hundred":
			if sawHund || sawTens || (sawUnit && rest > 9) {
				return 0, false
			}
			mult := rest
			if !sawUnit {
				if i > 0 && toks[i-1] == "a" {
					mult = 1
				} else if i == 0 {
					mult = 1
				} else {
					return 0, false
				}
			}
			hundreds, rest = mult*100, 0
			sawHund, sawUnit = true, false
		case t == "a":
			if i != 0 || len(toks) < 2 || toks[1] != "hundred" {
				return 0, false
			}
		case t == "and":
			if !sawHund || sawAnd || i == len(toks)-1 {
				return 0, false
			}
			sawAnd = true
		default:
			if v, ok := enTens[t]; ok {
				if sawTens || sawUnit {
					return 0, false
				}
				rest, sawTens = v, true
				continue
			}
			v, ok := enUnits[t]
			if !ok || sawUnit || (sawTens && v > 9) || (sawTens && v == 0) {
				return 0, false
			}
			rest += v
			sawUnit = true
		}
	}
	if !sawTens && !sawUnit && !sawHund {
		return 0, false
	}
	return hundreds + rest, true
}
