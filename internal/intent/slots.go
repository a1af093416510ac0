package intent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/dawvox/internal/phonetic"
)

var directionWords = map[string]string{
	"up": "up", "hoch": "up", "rauf": "up", "herauf": "up", "lauter": "up",
	"höher": "up", "hoeher": "up", "plus": "up", "increase": "up", "louder": "up",
	"down": "down", "runter": "down", "herunter": "down", "leiser": "down",
	"tiefer": "down", "niedriger": "down", "minus": "down", "decrease": "down", "quieter": "down",
}

var toggleWords = map[string]string{
	"on": "on", "an": "on", "ein": "on", "einschalten": "on", "anschalten": "on",
	"aktivieren": "on", "enable": "on",
	"off": "off", "aus": "off", "ausschalten": "off", "abschalten": "off",
	"deaktivieren": "off", "disable": "off",
}

// slot is a compiled slot.
type slot struct {
	name     string
	typ      SlotType
	min, max int

	// synonyms holds tokenised enum synonyms with their canonical value,
	// longest first.
	synonyms []enumSynonym
}

type enumSynonym struct {
	toks  []string
	value string
}

// slotReading is one way a slot can consume spoken tokens.
type slotReading struct {
	value    any
	consumed int
}

func compileSlot(name string, spec SlotSpec, declared bool, lang string, trackMin, trackMax int) (*slot, error) {
	typ := spec.Type
	if !declared {
		t, ok := inferSlotType(name)
		if !ok {
			return nil, fmt.Errorf("slot {%s} has no declared type", name)
		}
		typ = t
	}
	s := &slot{name: name, typ: typ, min: trackMin, max: trackMax}
	switch typ {
	case SlotNumber:
		if spec.Min != nil {
			s.min = *spec.Min
		}
		if spec.Max != nil {
			s.max = *spec.Max
		}
		if s.min > s.max {
			return nil, fmt.Errorf("slot {%s}: min %d > max %d", name, s.min, s.max)
		}
	case SlotDirection, SlotToggle:
	case SlotEnum:
		if len(spec.Values) == 0 {
			return nil, fmt.Errorf("slot {%s}: enum without values", name)
		}
		for canon, syns := range spec.Values {
			for _, syn := range append([]string{canon}, syns...) {
				if toks := phonetic.Tokens(syn, lang); len(toks) > 0 {
					s.synonyms = append(s.synonyms, enumSynonym{toks: toks, value: canon})
				}
			}
		}
		slices.SortFunc(s.synonyms, func(a, b enumSynonym) int {
			if d := len(b.toks) - len(a.toks); d != 0 {
				return d
			}
			return strings.Compare(strings.Join(a.toks, " "), strings.Join(b.toks, " "))
		})
	default:
		return nil, fmt.Errorf("slot {%s}: unknown type %q", name, typ)
	}
	return s, nil
}

// read returns every way the slot can be filled from the start of toks,
// longest first. Readings that fail the type check (for example a track
// number outside the configured range) are not returned.
func (s *slot) read(toks []string) []slotReading {
	if len(toks) == 0 {
		return nil
	}
	switch s.typ {
	case SlotNumber:
		var out []slotReading
		for _, r := range parseNumber(toks) {
			if r.value >= s.min && r.value <= s.max {
				out = append(out, slotReading{value: r.value, consumed: r.consumed})
			}
		}
		return out
	case SlotDirection:
		if v, ok := directionWords[toks[0]]; ok {
			return []slotReading{{value: v, consumed: 1}}
		}
	case SlotToggle:
		if v, ok := toggleWords[toks[0]]; ok {
			return []slotReading{{value: v, consumed: 1}}
		}
	case SlotEnum:
		var out []slotReading
		for _, syn := range s.synonyms {
			if len(syn.toks) <= len(toks) && slices.Equal(syn.toks, toks[:len(syn.toks)]) {
				out = append(out, slotReading{value: syn.value, consumed: len(syn.toks)})
			}
		}
		return out
	}
	return nil
}
