// Package intent resolves transcripts to intents with a declarative,
// bilingual pattern grammar.
//
// A pattern is a sequence of literal tokens and typed slots, e.g.
// "spur {track_number} stumm". Matching normalises the transcript per
// language, then tries every pattern at every start position. Literal tokens
// match exactly, within a bounded edit distance, or (optionally) by Double
// Metaphone equivalence; slots match typed values (numbers in digits or
// German/English words, up/down, on/off, enums) and reject out-of-range
// values on the spot.
//
// Candidates are ranked by: exact before fuzzy, then the longest matched
// span, then the fewest edits, then grammar declaration order. An exact
// match always scores at least 0.9 and a fuzzy one at most 0.85, so the
// confidence order agrees with the first ranking key.
package intent

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrWong99/dawvox/internal/phonetic"
	"github.com/MrWong99/dawvox/pkg/types"
)

// ErrNoMatch is returned by [Resolver.Resolve] when no candidate clears the
// confidence floor. It is an expected outcome, not a failure.
var ErrNoMatch = errors.New("intent: no match")

const (
	exactBase    = 0.9
	fuzzyCeiling = 0.85
	phoneticSim  = 0.7
)

// Config holds resolver parameters.
type Config struct {
	// MinConfidence is the floor a candidate's score must reach.
	MinConfidence float64

	// MinTranscriptConfidence rejects transcripts the engine itself was
	// unsure about. Zero disables the check; transcripts without a reported
	// confidence are never rejected by it.
	MinTranscriptConfidence float64

	// FuzzyDistance is the maximum edit distance for a fuzzy literal match.
	// Zero disables edit-distance matching.
	FuzzyDistance int

	// FuzzyMinTokenLen is the shortest token length eligible for fuzzy or
	// phonetic matching.
	FuzzyMinTokenLen int

	// Phonetic enables Double Metaphone equivalence for literals.
	Phonetic bool

	// TrackMin and TrackMax bound number slots without explicit bounds.
	TrackMin, TrackMax int
}

type element struct {
	literal string
	slot    *slot
}

type pattern struct {
	intent   string
	lang     string
	text     string
	elems    []element
	literals int
	order    int
}

// Candidate is one way a transcript matched a pattern.
type Candidate struct {
	Intent  string
	Pattern string
	Params  types.Params

	Exact bool

	// Span is the number of transcript tokens the match covers.
	Span int

	// Edits is the summed edit distance of fuzzy literal matches.
	Edits int

	Confidence float64

	// Order is the pattern's grammar declaration index.
	Order int
}

// Resolver matches transcripts against a compiled grammar. It is immutable
// after construction and safe for concurrent use.
type Resolver struct {
	cfg      Config
	patterns []pattern
	intents  []string
}

// NewResolver compiles specs. All grammar errors are reported together.
func NewResolver(specs []Spec, cfg Config) (*Resolver, error) {
	if cfg.FuzzyMinTokenLen <= 0 {
		cfg.FuzzyMinTokenLen = 4
	}
	r := &Resolver{cfg: cfg}
	var errs []error
	seen := make(map[string]bool)
	for i, spec := range specs {
		if spec.Intent == "" {
			errs = append(errs, fmt.Errorf("intent: entry %d: missing intent name", i))
			continue
		}
		if len(spec.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("intent: %s: no patterns", spec.Intent))
			continue
		}
		if !seen[spec.Intent] {
			seen[spec.Intent] = true
			r.intents = append(r.intents, spec.Intent)
		}
		for _, text := range spec.Patterns {
			p, err := compilePattern(spec, text, cfg)
			if err != nil {
				errs = append(errs, fmt.Errorf("intent: %s: pattern %q: %w", spec.Intent, text, err))
				continue
			}
			p.order = len(r.patterns)
			r.patterns = append(r.patterns, p)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func compilePattern(spec Spec, text string, cfg Config) (pattern, error) {
	p := pattern{intent: spec.Intent, lang: spec.Language, text: text}
	used := make(map[string]bool)
	for _, tok := range phonetic.Tokens(text, spec.Language) {
		if !strings.ContainsAny(tok, "{}") {
			p.elems = append(p.elems, element{literal: tok})
			p.literals++
			continue
		}
		name, ok := placeholder(tok)
		if !ok {
			return pattern{}, fmt.Errorf("malformed slot %q", tok)
		}
		if used[name] {
			return pattern{}, fmt.Errorf("slot {%s} used twice", name)
		}
		used[name] = true
		decl, declared := spec.Slots[name]
		s, err := compileSlot(name, decl, declared, spec.Language, cfg.TrackMin, cfg.TrackMax)
		if err != nil {
			return pattern{}, err
		}
		p.elems = append(p.elems, element{slot: s})
	}
	if p.literals == 0 {
		return pattern{}, errors.New("pattern needs at least one literal word")
	}
	return p, nil
}

func placeholder(tok string) (string, bool) {
	if len(tok) < 3 || tok[0] != '{' || tok[len(tok)-1] != '}' {
		return "", false
	}
	name := tok[1 : len(tok)-1]
	if strings.ContainsAny(name, "{}") {
		return "", false
	}
	return name, true
}

// Intents returns the distinct intent names in declaration order.
func (r *Resolver) Intents() []string {
	return slices.Clone(r.intents)
}

// Resolve returns the best intent for t, or an error wrapping [ErrNoMatch].
func (r *Resolver) Resolve(t types.Transcript) (types.Intent, error) {
	if strings.TrimSpace(t.Text) == "" {
		return types.Intent{}, fmt.Errorf("%w: empty transcript", ErrNoMatch)
	}
	if t.Confidence > 0 && t.Confidence < r.cfg.MinTranscriptConfidence {
		return types.Intent{}, fmt.Errorf("%w: transcript confidence %.2f below %.2f", ErrNoMatch, t.Confidence, r.cfg.MinTranscriptConfidence)
	}

	for _, c := range r.Candidates(t.Text, t.Language) {
		if c.Confidence < r.cfg.MinConfidence {
			continue
		}
		match := types.MatchFuzzy
		if c.Exact {
			match = types.MatchExact
		}
		slog.Debug("intent: resolved",
			"intent", c.Intent, "pattern", c.Pattern, "match", match.String(),
			"confidence", c.Confidence, "params", c.Params.Format())
		return types.Intent{
			Name:       c.Intent,
			Params:     c.Params,
			Confidence: c.Confidence,
			Match:      match,
			Pattern:    c.Pattern,
			Transcript: t,
		}, nil
	}
	return types.Intent{}, fmt.Errorf("%w: %q", ErrNoMatch, t.Text)
}

// Candidates returns the best match of every pattern that matches text, in
// rank order. Confidence floors are not applied.
func (r *Resolver) Candidates(text, lang string) []Candidate {
	tokens := make(map[string][]string)
	var out []Candidate
	for i := range r.patterns {
		p := &r.patterns[i]
		if !phonetic.LanguageMatches(p.lang, lang) {
			continue
		}
		normLang := p.lang
		if normLang == "" {
			normLang = lang
		}
		spoken, ok := tokens[normLang]
		if !ok {
			spoken = phonetic.Tokens(text, normLang)
			tokens[normLang] = spoken
		}
		if c, ok := r.bestMatch(p, spoken); ok {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, compareCandidates)
	return out
}

func compareCandidates(a, b Candidate) int {
	if a.Exact != b.Exact {
		if a.Exact {
			return -1
		}
		return 1
	}
	return cmp.Or(
		cmp.Compare(b.Span, a.Span),
		cmp.Compare(a.Edits, b.Edits),
		cmp.Compare(a.Order, b.Order),
	)
}

func (r *Resolver) bestMatch(p *pattern, spoken []string) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for start := range spoken {
		c, ok := r.matchAt(p, spoken, start)
		if ok && (!found || compareCandidates(c, best) < 0) {
			best, found = c, true
		}
	}
	return best, found
}

func (r *Resolver) matchAt(p *pattern, spoken []string, start int) (Candidate, bool) {
	params := types.Params{}
	var (
		edits  int
		simSum float64
		end    int
	)

	var walk func(ei, si int) bool
	walk = func(ei, si int) bool {
		if ei == len(p.elems) {
			end = si
			return true
		}
		if si >= len(spoken) {
			return false
		}
		e := p.elems[ei]
		if e.slot != nil {
			for _, rd := range e.slot.read(spoken[si:]) {
				params[e.slot.name] = rd.value
				if walk(ei+1, si+rd.consumed) {
					return true
				}
			}
			delete(params, e.slot.name)
			return false
		}
		d, sim, ok := r.literalMatch(e.literal, spoken[si])
		if !ok {
			return false
		}
		edits += d
		simSum += sim
		if walk(ei+1, si+1) {
			return true
		}
		edits -= d
		simSum -= sim
		return false
	}
	if !walk(0, start) {
		return Candidate{}, false
	}

	c := Candidate{
		Intent:  p.intent,
		Pattern: p.text,
		Params:  params,
		Exact:   edits == 0 && simSum == float64(p.literals),
		Span:    end - start,
		Edits:   edits,
		Order:   p.order,
	}
	if c.Exact {
		c.Confidence = exactBase + (1-exactBase)*float64(c.Span)/float64(len(spoken))
	} else {
		c.Confidence = fuzzyCeiling * simSum / float64(p.literals)
	}
	return c, true
}

// literalMatch compares a pattern literal with a spoken token. It returns the
// edit distance and a similarity in (0, 1].
func (r *Resolver) literalMatch(lit, tok string) (int, float64, bool) {
	if lit == tok {
		return 0, 1, true
	}
	litLen, tokLen := len([]rune(lit)), len([]rune(tok))
	if min(litLen, tokLen) < r.cfg.FuzzyMinTokenLen {
		return 0, 0, false
	}
	longest := max(litLen, tokLen)
	d := phonetic.EditDistance(lit, tok)
	sim := 1 - float64(d)/float64(longest)

	// Short words tolerate fewer edits: one per four characters, capped by
	// the configured distance.
	allowed := min(r.cfg.FuzzyDistance, max(1, longest/4))
	if r.cfg.FuzzyDistance > 0 && d <= allowed {
		return d, sim, true
	}
	if r.cfg.Phonetic && phonetic.Equivalent(lit, tok) {
		return d, max(sim, phoneticSim), true
	}
	return 0, 0, false
}
