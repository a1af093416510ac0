// Package types defines the data passed between the recognition and execution
// stages of the voice command pipeline.
//
// These types form the contract between the transcription adapter, the intent
// resolver and the dispatcher. Audio-level types live in package audio.
package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Transcript is the text recognised for one utterance.
type Transcript struct {
	// UtteranceID links the transcript to the utterance it was produced from.
	// It is used for diagnostics and stale-result detection only.
	UtteranceID uint64

	// Text is the recognised text as returned by the engine.
	Text string

	// Language is the BCP-47 tag reported (or assumed) for the text, e.g. "de".
	Language string

	// Confidence is the engine's confidence in [0, 1]. Zero means the engine
	// did not report one.
	Confidence float64

	// Duration is the length of the source audio.
	Duration time.Duration
}

// Params maps slot names to typed slot values.
// Values are int for numbers and string for everything else.
type Params map[string]any

// Int returns the integer value of the named slot.
func (p Params) Int(name string) (int, bool) {
	v, ok := p[name].(int)
	return v, ok
}

// String returns the string value of the named slot.
func (p Params) String(name string) (string, bool) {
	v, ok := p[name].(string)
	return v, ok
}

// Format renders params as "k=v" pairs in key order, for logs and journals.
func (p Params) Format() string {
	keys := slices.Sorted(maps.Keys(p))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}

// MatchKind says how an intent template matched.
type MatchKind int

const (
	// MatchFuzzy means at least one literal token matched within the edit
	// distance tolerance rather than exactly.
	MatchFuzzy MatchKind = iota

	// MatchExact means every literal token matched exactly.
	MatchExact
)

func (k MatchKind) String() string {
	if k == MatchExact {
		return "exact"
	}
	return "fuzzy"
}

// Intent is the resolved meaning of a transcript.
type Intent struct {
	// Name is the symbolic intent name, e.g. "track_mute".
	Name string

	Params Params

	// Confidence is the match score in [0, 1]. Exact matches always score
	// higher than fuzzy ones.
	Confidence float64

	Match MatchKind

	// Pattern is the grammar template that matched, for diagnostics.
	Pattern string

	// Transcript is the transcript the intent was resolved from.
	Transcript Transcript
}

// UtteranceID returns the ID of the utterance the intent came from.
func (i Intent) UtteranceID() uint64 {
	return i.Transcript.UtteranceID
}

// Action is a concrete side effect the executor can perform.
type Action struct {
	// Kind selects the executor behaviour, e.g. "key_command" or "applescript".
	Kind string

	// Params are the bound action parameters (slot placeholders substituted).
	Params map[string]string
}

func (a Action) String() string {
	if len(a.Params) == 0 {
		return a.Kind
	}
	keys := slices.Sorted(maps.Keys(a.Params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, a.Params[k]))
	}
	return a.Kind + " " + strings.Join(parts, " ")
}

// Command is an intent bound to its action and feedback phrase.
// Commands are immutable once built.
type Command struct {
	Intent   Intent
	Action   Action
	Feedback string
}
