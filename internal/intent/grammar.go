package intent

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// SlotType is the value type of a pattern slot.
type SlotType string

const (
	// SlotNumber is a non-negative integer given as digits or number words.
	// Values outside [Min, Max] reject the candidate.
	SlotNumber SlotType = "number"

	// SlotDirection is "up" or "down".
	SlotDirection SlotType = "direction"

	// SlotToggle is "on" or "off".
	SlotToggle SlotType = "toggle"

	// SlotEnum is one of the canonical keys of SlotSpec.Values.
	SlotEnum SlotType = "enum"
)

// SlotSpec declares the type of a slot used in patterns as {name}.
type SlotSpec struct {
	Type SlotType `yaml:"type"`

	// Min and Max bound number slots. When unset the resolver's track range
	// applies.
	Min *int `yaml:"min,omitempty"`
	Max *int `yaml:"max,omitempty"`

	// Values maps each canonical enum value to its spoken synonyms. The
	// canonical value itself is always accepted.
	Values map[string][]string `yaml:"values,omitempty"`
}

// ActionSpec is the action template bound to an intent. Param values may
// reference slots as {name}.
//
// In YAML it may be written as a bare kind ("action: help") or as a mapping
// with kind and params.
type ActionSpec struct {
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`

	// Map translates slot values before they are substituted into params,
	// e.g. {direction: {up: "ctrl+up", down: "ctrl+down"}}.
	Map map[string]map[string]string `yaml:"map,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (a *ActionSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		a.Kind = n.Value
		return nil
	}
	type plain ActionSpec
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*a = ActionSpec(p)
	return nil
}

// Spec is one grammar entry: the patterns of one intent in one language,
// plus the action and feedback the dispatcher binds to it.
type Spec struct {
	// Intent is the symbolic intent name, e.g. "track_mute".
	Intent string `yaml:"intent"`

	// Language restricts the patterns to transcripts in this language.
	// Empty means language-agnostic.
	Language string `yaml:"language,omitempty"`

	// Patterns are templates such as "spur {track_number} stumm". Their
	// order is the final tie-break between equally good matches.
	Patterns []string `yaml:"patterns"`

	Slots map[string]SlotSpec `yaml:"slots,omitempty"`

	Action ActionSpec `yaml:"action,omitempty"`

	// Feedback is the phrase template spoken after a successful dispatch.
	Feedback string `yaml:"feedback,omitempty"`

	// Say translates slot values for the feedback phrase, e.g.
	// {state: {on: "an", off: "aus"}}.
	Say map[string]map[string]string `yaml:"say,omitempty"`
}

// Grammar is the document format of grammar files.
type Grammar struct {
	Commands []Spec `yaml:"commands"`
}

// LoadGrammar decodes a grammar document. Unknown fields are errors.
func LoadGrammar(r io.Reader) ([]Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var g Grammar
	if err := dec.Decode(&g); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("intent: decode grammar: %w", err)
	}
	return g.Commands, nil
}

// inferSlotType gives undeclared slots a type from their name.
func inferSlotType(name string) (SlotType, bool) {
	switch {
	case strings.Contains(name, "number"), strings.Contains(name, "track"), strings.HasSuffix(name, "index"):
		return SlotNumber, true
	case strings.Contains(name, "direction"):
		return SlotDirection, true
	case strings.Contains(name, "toggle"), name == "state", strings.HasSuffix(name, "_state"):
		return SlotToggle, true
	default:
		return "", false
	}
}
