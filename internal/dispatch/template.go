package dispatch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/internal/phonetic"
	"github.com/MrWong99/dawvox/pkg/types"
)

var placeholderRE = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

var errUnbound = errors.New("unbound parameter")

// template is the action and feedback bound to one grammar entry.
type template struct {
	lang     string
	action   intent.ActionSpec
	feedback string
	say      map[string]map[string]string
}

func newTemplate(s intent.Spec) template {
	a := s.Action
	if a.Kind == "" {
		a.Kind = KindLog
	}
	return template{lang: s.Language, action: a, feedback: s.Feedback, say: s.Say}
}

// pick returns the template for an intent spoken in lang: an entry declared
// for that language first, then a language-agnostic one, then any.
func pick(ts []template, lang string) (template, bool) {
	if len(ts) == 0 {
		return template{}, false
	}
	for _, t := range ts {
		if t.lang != "" && phonetic.LanguageMatches(t.lang, lang) {
			return t, true
		}
	}
	for _, t := range ts {
		if t.lang == "" {
			return t, true
		}
	}
	return ts[0], true
}

func formatValue(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// bindAction substitutes slot values into the action params. Every
// placeholder must be filled.
func (t template) bindAction(p types.Params) (types.Action, error) {
	a := types.Action{Kind: t.action.Kind}
	if len(t.action.Params) == 0 {
		return a, nil
	}
	a.Params = make(map[string]string, len(t.action.Params))
	var missing []string
	for k, raw := range t.action.Params {
		a.Params[k] = placeholderRE.ReplaceAllStringFunc(raw, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := p[name]
			if !ok {
				missing = append(missing, name)
				return m
			}
			s := formatValue(v)
			if mapped, ok := t.action.Map[name][s]; ok {
				return mapped
			}
			return s
		})
	}
	if len(missing) > 0 {
		return types.Action{}, fmt.Errorf("%w {%s} in %s action", errUnbound, strings.Join(missing, "}, {"), a.Kind)
	}
	return a, nil
}

// bindFeedback substitutes slot values into the feedback phrase. Placeholders
// without a value are dropped.
func (t template) bindFeedback(p types.Params) string {
	if t.feedback == "" {
		return ""
	}
	out := placeholderRE.ReplaceAllStringFunc(t.feedback, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := p[name]
		if !ok {
			return ""
		}
		s := formatValue(v)
		if spoken, ok := t.say[name][s]; ok {
			return spoken
		}
		return s
	})
	return strings.Join(strings.Fields(out), " ")
}
