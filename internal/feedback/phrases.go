// Package feedback selects and sequences the status phrases the pipeline
// reports back to the user.
//
// Every wake-word activation ends in exactly one phrase: a success phrase from
// the dispatched command or one of the fixed failure phrases in the
// [Catalog]. The [Emitter] hands phrases to a tts.Provider one at a time so
// they never overlap, without ever blocking the orchestrator.
package feedback

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind identifies a fixed feedback phrase.
type Kind string

const (
	// KindAck acknowledges a wake-word activation (optional).
	KindAck Kind = "ack"

	// KindSuccess carries the command's own phrase. It has no catalogue
	// entry.
	KindSuccess Kind = "success"

	KindUnrecognized  Kind = "unrecognized"
	KindSTTFailure    Kind = "stt_failure"
	KindTimeout       Kind = "timeout"
	KindNothingHeard  Kind = "nothing_heard"
	KindActionFailed  Kind = "action_failed"
	KindCancelled     Kind = "cancelled"
	KindUnknownAction Kind = "unknown_action"

	// KindDone is the success phrase for commands without their own.
	KindDone Kind = "done"

	// KindHelp and KindTime prefix the help and time built-in answers.
	KindHelp Kind = "help"
	KindTime Kind = "time"

	KindGoodbye Kind = "goodbye"
)

// ErrUnknownKind is returned for catalogue overrides naming no known phrase.
var ErrUnknownKind = errors.New("feedback: unknown phrase kind")

var builtin = map[string]map[Kind]string{
	"de": {
		KindAck:           "Ja, ich höre",
		KindUnrecognized:  "Befehl nicht verstanden",
		KindSTTFailure:    "Fehler bei der Spracherkennung",
		KindTimeout:       "Zeitüberschreitung",
		KindNothingHeard:  "Nichts gehört",
		KindActionFailed:  "Aktion fehlgeschlagen",
		KindCancelled:     "Abgebrochen",
		KindUnknownAction: "Unbekannte Aktion",
		KindDone:          "Erledigt",
		KindHelp:          "Verfügbare Befehle",
		KindTime:          "Es ist",
		KindGoodbye:       "Auf Wiedersehen",
	},
	"en": {
		KindAck:           "Yes, I'm listening",
		KindUnrecognized:  "Command not understood",
		KindSTTFailure:    "Speech recognition failed",
		KindTimeout:       "Timed out",
		KindNothingHeard:  "Nothing heard",
		KindActionFailed:  "Action failed",
		KindCancelled:     "Cancelled",
		KindUnknownAction: "Unknown action",
		KindDone:          "Done",
		KindHelp:          "Available commands",
		KindTime:          "It is",
		KindGoodbye:       "Goodbye",
	},
}

// Languages returns the languages with a built-in catalogue.
func Languages() []string {
	return slices.Sorted(maps.Keys(builtin))
}

// Kinds returns the catalogue phrase kinds in a stable order.
func Kinds() []Kind {
	return slices.Sorted(maps.Keys(builtin["de"]))
}

// Catalog maps phrase kinds to text for one language.
type Catalog struct {
	lang    string
	phrases map[Kind]string
}

// NewCatalog returns the built-in catalogue for lang with overrides applied.
// Unknown languages fall back to German; region subtags are ignored.
func NewCatalog(lang string, overrides map[string]string) (*Catalog, error) {
	base := strings.ToLower(lang)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	src, ok := builtin[base]
	if !ok {
		base, src = "de", builtin["de"]
	}
	c := &Catalog{lang: base, phrases: maps.Clone(src)}

	var errs []error
	for k, v := range overrides {
		kind := Kind(k)
		if _, ok := src[kind]; !ok {
			errs = append(errs, fmt.Errorf("%w %q", ErrUnknownKind, k))
			continue
		}
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("feedback: phrase %q is empty", k))
			continue
		}
		c.phrases[kind] = v
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Language returns the catalogue language.
func (c *Catalog) Language() string { return c.lang }

// Phrase returns the text for k, or "" for [KindSuccess] and unknown kinds.
func (c *Catalog) Phrase(k Kind) string {
	return c.phrases[k]
}
