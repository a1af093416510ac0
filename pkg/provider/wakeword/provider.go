// Package wakeword defines the contract for acoustic wake-phrase classifiers.
//
// A Classifier scores every captured frame against its configured phrase set.
// It must not block the frame path: heavier detectors run their model
// asynchronously and report detections on a later Score call. Threshold,
// debounce and cooldown are applied by the wake gate, not the classifier.
package wakeword

import "github.com/MrWong99/dawvox/pkg/audio"

// Role distinguishes phrases that start a command from phrases that abort one.
type Role string

const (
	// RoleWake starts a new command (Idle → Listening, or barge-in).
	RoleWake Role = "wake"

	// RoleCancel aborts the in-flight command.
	RoleCancel Role = "cancel"
)

// Phrase is one configured trigger phrase.
type Phrase struct {
	// ID identifies the phrase in scores and activations.
	ID string

	// Text is the spoken form, e.g. "hey logic".
	Text string

	// Language optionally restricts the phrase to one language.
	Language string

	Role Role
}

// PhraseScore is the detection score for one phrase on one frame.
type PhraseScore struct {
	PhraseID string

	// Value is the detection confidence in [0, 1].
	Value float64
}

// Classifier scores frames against the phrase set it was built with.
// Score is called from a single goroutine, once per frame, in capture order.
type Classifier interface {
	// Score returns per-phrase scores for frame. Phrases that scored zero may
	// be omitted.
	Score(frame audio.AudioFrame) ([]PhraseScore, error)

	// Close releases resources held by the classifier.
	Close() error
}
