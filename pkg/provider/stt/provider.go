// Package stt defines the Provider interface for offline speech-to-text
// engines used by the transcription adapter.
//
// Command utterances are short and bounded by the segmenter, so the contract
// is batch: one finalised utterance in, one result out. Implementations must
// honour ctx cancellation and deadlines as well as the engine allows; the
// adapter discards late results regardless.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a request carries no PCM.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Request is one utterance to transcribe.
type Request struct {
	// PCM is int16 little-endian audio.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for pipeline audio.
	Channels int

	// Language is an optional BCP-47 hint ("de", "en"). Empty lets the engine
	// use its default or auto-detect.
	Language string
}

// Result is the engine output for one request.
type Result struct {
	// Text is the raw recognised text.
	Text string

	// Language is the detected or assumed language tag.
	Language string

	// Confidence in [0, 1]. Zero means not reported.
	Confidence float64
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises the speech in req. Engine failures are returned as
	// errors; the caller decides how they surface to the user.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
