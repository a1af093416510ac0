// Package vad defines the frame classifier used by the voice activity
// segmenter to label each audio frame as speech or silence.
//
// An Engine creates stateful per-stream sessions. Sessions are synchronous:
// ProcessFrame returns immediately, so it can run on the orchestrator's frame
// path without suspending it. Utterance boundaries (hangover, duration caps)
// are not the engine's concern; the segmenter derives them from the per-frame
// labels.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the nominal frame duration in milliseconds.
	FrameSizeMs int

	// Aggressiveness trades missed speech for rejected noise, 0 (least
	// aggressive, most frames count as speech) to 3 (most aggressive).
	Aggressiveness int

	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Range [0, 1]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame ends an active
	// speech run. Must be <= SpeechThreshold; zero means equal to it.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for a single audio stream.
// It must not be shared between goroutines.
type SessionHandle interface {
	// ProcessFrame classifies one little-endian int16 mono frame.
	// It must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset ends the current speech run and clears onset counters without
	// closing the session. Learned noise estimates are kept, since the
	// session keeps listening to the same room.
	Reset()

	// Close releases the session. Calling Close more than once returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
