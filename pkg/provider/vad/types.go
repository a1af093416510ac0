package vad

// VADEvent is the classification result for one frame.
type VADEvent struct {
	Type VADEventType

	// Probability is the speech likelihood in [0, 1].
	Probability float64
}

// IsSpeech reports whether the frame was classified as speech.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType labels a frame relative to the current speech run.
type VADEventType int

const (
	// VADSpeechStart marks the first frame of a speech run.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue marks a speech frame inside an active run.
	VADSpeechContinue

	// VADSpeechEnd marks the first non-speech frame after a run.
	VADSpeechEnd

	// VADSilence marks a non-speech frame outside any run.
	VADSilence
)

func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech-start"
	case VADSpeechContinue:
		return "speech"
	case VADSpeechEnd:
		return "speech-end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
