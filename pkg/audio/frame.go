// Package audio defines the PCM frame and utterance types that flow through the
// voice command pipeline, plus the bounded frame queue that decouples capture
// from processing.
//
// All PCM in this package is signed 16-bit little-endian. Frames are treated
// as immutable once captured: stages read them, append them to an [Utterance]
// or discard them, but never modify Data in place.
package audio

import (
	"encoding/binary"
	"time"
)

// AudioFrame is a fixed-length block of captured PCM audio.
type AudioFrame struct {
	// Data holds int16 little-endian PCM samples, interleaved when Channels > 1.
	Data []byte

	// SampleRate in Hz (16000 for the command pipeline).
	SampleRate int

	// Channels is 1 after normalisation; sources may deliver more.
	Channels int

	// Timestamp is the monotonic capture offset from stream start.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / (2 * f.Channels)
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// End returns the stream offset just after the last sample of the frame.
func (f AudioFrame) End() time.Duration {
	return f.Timestamp + f.Duration()
}

// Int16 decodes the frame's PCM into samples.
func (f AudioFrame) Int16() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	}
	return out
}

// EncodeInt16 encodes samples as little-endian PCM bytes.
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// EndReason records why the segmenter closed an utterance.
type EndReason string

const (
	// EndSilence means trailing silence exceeded the hangover threshold.
	EndSilence EndReason = "silence"

	// EndMaxDuration means the utterance hit the hard duration cap.
	EndMaxDuration EndReason = "max-duration"

	// EndCancelled means an external signal (stop phrase, timeout, barge-in)
	// closed the utterance.
	EndCancelled EndReason = "cancelled"
)

// Utterance is one bounded span of captured speech. It is owned by the
// segmenter until finalised and then handed to transcription; nothing appends
// to it afterwards.
type Utterance struct {
	// ID is the pipeline utterance ID the audio was captured under.
	ID uint64

	Frames []AudioFrame

	// Start and End are stream offsets of the first and last captured sample.
	Start time.Duration
	End   time.Duration

	Reason EndReason

	// FinalizedAt is the wall-clock time the segmenter closed the utterance.
	// The transcription timeout is computed from it.
	FinalizedAt time.Time
}

// Duration returns End - Start.
func (u *Utterance) Duration() time.Duration {
	return u.End - u.Start
}

// PCM concatenates the frame payloads into one contiguous buffer.
func (u *Utterance) PCM() []byte {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// SampleRate returns the sample rate of the first frame, or 0 when empty.
func (u *Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}
