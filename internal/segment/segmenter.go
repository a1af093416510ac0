// Package segment implements the voice activity segmenter. After a wake
// activation it labels each frame as speech or silence with a VAD session and
// closes the utterance when trailing silence exceeds the hangover, when the
// utterance reaches its maximum duration, or when it is cancelled.
//
// All timing is derived from frame timestamps. Finalisation is terminal: once
// an utterance is returned, the segmenter ignores frames until Begin is called
// for the next utterance ID.
package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/vad"
)

// Config holds segmentation parameters.
type Config struct {
	// Hangover is the trailing silence that ends an utterance.
	Hangover time.Duration

	// MaxDuration caps the length of one utterance.
	MaxDuration time.Duration

	// ListenTimeout ends a listening window in which no speech starts.
	// Zero disables it.
	ListenTimeout time.Duration

	// MinSpeech is the run of consecutive speech frames needed before an
	// utterance is considered started. Shorter blips (clicks, taps) are
	// discarded.
	MinSpeech time.Duration
}

// Event is the outcome of feeding one frame.
type Event int

const (
	// Continue means nothing changed at the utterance level.
	Continue Event = iota

	// SpeechStarted means speech was detected and capture began.
	SpeechStarted

	// Finalized means the utterance was closed. The result carries it.
	Finalized

	// ListenTimeout means no speech started within Config.ListenTimeout.
	// The listening window is closed without an utterance.
	ListenTimeout
)

func (e Event) String() string {
	switch e {
	case Continue:
		return "continue"
	case SpeechStarted:
		return "speech-started"
	case Finalized:
		return "finalized"
	case ListenTimeout:
		return "listen-timeout"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Result is returned by Feed.
type Result struct {
	Event Event

	// Utterance is set when Event is Finalized.
	Utterance *audio.Utterance
}

// Segmenter accumulates frames into utterances. Not safe for concurrent use.
type Segmenter struct {
	vad vad.SessionHandle
	cfg Config
	now func() time.Time

	active   bool
	id       uint64
	openedAt time.Duration

	speaking   bool
	speechRun  time.Duration
	onset      []audio.AudioFrame
	frames     []audio.AudioFrame
	start      time.Duration
	lastSpeech time.Duration
}

// New creates a Segmenter that classifies frames with session.
func New(session vad.SessionHandle, cfg Config) (*Segmenter, error) {
	if session == nil {
		return nil, errors.New("segment: vad session must not be nil")
	}
	if cfg.Hangover <= 0 {
		return nil, fmt.Errorf("segment: hangover must be positive, got %v", cfg.Hangover)
	}
	if cfg.MaxDuration <= 0 {
		return nil, fmt.Errorf("segment: max duration must be positive, got %v", cfg.MaxDuration)
	}
	return &Segmenter{vad: session, cfg: cfg, now: time.Now}, nil
}

// Begin opens a listening window for utterance id at stream offset at. Any
// utterance still open is discarded.
func (s *Segmenter) Begin(id uint64, at time.Duration) {
	s.vad.Reset()
	s.clear()
	s.active = true
	s.id = id
	s.openedAt = at
}

// Active reports whether a listening window is open.
func (s *Segmenter) Active() bool { return s.active }

// Feed classifies frame and advances the utterance. Outside a listening
// window the frame still reaches the VAD so its noise estimate follows the
// room, but no event is produced.
func (s *Segmenter) Feed(frame audio.AudioFrame) (Result, error) {
	ev, err := s.vad.ProcessFrame(frame.Data)
	if err != nil {
		return Result{}, fmt.Errorf("segment: vad: %w", err)
	}
	if !s.active {
		return Result{}, nil
	}
	end := frame.End()

	if !s.speaking {
		if !ev.IsSpeech() {
			s.speechRun = 0
			s.onset = s.onset[:0]
			if s.cfg.ListenTimeout > 0 && end-s.openedAt >= s.cfg.ListenTimeout {
				s.active = false
				s.clear()
				return Result{Event: ListenTimeout}, nil
			}
			return Result{}, nil
		}
		s.onset = append(s.onset, frame)
		s.speechRun += frame.Duration()
		if s.speechRun < s.cfg.MinSpeech {
			return Result{}, nil
		}
		s.speaking = true
		s.frames = append(s.frames, s.onset...)
		s.onset = nil
		s.start = s.frames[0].Timestamp
		s.lastSpeech = end
		return s.checkCap(end, SpeechStarted), nil
	}

	s.frames = append(s.frames, frame)
	if ev.IsSpeech() {
		s.lastSpeech = end
	}
	if end-s.lastSpeech >= s.cfg.Hangover {
		return Result{Event: Finalized, Utterance: s.finalize(end, audio.EndSilence)}, nil
	}
	return s.checkCap(end, Continue), nil
}

func (s *Segmenter) checkCap(end time.Duration, otherwise Event) Result {
	if end-s.start >= s.cfg.MaxDuration {
		return Result{Event: Finalized, Utterance: s.finalize(end, audio.EndMaxDuration)}
	}
	return Result{Event: otherwise}
}

// Cancel closes the open window. If speech had started, the partial
// utterance is returned with reason cancelled; it must not be transcribed.
func (s *Segmenter) Cancel() *audio.Utterance {
	if !s.active {
		return nil
	}
	if !s.speaking {
		s.active = false
		s.clear()
		return nil
	}
	end := s.lastSpeech
	if n := len(s.frames); n > 0 {
		end = s.frames[n-1].End()
	}
	return s.finalize(end, audio.EndCancelled)
}

// Flush closes the open window at end of input. Speech in progress is
// returned as a regular utterance ending in silence; a window without speech
// is closed and nil is returned.
func (s *Segmenter) Flush() *audio.Utterance {
	if !s.active {
		return nil
	}
	if !s.speaking {
		s.active = false
		s.clear()
		return nil
	}
	end := s.lastSpeech
	if n := len(s.frames); n > 0 {
		end = s.frames[n-1].End()
	}
	return s.finalize(end, audio.EndSilence)
}

func (s *Segmenter) finalize(end time.Duration, reason audio.EndReason) *audio.Utterance {
	u := &audio.Utterance{
		ID:          s.id,
		Frames:      s.frames,
		Start:       s.start,
		End:         end,
		Reason:      reason,
		FinalizedAt: s.now(),
	}
	s.frames = nil
	s.active = false
	s.clear()
	return u
}

func (s *Segmenter) clear() {
	s.speaking = false
	s.speechRun = 0
	s.onset = nil
	s.frames = nil
	s.start = 0
	s.lastSpeech = 0
}

// Close releases the VAD session.
func (s *Segmenter) Close() error {
	return s.vad.Close()
}
