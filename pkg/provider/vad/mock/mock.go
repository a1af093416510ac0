// Package mock provides test doubles for the vad package interfaces.
//
// Session replays a scripted list of events, one per ProcessFrame call, which
// makes segmenter behaviour deterministic regardless of the frame contents:
//
//	sess := &mock.Session{Events: mock.Script("...SSS..")}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/dawvox/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call in order.
	NewSessionCalls []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Events are returned in order, one per ProcessFrame call. Once exhausted,
	// EventResult is returned.
	Events []vad.VADEvent

	// EventResult is returned after Events is exhausted.
	EventResult vad.VADEvent

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// ProcessFrameCalls is the number of ProcessFrame calls.
	ProcessFrameCalls int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame returns the next scripted event.
func (s *Session) ProcessFrame([]byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProcessFrameCalls++
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	if len(s.Events) > 0 {
		ev := s.Events[0]
		s.Events = s.Events[1:]
		return ev, nil
	}
	return s.EventResult, nil
}

// Push appends events to the script. Thread-safe.
func (s *Session) Push(events ...vad.VADEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, events...)
}

// Reset records the call. The script is not rewound.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Script converts a compact string into events: 'S' is a speech frame and any
// other rune is silence. Start/end markers are derived from transitions.
func Script(s string) []vad.VADEvent {
	events := make([]vad.VADEvent, 0, len(s))
	inSpeech := false
	for _, r := range s {
		switch {
		case r == 'S' && !inSpeech:
			events = append(events, vad.VADEvent{Type: vad.VADSpeechStart, Probability: 0.9})
			inSpeech = true
		case r == 'S':
			events = append(events, vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 0.9})
		case inSpeech:
			events = append(events, vad.VADEvent{Type: vad.VADSpeechEnd, Probability: 0.1})
			inSpeech = false
		default:
			events = append(events, vad.VADEvent{Type: vad.VADSilence, Probability: 0.05})
		}
	}
	return events
}
