package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"
)

// ErrInvalidTransition is returned for a state change the machine does not
// allow.
var ErrInvalidTransition = errors.New("pipeline: invalid transition")

// State is the pipeline state of the current utterance.
type State int

const (
	Idle State = iota
	Listening
	Capturing
	Transcribing
	Resolving
	Dispatching
	Feedback
	Cancelled
)

var stateNames = [...]string{"Idle", "Listening", "Capturing", "Transcribing", "Resolving", "Dispatching", "Feedback", "Cancelled"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name, for the diagnostics endpoint.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	Idle:         {Listening},
	Listening:    {Capturing, Cancelled},
	Capturing:    {Transcribing, Cancelled},
	Transcribing: {Resolving, Feedback, Cancelled},
	Resolving:    {Dispatching, Feedback, Cancelled},
	Dispatching:  {Feedback, Cancelled},
	Feedback:     {Idle},
	Cancelled:    {Idle},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Transition is one observed state change.
type Transition struct {
	UtteranceID uint64
	From, To    State
	At          time.Time
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State       State     `json:"state"`
	UtteranceID uint64    `json:"utterance_id"`
	Since       time.Time `json:"since"`

	// LastUtteranceID is the most recently allocated ID.
	LastUtteranceID uint64 `json:"last_utterance_id"`
}

// Session is the process-wide pipeline session: the current state, the
// active utterance ID and the ID allocator.
//
// Only the orchestrator goroutine mutates a Session. Other goroutines read it
// through [Session.Snapshot], which is lock-free.
type Session struct {
	state  State
	id     uint64
	lastID uint64
	since  time.Time
	closed bool

	now      func() time.Time
	observer func(Transition)
	snap     atomic.Pointer[Snapshot]
}

// NewSession initialises a session in Idle.
func NewSession(observer func(Transition)) *Session {
	s := &Session{now: time.Now, observer: observer}
	s.since = s.now()
	s.publish()
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// ID returns the active utterance ID, or 0 in Idle.
func (s *Session) ID() uint64 { return s.id }

// IsCurrent reports whether id is the active utterance. Results tagged with
// any other ID are stale.
func (s *Session) IsCurrent(id uint64) bool {
	return id != 0 && id == s.id
}

// Begin allocates a new utterance ID and enters Listening. IDs increase
// monotonically and are never reused.
func (s *Session) Begin() (uint64, error) {
	if s.closed {
		return 0, errors.New("pipeline: session torn down")
	}
	if s.state != Idle {
		return 0, fmt.Errorf("%w: begin in %v", ErrInvalidTransition, s.state)
	}
	s.lastID++
	s.id = s.lastID
	return s.id, s.To(Listening)
}

// To moves the session to next.
func (s *Session) To(next State) error {
	if !CanTransition(s.state, next) {
		return fmt.Errorf("%w: %v → %v (utterance %d)", ErrInvalidTransition, s.state, next, s.id)
	}
	t := Transition{UtteranceID: s.id, From: s.state, To: next, At: s.now()}
	s.state = next
	s.since = t.At
	if next == Idle {
		s.id = 0
	}
	s.publish()
	if s.observer != nil {
		s.observer(t)
	}
	return nil
}

// Reset forces the session back to Idle, invalidating the active ID. It is
// the recovery path after an invalid transition and is not observed.
func (s *Session) Reset() {
	s.state = Idle
	s.id = 0
	s.since = s.now()
	s.publish()
}

// Teardown resets the session and refuses further utterances.
func (s *Session) Teardown() {
	s.Reset()
	s.closed = true
}

// Snapshot returns the latest published state. Safe from any goroutine.
func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

func (s *Session) publish() {
	s.snap.Store(&Snapshot{State: s.state, UtteranceID: s.id, Since: s.since, LastUtteranceID: s.lastID})
}
