// Package mock provides a test double for the wakeword.Classifier interface.
//
// Classifier returns scripted scores: each Score call consumes the next entry
// of Script, or any scores queued with Trigger, and otherwise returns nothing.
package mock

import (
	"sync"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
)

// Classifier is a mock implementation of wakeword.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Script holds the scores returned by successive Score calls.
	Script [][]wakeword.PhraseScore

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	pending []wakeword.PhraseScore

	// Frames records the timestamp of every scored frame.
	Frames []audio.AudioFrame

	CloseCallCount int
}

var _ wakeword.Classifier = (*Classifier)(nil)

// Trigger makes the next Score call report phraseID at value. Thread-safe.
func (c *Classifier) Trigger(phraseID string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, wakeword.PhraseScore{PhraseID: phraseID, Value: value})
}

// Score implements wakeword.Classifier.
func (c *Classifier) Score(frame audio.AudioFrame) ([]wakeword.PhraseScore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Frames = append(c.Frames, audio.AudioFrame{Timestamp: frame.Timestamp, SampleRate: frame.SampleRate})
	if c.ScoreErr != nil {
		return nil, c.ScoreErr
	}
	if len(c.pending) > 0 {
		out := c.pending
		c.pending = nil
		return out, nil
	}
	if len(c.Script) > 0 {
		out := c.Script[0]
		c.Script = c.Script[1:]
		return out, nil
	}
	return nil, nil
}

// Close records the call and returns CloseErr.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// FrameCount returns the number of Score calls. Thread-safe.
func (c *Classifier) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Frames)
}
