// Package mock provides a scripted implementation of [audio.Source] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dawvox/pkg/audio"
)

// Source replays Frames into the sink and then either returns StreamErr or,
// when Hold is set, blocks until the context is cancelled.
type Source struct {
	mu sync.Mutex

	// Frames are delivered in order on each Stream call.
	Frames []audio.AudioFrame

	// StreamErr is returned after all frames are delivered.
	StreamErr error

	// Hold keeps Stream running after the last frame until ctx is done.
	Hold bool

	// CloseErr is returned by Close.
	CloseErr error

	CallCountStream int
	CallCountClose  int
}

var _ audio.Source = (*Source)(nil)

// Stream implements [audio.Source].
func (s *Source) Stream(ctx context.Context, sink func(audio.AudioFrame)) error {
	s.mu.Lock()
	s.CallCountStream++
	frames := append([]audio.AudioFrame(nil), s.Frames...)
	streamErr, hold := s.StreamErr, s.Hold
	s.mu.Unlock()

	for _, f := range frames {
		if ctx.Err() != nil {
			return nil
		}
		sink(f)
	}
	if streamErr != nil {
		return streamErr
	}
	if hold {
		<-ctx.Done()
	}
	return nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseErr
}
