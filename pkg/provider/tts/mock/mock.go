// Package mock provides a test double for the tts.Provider interface.
//
// Provider records every emitted phrase in order. Delay and Gate let tests
// observe that the emitter never overlaps two phrases.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Emit after the phrase is recorded.
	Err error

	// Delay is how long each Emit takes. Emit returns ctx.Err() if the
	// context ends first.
	Delay time.Duration

	phrases []string
	active  int
	overlap bool
}

var _ tts.Provider = (*Provider)(nil)

// Emit records phrase.
func (p *Provider) Emit(ctx context.Context, phrase string) error {
	p.mu.Lock()
	p.phrases = append(p.phrases, phrase)
	p.active++
	if p.active > 1 {
		p.overlap = true
	}
	err, delay := p.Err, p.Delay
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Phrases returns a copy of the phrases emitted so far. Thread-safe.
func (p *Provider) Phrases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.phrases...)
}

// Overlapped reports whether two Emit calls were ever active at once.
func (p *Provider) Overlapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlap
}
