// Package mock provides a test double for the stt.Provider interface.
//
// Provider returns a canned Result or error and records every request. Delay
// simulates engine latency while still honouring the context, which is how
// timeout and stale-result tests drive the transcription adapter:
//
//	p := &mock.Provider{Result: stt.Result{Text: "spur 3 stumm", Language: "de"}}
//	res, _ := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result stt.Result

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Respond, if set, computes the answer from the request and takes
	// precedence over Result and Err. Use it when concurrent calls
	// may reach the mock in any order.
	Respond func(stt.Request) (stt.Result, error)

	// Delay is how long Transcribe takes. The call returns ctx.Err() if the
	// context ends first.
	Delay time.Duration

	// Gate, if non-nil, blocks Transcribe until a value is received or the
	// context ends. It lets tests decide exactly when a result arrives.
	Gate chan struct{}

	// Requests records every request in order.
	Requests []stt.Request
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the request and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	res := p.Result
	err, delay, gate, respond := p.Err, p.Delay, p.Gate, p.Respond
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	if respond != nil {
		return respond(req)
	}
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Calls returns a copy of the recorded requests. Thread-safe.
func (p *Provider) Calls() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.Request(nil), p.Requests...)
}
