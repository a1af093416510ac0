// Package say speaks feedback phrases through the macOS say(1) command.
package say

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrWong99/dawvox/pkg/provider/tts"
)

const (
	defaultCommand = "say"
	defaultVoice   = "Anna"
	defaultRate    = 200
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for [Provider].
type Option func(*Provider)

// WithVoice selects the system voice ("Anna" for German, "Samantha" for English).
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithRate sets the speaking rate in words per minute.
func WithRate(wpm int) Option {
	return func(p *Provider) { p.rate = wpm }
}

// WithCommand overrides the program invoked (default "say").
func WithCommand(name string) Option {
	return func(p *Provider) { p.command = name }
}

// WithRunner replaces the process runner. Used by tests.
func WithRunner(r tts.Runner) Option {
	return func(p *Provider) { p.run = r }
}

// Provider implements tts.Provider using say(1).
type Provider struct {
	command string
	voice   string
	rate    int
	run     tts.Runner
}

// New returns a say Provider with the German default voice.
func New(opts ...Option) *Provider {
	p := &Provider{
		command: defaultCommand,
		voice:   defaultVoice,
		rate:    defaultRate,
		run:     tts.ExecRunner,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Emit speaks phrase and blocks until say exits.
func (p *Provider) Emit(ctx context.Context, phrase string) error {
	if phrase == "" {
		return errors.New("say: empty phrase")
	}
	args := make([]string, 0, 5)
	if p.voice != "" {
		args = append(args, "-v", p.voice)
	}
	if p.rate > 0 {
		args = append(args, "-r", strconv.Itoa(p.rate))
	}
	args = append(args, phrase)
	return p.run(ctx, p.command, args...)
}
