// Package transcribe wraps the speech-to-text engine for the pipeline. It
// derives a hard per-utterance deadline from the latency budget, classifies
// failures into [ErrTimeout] and [ErrEngine], and never retries.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/dawvox/internal/observe"
	"github.com/MrWong99/dawvox/internal/resilience"
	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	"github.com/MrWong99/dawvox/pkg/types"
)

var (
	// ErrEngine reports an engine failure, including a rejected call while
	// the engine's circuit breaker is open.
	ErrEngine = errors.New("transcribe: engine error")

	// ErrTimeout reports that the engine did not answer within the
	// utterance's deadline.
	ErrTimeout = errors.New("transcribe: timeout")
)

// Config holds adapter parameters.
type Config struct {
	// Language is the hint passed to the engine and the transcript language
	// when the engine does not report one.
	Language string

	// Budget is the end-of-speech to command latency budget. The engine gets
	// what is left of it when the call starts.
	Budget time.Duration

	// MinTimeout and MaxTimeout clamp the derived deadline.
	MinTimeout time.Duration
	MaxTimeout time.Duration
}

// Option is a functional option for [Adapter].
type Option func(*Adapter)

// WithBreaker guards engine calls with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(a *Adapter) { a.breaker = b }
}

// WithMetrics records stage latency and errors to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithName sets the provider name used in metrics and logs.
func WithName(name string) Option {
	return func(a *Adapter) { a.name = name }
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// Adapter calls the engine for finalised utterances. It is safe for
// concurrent use, although the pipeline runs at most one call at a time.
type Adapter struct {
	engine  stt.Provider
	cfg     Config
	breaker *resilience.Breaker
	metrics *observe.Metrics
	name    string
	now     func() time.Time
}

// New creates an Adapter for engine.
func New(engine stt.Provider, cfg Config, opts ...Option) (*Adapter, error) {
	if engine == nil {
		return nil, errors.New("transcribe: engine must not be nil")
	}
	if cfg.MinTimeout <= 0 || cfg.MaxTimeout < cfg.MinTimeout {
		return nil, fmt.Errorf("transcribe: invalid timeout bounds [%v, %v]", cfg.MinTimeout, cfg.MaxTimeout)
	}
	a := &Adapter{engine: engine, cfg: cfg, name: "stt", now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Timeout returns the deadline for transcribing u if the call started now:
// the budget minus the time since u was finalised, clamped to
// [MinTimeout, MaxTimeout].
func (a *Adapter) Timeout(u *audio.Utterance) time.Duration {
	d := a.cfg.Budget
	if u != nil && !u.FinalizedAt.IsZero() {
		d -= a.now().Sub(u.FinalizedAt)
	}
	return min(max(d, a.cfg.MinTimeout), a.cfg.MaxTimeout)
}

// Transcribe runs the engine on u. When ctx ends first (the utterance was
// superseded or cancelled) the context error is returned unwrapped; the
// caller discards the result either way.
func (a *Adapter) Transcribe(ctx context.Context, u *audio.Utterance) (types.Transcript, error) {
	if u == nil || len(u.Frames) == 0 {
		return types.Transcript{}, fmt.Errorf("%w: %w", ErrEngine, stt.ErrEmptyAudio)
	}
	timeout := a.Timeout(u)

	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("utterance.id", int64(u.ID)),
		attribute.String("utterance.reason", string(u.Reason)),
		attribute.Int64("timeout_ms", timeout.Milliseconds()),
	)

	req := stt.Request{
		PCM:        u.PCM(),
		SampleRate: u.SampleRate(),
		Channels:   1,
		Language:   a.cfg.Language,
	}

	start := time.Now()
	var (
		res      stt.Result
		timedOut bool
	)
	call := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var err error
		res, err = a.engine.Transcribe(tctx, req)
		if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			timedOut = true
		}
		return err
	}
	var err error
	if a.breaker != nil {
		err = a.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return types.Transcript{}, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		kind := "engine"
		wrapped := fmt.Errorf("%w: %w", ErrEngine, err)
		switch {
		case timedOut:
			kind = "timeout"
			wrapped = fmt.Errorf("%w after %v: %w", ErrTimeout, timeout, err)
		case errors.Is(err, resilience.ErrCircuitOpen):
			kind = "circuit_open"
		}
		if a.metrics != nil {
			a.metrics.RecordProviderError(ctx, a.name, kind)
		}
		observe.Logger(ctx).Warn("transcription failed",
			"utterance_id", u.ID, "kind", kind, "elapsed", elapsed, "err", err)
		return types.Transcript{}, wrapped
	}

	if a.metrics != nil {
		a.metrics.RecordStage(ctx, observe.StageTranscribe, elapsed.Seconds())
	}
	lang := res.Language
	if lang == "" {
		lang = a.cfg.Language
	}
	t := types.Transcript{
		UtteranceID: u.ID,
		Text:        strings.TrimSpace(res.Text),
		Language:    lang,
		Confidence:  res.Confidence,
		Duration:    u.Duration(),
	}
	observe.Logger(ctx).Debug("transcribed",
		"utterance_id", u.ID, "text", t.Text, "language", t.Language,
		"confidence", t.Confidence, "elapsed", elapsed)
	return t, nil
}
