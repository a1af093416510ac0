// Package app wires the dawvox subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes capture, the pipeline and the diagnostics server,
// and Shutdown tears everything down in order.
//
// For testing, inject mock implementations through [Providers] and the
// functional options ([WithJournalStore], [WithMetrics], ...). When an
// option is not provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dawvox/internal/config"
	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/internal/health"
	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/internal/journal"
	"github.com/MrWong99/dawvox/internal/observe"
	"github.com/MrWong99/dawvox/internal/pipeline"
	"github.com/MrWong99/dawvox/internal/resilience"
	"github.com/MrWong99/dawvox/internal/segment"
	"github.com/MrWong99/dawvox/internal/transcribe"
	"github.com/MrWong99/dawvox/internal/wake"
	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/executor"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	"github.com/MrWong99/dawvox/pkg/provider/tts"
	"github.com/MrWong99/dawvox/pkg/provider/vad"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
)

// Providers holds one interface value per provider slot. Source, WakeWord,
// VAD and STT are required. Executor may be nil in dry-run mode and TTS may
// be nil when feedback only goes to the log.
type Providers struct {
	Source   audio.Source
	WakeWord wakeword.Classifier
	VAD      vad.Engine
	STT      stt.Provider
	Executor executor.Executor
	TTS      tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	observer  func(pipeline.Transition)

	queue      *audio.FrameQueue
	norm       audio.Normalizer
	vadSession vad.SessionHandle
	resolver   *intent.Resolver
	dispatcher *dispatch.Dispatcher
	emitter    *feedback.Emitter
	store      journal.Store
	writer     *journal.Writer
	orch       *pipeline.Orchestrator
	diag       *health.Server
	sttBreaker *resilience.Breaker

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	mu   sync.Mutex
	stop context.CancelFunc

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournalStore injects a journal store instead of opening the configured
// backend. The app closes it on shutdown.
func WithJournalStore(s journal.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics replaces the process-wide metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithObserver registers fn for every pipeline state transition.
func WithObserver(fn func(pipeline.Transition)) Option {
	return func(a *App) { a.observer = fn }
}

// New creates an App by wiring all subsystems together. The providers come
// from [BuildProviders] or from a test.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := checkProviders(cfg, providers); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		norm:      audio.Normalizer{Target: audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: 1}},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Anything created below is released by Shutdown, also when New fails
	// halfway.
	a.closers = append(a.closers, func(context.Context) error { return providers.Source.Close() })
	a.closers = append(a.closers, func(context.Context) error { return providers.WakeWord.Close() })
	if c, ok := providers.STT.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func checkProviders(cfg *config.Config, p *Providers) error {
	if p == nil {
		return errors.New("providers are required")
	}
	var errs []error
	if p.Source == nil {
		errs = append(errs, errors.New("audio source is required"))
	}
	if p.WakeWord == nil {
		errs = append(errs, errors.New("wake-word classifier is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if p.STT == nil {
		errs = append(errs, errors.New("stt provider is required"))
	}
	if cfg.Mode() == dispatch.ModeLive && p.Executor == nil {
		errs = append(errs, errors.New("live mode requires an executor"))
	}
	return errors.Join(errs...)
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	// ── 1. Capture queue ─────────────────────────────────────────────────
	a.queue = audio.NewFrameQueue(cfg.Audio.QueueSize, audio.WithDropHook(func() {
		a.metrics.FramesDropped.Add(context.Background(), 1)
	}))

	// ── 2. Wake gate ─────────────────────────────────────────────────────
	gate, err := wake.New(a.providers.WakeWord, wake.Config{
		Threshold:      cfg.WakeWord.Threshold,
		Cooldown:       cfg.WakeWord.Cooldown,
		DebounceFrames: cfg.WakeWord.DebounceFrames,
		Phrases:        cfg.WakePhrases(),
	})
	if err != nil {
		return fmt.Errorf("app: init wake gate: %w", err)
	}

	// ── 3. Segmenter ─────────────────────────────────────────────────────
	a.vadSession, err = a.providers.VAD.NewSession(vad.Config{
		SampleRate:      cfg.Audio.SampleRate,
		FrameSizeMs:     int(cfg.Audio.FrameDuration().Milliseconds()),
		Aggressiveness:  cfg.VAD.Aggressiveness,
		SpeechThreshold: 0.5,
	})
	if err != nil {
		return fmt.Errorf("app: init vad: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return a.vadSession.Close() })
	seg, err := segment.New(a.vadSession, segment.Config{
		Hangover:      cfg.VAD.Hangover,
		MaxDuration:   cfg.VAD.MaxDuration,
		ListenTimeout: cfg.VAD.ListenTimeout,
		MinSpeech:     cfg.VAD.MinSpeech,
	})
	if err != nil {
		return fmt.Errorf("app: init segmenter: %w", err)
	}

	// ── 4. Transcription ─────────────────────────────────────────────────
	a.sttBreaker = a.newBreaker("stt")
	adapter, err := transcribe.New(a.providers.STT, transcribe.Config{
		Language:   cfg.STT.Language,
		Budget:     cfg.STT.LatencyBudget,
		MinTimeout: cfg.STT.MinTimeout,
		MaxTimeout: cfg.STT.MaxTimeout,
	},
		transcribe.WithBreaker(a.sttBreaker),
		transcribe.WithMetrics(a.metrics),
		transcribe.WithName(cfg.Providers.STT.Name),
	)
	if err != nil {
		return fmt.Errorf("app: init transcription: %w", err)
	}

	// ── 5. Grammar and resolver ──────────────────────────────────────────
	grammar, err := cfg.Grammar()
	if err != nil {
		return fmt.Errorf("app: load grammar: %w", err)
	}
	a.resolver, err = intent.NewResolver(grammar, cfg.ResolverConfig())
	if err != nil {
		return fmt.Errorf("app: init resolver: %w", err)
	}

	// ── 6. Feedback ──────────────────────────────────────────────────────
	catalog, err := feedback.NewCatalog(cfg.Feedback.Language, cfg.Feedback.Phrases)
	if err != nil {
		return fmt.Errorf("app: init feedback: %w", err)
	}
	var sink tts.Provider = feedback.LogSink{}
	if cfg.Feedback.Enabled && a.providers.TTS != nil {
		sink = a.providers.TTS
	}
	a.emitter = feedback.NewEmitter(sink,
		feedback.WithTimeout(cfg.Feedback.Timeout),
		feedback.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.emitter.Close)

	// ── 7. Journal ───────────────────────────────────────────────────────
	if a.store == nil {
		a.store, err = OpenJournal(ctx, cfg)
		if err != nil {
			return fmt.Errorf("app: open journal: %w", err)
		}
	}
	a.closers = append(a.closers, func(context.Context) error { return a.store.Close() })
	a.writer = journal.NewWriter(a.store, journal.NewRunID(), cfg.Journal.Capacity)
	a.closers = append(a.closers, a.writer.Close)

	// ── 8. Dispatcher ────────────────────────────────────────────────────
	dopts := []dispatch.Option{
		dispatch.WithCatalog(catalog),
		dispatch.WithTimeout(cfg.Commands.Timeout),
		dispatch.WithBreaker(a.newBreaker("executor")),
		dispatch.WithJournal(a.writer),
		dispatch.WithMetrics(a.metrics),
	}
	if a.providers.Executor != nil {
		dopts = append(dopts, dispatch.WithExecutor(a.providers.Executor))
	}
	a.dispatcher, err = dispatch.New(grammar, cfg.Mode(), dopts...)
	if err != nil {
		return fmt.Errorf("app: init dispatcher: %w", err)
	}

	// ── 9. Orchestrator ──────────────────────────────────────────────────
	popts := []pipeline.Option{pipeline.WithExitHandler(a.requestStop)}
	if a.observer != nil {
		popts = append(popts, pipeline.WithObserver(a.observer))
	}
	a.orch, err = pipeline.New(pipeline.Config{
		Queue:      a.queue,
		Gate:       gate,
		Segmenter:  seg,
		STT:        adapter,
		Resolver:   a.resolver,
		Dispatcher: a.dispatcher,
		Feedback:   a.emitter,
		Catalog:    catalog,
		AckOnWake:  cfg.Feedback.AckOnWake,
		Metrics:    a.metrics,
	}, popts...)
	if err != nil {
		return fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 10. Diagnostics ──────────────────────────────────────────────────
	if addr := cfg.Diagnostics.ListenAddr; addr != "" {
		hopts := []health.Option{
			health.WithCheckers(a.checkers()...),
			health.WithState(func() any { return a.diagState() }),
			health.WithCancel(a.orch.Cancel),
		}
		if !cfg.Diagnostics.Metrics {
			hopts = append(hopts, health.WithMetricsHandler(http.NotFoundHandler()))
		}
		a.diag, err = health.NewServer(addr, health.New(hopts...), a.metrics)
		if err != nil {
			return fmt.Errorf("app: init diagnostics: %w", err)
		}
	}

	slog.Info("pipeline ready",
		"mode", string(cfg.Mode()),
		"intents", len(a.resolver.Intents()),
		"wake_phrases", len(cfg.WakeWord.Phrases),
		"journal", string(cfg.Journal.Backend),
		"run_id", a.writer.RunID(),
	)
	return nil
}

func (a *App) newBreaker(name string) *resilience.Breaker {
	return resilience.New(resilience.Config{
		Name:         name,
		MaxFailures:  a.cfg.Commands.Breaker.MaxFailures,
		ResetTimeout: a.cfg.Commands.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
}

func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "journal",
			Check: func(ctx context.Context) error {
				_, err := a.store.Recent(ctx, 1)
				return err
			},
		},
		{
			Name: "stt",
			Check: func(context.Context) error {
				if a.sttBreaker.State() == resilience.StateOpen {
					return resilience.ErrCircuitOpen
				}
				return nil
			},
		},
	}
}

// Run starts capture, the pipeline and, when configured, the diagnostics
// server, and blocks until ctx is cancelled, the input ends, an exit command
// is executed or capture fails. A capture failure is returned as an
// [audio.CaptureError]; the other cases return nil.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.stop = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer a.queue.Close()
		err := a.providers.Source.Stream(gctx, a.push)
		if err != nil && gctx.Err() == nil {
			slog.Error("audio capture failed", "err", err)
			return err
		}
		slog.Debug("audio capture ended")
		return nil
	})

	g.Go(func() error {
		defer cancel()
		return a.orch.Run(gctx)
	})

	if a.diag != nil {
		slog.Info("diagnostics listening", "addr", a.diag.Addr())
		g.Go(func() error { return a.diag.Run(gctx) })
	}

	return g.Wait()
}

func (a *App) push(f audio.AudioFrame) {
	f = a.norm.Normalize(f)
	if f.Data == nil {
		return
	}
	a.queue.Push(f)
}

// requestStop ends Run. It is the pipeline's exit handler.
func (a *App) requestStop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		slog.Info("exit command received, stopping")
		a.stop()
	}
}

// diagState is served on /state.
type diagState struct {
	pipeline.Snapshot
	QueuedFrames  int    `json:"queued_frames"`
	DroppedFrames uint64 `json:"dropped_frames"`
}

func (a *App) diagState() diagState {
	return diagState{
		Snapshot:      a.orch.Snapshot(),
		QueuedFrames:  a.queue.Len(),
		DroppedFrames: a.queue.Dropped(),
	}
}

// Orchestrator returns the pipeline orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orch }

// Journal returns the command journal store.
func (a *App) Journal() journal.Store { return a.store }

// DiagnosticsAddr returns the address the diagnostics server listens on, or
// "" when it is disabled.
func (a *App) DiagnosticsAddr() string {
	if a.diag == nil {
		return ""
	}
	return a.diag.Addr()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Debug("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Debug("shutdown complete")
	})
	return shutdownErr
}
