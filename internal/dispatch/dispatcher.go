// Package dispatch turns resolved intents into executed (or simulated)
// commands.
//
// Each intent is bound to the action template and feedback phrase of its
// grammar entry. In dry-run mode the action is only logged; in live mode it
// is handed to the executor with a bounded timeout and never retried, since
// repeating a physical action (toggling a mute, say) is worse than failing.
// Dispatch is keyed by utterance ID: a second dispatch for an ID that was
// already dispatched, or superseded by a newer one, does nothing.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/internal/journal"
	"github.com/MrWong99/dawvox/internal/observe"
	"github.com/MrWong99/dawvox/internal/resilience"
	"github.com/MrWong99/dawvox/pkg/provider/executor"
	"github.com/MrWong99/dawvox/pkg/types"
)

var (
	// ErrAction wraps executor failures and timeouts.
	ErrAction = errors.New("dispatch: action failed")

	// ErrUnknownAction is returned for intents without an action the
	// dispatcher or executor can perform.
	ErrUnknownAction = errors.New("dispatch: unknown action")
)

// Built-in action kinds, handled without the executor.
const (
	KindLog  = "log"
	KindExit = "exit"
	KindHelp = "help"
	KindTime = "time"
)

// Mode selects whether actions are executed.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeLive   Mode = "live"
)

// ParseMode parses "dry-run" or "live".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDryRun, "dryrun", "test":
		return ModeDryRun, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("dispatch: unknown mode %q", s)
	}
}

// Status is the outcome of a dispatch.
type Status string

const (
	StatusExecuted      Status = "executed"
	StatusSimulated     Status = "simulated"
	StatusFailed        Status = "failed"
	StatusUnknownAction Status = "unknown_action"
	StatusDuplicate     Status = "duplicate"
)

// Result describes one dispatch.
type Result struct {
	UtteranceID uint64

	// Command is the bound command. It is zero when the intent had no
	// usable action.
	Command types.Command

	Mode   Mode
	Status Status

	// Feedback is the phrase to emit. Empty for duplicates.
	Feedback     string
	FeedbackKind feedback.Kind

	// Err is nil for executed and simulated commands and wraps ErrAction or
	// ErrUnknownAction otherwise.
	Err error

	// Exit is set when a live exit command asked for process shutdown.
	Exit bool

	Duration time.Duration
}

// Recorder receives an entry per dispatch. Record must not block.
type Recorder interface {
	Record(journal.Entry)
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithExecutor sets the executor used in live mode.
func WithExecutor(e executor.Executor) Option {
	return func(d *Dispatcher) { d.exec = e }
}

// WithCatalog sets the phrase catalogue for built-in and failure phrases.
func WithCatalog(c *feedback.Catalog) Option {
	return func(d *Dispatcher) { d.catalog = c }
}

// WithTimeout bounds a single executor call. Default 5s.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithBreaker guards the executor with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

// WithMetrics records dispatch counters and latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithJournal records every dispatch outcome.
func WithJournal(r Recorder) Option {
	return func(d *Dispatcher) { d.journal = r }
}

// WithClock overrides time.Now for the time built-in.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher binds and runs commands. Safe for concurrent use.
type Dispatcher struct {
	mode      Mode
	exec      executor.Executor
	templates map[string][]template
	intents   []string
	catalog   *feedback.Catalog
	timeout   time.Duration
	breaker   *resilience.Breaker
	metrics   *observe.Metrics
	journal   Recorder
	now       func() time.Time

	mu      sync.Mutex
	claimed bool
	last    uint64
}

// New builds a dispatcher for the action mapping in specs.
func New(specs []intent.Spec, mode Mode, opts ...Option) (*Dispatcher, error) {
	if mode != ModeDryRun && mode != ModeLive {
		return nil, fmt.Errorf("dispatch: unknown mode %q", mode)
	}
	d := &Dispatcher{
		mode:      mode,
		templates: make(map[string][]template),
		timeout:   5 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.mode == ModeLive && d.exec == nil {
		return nil, errors.New("dispatch: live mode needs an executor")
	}
	if d.catalog == nil {
		c, err := feedback.NewCatalog("de", nil)
		if err != nil {
			return nil, err
		}
		d.catalog = c
	}
	for _, s := range specs {
		if _, ok := d.templates[s.Intent]; !ok {
			d.intents = append(d.intents, s.Intent)
		}
		d.templates[s.Intent] = append(d.templates[s.Intent], newTemplate(s))
	}
	return d, nil
}

// Mode returns the execution mode.
func (d *Dispatcher) Mode() Mode { return d.mode }

// claim marks id as dispatched. It reports false for an ID at or below the
// highest one seen.
func (d *Dispatcher) claim(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed && id <= d.last {
		return false
	}
	d.claimed, d.last = true, id
	return true
}

// Dispatch binds in to its command and executes or simulates it. Failures
// are reported in the result, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, in types.Intent) Result {
	id := in.UtteranceID()
	res := Result{UtteranceID: id, Mode: d.mode}
	if !d.claim(id) {
		res.Status = StatusDuplicate
		observe.Logger(ctx).Warn("dispatch: duplicate ignored", "utterance_id", id, "intent", in.Name)
		if d.metrics != nil {
			d.metrics.RecordDispatch(ctx, in.Name, string(d.mode), string(StatusDuplicate))
		}
		return res
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("utterance.id", int64(id)),
		attribute.String("intent", in.Name),
		attribute.String("mode", string(d.mode)),
	)

	start := time.Now()
	d.run(ctx, in, &res)
	res.Duration = time.Since(start)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	if d.metrics != nil {
		d.metrics.RecordStage(ctx, observe.StageDispatch, res.Duration.Seconds())
		d.metrics.RecordDispatch(ctx, in.Name, string(d.mode), string(res.Status))
	}
	d.log(ctx, in, res)
	d.record(in, res)
	return res
}

func (d *Dispatcher) run(ctx context.Context, in types.Intent, res *Result) {
	t, ok := pick(d.templates[in.Name], in.Transcript.Language)
	if !ok {
		d.fail(res, StatusUnknownAction, fmt.Errorf("%w: no action for intent %q", ErrUnknownAction, in.Name))
		return
	}
	action, err := t.bindAction(in.Params)
	if err != nil {
		d.fail(res, StatusFailed, fmt.Errorf("%w: %w", ErrAction, err))
		return
	}
	res.Command = types.Command{Intent: in, Action: action, Feedback: t.bindFeedback(in.Params)}

	phrase := res.Command.Feedback
	switch action.Kind {
	case KindLog:
	case KindExit:
		if phrase == "" {
			phrase = d.catalog.Phrase(feedback.KindGoodbye)
		}
		res.Exit = d.mode == ModeLive
	case KindHelp:
		phrase = d.catalog.Phrase(feedback.KindHelp) + ": " + strings.Join(d.intents, ", ")
	case KindTime:
		phrase = d.catalog.Phrase(feedback.KindTime) + " " + d.now().Format("15:04")
	case executor.KindKeyCommand, executor.KindAppleScript:
		if d.mode == ModeLive {
			if err := d.execute(ctx, action); err != nil {
				if errors.Is(err, executor.ErrUnsupported) {
					d.fail(res, StatusUnknownAction, fmt.Errorf("%w: %w", ErrUnknownAction, err))
				} else {
					d.fail(res, StatusFailed, err)
				}
				return
			}
		}
	default:
		d.fail(res, StatusUnknownAction, fmt.Errorf("%w: kind %q", ErrUnknownAction, action.Kind))
		return
	}

	if phrase == "" {
		phrase = d.catalog.Phrase(feedback.KindDone)
	}
	res.FeedbackKind = feedback.KindSuccess
	if d.mode == ModeDryRun {
		res.Status = StatusSimulated
		res.Feedback = feedback.DryRunPrefix + phrase
		return
	}
	res.Status = StatusExecuted
	res.Feedback = phrase
}

func (d *Dispatcher) execute(ctx context.Context, a types.Action) error {
	var timedOut bool
	call := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		err := d.exec.Execute(tctx, a)
		if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			timedOut = true
		}
		return err
	}
	var err error
	if d.breaker != nil {
		err = d.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, executor.ErrUnsupported) {
		return err
	}
	kind := "executor"
	switch {
	case timedOut:
		kind = "timeout"
		err = fmt.Errorf("%w: timed out after %v: %w", ErrAction, d.timeout, err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		kind = "circuit_open"
		err = fmt.Errorf("%w: %w", ErrAction, err)
	default:
		err = fmt.Errorf("%w: %w", ErrAction, err)
	}
	if d.metrics != nil {
		d.metrics.RecordProviderError(ctx, "executor", kind)
	}
	return err
}

func (d *Dispatcher) fail(res *Result, status Status, err error) {
	res.Status = status
	res.Err = err
	res.FeedbackKind = feedback.KindActionFailed
	if status == StatusUnknownAction {
		res.FeedbackKind = feedback.KindUnknownAction
	}
	res.Feedback = d.catalog.Phrase(res.FeedbackKind)
}

func (d *Dispatcher) log(ctx context.Context, in types.Intent, res Result) {
	l := observe.Logger(ctx).With(
		"utterance_id", res.UtteranceID,
		"intent", in.Name,
		"params", in.Params.Format(),
		"mode", string(res.Mode),
		"status", string(res.Status),
		"action", res.Command.Action.String(),
	)
	switch {
	case res.Err != nil:
		l.Warn("dispatch failed", "err", res.Err)
	case res.Mode == ModeDryRun:
		l.Info(feedback.DryRunPrefix + "dispatch simulated")
	default:
		l.Info("dispatched", "elapsed", res.Duration)
	}
}

func (d *Dispatcher) record(in types.Intent, res Result) {
	if d.journal == nil {
		return
	}
	e := journal.Entry{
		UtteranceID: res.UtteranceID,
		Transcript:  in.Transcript.Text,
		Language:    in.Transcript.Language,
		Intent:      in.Name,
		Params:      in.Params.Format(),
		Match:       in.Match.String(),
		Confidence:  in.Confidence,
		Action:      res.Command.Action.String(),
		Mode:        string(res.Mode),
		Status:      string(res.Status),
		Feedback:    res.Feedback,
		Duration:    res.Duration,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	d.journal.Record(e)
}
