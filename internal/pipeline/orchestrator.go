// Package pipeline runs the voice command state machine.
//
// The [Orchestrator] owns the [Session] and is the only goroutine that
// changes it. It consumes frames from the bounded capture queue and moves
// each utterance through
//
//	Idle → Listening → Capturing → Transcribing → Resolving → Dispatching → Feedback → Idle
//
// with Cancelled reachable from every non-Idle state. The two blocking calls,
// transcription and action execution, run on worker goroutines that report
// back over a channel tagged with the utterance ID. A result whose ID is no
// longer the active one is dropped: cancellation works by invalidating the
// ID, never by interrupting a call in flight.
//
// Every activation ends in exactly one feedback phrase, except when a newer
// activation supersedes it (barge-in), in which case only the newer
// utterance is answered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/internal/observe"
	"github.com/MrWong99/dawvox/internal/segment"
	"github.com/MrWong99/dawvox/internal/transcribe"
	"github.com/MrWong99/dawvox/internal/wake"
	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
	"github.com/MrWong99/dawvox/pkg/types"
)

// Transcriber turns a finalised utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, u *audio.Utterance) (types.Transcript, error)
}

// Resolver maps a transcript to an intent.
type Resolver interface {
	Resolve(t types.Transcript) (types.Intent, error)
}

// Dispatcher executes or simulates an intent.
type Dispatcher interface {
	Dispatch(ctx context.Context, in types.Intent) dispatch.Result
}

// FeedbackSink queues phrases for output. Emit must not block.
type FeedbackSink interface {
	Emit(m feedback.Message) error
}

// Outcome labels how an utterance ended.
type Outcome string

const (
	OutcomeExecuted      Outcome = "executed"
	OutcomeSimulated     Outcome = "simulated"
	OutcomeUnrecognized  Outcome = "unrecognized"
	OutcomeSTTFailure    Outcome = "stt_failure"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeNothingHeard  Outcome = "nothing_heard"
	OutcomeActionFailed  Outcome = "action_failed"
	OutcomeUnknownAction Outcome = "unknown_action"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeSuperseded    Outcome = "superseded"
)

// Config wires the stages. All fields except Metrics are required.
type Config struct {
	Queue      *audio.FrameQueue
	Gate       *wake.Gate
	Segmenter  *segment.Segmenter
	STT        Transcriber
	Resolver   Resolver
	Dispatcher Dispatcher
	Feedback   FeedbackSink
	Catalog    *feedback.Catalog

	// AckOnWake emits the acknowledgement phrase on every activation.
	AckOnWake bool

	Metrics *observe.Metrics
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithObserver registers fn for every state transition. It runs on the
// orchestrator goroutine and must return quickly.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithExitHandler registers fn to be called when a live exit command was
// dispatched.
func WithExitHandler(fn func()) Option {
	return func(o *Orchestrator) { o.onExit = fn }
}

type eventKind int

const (
	evTranscript eventKind = iota
	evDispatched
)

// workerEvent is the typed result of a blocking stage.
type workerEvent struct {
	kind       eventKind
	id         uint64
	transcript types.Transcript
	err        error
	result     dispatch.Result
}

// cancelReason selects the phrase a cancellation emits.
type cancelReason int

const (
	cancelStop cancelReason = iota
	cancelSuperseded
	cancelNothingHeard
)

// Orchestrator runs the pipeline.
type Orchestrator struct {
	cfg      Config
	session  *Session
	observer func(Transition)
	onExit   func()

	events   chan workerEvent
	cancelCh chan struct{}
	workers  sync.WaitGroup

	// finalizedAt is when the current utterance's speech ended, for the
	// end-to-end latency histogram. Zero until an utterance is finalised.
	finalizedAt time.Time
	sourceDone  bool
}

// New validates cfg and returns an orchestrator with a fresh session.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if cfg.Queue == nil {
		errs = append(errs, errors.New("queue is required"))
	}
	if cfg.Gate == nil {
		errs = append(errs, errors.New("wake gate is required"))
	}
	if cfg.Segmenter == nil {
		errs = append(errs, errors.New("segmenter is required"))
	}
	if cfg.STT == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if cfg.Resolver == nil {
		errs = append(errs, errors.New("resolver is required"))
	}
	if cfg.Dispatcher == nil {
		errs = append(errs, errors.New("dispatcher is required"))
	}
	if cfg.Feedback == nil {
		errs = append(errs, errors.New("feedback sink is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Catalog == nil {
		c, err := feedback.NewCatalog("de", nil)
		if err != nil {
			return nil, err
		}
		cfg.Catalog = c
	}

	o := &Orchestrator{
		cfg:      cfg,
		events:   make(chan workerEvent, 4),
		cancelCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.session = NewSession(o.observe)
	return o, nil
}

// Snapshot returns the current state and utterance ID. Safe from any
// goroutine.
func (o *Orchestrator) Snapshot() Snapshot { return o.session.Snapshot() }

// Cancel asks the orchestrator to cancel the in-flight utterance, as if a
// cancel phrase had been spoken. It does not block.
func (o *Orchestrator) Cancel() {
	select {
	case o.cancelCh <- struct{}{}:
	default:
	}
}

// Run processes frames until ctx ends or the frame queue is closed and the
// last utterance has been answered. It returns nil in both cases.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		o.session.Teardown()
		o.workers.Wait()
	}()

	ready := o.cfg.Queue.Ready()
	for {
		select {
		case <-ctx.Done():
			if s := o.session.State(); s != Idle {
				slog.Info("pipeline: shutdown with utterance in flight", "utterance_id", o.session.ID(), "state", s)
			}
			return nil

		case <-ready:
			for {
				f, ok := o.cfg.Queue.TryPop()
				if !ok {
					break
				}
				o.handleFrame(ctx, f)
			}
			if o.cfg.Queue.Closed() && o.cfg.Queue.Len() == 0 {
				ready = nil
				o.endOfInput(ctx)
			}

		case ev := <-o.events:
			o.handleEvent(ctx, ev)

		case <-o.cancelCh:
			if o.session.State() != Idle {
				o.cancel(ctx, cancelStop)
			}
		}

		if o.sourceDone && o.session.State() == Idle {
			slog.Debug("pipeline: input ended")
			return nil
		}
	}
}

func (o *Orchestrator) handleFrame(ctx context.Context, f audio.AudioFrame) {
	act, fired, err := o.cfg.Gate.Score(f)
	if err != nil {
		slog.Debug("pipeline: wake scoring failed", "err", err)
	}
	if fired {
		o.handleActivation(ctx, act)
		return
	}

	active := o.cfg.Segmenter.Active()
	res, err := o.cfg.Segmenter.Feed(f)
	if err != nil {
		if active {
			slog.Warn("pipeline: segmentation failed", "utterance_id", o.session.ID(), "err", err)
		}
		return
	}
	switch res.Event {
	case segment.SpeechStarted:
		o.to(Capturing)
	case segment.Finalized:
		if o.session.State() == Listening {
			o.to(Capturing)
		}
		o.startTranscription(ctx, res.Utterance)
	case segment.ListenTimeout:
		o.cancel(ctx, cancelNothingHeard)
	}
}

func (o *Orchestrator) handleActivation(ctx context.Context, act wake.Activation) {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordActivation(ctx, act.PhraseID, string(act.Role))
	}
	state := o.session.State()

	if act.Role == wakeword.RoleCancel {
		if state == Idle {
			return
		}
		slog.Info("pipeline: cancel phrase", "utterance_id", o.session.ID(), "phrase", act.PhraseID, "state", state)
		o.cancel(ctx, cancelStop)
		return
	}

	if state != Idle {
		slog.Info("pipeline: barge-in", "utterance_id", o.session.ID(), "phrase", act.PhraseID, "state", state)
		o.cancel(ctx, cancelSuperseded)
	}

	id, err := o.session.Begin()
	if err != nil {
		slog.Error("pipeline: cannot start utterance", "err", err)
		return
	}
	o.finalizedAt = time.Time{}
	o.cfg.Segmenter.Begin(id, act.At)
	slog.Info("pipeline: activated", "utterance_id", id, "phrase", act.PhraseID, "score", act.Score)
	if o.cfg.AckOnWake {
		o.say(id, feedback.KindAck, o.cfg.Catalog.Phrase(feedback.KindAck))
	}
}

func (o *Orchestrator) startTranscription(ctx context.Context, u *audio.Utterance) {
	if !o.to(Transcribing) {
		return
	}
	id := u.ID
	o.finalizedAt = u.FinalizedAt
	o.spawn(ctx, func() workerEvent {
		t, err := o.cfg.STT.Transcribe(ctx, u)
		return workerEvent{kind: evTranscript, id: id, transcript: t, err: err}
	})
}

// spawn runs fn on a worker goroutine and delivers its event to the loop.
func (o *Orchestrator) spawn(ctx context.Context, fn func() workerEvent) {
	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		ev := fn()
		select {
		case o.events <- ev:
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev workerEvent) {
	expected := Transcribing
	stage := observe.StageTranscribe
	if ev.kind == evDispatched {
		expected, stage = Dispatching, observe.StageDispatch
	}
	if !o.session.IsCurrent(ev.id) || o.session.State() != expected {
		slog.Debug("pipeline: stale result dropped", "utterance_id", ev.id, "stage", stage, "active", o.session.ID())
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.RecordStale(ctx, stage)
		}
		return
	}

	switch ev.kind {
	case evTranscript:
		o.handleTranscript(ctx, ev)
	case evDispatched:
		o.handleDispatched(ctx, ev.result)
	}
}

func (o *Orchestrator) handleTranscript(ctx context.Context, ev workerEvent) {
	if ev.err != nil {
		kind, outcome := feedback.KindSTTFailure, OutcomeSTTFailure
		if errors.Is(ev.err, transcribe.ErrTimeout) {
			kind, outcome = feedback.KindTimeout, OutcomeTimeout
		}
		o.finish(ctx, outcome, kind, o.cfg.Catalog.Phrase(kind))
		return
	}
	if !o.to(Resolving) {
		return
	}

	start := time.Now()
	in, err := o.cfg.Resolver.Resolve(ev.transcript)
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordStage(ctx, observe.StageResolve, time.Since(start).Seconds())
	}
	if err != nil {
		if !errors.Is(err, intent.ErrNoMatch) {
			slog.Warn("pipeline: resolve failed", "utterance_id", ev.id, "err", err)
		}
		slog.Info("pipeline: unrecognized", "utterance_id", ev.id, "text", ev.transcript.Text)
		o.finish(ctx, OutcomeUnrecognized, feedback.KindUnrecognized, o.cfg.Catalog.Phrase(feedback.KindUnrecognized))
		return
	}

	if !o.to(Dispatching) {
		return
	}
	id := ev.id
	o.spawn(ctx, func() workerEvent {
		return workerEvent{kind: evDispatched, id: id, result: o.cfg.Dispatcher.Dispatch(ctx, in)}
	})
}

func (o *Orchestrator) handleDispatched(ctx context.Context, res dispatch.Result) {
	if res.Status == dispatch.StatusDuplicate {
		// Nothing ran and nothing is said for this ID.
		o.to(Feedback)
		o.to(Idle)
		return
	}
	var outcome Outcome
	switch res.Status {
	case dispatch.StatusExecuted:
		outcome = OutcomeExecuted
	case dispatch.StatusSimulated:
		outcome = OutcomeSimulated
	case dispatch.StatusUnknownAction:
		outcome = OutcomeUnknownAction
	default:
		outcome = OutcomeActionFailed
	}
	o.finish(ctx, outcome, res.FeedbackKind, res.Feedback)
	if res.Exit && o.onExit != nil {
		o.onExit()
	}
}

// finish emits the utterance's phrase and returns to Idle.
func (o *Orchestrator) finish(ctx context.Context, outcome Outcome, kind feedback.Kind, phrase string) {
	id := o.session.ID()
	if !o.to(Feedback) {
		return
	}
	o.say(id, kind, phrase)
	o.record(ctx, outcome)
	o.to(Idle)
}

// cancel abandons the active utterance. Results still in flight for its ID
// are dropped when they arrive.
func (o *Orchestrator) cancel(ctx context.Context, reason cancelReason) {
	id := o.session.ID()
	if o.cfg.Segmenter.Active() {
		o.cfg.Segmenter.Cancel()
	}
	if !o.to(Cancelled) {
		return
	}
	switch reason {
	case cancelStop:
		o.say(id, feedback.KindCancelled, o.cfg.Catalog.Phrase(feedback.KindCancelled))
		o.record(ctx, OutcomeCancelled)
	case cancelNothingHeard:
		o.say(id, feedback.KindNothingHeard, o.cfg.Catalog.Phrase(feedback.KindNothingHeard))
		o.record(ctx, OutcomeNothingHeard)
	case cancelSuperseded:
		o.record(ctx, OutcomeSuperseded)
	}
	o.to(Idle)
}

// endOfInput answers the utterance still being captured when the frame
// source ends.
func (o *Orchestrator) endOfInput(ctx context.Context) {
	o.sourceDone = true
	switch o.session.State() {
	case Listening:
		o.cancel(ctx, cancelNothingHeard)
	case Capturing:
		if u := o.cfg.Segmenter.Flush(); u != nil {
			o.startTranscription(ctx, u)
			return
		}
		o.cancel(ctx, cancelNothingHeard)
	}
}

func (o *Orchestrator) say(id uint64, kind feedback.Kind, phrase string) {
	if phrase == "" {
		return
	}
	if err := o.cfg.Feedback.Emit(feedback.Message{UtteranceID: id, Kind: kind, Text: phrase}); err != nil {
		slog.Warn("pipeline: feedback not queued", "utterance_id", id, "err", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, outcome Outcome) {
	slog.Debug("pipeline: utterance done", "utterance_id", o.session.ID(), "outcome", outcome)
	if o.cfg.Metrics == nil {
		return
	}
	o.cfg.Metrics.RecordOutcome(ctx, string(outcome))
	if !o.finalizedAt.IsZero() && outcome != OutcomeSuperseded {
		o.cfg.Metrics.CommandLatency.Record(ctx, time.Since(o.finalizedAt).Seconds())
	}
}

// to performs a transition. An invalid one is a bug: it is logged and the
// session is reset to Idle so the pipeline keeps listening.
func (o *Orchestrator) to(next State) bool {
	if err := o.session.To(next); err != nil {
		slog.Error("pipeline: state machine error", "err", err)
		if o.cfg.Segmenter.Active() {
			o.cfg.Segmenter.Cancel()
		}
		o.session.Reset()
		return false
	}
	return true
}

func (o *Orchestrator) observe(t Transition) {
	slog.Debug("pipeline: transition", "utterance_id", t.UtteranceID, "from", t.From.String(), "to", t.To.String())
	if o.observer != nil {
		o.observer(t)
	}
}
