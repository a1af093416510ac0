package feedback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/internal/observe"
	"github.com/MrWong99/dawvox/pkg/provider/tts"
)

// DryRunPrefix marks feedback for commands that were simulated, not executed.
const DryRunPrefix = "[TEST] "

// ErrClosed is returned by [Emitter.Emit] after [Emitter.Close].
var ErrClosed = errors.New("feedback: emitter closed")

// Message is one phrase queued for output.
type Message struct {
	UtteranceID uint64
	Kind        Kind
	Text        string
}

// Emitter delivers messages to a sink sequentially on its own goroutine.
// Emit never blocks: when the queue is full the new message is dropped.
type Emitter struct {
	sink    tts.Provider
	timeout time.Duration
	metrics *observe.Metrics

	queue chan Message

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// EmitterOption configures an [Emitter].
type EmitterOption func(*Emitter)

// WithTimeout bounds a single sink call. Default 3s.
func WithTimeout(d time.Duration) EmitterOption {
	return func(e *Emitter) { e.timeout = d }
}

// WithQueueSize sets how many phrases may wait for output. Default 8.
func WithQueueSize(n int) EmitterOption {
	return func(e *Emitter) {
		if n > 0 {
			e.queue = make(chan Message, n)
		}
	}
}

// WithMetrics records emission outcomes.
func WithMetrics(m *observe.Metrics) EmitterOption {
	return func(e *Emitter) { e.metrics = m }
}

// NewEmitter starts an emitter writing to sink. Call Close to stop it.
func NewEmitter(sink tts.Provider, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		sink:    sink,
		timeout: 3 * time.Second,
		queue:   make(chan Message, 8),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.run(ctx)
	return e
}

// Emit queues m for output.
func (e *Emitter) Emit(m Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.queue <- m:
		return nil
	default:
		slog.Warn("feedback: queue full, dropping phrase", "utterance_id", m.UtteranceID, "kind", m.Kind, "phrase", m.Text)
		e.record(m.Kind, "dropped")
		return nil
	}
}

// Close stops accepting messages, lets queued phrases play out until ctx
// ends and then stops the output goroutine.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		e.cancel()
		<-e.done
		return ctx.Err()
	}
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.done)
	defer e.cancel()
	for m := range e.queue {
		if ctx.Err() != nil {
			e.record(m.Kind, "dropped")
			continue
		}
		e.deliver(ctx, m)
	}
}

func (e *Emitter) deliver(ctx context.Context, m Message) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := e.sink.Emit(ctx, m.Text)
	if e.metrics != nil {
		e.metrics.RecordStage(ctx, observe.StageFeedback, time.Since(start).Seconds())
	}
	if err != nil {
		slog.Warn("feedback: emit failed", "utterance_id", m.UtteranceID, "kind", m.Kind, "phrase", m.Text, "err", err)
		e.record(m.Kind, "error")
		return
	}
	slog.Debug("feedback: emitted", "utterance_id", m.UtteranceID, "kind", m.Kind, "phrase", m.Text)
	e.record(m.Kind, "ok")
}

func (e *Emitter) record(k Kind, status string) {
	if e.metrics != nil {
		e.metrics.RecordFeedback(context.Background(), string(k), status)
	}
}

// LogSink is a tts.Provider that only logs phrases. It is used when spoken
// feedback is disabled.
type LogSink struct {
	Logger *slog.Logger
}

var _ tts.Provider = LogSink{}

// Emit logs phrase at info level.
func (s LogSink) Emit(_ context.Context, phrase string) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("feedback", "phrase", phrase)
	return nil
}
