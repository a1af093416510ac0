// Package journal records the outcome of every dispatched voice command.
//
// Entries are written asynchronously through a [Writer] so persistence never
// delays the pipeline. Stores are append-only; [Store.Recent] serves the
// history command and the diagnostics endpoint.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by stores and writers after Close.
var ErrClosed = errors.New("journal: closed")

// Entry is one dispatch outcome.
type Entry struct {
	// ID uniquely identifies the entry across runs.
	ID string `json:"id" msgpack:"id"`

	// RunID identifies the process run that produced the entry. Utterance IDs
	// restart with every run, so (RunID, UtteranceID) is unique.
	RunID       string `json:"run_id" msgpack:"run_id"`
	UtteranceID uint64 `json:"utterance_id" msgpack:"utterance_id"`

	At time.Time `json:"at" msgpack:"at"`

	Transcript string  `json:"transcript" msgpack:"transcript"`
	Language   string  `json:"language,omitempty" msgpack:"language"`
	Intent     string  `json:"intent" msgpack:"intent"`
	Params     string  `json:"params,omitempty" msgpack:"params"`
	Match      string  `json:"match,omitempty" msgpack:"match"`
	Confidence float64 `json:"confidence" msgpack:"confidence"`

	Action   string `json:"action,omitempty" msgpack:"action"`
	Mode     string `json:"mode" msgpack:"mode"`
	Status   string `json:"status" msgpack:"status"`
	Error    string `json:"error,omitempty" msgpack:"error"`
	Feedback string `json:"feedback,omitempty" msgpack:"feedback"`

	Duration time.Duration `json:"duration_ns" msgpack:"duration_ns"`
}

// Store persists entries.
type Store interface {
	// Append stores e.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)

	Close() error
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Writer appends entries to a Store on a background goroutine. Record never
// blocks; when the buffer is full the entry is dropped and logged.
type Writer struct {
	store Store
	runID string
	queue chan Entry

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewWriter starts a writer with room for buffer pending entries.
func NewWriter(store Store, runID string, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 64
	}
	w := &Writer{
		store: store,
		runID: runID,
		queue: make(chan Entry, buffer),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// RunID returns the run identifier stamped on every entry.
func (w *Writer) RunID() string { return w.runID }

// Record queues e. Missing ID, RunID and At are filled in.
func (w *Writer) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RunID == "" {
		e.RunID = w.runID
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		slog.Warn("journal: record after close", "utterance_id", e.UtteranceID, "intent", e.Intent)
		return
	}
	select {
	case w.queue <- e:
	default:
		slog.Warn("journal: buffer full, dropping entry", "utterance_id", e.UtteranceID, "intent", e.Intent)
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.store.Append(ctx, e); err != nil {
			slog.Error("journal: append failed", "utterance_id", e.UtteranceID, "err", err)
		}
		cancel()
	}
}

// Close flushes pending entries until ctx ends. It does not close the store.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
