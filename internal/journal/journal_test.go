package journal_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/internal/journal"
)

func entry(id uint64, intent string) journal.Entry {
	return journal.Entry{
		UtteranceID: id,
		Intent:      intent,
		Mode:        "dry-run",
		Status:      "simulated",
		At:          time.Date(2026, 3, 1, 12, 0, int(id), 0, time.UTC),
	}
}

func testStore(t *testing.T, s journal.Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty store returned %d entries", len(got))
	}

	for i, name := range []string{"track_mute", "undo", "transport_play"} {
		e := entry(uint64(i+1), name)
		e.ID = name
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err = s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Intent != "transport_play" || got[1].Intent != "undo" {
		t.Fatalf("Recent(2) = %+v, want newest first", got)
	}

	all, err := s.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[2].UtteranceID != 1 {
		t.Errorf("Recent(0) = %+v", all)
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()
	testStore(t, journal.NewMemory(8))
}

func TestMemory_Wraps(t *testing.T) {
	t.Parallel()
	m := journal.NewMemory(2)
	ctx := context.Background()
	for i := range 5 {
		_ = m.Append(ctx, entry(uint64(i+1), "x"))
	}
	got, _ := m.Recent(ctx, 10)
	if len(got) != 2 || got[0].UtteranceID != 5 || got[1].UtteranceID != 4 {
		t.Errorf("Recent = %+v, want utterances 5 and 4", got)
	}
	_ = m.Close()
	if err := m.Append(ctx, entry(6, "x")); err != journal.ErrClosed {
		t.Errorf("Append after Close = %v", err)
	}
}

func TestFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	testStore(t, journal.NewFile(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(splitLines(raw)); n != 3 {
		t.Errorf("file has %d lines, want 3", n)
	}
}

func TestFile_SkipsMalformedLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := journal.NewFile(path)
	_ = f.Append(context.Background(), entry(1, "undo"))
	got, err := f.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Intent != "undo" {
		t.Errorf("Recent = %+v", got)
	}
}

func TestWriter(t *testing.T) {
	t.Parallel()

	store := journal.NewMemory(16)
	w := journal.NewWriter(store, "run-1", 16)
	w.Record(journal.Entry{UtteranceID: 1, Intent: "undo"})
	w.Record(journal.Entry{UtteranceID: 2, Intent: "redo", RunID: "other"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, _ := store.Recent(context.Background(), 0)
	if len(got) != 2 {
		t.Fatalf("stored %d entries, want 2", len(got))
	}
	first := got[1]
	if first.ID == "" || first.RunID != "run-1" || first.At.IsZero() {
		t.Errorf("defaults not filled: %+v", first)
	}
	if got[0].RunID != "other" {
		t.Errorf("explicit run id overwritten: %+v", got[0])
	}

	// Recording after Close is a logged no-op.
	w.Record(journal.Entry{UtteranceID: 3})
}

func TestNewRunID(t *testing.T) {
	t.Parallel()
	a, b := journal.NewRunID(), journal.NewRunID()
	if a == "" || a == b {
		t.Errorf("run ids %q and %q", a, b)
	}
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	return out
}
