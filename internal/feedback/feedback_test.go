package feedback_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/pkg/provider/tts/mock"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lang     string
		kind     feedback.Kind
		want     string
		wantLang string
	}{
		{lang: "de", kind: feedback.KindUnrecognized, want: "Befehl nicht verstanden", wantLang: "de"},
		{lang: "de-AT", kind: feedback.KindNothingHeard, want: "Nichts gehört", wantLang: "de"},
		{lang: "en", kind: feedback.KindTimeout, want: "Timed out", wantLang: "en"},
		{lang: "fr", kind: feedback.KindSTTFailure, want: "Fehler bei der Spracherkennung", wantLang: "de"},
		{lang: "de", kind: feedback.KindSuccess, want: "", wantLang: "de"},
	}
	for _, tc := range tests {
		t.Run(tc.lang+"/"+string(tc.kind), func(t *testing.T) {
			t.Parallel()
			c, err := feedback.NewCatalog(tc.lang, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.Phrase(tc.kind); got != tc.want {
				t.Errorf("Phrase = %q, want %q", got, tc.want)
			}
			if c.Language() != tc.wantLang {
				t.Errorf("Language = %q, want %q", c.Language(), tc.wantLang)
			}
		})
	}
}

func TestCatalog_Overrides(t *testing.T) {
	t.Parallel()

	c, err := feedback.NewCatalog("de", map[string]string{"cancelled": "Okay, vergessen"})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Phrase(feedback.KindCancelled); got != "Okay, vergessen" {
		t.Errorf("override not applied: %q", got)
	}

	_, err = feedback.NewCatalog("de", map[string]string{"bogus": "x", "timeout": " "})
	if !errors.Is(err, feedback.ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestCatalog_EveryKindInEveryLanguage(t *testing.T) {
	t.Parallel()
	for _, lang := range feedback.Languages() {
		c, err := feedback.NewCatalog(lang, nil)
		if err != nil {
			t.Fatal(err)
		}
		for _, k := range feedback.Kinds() {
			if c.Phrase(k) == "" {
				t.Errorf("%s: no phrase for %s", lang, k)
			}
		}
	}
}

func TestEmitter_Sequential(t *testing.T) {
	t.Parallel()

	sink := &mock.Provider{Delay: 10 * time.Millisecond}
	e := feedback.NewEmitter(sink)

	want := []string{"eins", "zwei", "drei"}
	for i, p := range want {
		if err := e.Emit(feedback.Message{UtteranceID: uint64(i + 1), Kind: feedback.KindSuccess, Text: p}); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := sink.Phrases(); !slices.Equal(got, want) {
		t.Errorf("phrases = %v, want %v", got, want)
	}
	if sink.Overlapped() {
		t.Error("phrases overlapped")
	}
	if err := e.Emit(feedback.Message{Text: "spät"}); !errors.Is(err, feedback.ErrClosed) {
		t.Errorf("Emit after Close = %v, want ErrClosed", err)
	}
}

func TestEmitter_SinkErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	sink := &mock.Provider{Err: errors.New("no audio device")}
	e := feedback.NewEmitter(sink)
	_ = e.Emit(feedback.Message{Text: "a"})
	_ = e.Emit(feedback.Message{Text: "b"})
	if err := e.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := sink.Phrases(); len(got) != 2 {
		t.Errorf("phrases = %v, want both attempted", got)
	}
}

func TestEmitter_FullQueueDrops(t *testing.T) {
	t.Parallel()

	sink := &mock.Provider{Delay: 200 * time.Millisecond}
	e := feedback.NewEmitter(sink, feedback.WithQueueSize(1))
	for range 5 {
		if err := e.Emit(feedback.Message{Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(sink.Phrases()); n < 1 || n > 2 {
		t.Errorf("emitted %d phrases, want 1 or 2 with a queue of one", n)
	}
}

func TestEmitter_CloseDeadlineCancelsSink(t *testing.T) {
	t.Parallel()

	sink := &mock.Provider{Delay: time.Minute}
	e := feedback.NewEmitter(sink, feedback.WithTimeout(time.Hour))
	_ = e.Emit(feedback.Message{Text: "lang"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := e.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want deadline exceeded", err)
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()
	if err := (feedback.LogSink{}).Emit(context.Background(), "hallo"); err != nil {
		t.Fatal(err)
	}
}
