package spotter_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/dawvox/pkg/provider/stt/mock"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword/spotter"
)

var phrases = []wakeword.Phrase{
	{ID: "hey-logic", Text: "Hey Logic", Role: wakeword.RoleWake},
	{ID: "computer", Text: "Computer", Role: wakeword.RoleWake},
	{ID: "cancel", Text: "abbrechen", Language: "de", Role: wakeword.RoleCancel},
}

// loudFrame returns 100ms of a loud square wave at 16 kHz.
func loudFrame(ts time.Duration) audio.AudioFrame {
	s := make([]int16, 1600)
	for i := range s {
		if (i/16)%2 == 0 {
			s[i] = 8000
		} else {
			s[i] = -8000
		}
	}
	return audio.AudioFrame{Data: audio.EncodeInt16(s), SampleRate: 16000, Channels: 1, Timestamp: ts}
}

func quietFrame(ts time.Duration) audio.AudioFrame {
	return audio.AudioFrame{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1, Timestamp: ts}
}

// feedUntil scores frames until a non-empty result arrives or the deadline passes.
func feedUntil(t *testing.T, s *spotter.Spotter, frame func(time.Duration) audio.AudioFrame) []wakeword.PhraseScore {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var ts time.Duration
	for time.Now().Before(deadline) {
		scores, err := s.Score(frame(ts))
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if len(scores) > 0 {
			return scores
		}
		ts += 100 * time.Millisecond
		time.Sleep(2 * time.Millisecond)
	}
	return nil
}

func scoreOf(scores []wakeword.PhraseScore, id string) float64 {
	for _, s := range scores {
		if s.PhraseID == id {
			return s.Value
		}
	}
	return 0
}

func TestSpotter_DetectsPhrase(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Provider{Result: stt.Result{Text: "Hey, Logik!", Language: "de"}}
	s := spotter.New(engine, phrases, spotter.WithLanguage("de"))
	defer s.Close()

	scores := feedUntil(t, s, loudFrame)
	if got := scoreOf(scores, "hey-logic"); got < 0.9 {
		t.Errorf("hey-logic score: got %v, want >= 0.9 (all: %v)", got, scores)
	}
	if got := scoreOf(scores, "computer"); got >= 0.8 {
		t.Errorf("computer score: got %v, want < 0.8", got)
	}

	req := engine.Calls()[0]
	if req.SampleRate != 16000 || req.Language != "de" || len(req.PCM) == 0 {
		t.Errorf("unexpected request: rate=%d lang=%q bytes=%d", req.SampleRate, req.Language, len(req.PCM))
	}
	if max := 2 * 16000 * 16 / 10; len(req.PCM) > max {
		t.Errorf("window too large: %d bytes, want <= %d", len(req.PCM), max)
	}
}

func TestSpotter_SilenceSkipsEngine(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Provider{Result: stt.Result{Text: "computer"}}
	s := spotter.New(engine, phrases)
	defer s.Close()

	for i := range 30 {
		if scores, _ := s.Score(quietFrame(time.Duration(i) * 100 * time.Millisecond)); len(scores) > 0 {
			t.Fatalf("silence produced scores: %v", scores)
		}
	}
	if n := engine.CallCount(); n != 0 {
		t.Errorf("engine called %d times during silence, want 0", n)
	}
}

func TestSpotter_LanguageFilter(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Provider{Result: stt.Result{Text: "abbrechen", Language: "en"}}
	s := spotter.New(engine, phrases)
	defer s.Close()

	deadline := time.Now().Add(300 * time.Millisecond)
	var ts time.Duration
	for time.Now().Before(deadline) {
		scores, _ := s.Score(loudFrame(ts))
		if scoreOf(scores, "cancel") > 0 {
			t.Fatal("German-only phrase matched an English transcript")
		}
		ts += 100 * time.Millisecond
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSpotter_EngineErrorIsQuiet(t *testing.T) {
	t.Parallel()

	engine := &sttmock.Provider{Err: errors.New("engine down")}
	s := spotter.New(engine, phrases)

	for i := range 20 {
		if _, err := s.Score(loudFrame(time.Duration(i) * 100 * time.Millisecond)); err != nil {
			t.Fatalf("Score returned engine error: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
