package transcribe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/internal/resilience"
	"github.com/MrWong99/dawvox/internal/transcribe"
	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/dawvox/pkg/provider/stt/mock"
)

var cfg = transcribe.Config{
	Language:   "de",
	Budget:     500 * time.Millisecond,
	MinTimeout: 50 * time.Millisecond,
	MaxTimeout: time.Second,
}

func utterance(id uint64) *audio.Utterance {
	frames := make([]audio.AudioFrame, 10)
	for i := range frames {
		frames[i] = audio.AudioFrame{Data: make([]byte, 1024), SampleRate: 16000, Channels: 1, Timestamp: time.Duration(i) * 32 * time.Millisecond}
	}
	return &audio.Utterance{ID: id, Frames: frames, Start: 0, End: 320 * time.Millisecond, Reason: audio.EndSilence, FinalizedAt: time.Now()}
}

func newAdapter(t *testing.T, p stt.Provider, opts ...transcribe.Option) *transcribe.Adapter {
	t.Helper()
	a, err := transcribe.New(p, cfg, opts...)
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	return a
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Result: stt.Result{Text: "  Spur 3 stumm ", Confidence: 0.82}}
	a := newAdapter(t, p)

	got, err := a.Transcribe(context.Background(), utterance(5))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "Spur 3 stumm" || got.Language != "de" || got.UtteranceID != 5 || got.Confidence != 0.82 {
		t.Errorf("unexpected transcript: %+v", got)
	}
	if got.Duration != 320*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}

	req := p.Calls()[0]
	if req.SampleRate != 16000 || req.Language != "de" || len(req.PCM) != 10*1024 {
		t.Errorf("unexpected request: rate=%d lang=%q bytes=%d", req.SampleRate, req.Language, len(req.PCM))
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Delay: 5 * time.Second}
	a := newAdapter(t, p)

	start := time.Now()
	_, err := a.Transcribe(context.Background(), utterance(1))
	elapsed := time.Since(start)

	if !errors.Is(err, transcribe.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if elapsed > cfg.Budget+200*time.Millisecond {
		t.Errorf("returned after %v, want within the budget plus overhead", elapsed)
	}
}

func TestTranscribe_EngineError(t *testing.T) {
	t.Parallel()

	boom := errors.New("model not loaded")
	a := newAdapter(t, &sttmock.Provider{Err: boom})

	_, err := a.Transcribe(context.Background(), utterance(1))
	if !errors.Is(err, transcribe.ErrEngine) || !errors.Is(err, boom) {
		t.Fatalf("got %v, want ErrEngine wrapping %v", err, boom)
	}
	if errors.Is(err, transcribe.ErrTimeout) {
		t.Error("engine error classified as timeout")
	}
}

func TestTranscribe_EmptyUtterance(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	a := newAdapter(t, p)
	if _, err := a.Transcribe(context.Background(), &audio.Utterance{ID: 1}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("got %v, want ErrEmptyAudio", err)
	}
	if p.CallCount() != 0 {
		t.Error("engine called for empty utterance")
	}
}

func TestTranscribe_CallerCancel(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Gate: make(chan struct{})}
	br := resilience.New(resilience.Config{Name: "stt", MaxFailures: 1})
	a := newAdapter(t, p, transcribe.WithBreaker(br))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Transcribe(ctx, utterance(5))
		done <- err
	}()
	for p.CallCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if errors.Is(err, transcribe.ErrEngine) || errors.Is(err, transcribe.ErrTimeout) {
		t.Error("superseded call reported as a failure")
	}
	if br.State() != resilience.StateClosed {
		t.Error("cancellation tripped the breaker")
	}
}

func TestTranscribe_BreakerOpen(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{Err: errors.New("down")}
	br := resilience.New(resilience.Config{Name: "stt", MaxFailures: 2, ResetTimeout: time.Hour})
	a := newAdapter(t, p, transcribe.WithBreaker(br))

	for range 2 {
		a.Transcribe(context.Background(), utterance(1))
	}
	_, err := a.Transcribe(context.Background(), utterance(2))
	if !errors.Is(err, transcribe.ErrEngine) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrEngine wrapping ErrCircuitOpen", err)
	}
	if p.CallCount() != 2 {
		t.Errorf("engine calls = %d, want 2 (third call rejected)", p.CallCount())
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{name: "fresh", elapsed: 0, want: 500 * time.Millisecond},
		{name: "partly consumed", elapsed: 120 * time.Millisecond, want: 380 * time.Millisecond},
		{name: "exhausted", elapsed: time.Second, want: 50 * time.Millisecond},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newAdapter(t, &sttmock.Provider{}, transcribe.WithClock(func() time.Time { return base.Add(tc.elapsed) }))
			u := &audio.Utterance{FinalizedAt: base}
			if got := a.Timeout(u); got != tc.want {
				t.Errorf("Timeout = %v, want %v", got, tc.want)
			}
		})
	}
}
