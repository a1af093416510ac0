// Package spotter implements a wakeword.Classifier on top of an offline
// speech-to-text engine. It keeps a rolling window of recent audio and, while
// the room is not silent, periodically transcribes that window in the
// background and scores the text against the configured phrases with
// phonetic matching.
//
// Scores are reported on the first Score call after a check completes, so the
// frame path never waits for the engine. After reporting, the window is
// cleared so the same audio cannot trigger twice.
package spotter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/internal/phonetic"
	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
)

const (
	defaultWindow  = 1600 * time.Millisecond
	defaultHop     = 400 * time.Millisecond
	defaultMinRMS  = 0.01
	defaultTimeout = 2 * time.Second
)

// Option is a functional option for [Spotter].
type Option func(*Spotter)

// WithWindow sets how much recent audio each check transcribes.
func WithWindow(d time.Duration) Option {
	return func(s *Spotter) { s.window = d }
}

// WithHop sets the minimum audio time between two checks.
func WithHop(d time.Duration) Option {
	return func(s *Spotter) { s.hop = d }
}

// WithMinRMS sets the energy below which the latest hop is considered silent
// and no check is started.
func WithMinRMS(v float64) Option {
	return func(s *Spotter) { s.minRMS = v }
}

// WithLanguage sets the language hint passed to the engine.
func WithLanguage(lang string) Option {
	return func(s *Spotter) { s.language = lang }
}

// WithTimeout bounds each background transcription.
func WithTimeout(d time.Duration) Option {
	return func(s *Spotter) { s.timeout = d }
}

type phrase struct {
	id     string
	lang   string
	tokens []string
}

// Spotter is an STT-backed wake phrase classifier.
type Spotter struct {
	engine   stt.Provider
	phrases  []phrase
	window   time.Duration
	hop      time.Duration
	minRMS   float64
	language string
	timeout  time.Duration

	// Frame-path state, touched only by Score.
	buf        []byte
	sinceCheck int

	mu       sync.Mutex
	inflight bool
	pending  []wakeword.PhraseScore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ wakeword.Classifier = (*Spotter)(nil)

// New creates a Spotter for phrases using engine for recognition.
func New(engine stt.Provider, phrases []wakeword.Phrase, opts ...Option) *Spotter {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Spotter{
		engine:  engine,
		window:  defaultWindow,
		hop:     defaultHop,
		minRMS:  defaultMinRMS,
		timeout: defaultTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(s)
	}
	for _, p := range phrases {
		lang := p.Language
		if lang == "" {
			lang = s.language
		}
		s.phrases = append(s.phrases, phrase{id: p.ID, lang: p.Language, tokens: phonetic.Tokens(p.Text, lang)})
	}
	return s
}

// Score implements wakeword.Classifier.
func (s *Spotter) Score(frame audio.AudioFrame) ([]wakeword.PhraseScore, error) {
	s.mu.Lock()
	if s.pending != nil {
		out := s.pending
		s.pending = nil
		s.mu.Unlock()
		s.buf = s.buf[:0]
		s.sinceCheck = 0
		return out, nil
	}
	busy := s.inflight
	s.mu.Unlock()

	if frame.SampleRate <= 0 || len(frame.Data) == 0 {
		return nil, nil
	}
	s.buf = append(s.buf, frame.Data...)
	if maxBytes := bytesFor(s.window, frame.SampleRate); len(s.buf) > maxBytes {
		s.buf = append(s.buf[:0], s.buf[len(s.buf)-maxBytes:]...)
	}
	s.sinceCheck += frame.Samples()

	hopSamples := int(s.hop * time.Duration(frame.SampleRate) / time.Second)
	if busy || s.sinceCheck < hopSamples {
		return nil, nil
	}
	s.sinceCheck = 0

	recent := s.buf[max(0, len(s.buf)-bytesFor(s.hop, frame.SampleRate)):]
	if audio.RMS(recent) < s.minRMS {
		return nil, nil
	}

	snapshot := append([]byte(nil), s.buf...)
	s.mu.Lock()
	s.inflight = true
	s.mu.Unlock()
	s.wg.Add(1)
	go s.check(snapshot, frame.SampleRate)
	return nil, nil
}

func (s *Spotter) check(pcm []byte, rate int) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	res, err := s.engine.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: rate, Channels: 1, Language: s.language})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = false
	if err != nil {
		if s.ctx.Err() == nil {
			slog.Debug("spotter: transcription failed", "err", err)
		}
		return
	}
	if scores := s.scoreText(res.Text, res.Language); len(scores) > 0 {
		s.pending = scores
	}
}

// scoreText returns a score for every phrase that matches text at all.
func (s *Spotter) scoreText(text, lang string) []wakeword.PhraseScore {
	if lang == "" {
		lang = s.language
	}
	spoken := phonetic.Tokens(text, lang)
	if len(spoken) == 0 {
		return nil
	}
	var out []wakeword.PhraseScore
	for _, p := range s.phrases {
		if !phonetic.LanguageMatches(p.lang, lang) {
			continue
		}
		if v := phonetic.BestWindow(spoken, p.tokens); v > 0 {
			out = append(out, wakeword.PhraseScore{PhraseID: p.id, Value: v})
		}
	}
	return out
}

// Close cancels in-flight checks and waits for them to finish.
func (s *Spotter) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func bytesFor(d time.Duration, rate int) int {
	return int(d*time.Duration(rate)/time.Second) * 2
}
