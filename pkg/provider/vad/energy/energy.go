// Package energy implements a pure-Go [vad.Engine] based on short-term frame
// energy. It tracks an adaptive noise floor and labels a frame as speech when
// its RMS rises far enough above that floor. The floor follows silence
// quickly and creeps up slowly during speech, so a room whose steady noise
// starts out above the floor is absorbed after a few seconds instead of
// reading as endless speech. Hysteresis between
// the speech and silence thresholds, and an aggressiveness-dependent onset
// run, keep the label from flickering on clicks and breaths.
package energy

import (
	"errors"
	"fmt"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/vad"
)

// level holds the per-aggressiveness tuning.
type level struct {
	// ratio is how far above the noise floor speech must rise.
	ratio float64
	// minRMS is the absolute RMS below which nothing counts as speech.
	minRMS float64
	// onset is the number of consecutive loud frames that start a speech run.
	onset int
}

var levels = [4]level{
	{ratio: 2.0, minRMS: 0.004, onset: 1},
	{ratio: 2.5, minRMS: 0.006, onset: 1},
	{ratio: 3.0, minRMS: 0.008, onset: 2},
	{ratio: 4.0, minRMS: 0.012, onset: 3},
}

const (
	// floorAlpha is the smoothing factor of the noise floor EMA in silence.
	floorAlpha = 0.05
	// speechFloorAlpha is the much slower factor applied during speech.
	speechFloorAlpha = 0.002
	// initialFloor seeds the noise floor before any silence was observed.
	initialFloor = 0.003
)

// Engine creates energy-based VAD sessions.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("energy vad: aggressiveness %d out of range [0, 3]", cfg.Aggressiveness)
	}
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold >= 1 {
		cfg.SpeechThreshold = 0.5
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		cfg.SilenceThreshold = cfg.SpeechThreshold
	}
	return &session{cfg: cfg, lvl: levels[cfg.Aggressiveness], floor: initialFloor}, nil
}

var errClosed = errors.New("energy vad: session closed")

type session struct {
	cfg    vad.Config
	lvl    level
	floor  float64
	speech bool
	loud   int
	closed bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	rms := audio.RMS(frame)
	threshold := max(s.floor*s.lvl.ratio, s.lvl.minRMS)
	// 0.5 exactly at threshold, approaching 1 as the frame gets louder.
	p := rms / (rms + threshold)

	if s.speech {
		if p < s.cfg.SilenceThreshold {
			s.speech = false
			s.loud = 0
			s.track(rms, floorAlpha)
			return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: p}, nil
		}
		s.track(rms, speechFloorAlpha)
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: p}, nil
	}

	if p >= s.cfg.SpeechThreshold {
		s.loud++
		if s.loud >= s.lvl.onset {
			s.speech = true
			s.loud = 0
			return vad.VADEvent{Type: vad.VADSpeechStart, Probability: p}, nil
		}
		return vad.VADEvent{Type: vad.VADSilence, Probability: p}, nil
	}
	s.loud = 0
	s.track(rms, floorAlpha)
	return vad.VADEvent{Type: vad.VADSilence, Probability: p}, nil
}

// track folds a frame into the noise floor estimate.
func (s *session) track(rms, alpha float64) {
	s.floor += alpha * (rms - s.floor)
}

// Reset ends any speech run. The learned noise floor is kept.
func (s *session) Reset() {
	s.speech = false
	s.loud = 0
}

func (s *session) Close() error {
	s.closed = true
	return nil
}
