// Package wake implements the wake-word gate: it turns per-frame phrase
// scores from a classifier into discrete activation events.
//
// A phrase fires once its score has stayed at or above the threshold for
// DebounceFrames consecutive frames. After firing, further activations of the
// same role are suppressed for the cooldown window so one spoken phrase never
// produces two activations. Time is measured on the frame timestamps, not the
// wall clock, which keeps the gate deterministic under test and immune to
// scheduling jitter.
package wake

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
)

// Config holds gate parameters.
type Config struct {
	// Threshold is the score in (0, 1] a phrase must reach.
	Threshold float64

	// Cooldown suppresses repeat activations of the same role.
	Cooldown time.Duration

	// DebounceFrames is the number of consecutive frames at or above the
	// threshold required to fire. Values below 1 are treated as 1.
	DebounceFrames int

	// Phrases is the active phrase set. Scores for IDs not listed here are
	// ignored.
	Phrases []wakeword.Phrase
}

// Activation is emitted when a phrase fires.
type Activation struct {
	PhraseID string
	Role     wakeword.Role
	Score    float64

	// At is the end timestamp of the frame that completed the detection.
	At time.Duration
}

// Gate applies threshold, debounce and cooldown to classifier scores.
// A Gate is not safe for concurrent use; the orchestrator owns it.
type Gate struct {
	classifier wakeword.Classifier
	cfg        Config

	order  map[string]int
	roles  map[string]wakeword.Role
	streak map[string]int

	lastFire map[wakeword.Role]time.Duration
}

// New creates a Gate over classifier.
func New(classifier wakeword.Classifier, cfg Config) (*Gate, error) {
	if classifier == nil {
		return nil, errors.New("wake: classifier must not be nil")
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("wake: threshold %v out of range (0, 1]", cfg.Threshold)
	}
	if len(cfg.Phrases) == 0 {
		return nil, errors.New("wake: at least one phrase is required")
	}
	if cfg.DebounceFrames < 1 {
		cfg.DebounceFrames = 1
	}
	g := &Gate{
		classifier: classifier,
		cfg:        cfg,
		order:      make(map[string]int, len(cfg.Phrases)),
		roles:      make(map[string]wakeword.Role, len(cfg.Phrases)),
		streak:     make(map[string]int, len(cfg.Phrases)),
		lastFire:   make(map[wakeword.Role]time.Duration),
	}
	for i, p := range cfg.Phrases {
		if _, dup := g.order[p.ID]; dup {
			return nil, fmt.Errorf("wake: duplicate phrase id %q", p.ID)
		}
		role := p.Role
		if role == "" {
			role = wakeword.RoleWake
		}
		g.order[p.ID] = i
		g.roles[p.ID] = role
	}
	return g, nil
}

// Score feeds one frame to the classifier. It returns an activation and true
// when a phrase fires on this frame.
func (g *Gate) Score(frame audio.AudioFrame) (Activation, bool, error) {
	scores, err := g.classifier.Score(frame)
	if err != nil {
		return Activation{}, false, fmt.Errorf("wake: classifier: %w", err)
	}

	seen := make(map[string]float64, len(scores))
	for _, s := range scores {
		if _, ok := g.order[s.PhraseID]; !ok {
			slog.Debug("wake: score for unknown phrase ignored", "phrase", s.PhraseID)
			continue
		}
		if s.Value > seen[s.PhraseID] {
			seen[s.PhraseID] = s.Value
		}
	}

	var (
		best  Activation
		found bool
	)
	now := frame.End()
	for id := range g.order {
		v, ok := seen[id]
		if !ok || v < g.cfg.Threshold {
			g.streak[id] = 0
			continue
		}
		g.streak[id]++
		if g.streak[id] < g.cfg.DebounceFrames {
			continue
		}
		role := g.roles[id]
		if last, fired := g.lastFire[role]; fired && now-last < g.cfg.Cooldown {
			continue
		}
		if !found || v > best.Score || (v == best.Score && g.order[id] < g.order[best.PhraseID]) {
			best = Activation{PhraseID: id, Role: role, Score: v, At: now}
			found = true
		}
	}
	if !found {
		return Activation{}, false, nil
	}

	g.lastFire[best.Role] = now
	for id := range g.streak {
		if g.roles[id] == best.Role {
			g.streak[id] = 0
		}
	}
	return best, true, nil
}

// Close closes the underlying classifier.
func (g *Gate) Close() error {
	return g.classifier.Close()
}
