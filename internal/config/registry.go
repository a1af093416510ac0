package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/executor"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	"github.com/MrWong99/dawvox/pkg/provider/tts"
	"github.com/MrWong99/dawvox/pkg/provider/vad"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// was registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its entry. cfg is the whole configuration,
// for providers that depend on other sections (audio format, languages).
type Factory[T any] func(entry ProviderEntry, cfg *Config) (T, error)

type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) names() []string {
	out := make([]string, 0, len(f.m))
	for n := range f.m {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to constructors for each provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	source   factories[audio.Source]
	wakeWord factories[wakeword.Classifier]
	vad      factories[vad.Engine]
	stt      factories[stt.Provider]
	executor factories[executor.Executor]
	tts      factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		source:   newFactories[audio.Source]("source"),
		wakeWord: newFactories[wakeword.Classifier]("wake_word"),
		vad:      newFactories[vad.Engine]("vad"),
		stt:      newFactories[stt.Provider]("stt"),
		executor: newFactories[executor.Executor]("executor"),
		tts:      newFactories[tts.Provider]("tts"),
	}
}

func register[T any](r *Registry, f factories[T], name string, factory Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.m[name] = factory
}

func create[T any](r *Registry, f factories[T], entry ProviderEntry, cfg *Config) (T, error) {
	r.mu.RLock()
	factory, ok := f.m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry, cfg)
	if err != nil {
		return p, fmt.Errorf("%s/%s: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

// RegisterSource registers an audio source factory under name. A later
// registration under the same name replaces the earlier one.
func (r *Registry) RegisterSource(name string, f Factory[audio.Source]) {
	register(r, r.source, name, f)
}

// RegisterWakeWord registers a wake-word classifier factory.
func (r *Registry) RegisterWakeWord(name string, f Factory[wakeword.Classifier]) {
	register(r, r.wakeWord, name, f)
}

// RegisterVAD registers a VAD engine factory.
func (r *Registry) RegisterVAD(name string, f Factory[vad.Engine]) {
	register(r, r.vad, name, f)
}

// RegisterSTT registers a speech-to-text factory.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	register(r, r.stt, name, f)
}

// RegisterExecutor registers an action executor factory.
func (r *Registry) RegisterExecutor(name string, f Factory[executor.Executor]) {
	register(r, r.executor, name, f)
}

// RegisterTTS registers a feedback output factory.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	register(r, r.tts, name, f)
}

// CreateSource builds the source named by entry.
func (r *Registry) CreateSource(entry ProviderEntry, cfg *Config) (audio.Source, error) {
	return create(r, r.source, entry, cfg)
}

// CreateWakeWord builds the wake-word classifier named by entry.
func (r *Registry) CreateWakeWord(entry ProviderEntry, cfg *Config) (wakeword.Classifier, error) {
	return create(r, r.wakeWord, entry, cfg)
}

// CreateVAD builds the VAD engine named by entry.
func (r *Registry) CreateVAD(entry ProviderEntry, cfg *Config) (vad.Engine, error) {
	return create(r, r.vad, entry, cfg)
}

// CreateSTT builds the speech-to-text provider named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry, cfg *Config) (stt.Provider, error) {
	return create(r, r.stt, entry, cfg)
}

// CreateExecutor builds the executor named by entry.
func (r *Registry) CreateExecutor(entry ProviderEntry, cfg *Config) (executor.Executor, error) {
	return create(r, r.executor, entry, cfg)
}

// CreateTTS builds the feedback output named by entry.
func (r *Registry) CreateTTS(entry ProviderEntry, cfg *Config) (tts.Provider, error) {
	return create(r, r.tts, entry, cfg)
}

// Names lists the registered provider names per kind, for `dawvox check`.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.source.kind:   r.source.names(),
		r.wakeWord.kind: r.wakeWord.names(),
		r.vad.kind:      r.vad.names(),
		r.stt.kind:      r.stt.names(),
		r.executor.kind: r.executor.names(),
		r.tts.kind:      r.tts.names(),
	}
}

// StringOption returns Options[key] as a string, or def.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// IntOption returns Options[key] as an int, or def.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// StringsOption returns Options[key] as a string list, or def.
func (e ProviderEntry) StringsOption(key string, def []string) []string {
	raw, ok := e.Options[key].([]any)
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// BoolOption returns Options[key] as a bool, or def.
func (e ProviderEntry) BoolOption(key string, def bool) bool {
	if v, ok := e.Options[key].(bool); ok {
		return v
	}
	return def
}

// DurationOption parses Options[key] as a duration such as "1500ms", or
// returns def when it is missing or malformed.
func (e ProviderEntry) DurationOption(key string, def time.Duration) time.Duration {
	s, ok := e.Options[key].(string)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
