package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
)

// ErrInvalid wraps every configuration error. It is fatal at startup.
var ErrInvalid = errors.New("config: invalid")

// SearchPaths are tried in order when no config file is given.
var SearchPaths = []string{"config.yaml", "config.yml", "configs/config.yaml"}

//go:embed default_grammar.yaml
var defaultGrammar []byte

// ValidProviderNames lists the built-in provider names per kind. Unknown
// names only produce a warning so third-party registrations keep working.
var ValidProviderNames = map[string][]string{
	"source":    {"command", "stdin", "file", "websocket"},
	"wake_word": {"spotter"},
	"vad":       {"energy"},
	"stt":       {"whisper", "whisper-native", "openai"},
	"executor":  {"osascript", "log"},
	"tts":       {"say", "coqui", "log"},
}

// Find returns the config file to load: explicit when non-empty, otherwise
// the first existing entry of [SearchPaths]. An empty result means the
// built-in defaults apply.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		return explicit, nil
	}
	for _, p := range SearchPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load reads the YAML file at path, or the built-in defaults when path is
// empty, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return finish(Defaults(), "")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrInvalid, path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return finish(cfg, filepath.Dir(path))
}

// LoadFromReader decodes a YAML config from r on top of [Defaults],
// applies environment overrides and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	return finish(cfg, "")
}

func decode(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalid, err)
	}
	return cfg, nil
}

func finish(cfg *Config, dir string) (*Config, error) {
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.baseDir = dir
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies the supported environment overrides. lookup is usually
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	if v, ok := lookup("AUDIO_DEVICE"); ok {
		cfg.Audio.Device = v
	}
	if v, ok := lookup("AUDIO_SAMPLE_RATE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("AUDIO_SAMPLE_RATE %q: %w", v, err))
		} else {
			cfg.Audio.SampleRate = n
		}
	}
	if v, ok := lookup("STT_LANGUAGE"); ok && v != "" {
		cfg.STT.Language = v
	}
	if v, ok := lookup("STT_MODEL"); ok && v != "" {
		cfg.Providers.STT.Model = v
	}
	if v, ok := lookup("DAWVOX_DRY_RUN"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("DAWVOX_DRY_RUN %q: %w", v, err))
		} else {
			cfg.SetDryRun(b)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: env: %w", ErrInvalid, err)
	}
	return nil
}

// Validate checks that cfg is coherent. All failures are reported at once,
// wrapped in [ErrInvalid].
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !cfg.System.LogLevel.IsValid() {
		add("system.log_level %q is invalid; valid values: debug, info, warn, error", cfg.System.LogLevel)
	}

	a := cfg.Audio
	if a.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 2 {
		add("audio.channels %d out of range [1, 2]", a.Channels)
	}
	if a.FrameSize <= 0 {
		add("audio.frame_size must be positive, got %d", a.FrameSize)
	}
	if a.QueueSize <= 0 {
		add("audio.queue_size must be positive, got %d", a.QueueSize)
	}

	w := cfg.WakeWord
	if w.Threshold <= 0 || w.Threshold > 1 {
		add("wake_word.threshold %v out of range (0, 1]", w.Threshold)
	}
	if w.Cooldown < 0 {
		add("wake_word.cooldown must not be negative")
	}
	ids := make(map[string]int, len(w.Phrases))
	wakes := 0
	for i, p := range w.Phrases {
		prefix := fmt.Sprintf("wake_word.phrases[%d]", i)
		if p.ID == "" {
			add("%s.id is required", prefix)
		} else if prev, dup := ids[p.ID]; dup {
			add("%s.id %q is a duplicate of wake_word.phrases[%d]", prefix, p.ID, prev)
		} else {
			ids[p.ID] = i
		}
		if strings.TrimSpace(p.Text) == "" {
			add("%s.text is required", prefix)
		}
		switch wakeword.Role(p.Role) {
		case "", wakeword.RoleWake:
			wakes++
		case wakeword.RoleCancel:
		default:
			add("%s.role %q is invalid; valid values: wake, cancel", prefix, p.Role)
		}
	}
	if wakes == 0 {
		add("wake_word.phrases needs at least one wake phrase")
	}

	v := cfg.VAD
	if v.Aggressiveness < 0 || v.Aggressiveness > 3 {
		add("vad.aggressiveness %d out of range [0, 3]", v.Aggressiveness)
	}
	if v.Hangover <= 0 {
		add("vad.hangover must be positive")
	}
	if v.MaxDuration <= v.Hangover {
		add("vad.max_duration %v must exceed vad.hangover %v", v.MaxDuration, v.Hangover)
	}
	if v.ListenTimeout < 0 || v.MinSpeech < 0 {
		add("vad.listen_timeout and vad.min_speech must not be negative")
	}

	s := cfg.STT
	if s.Language == "" {
		add("stt.language is required")
	}
	if s.LatencyBudget <= 0 {
		add("stt.latency_budget must be positive")
	}
	if s.MinTimeout <= 0 || s.MaxTimeout < s.MinTimeout {
		add("stt timeouts invalid: need 0 < min_timeout (%v) <= max_timeout (%v)", s.MinTimeout, s.MaxTimeout)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		add("stt.min_confidence %v out of range [0, 1]", s.MinConfidence)
	}

	in := cfg.Intent
	if in.MinConfidence <= 0 || in.MinConfidence > 1 {
		add("intent.min_confidence %v out of range (0, 1]", in.MinConfidence)
	}
	if in.FuzzyDistance < 0 || in.FuzzyMinTokenLen < 0 {
		add("intent.fuzzy_distance and intent.fuzzy_min_token_len must not be negative")
	}
	if in.TrackRange.Min < 0 || in.TrackRange.Max < in.TrackRange.Min {
		add("intent.track_range [%d, %d] is invalid", in.TrackRange.Min, in.TrackRange.Max)
	}
	if !in.BuiltinGrammar && len(in.GrammarFiles) == 0 && len(in.Commands) == 0 {
		add("intent: no grammar; enable builtin_grammar or add grammar_files or commands")
	}

	c := cfg.Commands
	if _, err := dispatch.ParseMode(c.Mode); err != nil {
		add("commands.mode %q is invalid; valid values: dry-run, live", c.Mode)
	}
	if c.Timeout <= 0 {
		add("commands.timeout must be positive")
	}
	if c.Breaker.MaxFailures < 0 || c.Breaker.ResetTimeout < 0 {
		add("commands.breaker values must not be negative")
	}

	f := cfg.Feedback
	if _, err := feedback.NewCatalog(f.Language, f.Phrases); err != nil {
		errs = append(errs, fmt.Errorf("feedback: %w", err))
	}
	if base, _, _ := strings.Cut(strings.ToLower(f.Language), "-"); !slices.Contains(feedback.Languages(), base) {
		add("feedback.language %q is not supported; valid values: %s", f.Language, strings.Join(feedback.Languages(), ", "))
	}
	if f.Rate < 0 || f.Timeout < 0 {
		add("feedback.rate and feedback.timeout must not be negative")
	}

	for kind, e := range map[string]ProviderEntry{
		"source": cfg.Providers.Source, "wake_word": cfg.Providers.WakeWord, "vad": cfg.Providers.VAD,
		"stt": cfg.Providers.STT, "executor": cfg.Providers.Executor, "tts": cfg.Providers.TTS,
	} {
		if e.Name == "" {
			add("providers.%s.name is required", kind)
			continue
		}
		validateProviderName(kind, e.Name)
	}

	j := cfg.Journal
	switch {
	case !j.Backend.IsValid():
		add("journal.backend %q is invalid; valid values: memory, file, badger, postgres", j.Backend)
	case (j.Backend == JournalBadger || j.Backend == JournalFile) && j.Path == "":
		add("journal.path is required for the %s backend", j.Backend)
	case j.Backend == JournalPostgres && j.PostgresDSN == "":
		add("journal.postgres_dsn is required for the postgres backend")
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// DefaultGrammar returns the embedded built-in grammar.
func DefaultGrammar() []intent.Spec {
	specs, err := intent.LoadGrammar(strings.NewReader(string(defaultGrammar)))
	if err != nil {
		panic(fmt.Sprintf("config: embedded grammar: %v", err))
	}
	return specs
}

// Grammar assembles the command grammar: inline commands first, then
// grammar files in order, then the built-in grammar.
func (c *Config) Grammar() ([]intent.Spec, error) {
	specs := slices.Clone(c.Intent.Commands)
	for _, name := range c.Intent.GrammarFiles {
		path := name
		if !filepath.IsAbs(path) && c.baseDir != "" {
			path = filepath.Join(c.baseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: grammar: %w", ErrInvalid, err)
		}
		more, err := intent.LoadGrammar(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: grammar %s: %w", ErrInvalid, path, err)
		}
		specs = append(specs, more...)
	}
	if c.Intent.BuiltinGrammar {
		specs = append(specs, DefaultGrammar()...)
	}
	return specs, nil
}

// WakePhrases converts the configured phrases for the wake gate.
func (c *Config) WakePhrases() []wakeword.Phrase {
	out := make([]wakeword.Phrase, 0, len(c.WakeWord.Phrases))
	for _, p := range c.WakeWord.Phrases {
		role := wakeword.Role(p.Role)
		if role == "" {
			role = wakeword.RoleWake
		}
		out = append(out, wakeword.Phrase{ID: p.ID, Text: p.Text, Language: p.Language, Role: role})
	}
	return out
}
