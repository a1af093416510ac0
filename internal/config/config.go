// Package config provides the configuration schema, loader and provider
// registry for dawvox.
package config

import (
	"time"

	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/intent"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// JournalBackend selects where the command journal is kept.
type JournalBackend string

const (
	JournalMemory   JournalBackend = "memory"
	JournalFile     JournalBackend = "file"
	JournalBadger   JournalBackend = "badger"
	JournalPostgres JournalBackend = "postgres"
)

// IsValid reports whether b is a known backend.
func (b JournalBackend) IsValid() bool {
	switch b {
	case JournalMemory, JournalFile, JournalBadger, JournalPostgres:
		return true
	}
	return false
}

// Config is the root configuration. Load it with [Load] or
// [LoadFromReader]; both start from [Defaults].
type Config struct {
	System      SystemConfig      `yaml:"system"`
	Audio       AudioConfig       `yaml:"audio"`
	WakeWord    WakeWordConfig    `yaml:"wake_word"`
	VAD         VADConfig         `yaml:"vad"`
	STT         STTConfig         `yaml:"stt"`
	Intent      IntentConfig      `yaml:"intent"`
	Commands    CommandsConfig    `yaml:"commands"`
	Feedback    FeedbackConfig    `yaml:"feedback"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Journal     JournalConfig     `yaml:"journal"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// baseDir resolves relative grammar files.
	baseDir string
}

// SystemConfig holds process-wide switches.
type SystemConfig struct {
	LogLevel LogLevel `yaml:"log_level"`

	// DryRun, when set, overrides commands.mode. It is what --dry-run,
	// --live and DAWVOX_DRY_RUN set.
	DryRun *bool `yaml:"dry_run"`

	// LowLatency trades robustness for speed: smaller frames and a shorter
	// hangover, unless those were configured explicitly.
	LowLatency bool `yaml:"low_latency"`
}

// AudioConfig describes the capture stream.
type AudioConfig struct {
	// Device is passed to the capture source: a device name for the
	// command source, a file path for the file source.
	Device string `yaml:"device"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameSize is the frame length in samples.
	FrameSize int `yaml:"frame_size"`

	// QueueSize bounds the capture queue in frames. When full the oldest
	// frame is dropped.
	QueueSize int `yaml:"queue_size"`
}

// FrameDuration returns the length of one frame.
func (a AudioConfig) FrameDuration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.FrameSize) * time.Second / time.Duration(a.SampleRate)
}

// PhraseConfig is one wake or cancel phrase.
type PhraseConfig struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Language string `yaml:"language,omitempty"`

	// Role is "wake" (default) or "cancel".
	Role string `yaml:"role,omitempty"`
}

// WakeWordConfig configures the wake-word gate.
type WakeWordConfig struct {
	Threshold      float64        `yaml:"threshold"`
	Cooldown       time.Duration  `yaml:"cooldown"`
	DebounceFrames int            `yaml:"debounce_frames"`
	Phrases        []PhraseConfig `yaml:"phrases"`
}

// VADConfig configures the segmenter.
type VADConfig struct {
	// Aggressiveness from 0 (keeps most frames) to 3 (rejects most noise).
	Aggressiveness int           `yaml:"aggressiveness"`
	Hangover       time.Duration `yaml:"hangover"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	ListenTimeout  time.Duration `yaml:"listen_timeout"`
	MinSpeech      time.Duration `yaml:"min_speech"`
}

// STTConfig configures the transcription adapter.
type STTConfig struct {
	Language string `yaml:"language"`

	// LatencyBudget is the end-of-speech to command budget the engine call
	// is derived from.
	LatencyBudget time.Duration `yaml:"latency_budget"`
	MinTimeout    time.Duration `yaml:"min_timeout"`
	MaxTimeout    time.Duration `yaml:"max_timeout"`

	// MinConfidence rejects transcripts the engine reported as unsure.
	MinConfidence float64 `yaml:"min_confidence"`
}

// TrackRange bounds track numbers.
type TrackRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// IntentConfig configures the resolver and where the grammar comes from.
type IntentConfig struct {
	MinConfidence    float64    `yaml:"min_confidence"`
	FuzzyDistance    int        `yaml:"fuzzy_distance"`
	FuzzyMinTokenLen int        `yaml:"fuzzy_min_token_len"`
	Phonetic         bool       `yaml:"phonetic"`
	TrackRange       TrackRange `yaml:"track_range"`

	// BuiltinGrammar keeps the embedded default commands after the
	// configured ones.
	BuiltinGrammar bool `yaml:"builtin_grammar"`

	// GrammarFiles are YAML grammar documents, relative to the config file.
	GrammarFiles []string `yaml:"grammar_files"`

	// Commands are inline grammar entries. They take precedence over
	// grammar files and the built-in grammar.
	Commands []intent.Spec `yaml:"commands"`
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// CommandsConfig configures the dispatcher.
type CommandsConfig struct {
	// Mode is "dry-run" or "live".
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// FeedbackConfig configures spoken feedback.
type FeedbackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Voice    string `yaml:"voice"`
	Rate     int    `yaml:"rate"`
	Language string `yaml:"language"`

	// Phrases override built-in phrases by kind, e.g. {unrecognized: "Hä?"}.
	Phrases map[string]string `yaml:"phrases"`

	// AckOnWake speaks an acknowledgement when the wake word fires.
	AckOnWake bool          `yaml:"ack_on_wake"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ProvidersConfig selects the implementation of each external collaborator.
type ProvidersConfig struct {
	Source   ProviderEntry `yaml:"source"`
	WakeWord ProviderEntry `yaml:"wake_word"`
	VAD      ProviderEntry `yaml:"vad"`
	STT      ProviderEntry `yaml:"stt"`
	Executor ProviderEntry `yaml:"executor"`
	TTS      ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block of all providers. Name
// selects the constructor in the [Registry].
type ProviderEntry struct {
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL is the endpoint of server-backed providers, e.g. a local
	// whisper server.
	BaseURL string `yaml:"base_url"`

	// Model is a model name or, for native engines, a model file path.
	Model string `yaml:"model"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// JournalConfig configures the command journal.
type JournalConfig struct {
	Backend JournalBackend `yaml:"backend"`

	// Path is the badger directory or the JSONL file.
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// Capacity bounds the memory backend.
	Capacity int `yaml:"capacity"`
}

// DiagnosticsConfig configures the local diagnostics server.
type DiagnosticsConfig struct {
	// ListenAddr is empty to disable the server.
	ListenAddr string `yaml:"listen_addr"`
	Metrics    bool   `yaml:"metrics"`
}

const (
	defaultFrameSize    = 512
	lowLatencyFrameSize = 128
	defaultHangover     = 700 * time.Millisecond
	lowLatencyHangover  = 400 * time.Millisecond
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		System: SystemConfig{LogLevel: LogInfo},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			FrameSize:  defaultFrameSize,
			QueueSize:  64,
		},
		WakeWord: WakeWordConfig{
			Threshold:      0.8,
			Cooldown:       1500 * time.Millisecond,
			DebounceFrames: 1,
			Phrases: []PhraseConfig{
				{ID: "hey_logic", Text: "hey logic"},
				{ID: "hallo_logic", Text: "hallo logic", Language: "de"},
				{ID: "logic", Text: "logic"},
				{ID: "computer", Text: "computer"},
				{ID: "hey_computer", Text: "hey computer"},
				{ID: "hey_logik", Text: "hey logik", Language: "de"},
				{ID: "hallo_logik", Text: "hallo logik", Language: "de"},
				{ID: "logik", Text: "logik", Language: "de"},
				{ID: "abbrechen", Text: "abbrechen", Language: "de", Role: "cancel"},
				{ID: "cancel", Text: "cancel", Language: "en", Role: "cancel"},
			},
		},
		VAD: VADConfig{
			Aggressiveness: 2,
			Hangover:       defaultHangover,
			MaxDuration:    5 * time.Second,
			ListenTimeout:  3 * time.Second,
			MinSpeech:      90 * time.Millisecond,
		},
		STT: STTConfig{
			Language:      "de",
			LatencyBudget: 500 * time.Millisecond,
			MinTimeout:    150 * time.Millisecond,
			MaxTimeout:    5 * time.Second,
			MinConfidence: 0.3,
		},
		Intent: IntentConfig{
			MinConfidence:    0.6,
			FuzzyDistance:    2,
			FuzzyMinTokenLen: 4,
			Phonetic:         true,
			TrackRange:       TrackRange{Min: 1, Max: 128},
			BuiltinGrammar:   true,
		},
		Commands: CommandsConfig{
			Mode:    string(dispatch.ModeDryRun),
			Timeout: 5 * time.Second,
			Breaker: BreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second},
		},
		Feedback: FeedbackConfig{
			Enabled:  true,
			Voice:    "Anna",
			Rate:     200,
			Language: "de",
			Timeout:  3 * time.Second,
		},
		Providers: ProvidersConfig{
			Source:   ProviderEntry{Name: "command"},
			WakeWord: ProviderEntry{Name: "spotter"},
			VAD:      ProviderEntry{Name: "energy"},
			STT:      ProviderEntry{Name: "whisper"},
			Executor: ProviderEntry{Name: "osascript"},
			TTS:      ProviderEntry{Name: "say"},
		},
		Journal: JournalConfig{
			Backend:  JournalMemory,
			Capacity: 256,
		},
		Diagnostics: DiagnosticsConfig{Metrics: true},
	}
}

// Mode returns the effective dispatch mode: system.dry_run when set,
// commands.mode otherwise.
func (c *Config) Mode() dispatch.Mode {
	if c.System.DryRun != nil {
		if *c.System.DryRun {
			return dispatch.ModeDryRun
		}
		return dispatch.ModeLive
	}
	m, err := dispatch.ParseMode(c.Commands.Mode)
	if err != nil {
		return dispatch.ModeDryRun
	}
	return m
}

// SetDryRun forces the dispatch mode.
func (c *Config) SetDryRun(v bool) { c.System.DryRun = &v }

// ApplyLowLatency switches frame size and hangover to their low-latency
// values when system.low_latency is set and they were left at the default.
func (c *Config) ApplyLowLatency() {
	if !c.System.LowLatency {
		return
	}
	if c.Audio.FrameSize == defaultFrameSize {
		c.Audio.FrameSize = lowLatencyFrameSize
	}
	if c.VAD.Hangover == defaultHangover {
		c.VAD.Hangover = lowLatencyHangover
	}
}

// ResolverConfig returns the intent resolver parameters.
func (c *Config) ResolverConfig() intent.Config {
	return intent.Config{
		MinConfidence:           c.Intent.MinConfidence,
		MinTranscriptConfidence: c.STT.MinConfidence,
		FuzzyDistance:           c.Intent.FuzzyDistance,
		FuzzyMinTokenLen:        c.Intent.FuzzyMinTokenLen,
		Phonetic:                c.Intent.Phonetic,
		TrackMin:                c.Intent.TrackRange.Min,
		TrackMax:                c.Intent.TrackRange.Max,
	}
}
