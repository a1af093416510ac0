package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/dawvox/internal/config"
	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/feedback"
	"github.com/MrWong99/dawvox/internal/journal"
	badgerjournal "github.com/MrWong99/dawvox/internal/journal/badger"
	pgjournal "github.com/MrWong99/dawvox/internal/journal/postgres"
	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/audio/wsource"
	"github.com/MrWong99/dawvox/pkg/provider/executor"
	"github.com/MrWong99/dawvox/pkg/provider/executor/osascript"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	oaistt "github.com/MrWong99/dawvox/pkg/provider/stt/openai"
	"github.com/MrWong99/dawvox/pkg/provider/stt/whisper"
	"github.com/MrWong99/dawvox/pkg/provider/tts"
	"github.com/MrWong99/dawvox/pkg/provider/tts/coqui"
	"github.com/MrWong99/dawvox/pkg/provider/tts/say"
	"github.com/MrWong99/dawvox/pkg/provider/vad"
	"github.com/MrWong99/dawvox/pkg/provider/vad/energy"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword"
	"github.com/MrWong99/dawvox/pkg/provider/wakeword/spotter"
	"github.com/MrWong99/dawvox/pkg/types"
)

const (
	defaultWhisperURL = "http://127.0.0.1:8178"
	defaultCoquiURL   = "http://127.0.0.1:5002"
	defaultStreamAddr = "127.0.0.1:8766"
)

// RegisterBuiltins registers every built-in provider with reg.
func RegisterBuiltins(reg *config.Registry) {
	registerSources(reg)

	reg.RegisterWakeWord("spotter", func(e config.ProviderEntry, cfg *config.Config) (wakeword.Classifier, error) {
		// The spotter gets its own engine instance so wake checks never
		// queue behind command transcription.
		entry := cfg.Providers.STT
		if name := e.StringOption("stt", ""); name != "" {
			entry = config.ProviderEntry{Name: name, APIKey: e.APIKey, BaseURL: e.BaseURL, Model: e.Model}
		}
		engine, err := reg.CreateSTT(entry, cfg)
		if err != nil {
			return nil, fmt.Errorf("spotter engine: %w", err)
		}
		opts := []spotter.Option{
			spotter.WithLanguage(cfg.STT.Language),
			spotter.WithTimeout(e.DurationOption("timeout", cfg.STT.MaxTimeout)),
		}
		if d := e.DurationOption("window", 0); d > 0 {
			opts = append(opts, spotter.WithWindow(d))
		}
		if d := e.DurationOption("hop", 0); d > 0 {
			opts = append(opts, spotter.WithHop(d))
		}
		s := spotter.New(engine, cfg.WakePhrases(), opts...)
		if c, ok := engine.(io.Closer); ok {
			return &closingClassifier{Classifier: s, engine: c}, nil
		}
		return s, nil
	})

	reg.RegisterVAD("energy", func(config.ProviderEntry, *config.Config) (vad.Engine, error) {
		return energy.New(), nil
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry, cfg *config.Config) (stt.Provider, error) {
		url := e.BaseURL
		if url == "" {
			url = defaultWhisperURL
		}
		opts := []whisper.Option{whisper.WithLanguage(cfg.STT.Language)}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		p, err := whisper.New(url, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry, cfg *config.Config) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = e.StringOption("model_path", "")
		}
		opts := []whisper.NativeOption{whisper.WithNativeLanguage(cfg.STT.Language)}
		if n := e.IntOption("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		p, err := whisper.NewNative(modelPath, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterSTT("openai", func(e config.ProviderEntry, cfg *config.Config) (stt.Provider, error) {
		opts := []oaistt.Option{oaistt.WithLanguage(cfg.STT.Language)}
		if e.APIKey != "" {
			opts = append(opts, oaistt.WithAPIKey(e.APIKey))
		}
		p, err := oaistt.New(e.BaseURL, e.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterExecutor("osascript", func(e config.ProviderEntry, _ *config.Config) (executor.Executor, error) {
		var opts []osascript.Option
		if app := e.StringOption("app", ""); app != "" {
			opts = append(opts, osascript.WithApp(app))
		}
		return osascript.New(opts...), nil
	})

	reg.RegisterExecutor("log", func(config.ProviderEntry, *config.Config) (executor.Executor, error) {
		return logExecutor{}, nil
	})

	reg.RegisterTTS("say", func(e config.ProviderEntry, cfg *config.Config) (tts.Provider, error) {
		opts := []say.Option{say.WithVoice(cfg.Feedback.Voice), say.WithRate(cfg.Feedback.Rate)}
		if cmd := e.StringOption("command", ""); cmd != "" {
			opts = append(opts, say.WithCommand(cmd))
		}
		return say.New(opts...), nil
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry, cfg *config.Config) (tts.Provider, error) {
		url := e.BaseURL
		if url == "" {
			url = defaultCoquiURL
		}
		opts := []coqui.Option{
			coqui.WithLanguage(cfg.Feedback.Language),
			coqui.WithTimeout(cfg.Feedback.Timeout),
		}
		if v := e.StringOption("voice", ""); v != "" {
			opts = append(opts, coqui.WithVoice(v))
		}
		if mode := e.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if player := e.StringsOption("player", nil); len(player) > 0 {
			opts = append(opts, coqui.WithPlayer(player[0], player[1:]...))
		}
		p, err := coqui.New(url, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTTS("log", func(config.ProviderEntry, *config.Config) (tts.Provider, error) {
		return feedback.LogSink{}, nil
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func registerSources(reg *config.Registry) {
	format := func(cfg *config.Config) audio.Format {
		return audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}
	}

	reg.RegisterSource("command", func(e config.ProviderEntry, cfg *config.Config) (audio.Source, error) {
		f := format(cfg)
		name := e.StringOption("command", "rec")
		args := e.StringsOption("args", audio.RecArgs(f))
		var env []string
		if cfg.Audio.Device != "" {
			env = append(env, "AUDIODEV="+cfg.Audio.Device)
		}
		return audio.NewCommandSource(name, args, env, f, cfg.Audio.FrameSize), nil
	})

	reg.RegisterSource("stdin", func(e config.ProviderEntry, cfg *config.Config) (audio.Source, error) {
		var opts []audio.ReaderOption
		if e.BoolOption("realtime", false) {
			opts = append(opts, audio.WithRealtime())
		}
		return audio.NewReaderSource("stdin", io.NopCloser(os.Stdin), format(cfg), cfg.Audio.FrameSize, opts...), nil
	})

	reg.RegisterSource("file", func(e config.ProviderEntry, cfg *config.Config) (audio.Source, error) {
		path := e.StringOption("path", cfg.Audio.Device)
		if path == "" {
			return nil, errors.New("file source needs options.path or audio.device")
		}
		var opts []audio.ReaderOption
		if e.BoolOption("realtime", false) {
			opts = append(opts, audio.WithRealtime())
		}
		return OpenFileSource(path, format(cfg), cfg.Audio.FrameSize, opts...)
	})

	reg.RegisterSource("websocket", func(e config.ProviderEntry, cfg *config.Config) (audio.Source, error) {
		var opts []wsource.Option
		if p := e.StringOption("path", ""); p != "" {
			opts = append(opts, wsource.WithPath(p))
		}
		s, err := wsource.New(e.StringOption("addr", defaultStreamAddr), cfg.Audio.SampleRate, cfg.Audio.FrameSize, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// OpenFileSource returns a source replaying a recording. WAV files carry
// their own format; anything else is read as raw PCM in format f.
func OpenFileSource(path string, f audio.Format, frameSamples int, opts ...audio.ReaderOption) (audio.Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pcm, wf, err := audio.DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Keep the frame duration when the file's rate differs.
		if wf.SampleRate != f.SampleRate && f.SampleRate > 0 {
			frameSamples = frameSamples * wf.SampleRate / f.SampleRate
		}
		return audio.NewReaderSource(path, bytes.NewReader(pcm), wf, frameSamples, opts...), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return audio.NewReaderSource(path, fh, f, frameSamples, opts...), nil
}

// BuildProviders creates the configured providers. The executor is only
// created in live mode and the TTS provider only when feedback is enabled.
// On error, providers created so far are closed.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	var created []any
	fail := func(kind string, err error) (*Providers, error) {
		closeAll(created)
		return nil, fmt.Errorf("create %s provider: %w", kind, err)
	}

	var err error
	if ps.Source, err = reg.CreateSource(cfg.Providers.Source, cfg); err != nil {
		return fail("source", err)
	}
	created = append(created, ps.Source)
	if ps.WakeWord, err = reg.CreateWakeWord(cfg.Providers.WakeWord, cfg); err != nil {
		return fail("wake_word", err)
	}
	created = append(created, ps.WakeWord)
	if ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD, cfg); err != nil {
		return fail("vad", err)
	}
	if ps.STT, err = reg.CreateSTT(cfg.Providers.STT, cfg); err != nil {
		return fail("stt", err)
	}
	created = append(created, ps.STT)
	if cfg.Mode() == dispatch.ModeLive {
		if ps.Executor, err = reg.CreateExecutor(cfg.Providers.Executor, cfg); err != nil {
			return fail("executor", err)
		}
	}
	if cfg.Feedback.Enabled {
		if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS, cfg); err != nil {
			return fail("tts", err)
		}
	}

	slog.Info("providers created",
		"source", cfg.Providers.Source.Name,
		"wake_word", cfg.Providers.WakeWord.Name,
		"vad", cfg.Providers.VAD.Name,
		"stt", cfg.Providers.STT.Name,
		"executor", executorName(cfg),
		"tts", ttsName(cfg),
	)
	return ps, nil
}

func executorName(cfg *config.Config) string {
	if cfg.Mode() != dispatch.ModeLive {
		return "none (dry-run)"
	}
	return cfg.Providers.Executor.Name
}

func ttsName(cfg *config.Config) string {
	if !cfg.Feedback.Enabled {
		return "none"
	}
	return cfg.Providers.TTS.Name
}

func closeAll(ps []any) {
	for _, p := range ps {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Debug("provider close error", "err", err)
			}
		}
	}
}

// OpenJournal opens the configured journal backend.
func OpenJournal(ctx context.Context, cfg *config.Config) (journal.Store, error) {
	j := cfg.Journal
	switch j.Backend {
	case config.JournalFile:
		return journal.NewFile(j.Path), nil
	case config.JournalBadger:
		s, err := badgerjournal.Open(badgerjournal.Options{Dir: j.Path})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.JournalPostgres:
		s, err := pgjournal.NewStore(ctx, j.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return journal.NewMemory(j.Capacity), nil
	}
}

// closingClassifier closes the spotter's private engine with it.
type closingClassifier struct {
	wakeword.Classifier
	engine io.Closer
}

func (c *closingClassifier) Close() error {
	return errors.Join(c.Classifier.Close(), c.engine.Close())
}

// logExecutor performs nothing and logs each action. It makes live mode
// usable on hosts without Logic Pro.
type logExecutor struct{}

func (logExecutor) Execute(_ context.Context, a types.Action) error {
	slog.Info("executor: action", "kind", a.Kind, "params", a.Params)
	return nil
}
