package config_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/internal/config"
	"github.com/MrWong99/dawvox/internal/dispatch"
	"github.com/MrWong99/dawvox/internal/intent"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
	sttmock "github.com/MrWong99/dawvox/pkg/provider/stt/mock"
	"github.com/MrWong99/dawvox/pkg/types"
)

func TestDefaults_AreValid(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate(Defaults()) = %v", err)
	}
	if cfg.Mode() != dispatch.ModeDryRun {
		t.Errorf("default mode = %q, want dry-run", cfg.Mode())
	}
	if d := cfg.Audio.FrameDuration(); d != 32*time.Millisecond {
		t.Errorf("frame duration = %v, want 32ms", d)
	}
}

func TestMode(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	tests := []struct {
		name   string
		dryRun *bool
		mode   string
		want   dispatch.Mode
	}{
		{name: "commands.mode live", mode: "live", want: dispatch.ModeLive},
		{name: "commands.mode dry-run", mode: "dry-run", want: dispatch.ModeDryRun},
		{name: "dry_run overrides live", dryRun: &yes, mode: "live", want: dispatch.ModeDryRun},
		{name: "dry_run false forces live", dryRun: &no, mode: "dry-run", want: dispatch.ModeLive},
		{name: "garbage falls back to dry-run", mode: "maybe", want: dispatch.ModeDryRun},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Defaults()
			cfg.System.DryRun = tc.dryRun
			cfg.Commands.Mode = tc.mode
			if got := cfg.Mode(); got != tc.want {
				t.Errorf("Mode() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApplyLowLatency(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.ApplyLowLatency()
	if cfg.Audio.FrameSize != 512 {
		t.Error("low latency applied without system.low_latency")
	}

	cfg.System.LowLatency = true
	cfg.ApplyLowLatency()
	if cfg.Audio.FrameSize != 128 || cfg.VAD.Hangover != 400*time.Millisecond {
		t.Errorf("low latency: frame %d, hangover %v", cfg.Audio.FrameSize, cfg.VAD.Hangover)
	}

	explicit := config.Defaults()
	explicit.System.LowLatency = true
	explicit.Audio.FrameSize = 256
	explicit.VAD.Hangover = 550 * time.Millisecond
	explicit.ApplyLowLatency()
	if explicit.Audio.FrameSize != 256 || explicit.VAD.Hangover != 550*time.Millisecond {
		t.Error("low latency overrode explicit values")
	}
}

func TestDefaultGrammar_Resolves(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	specs := config.DefaultGrammar()
	r, err := intent.NewResolver(specs, cfg.ResolverConfig())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	for _, want := range []string{
		"test", "hello", "help", "time", "exit", "stop", "play", "record", "undo", "redo", "save",
		"metronome", "track_select", "track_mute", "track_unmute", "track_toggle_mute",
		"track_solo", "track_arm", "volume", "track_volume",
	} {
		if !slices.Contains(r.Intents(), want) {
			t.Errorf("default grammar lacks %s", want)
		}
	}

	tests := []struct {
		text, lang string
		intent     string
		params     types.Params
	}{
		{"Stop", "de", "stop", nil},
		{"Spur 3 stumm", "de", "track_mute", types.Params{"track_number": 3}},
		{"Spur 5 stumm aufheben", "de", "track_unmute", types.Params{"track_number": 5}},
		{"mute track 12", "en", "track_mute", types.Params{"track_number": 12}},
		{"Metronom an", "de", "metronome", types.Params{"state": "on"}},
		{"Lautstärke runter", "de", "volume", types.Params{"direction": "down"}},
		{"Spur 2 lauter", "de", "track_volume", types.Params{"track_number": 2, "direction": "up"}},
		{"Rückgängig", "de", "undo", nil},
		{"redo", "en", "redo", nil},
		{"Wie spät ist es", "de", "time", nil},
		{"Programm beenden", "de", "exit", nil},
	}
	for _, tc := range tests {
		got, err := r.Resolve(types.Transcript{Text: tc.text, Language: tc.lang})
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.text, err)
			continue
		}
		if got.Name != tc.intent {
			t.Errorf("Resolve(%q) = %s, want %s", tc.text, got.Name, tc.intent)
		}
		for k, v := range tc.params {
			if got.Params[k] != v {
				t.Errorf("Resolve(%q).Params[%s] = %v, want %v", tc.text, k, got.Params[k], v)
			}
		}
	}
}

func TestDefaultGrammar_BindsEveryAction(t *testing.T) {
	t.Parallel()

	d, err := dispatch.New(config.DefaultGrammar(), dispatch.ModeDryRun)
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	params := types.Params{"track_number": 4, "state": "off", "direction": "up"}
	var id uint64
	for _, spec := range config.DefaultGrammar() {
		id++
		in := types.Intent{
			Name:       spec.Intent,
			Params:     params,
			Transcript: types.Transcript{UtteranceID: id, Language: spec.Language},
		}
		res := d.Dispatch(context.Background(), in)
		if res.Err != nil {
			t.Errorf("%s (%s): %v", spec.Intent, spec.Language, res.Err)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	cfg := config.Defaults()

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}, cfg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown provider: err = %v", err)
	}

	engine := &sttmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("mock", func(e config.ProviderEntry, _ *config.Config) (stt.Provider, error) {
		gotEntry = e
		return engine, nil
	})
	p, err := reg.CreateSTT(config.ProviderEntry{Name: "mock", Model: "small"}, cfg)
	if err != nil || p != engine {
		t.Fatalf("CreateSTT = %v, %v", p, err)
	}
	if gotEntry.Model != "small" {
		t.Errorf("factory got %+v", gotEntry)
	}

	boom := errors.New("boom")
	reg.RegisterSTT("broken", func(config.ProviderEntry, *config.Config) (stt.Provider, error) { return nil, boom })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}, cfg); !errors.Is(err, boom) {
		t.Errorf("factory error not wrapped: %v", err)
	}

	names := reg.Names()
	if !slices.Equal(names["stt"], []string{"broken", "mock"}) {
		t.Errorf("Names()[stt] = %v", names["stt"])
	}
	if len(names["tts"]) != 0 {
		t.Errorf("Names()[tts] = %v", names["tts"])
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()

	e := config.ProviderEntry{Options: map[string]any{
		"player": "afplay",
		"port":   8080,
		"ratio":  2.0,
		"args":   []any{"-q", 16},
		"empty":  "",
		"live":   true,
		"window": "1500ms",
		"bad":    "soon",
	}}
	if got := e.StringOption("player", "x"); got != "afplay" {
		t.Errorf("StringOption = %q", got)
	}
	if got := e.StringOption("empty", "def"); got != "def" {
		t.Errorf("StringOption(empty) = %q", got)
	}
	if e.IntOption("port", 0) != 8080 || e.IntOption("ratio", 0) != 2 || e.IntOption("missing", 7) != 7 {
		t.Error("IntOption mismatch")
	}
	if got := e.StringsOption("args", nil); !slices.Equal(got, []string{"-q", "16"}) {
		t.Errorf("StringsOption = %v", got)
	}
	if got := e.StringsOption("player", []string{"d"}); !slices.Equal(got, []string{"d"}) {
		t.Errorf("StringsOption(non-list) = %v", got)
	}
	if !e.BoolOption("live", false) || !e.BoolOption("missing", true) || e.BoolOption("player", false) {
		t.Error("BoolOption mismatch")
	}
	if got := e.DurationOption("window", 0); got != 1500*time.Millisecond {
		t.Errorf("DurationOption = %v", got)
	}
	if got := e.DurationOption("bad", time.Second); got != time.Second {
		t.Errorf("DurationOption(bad) = %v", got)
	}
}

func intentNames(specs []intent.Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Intent
	}
	return out
}
