// Package coqui speaks feedback phrases with a locally-running Coqui TTS
// server and an audio player command.
//
// Two server APIs are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters.
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is POST
//     /tts_to_audio/ with a JSON body and a speaker_wav voice.
//
// The returned WAV is validated, written to a temporary file and handed to the
// player ("afplay" on macOS, "aplay" on Linux). Emit returns when playback
// ends.
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("de"),
//	    coqui.WithPlayer("afplay"),
//	)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "de"
	defaultTimeout  = 15 * time.Second
	defaultPlayer   = "afplay"
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithVoice sets the speaker: a speaker_id in standard mode, a speaker_wav
// reference in XTTS mode.
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithPlayer sets the program used to play the synthesised WAV file. The file
// path is appended after args.
func WithPlayer(name string, args ...string) Option {
	return func(p *Provider) {
		p.player = name
		p.playerArgs = args
	}
}

// WithRunner replaces the process runner used for playback.
func WithRunner(r tts.Runner) Option {
	return func(p *Provider) { p.run = r }
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	voice      string
	apiMode    APIMode
	httpClient *http.Client
	player     string
	playerArgs []string
	run        tts.Runner
}

// New creates a Provider for the server at serverURL (e.g.
// "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
		player:     defaultPlayer,
		run:        tts.ExecRunner,
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode == APIModeXTTS && p.voice == "" {
		return nil, errors.New("coqui: a voice is required in XTTS mode")
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Emit synthesises phrase and plays it.
func (p *Provider) Emit(ctx context.Context, phrase string) error {
	if phrase == "" {
		return errors.New("coqui: empty phrase")
	}
	wav, err := p.synthesize(ctx, phrase)
	if err != nil {
		return err
	}
	if _, _, err := audio.DecodeWAV(wav); err != nil {
		return fmt.Errorf("coqui: invalid audio from server: %w", err)
	}

	f, err := os.CreateTemp("", "dawvox-feedback-*.wav")
	if err != nil {
		return fmt.Errorf("coqui: create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(wav); err != nil {
		f.Close()
		return fmt.Errorf("coqui: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("coqui: close temp file: %w", err)
	}

	args := append(append([]string(nil), p.playerArgs...), f.Name())
	if err := p.run(ctx, p.player, args...); err != nil {
		return fmt.Errorf("coqui: play: %w", err)
	}
	return nil
}

func (p *Provider) synthesize(ctx context.Context, phrase string) ([]byte, error) {
	var (
		req      *http.Request
		err      error
		endpoint string
	)
	if p.apiMode == APIModeXTTS {
		endpoint = ttsEndpoint
		data, merr := json.Marshal(ttsRequest{Text: phrase, SpeakerWav: p.voice, Language: p.language})
		if merr != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+endpoint, bytes.NewReader(data))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		endpoint = apiTTSEndpoint
		params := url.Values{}
		params.Set("text", phrase)
		if p.voice != "" {
			params.Set("speaker_id", p.voice)
		}
		if p.language != "" {
			params.Set("language_id", p.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}
