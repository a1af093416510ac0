// Package openai provides an stt.Provider for local servers that implement the
// OpenAI /v1/audio/transcriptions API (faster-whisper-server, LocalAI,
// speaches). The base URL must point at the local server; nothing is sent to
// api.openai.com unless it is configured explicitly.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
)

// DefaultModel is the model name most local servers map to whisper small.
const DefaultModel = "Systran/faster-whisper-small"

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider against an OpenAI-compatible server.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

type config struct {
	apiKey     string
	language   string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAPIKey sets the bearer token. Local servers usually ignore it.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithLanguage sets the language used when a request carries no hint.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Provider for the server at baseURL
// (e.g. "http://127.0.0.1:8000/v1"). If model is empty, DefaultModel is used.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("openai stt: baseURL must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{apiKey: "local"}
	for _, o := range opts {
		o(cfg)
	}

	// The adapter owns the latency budget and forbids retries, so the SDK's
	// own retry loop is disabled.
	reqOpts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, stt.ErrEmptyAudio
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(bytes.NewReader(wav(req)), "utterance.wav", "audio/wav"),
		Model:          p.model,
		ResponseFormat: oai.AudioResponseFormatJSON,
		Temperature:    oai.Float(0),
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	out := stt.Result{Text: strings.TrimSpace(res.Text), Language: lang}
	if len(res.Logprobs) > 0 {
		var sum float64
		for _, lp := range res.Logprobs {
			sum += math.Exp(lp.Logprob)
		}
		out.Confidence = sum / float64(len(res.Logprobs))
	}
	return out, nil
}

// wav wraps the request PCM in a WAV container at its native format.
func wav(req stt.Request) []byte {
	rate := req.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return audio.EncodeWAV(req.PCM, rate, max(req.Channels, 1))
}
