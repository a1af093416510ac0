// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/dawvox/pkg/audio"
	"github.com/MrWong99/dawvox/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider in-process with the whisper.cpp Go
// bindings. The model is loaded once and shared; each request gets its own
// whisper context. Inference runs one request at a time because a single
// request already saturates the CPU threads whisper.cpp is given.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint

	// slot serialises inference.
	slot chan struct{}
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default language ("de", "en", "auto").
// Defaults to "de".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads sets the number of CPU threads per inference.
// Zero keeps the whisper.cpp default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative loads the ggml model at modelPath. The caller must call Close.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		slot:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

type nativeResult struct {
	res stt.Result
	err error
}

// Transcribe runs inference on req. whisper.cpp cannot be interrupted, so when
// ctx ends first the call returns ctx.Err() and the inference finishes in the
// background, still holding the inference slot.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, stt.ErrEmptyAudio
	}
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return stt.Result{}, fmt.Errorf("whisper: waiting for inference slot: %w", ctx.Err())
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	pcm := audio.Downmix(req.PCM, max(req.Channels, 1))
	if req.SampleRate > 0 && req.SampleRate != defaultSampleRate {
		pcm = audio.ResampleMono16(pcm, req.SampleRate, defaultSampleRate)
	}
	samples := audio.PCMToFloat32(pcm)

	done := make(chan nativeResult, 1)
	go func() {
		defer func() { <-p.slot }()
		res, err := p.infer(samples, lang)
		done <- nativeResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return stt.Result{}, fmt.Errorf("whisper: %w", ctx.Err())
	}
}

func (p *NativeProvider) infer(samples []float32, lang string) (stt.Result, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts  []string
		probs  float64
		tokens int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range segment.Tokens {
			probs += float64(tok.P)
			tokens++
		}
	}

	res := stt.Result{Text: strings.Join(parts, " "), Language: lang}
	if tokens > 0 {
		res.Confidence = probs / float64(tokens)
	}
	return res, nil
}
