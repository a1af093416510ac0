// Package wsource implements an [audio.Source] that receives microphone audio
// over a local WebSocket. A capture helper (browser tab, phone app, or a small
// recorder process on another machine in the studio) connects and streams
// binary messages containing either raw int16 PCM or Opus packets.
//
// The stream format is declared with query parameters on the upgrade request:
//
//	ws://127.0.0.1:8765/audio?codec=pcm&rate=44100&channels=2
//	ws://127.0.0.1:8765/audio?codec=opus&rate=48000&channels=1
//
// Incoming audio is normalised to the pipeline format and re-sliced into
// fixed-size frames before it reaches the sink. Only one client may stream at
// a time.
package wsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/MrWong99/dawvox/pkg/audio"
)

const (
	defaultPath      = "/audio"
	defaultReadLimit = 1 << 20

	// maxOpusFrameMs is the longest Opus frame the codec allows.
	maxOpusFrameMs = 120
)

// Codec names accepted in the codec query parameter.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Source is a WebSocket-backed [audio.Source].
type Source struct {
	addr         string
	path         string
	target       audio.Format
	frameSamples int

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	busy     bool
	sink     func(audio.AudioFrame)
}

var _ audio.Source = (*Source)(nil)

// Option is a functional option for [Source].
type Option func(*Source)

// WithPath sets the HTTP path clients connect to. Defaults to "/audio".
func WithPath(p string) Option {
	return func(s *Source) { s.path = p }
}

// WithListener serves on an existing listener instead of binding addr.
func WithListener(l net.Listener) Option {
	return func(s *Source) { s.listener = l }
}

// New creates a source listening on addr that delivers mono frames of
// frameSamples samples at sampleRate.
func New(addr string, sampleRate, frameSamples int, opts ...Option) (*Source, error) {
	if sampleRate <= 0 || frameSamples <= 0 {
		return nil, fmt.Errorf("wsource: invalid frame format %d Hz / %d samples", sampleRate, frameSamples)
	}
	s := &Source{
		addr:         addr,
		path:         defaultPath,
		target:       audio.Format{SampleRate: sampleRate, Channels: 1},
		frameSamples: frameSamples,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Handler returns the HTTP handler accepting audio streams. Frames are only
// delivered while [Source.Stream] is running.
func (s *Source) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.serveAudio)
	return mux
}

// Stream implements [audio.Source]. It serves until ctx is cancelled.
func (s *Source) Stream(ctx context.Context, sink func(audio.AudioFrame)) error {
	ln := s.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.addr)
		if err != nil {
			return &audio.CaptureError{Source: "websocket " + s.addr, Err: err}
		}
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.sink = sink
	s.mu.Unlock()

	slog.Info("websocket audio source listening", "addr", ln.Addr().String(), "path", s.path)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return &audio.CaptureError{Source: "websocket " + ln.Addr().String(), Err: err}
	}
}

// Close stops the HTTP server if it is running.
func (s *Source) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

func (s *Source) serveAudio(w http.ResponseWriter, r *http.Request) {
	in, err := parseFormat(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if s.busy || s.sink == nil {
		s.mu.Unlock()
		http.Error(w, "wsource: another client is already streaming", http.StatusConflict)
		return
	}
	s.busy = true
	sink := s.sink
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	dec, err := newDecoder(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("wsource: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(defaultReadLimit)
	defer conn.CloseNow()

	slog.Info("audio client connected", "remote", r.RemoteAddr, "codec", in.codec, "format", in.format.String())

	framer := newFramer(s.target, s.frameSamples)
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				slog.Info("audio client disconnected", "remote", r.RemoteAddr)
			} else {
				slog.Warn("audio client read failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		pcm, err := dec.decode(data)
		if err != nil {
			slog.Debug("wsource: dropping undecodable packet", "err", err)
			continue
		}
		framer.push(audio.AudioFrame{Data: pcm, SampleRate: in.format.SampleRate, Channels: in.format.Channels}, sink)
	}
}

type streamFormat struct {
	codec  string
	format audio.Format
}

func parseFormat(r *http.Request) (streamFormat, error) {
	q := r.URL.Query()
	f := streamFormat{codec: CodecPCM, format: audio.Format{SampleRate: 16000, Channels: 1}}
	if c := q.Get("codec"); c != "" {
		f.codec = c
	}
	if f.codec != CodecPCM && f.codec != CodecOpus {
		return f, fmt.Errorf("wsource: unsupported codec %q", f.codec)
	}
	if f.codec == CodecOpus {
		f.format.SampleRate = 48000
	}
	if v := q.Get("rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("wsource: invalid rate %q", v)
		}
		f.format.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 8 {
			return f, fmt.Errorf("wsource: invalid channels %q", v)
		}
		f.format.Channels = n
	}
	return f, nil
}

type decoder interface {
	decode(packet []byte) ([]byte, error)
}

func newDecoder(f streamFormat) (decoder, error) {
	if f.codec == CodecPCM {
		return pcmDecoder{}, nil
	}
	dec, err := gopus.NewDecoder(f.format.SampleRate, f.format.Channels)
	if err != nil {
		return nil, fmt.Errorf("wsource: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, maxSamples: f.format.SampleRate * maxOpusFrameMs / 1000}, nil
}

type pcmDecoder struct{}

func (pcmDecoder) decode(packet []byte) ([]byte, error) {
	return packet, nil
}

// opusDecoder keeps codec state across consecutive packets of one stream.
type opusDecoder struct {
	dec        *gopus.Decoder
	maxSamples int
}

func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.maxSamples, false)
	if err != nil {
		return nil, fmt.Errorf("wsource: opus decode: %w", err)
	}
	return audio.EncodeInt16(pcm), nil
}

// framer normalises arbitrary-sized chunks and emits fixed-size frames with
// timestamps derived from the delivered sample count.
type framer struct {
	norm    audio.Normalizer
	size    int
	pending []byte
	emitted int64
}

func newFramer(target audio.Format, samples int) *framer {
	return &framer{norm: audio.Normalizer{Target: target}, size: samples}
}

func (f *framer) push(chunk audio.AudioFrame, sink func(audio.AudioFrame)) {
	n := f.norm.Normalize(chunk)
	if len(n.Data) == 0 {
		return
	}
	f.pending = append(f.pending, n.Data...)
	frameBytes := f.size * 2
	for len(f.pending) >= frameBytes {
		data := make([]byte, frameBytes)
		copy(data, f.pending[:frameBytes])
		f.pending = f.pending[frameBytes:]

		ts := time.Duration(f.emitted) * time.Second / time.Duration(f.norm.Target.SampleRate)
		f.emitted += int64(f.size)
		sink(audio.AudioFrame{Data: data, SampleRate: f.norm.Target.SampleRate, Channels: 1, Timestamp: ts})
	}
}
