package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrCapture matches every [CaptureError] via errors.Is.
var ErrCapture = errors.New("audio: capture failed")

// CaptureError reports that the capture device or stream is unavailable.
// It is fatal: the pipeline halts and the process exits non-zero.
type CaptureError struct {
	Source string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("audio: capture from %s: %v", e.Source, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCapture) true for any CaptureError.
func (e *CaptureError) Is(target error) bool { return target == ErrCapture }

// Source delivers PCM frames from a capture device or stream.
//
// Stream calls sink once per frame, in capture order, from a single goroutine
// until ctx is cancelled or the stream ends. The sink must not block; callers
// pass [FrameQueue.Push]. A clean end of stream returns nil, a device failure
// returns a *CaptureError.
type Source interface {
	Stream(ctx context.Context, sink func(AudioFrame)) error
	Close() error
}

// ReaderSource reads raw PCM from an io.Reader (stdin, a pipe from arecord or
// sox, a recorded file) and slices it into fixed-size frames.
type ReaderSource struct {
	name   string
	r      io.Reader
	format Format
	size   int
	pace   bool
}

var _ Source = (*ReaderSource)(nil)

// ReaderOption configures a [ReaderSource].
type ReaderOption func(*ReaderSource)

// WithRealtime paces delivery to the audio clock, for replaying recordings
// as if they were live.
func WithRealtime() ReaderOption {
	return func(s *ReaderSource) { s.pace = true }
}

// NewReaderSource returns a source reading int16 PCM in format f from r, split
// into frames of frameSamples samples per channel. name identifies the source
// in errors and logs.
func NewReaderSource(name string, r io.Reader, f Format, frameSamples int, opts ...ReaderOption) *ReaderSource {
	if f.Channels <= 0 {
		f.Channels = 1
	}
	s := &ReaderSource{name: name, r: r, format: f, size: frameSamples}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stream implements [Source].
func (s *ReaderSource) Stream(ctx context.Context, sink func(AudioFrame)) error {
	if s.size <= 0 || s.format.SampleRate <= 0 {
		return &CaptureError{Source: s.name, Err: fmt.Errorf("invalid format %s with %d samples per frame", s.format, s.size)}
	}
	frameBytes := s.size * 2 * s.format.Channels
	frameDur := time.Duration(s.size) * time.Second / time.Duration(s.format.SampleRate)

	var ts time.Duration
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		buf := make([]byte, frameBytes)
		if _, err := io.ReadFull(s.r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return &CaptureError{Source: s.name, Err: err}
		}
		sink(AudioFrame{Data: buf, SampleRate: s.format.SampleRate, Channels: s.format.Channels, Timestamp: ts})
		ts += frameDur

		if s.pace {
			if wait := time.Until(start.Add(ts)); wait > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
		}
	}
}

// Close closes the underlying reader when it implements io.Closer.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
