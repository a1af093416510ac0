package audio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
)

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReaderSource_Frames(t *testing.T) {
	t.Parallel()

	// 2.5 frames of 4 samples: the torn tail is discarded.
	pcm := audio.EncodeInt16([]int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	src := audio.NewReaderSource("test", bytes.NewReader(pcm), audio.Format{SampleRate: 16000, Channels: 1}, 4)

	var got []audio.AudioFrame
	if err := src.Stream(context.Background(), func(f audio.AudioFrame) { got = append(got, f) }); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[1].Timestamp != 250*time.Microsecond {
		t.Errorf("second frame timestamp: got %v, want 250µs", got[1].Timestamp)
	}
	if s := got[1].Int16(); s[0] != 5 {
		t.Errorf("second frame first sample: got %d, want 5", s[0])
	}
}

func TestReaderSource_CaptureError(t *testing.T) {
	t.Parallel()

	src := audio.NewReaderSource("mic", failingReader{err: io.ErrClosedPipe}, audio.Format{SampleRate: 16000}, 160)
	err := src.Stream(context.Background(), func(audio.AudioFrame) {})

	var ce *audio.CaptureError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *CaptureError", err)
	}
	if !errors.Is(err, audio.ErrCapture) || !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("error chain incomplete: %v", err)
	}
	if ce.Source != "mic" {
		t.Errorf("Source: got %q, want mic", ce.Source)
	}
}

func TestReaderSource_InvalidFormat(t *testing.T) {
	t.Parallel()

	src := audio.NewReaderSource("bad", bytes.NewReader(nil), audio.Format{}, 0)
	if err := src.Stream(context.Background(), func(audio.AudioFrame) {}); !errors.Is(err, audio.ErrCapture) {
		t.Errorf("got %v, want capture error", err)
	}
}

func TestUtterancePCM(t *testing.T) {
	t.Parallel()

	u := &audio.Utterance{
		Frames: []audio.AudioFrame{
			{Data: audio.EncodeInt16([]int16{1, 2}), SampleRate: 16000},
			{Data: audio.EncodeInt16([]int16{3}), SampleRate: 16000},
		},
		Start: time.Second,
		End:   2 * time.Second,
	}
	if got := (audio.AudioFrame{Data: u.PCM()}).Int16(); len(got) != 3 || got[2] != 3 {
		t.Errorf("PCM: got %v", got)
	}
	if u.SampleRate() != 16000 {
		t.Errorf("SampleRate: got %d", u.SampleRate())
	}
	if u.Duration() != time.Second {
		t.Errorf("Duration: got %v", u.Duration())
	}
}
