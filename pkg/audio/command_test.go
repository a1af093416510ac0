package audio_test

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"testing"

	"github.com/MrWong99/dawvox/pkg/audio"
)

func TestCommandSource_ReadsStdout(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	f := audio.Format{SampleRate: 16000, Channels: 1}
	src := audio.NewCommandSource("sh", []string{"-c", "head -c 32 /dev/zero"}, nil, f, 8)

	var n int
	err := src.Stream(context.Background(), func(audio.AudioFrame) { n++ })
	if n != 2 {
		t.Errorf("got %d frames, want 2", n)
	}
	// The recorder stopping on its own is a capture failure.
	if !errors.Is(err, audio.ErrCapture) {
		t.Errorf("Stream error = %v, want capture error", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close after exit: %v", err)
	}
}

func TestCommandSource_MissingBinary(t *testing.T) {
	t.Parallel()

	src := audio.NewCommandSource("dawvox-no-such-recorder", nil, nil, audio.Format{SampleRate: 16000, Channels: 1}, 8)
	err := src.Stream(context.Background(), func(audio.AudioFrame) {})
	var ce *audio.CaptureError
	if !errors.As(err, &ce) || ce.Source != "dawvox-no-such-recorder" {
		t.Errorf("Stream error = %v, want CaptureError", err)
	}
}

func TestCommandSource_CancelIsClean(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	src := audio.NewCommandSource("sh", []string{"-c", "cat /dev/zero"}, nil, audio.Format{SampleRate: 16000, Channels: 1}, 160)
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	err := src.Stream(ctx, func(audio.AudioFrame) {
		n++
		if n == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Errorf("Stream after cancel = %v, want nil", err)
	}
}

func TestRecArgs(t *testing.T) {
	t.Parallel()

	got := audio.RecArgs(audio.Format{SampleRate: 16000})
	want := []string{"-q", "-t", "raw", "-r", "16000", "-e", "signed-integer", "-b", "16", "-c", "1", "-"}
	if !slices.Equal(got, want) {
		t.Errorf("RecArgs = %v, want %v", got, want)
	}
}
