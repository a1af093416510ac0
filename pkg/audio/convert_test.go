package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/dawvox/pkg/audio"
)

func bytesToSamples(b []byte) []int16 {
	return audio.AudioFrame{Data: b}.Int16()
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{name: "stereo", in: []int16{100, 200, -100, -200}, channels: 2, want: []int16{150, -150}},
		{name: "stereo clamps", in: []int16{32767, 32767}, channels: 2, want: []int16{32767}},
		{name: "four channels", in: []int16{4, 8, 12, 16}, channels: 4, want: []int16{10}},
		{name: "mono passthrough", in: []int16{1, 2, 3}, channels: 1, want: []int16{1, 2, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Downmix(audio.EncodeInt16(tc.in), tc.channels))
			if len(got) != len(tc.want) {
				t.Fatalf("length mismatch: got %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	pcm := audio.EncodeInt16([]int16{0, 100, 200, 300, 400, 500})

	if out := audio.ResampleMono16(pcm, 16000, 16000); len(out) != len(pcm) {
		t.Fatalf("same rate: got %d bytes, want %d", len(out), len(pcm))
	}

	down := bytesToSamples(audio.ResampleMono16(pcm, 48000, 16000))
	if len(down) != 2 {
		t.Fatalf("48k->16k: got %d samples, want 2", len(down))
	}
	if down[0] != 0 || down[1] != 300 {
		t.Errorf("48k->16k: got %v, want [0 300]", down)
	}

	up := bytesToSamples(audio.ResampleMono16(audio.EncodeInt16([]int16{0, 100}), 8000, 16000))
	if len(up) != 4 {
		t.Fatalf("8k->16k: got %d samples, want 4", len(up))
	}
	if up[1] != 50 {
		t.Errorf("8k->16k interpolated sample: got %d, want 50", up[1])
	}
}

func TestNormalizer(t *testing.T) {
	t.Parallel()

	n := &audio.Normalizer{Target: audio.Format{SampleRate: 16000, Channels: 1}}

	t.Run("passthrough", func(t *testing.T) {
		in := audio.AudioFrame{Data: audio.EncodeInt16([]int16{1, 2}), SampleRate: 16000, Channels: 1, Timestamp: time.Second}
		out := n.Normalize(in)
		if &out.Data[0] != &in.Data[0] {
			t.Error("expected matching frame to be returned without copying")
		}
	})

	t.Run("stereo 32k", func(t *testing.T) {
		in := audio.AudioFrame{
			Data:       audio.EncodeInt16([]int16{100, 300, 100, 300, 500, 700, 500, 700}),
			SampleRate: 32000,
			Channels:   2,
			Timestamp:  20 * time.Millisecond,
		}
		out := n.Normalize(in)
		if out.Channels != 1 || out.SampleRate != 16000 {
			t.Fatalf("got format %d/%d, want 16000/1", out.SampleRate, out.Channels)
		}
		if out.Timestamp != in.Timestamp {
			t.Errorf("timestamp: got %v, want %v", out.Timestamp, in.Timestamp)
		}
		got := bytesToSamples(out.Data)
		if len(got) != 2 || got[0] != 200 || got[1] != 600 {
			t.Errorf("samples: got %v, want [200 600]", got)
		}
	})

	t.Run("misaligned", func(t *testing.T) {
		out := n.Normalize(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
		if out.Data != nil {
			t.Errorf("expected nil data for torn frame, got %d bytes", len(out.Data))
		}
	})
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := audio.AudioFrame{Data: make([]byte, 512*2), SampleRate: 16000, Channels: 1, Timestamp: time.Second}
	if got, want := f.Duration(), 32*time.Millisecond; got != want {
		t.Errorf("Duration: got %v, want %v", got, want)
	}
	if got, want := f.End(), time.Second+32*time.Millisecond; got != want {
		t.Errorf("End: got %v, want %v", got, want)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(audio.EncodeInt16([]int16{0, 0, 0})); got != 0 {
		t.Errorf("silence RMS: got %v, want 0", got)
	}
	loud := audio.RMS(audio.EncodeInt16([]int16{16384, -16384, 16384, -16384}))
	if loud < 0.49 || loud > 0.51 {
		t.Errorf("half-scale RMS: got %v, want 0.5", loud)
	}
	if got := audio.DBFS(0); got != -96 {
		t.Errorf("DBFS(0): got %v, want -96", got)
	}
	if got := audio.DBFS(1); got != 0 {
		t.Errorf("DBFS(1): got %v, want 0", got)
	}
}
