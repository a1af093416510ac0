package audio_test

import (
	"testing"

	"github.com/MrWong99/dawvox/pkg/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	pcm := audio.EncodeInt16([]int16{1, -1, 300, -300})
	wav := audio.EncodeWAV(pcm, 22050, 2)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("encoded length: got %d, want %d", len(wav), 44+len(pcm))
	}

	got, f, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f.SampleRate != 22050 || f.Channels != 2 {
		t.Errorf("format: got %+v", f)
	}
	if string(got) != string(pcm) {
		t.Error("payload mismatch")
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()

	if _, _, err := audio.DecodeWAV([]byte("not a wav file at all")); err == nil {
		t.Error("expected error for non-RIFF input")
	}
	wav := audio.EncodeWAV(nil, 16000, 1)
	wav[34] = 8 // 8-bit
	if _, _, err := audio.DecodeWAV(wav); err == nil {
		t.Error("expected error for 8-bit WAV")
	}
}
