package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Normalizer converts frames delivered by a source into the pipeline format
// (mono at the configured sample rate). It warns once on the first mismatch.
// Create one per source; it is not safe for concurrent use.
type Normalizer struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize returns frame in the target format. Frames already in the target
// format are returned unchanged. Frames with a torn trailing sample come back
// with nil Data and should be dropped by the caller.
func (n *Normalizer) Normalize(frame AudioFrame) AudioFrame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: misaligned PCM payload, dropping frame",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, channels}.String(),
			)
		})
		return AudioFrame{SampleRate: n.Target.SampleRate, Channels: 1, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == n.Target.SampleRate && channels == 1 {
		return frame
	}

	n.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", Format{frame.SampleRate, channels}.String(),
			"to", Format{n.Target.SampleRate, 1}.String(),
		)
	})

	// Downmix before resampling so only one channel is interpolated.
	pcm := Downmix(frame.Data, channels)
	pcm = ResampleMono16(pcm, frame.SampleRate, n.Target.SampleRate)

	return AudioFrame{
		Data:       pcm,
		SampleRate: n.Target.SampleRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

// Downmix averages interleaved channels into mono. Sums use int32 so the
// result never overflows; channels <= 1 returns pcm unchanged.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	stride := 2 * channels
	frames := len(pcm) / stride
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for c := range channels {
			off := i*stride + c*2
			sum += int32(int16(pcm[off]) | int16(pcm[off+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. Equal or invalid rates return pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCMToFloat32 converts int16 PCM to float32 samples in [-1, 1].
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}
