package audio

import "math"

// RMS returns the root-mean-square amplitude of int16 PCM, normalised to [0, 1].
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2])|int16(pcm[i*2+1])<<8) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS converts a normalised RMS value to decibels relative to full scale.
// Digital silence returns -96 dBFS, the floor of 16-bit PCM.
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return -96
	}
	return math.Max(20*math.Log10(rms), -96)
}
