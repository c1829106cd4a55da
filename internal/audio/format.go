// Package audio moves 16-bit mono PCM between devices and the live session:
// chunking microphone input, detecting speech onset, and feeding playback.
package audio

import (
	"math"
	"time"
)

// Format describes 16-bit signed little-endian mono PCM.
type Format struct {
	SampleRate int
}

// BytesFor returns the byte length of d worth of audio, rounded down to a
// whole sample.
func (f Format) BytesFor(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * 2
}

// Duration returns the playing time of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n/2) * int64(time.Second) / int64(f.SampleRate))
}

// RMSEnergy returns the root-mean-square energy of pcm in [0, 1].
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(uint16(pcm[i])|uint16(pcm[i+1])<<8)) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(samples))
}
