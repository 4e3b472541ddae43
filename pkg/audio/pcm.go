// Package audio holds the canonical PCM representation shared by the codec
// bridge, the transcription providers and playback, plus small conversion
// and WAV helpers.
//
// Canonical form is mono, signed 16-bit, at a fixed sample rate
// (CanonicalRate unless configured otherwise). Every clip handed to a
// transcriber is in this form regardless of how it was encoded on the wire.
package audio

import "time"

// CanonicalRate is the sample rate expected by the transcription stage.
const CanonicalRate = 16000

// BitDepth is the sample width of every PCM buffer in this package.
const BitDepth = 16

// PCM is a mono, 16-bit, little-endian-on-the-wire audio buffer.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Channels always returns 1. PCM buffers are mono by construction.
func (p *PCM) Channels() int { return 1 }

// Frames returns the number of sample frames in the buffer.
func (p *PCM) Frames() int { return len(p.Samples) }

// Duration returns the playback length of the buffer.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Bytes returns the samples as little-endian int16 bytes.
func (p *PCM) Bytes() []byte {
	return Int16sToBytes(p.Samples)
}
