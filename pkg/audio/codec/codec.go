// Package codec is the bridge between compressed client audio and the
// canonical PCM form consumed by transcription.
//
// A [Bridge] demuxes a container, decodes the first audio track packet by
// packet, reduces every decoded frame to its first channel, resamples it to
// the target rate and finally flushes the resampler so that trailing samples
// held in its filter state are not lost. Any error aborts the whole clip.
//
// The three stages sit behind small interfaces ([Demuxer], [Decoder],
// [Resampler]) so alternative containers, codecs or resampling engines can be
// plugged in without touching the pipeline.
package codec

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Matroska track type of audio tracks.
const trackTypeAudio = 2

// Well-known Matroska codec identifiers.
const (
	CodecOpus   = "A_OPUS"
	CodecPCMInt = "A_PCM/INT/LIT"
)

var (
	// ErrUnsupportedCodec is returned when no decoder exists for the track codec.
	ErrUnsupportedCodec = errors.New("codec: unsupported audio codec")

	// ErrEmptyClip is returned when a clip decodes to zero samples.
	ErrEmptyClip = errors.New("codec: clip produced no audio")
)

// NoAudioStreamError is returned when a container holds no audio track.
type NoAudioStreamError struct {
	// Tracks is the number of non-audio tracks found.
	Tracks int
}

func (e *NoAudioStreamError) Error() string {
	return fmt.Sprintf("codec: no audio stream found in container (%d tracks)", e.Tracks)
}

// Track describes the selected audio track of a container.
type Track struct {
	Number     uint64
	CodecID    string
	SampleRate int
	Channels   int
}

// Packet is one compressed frame of the selected track.
type Packet struct {
	Data      []byte
	Timestamp time.Duration
}

// Stream yields the packets of one audio track in container order.
type Stream interface {
	Track() Track

	// Next returns the next packet or io.EOF when the track is exhausted.
	Next() (Packet, error)

	io.Closer
}

// Demuxer opens a container and selects its first audio track. It returns
// a *NoAudioStreamError if there is none.
type Demuxer interface {
	Open(r io.Reader) (Stream, error)
}

// Decoder turns packets into interleaved 16-bit samples.
type Decoder interface {
	Decode(packet []byte) ([]int16, error)

	// SampleRate is the rate of the decoded output.
	SampleRate() int

	// Channels is the number of interleaved channels in the decoded output.
	Channels() int
}

// DecoderFactory creates a fresh decoder for a track. Decoders carry state
// between packets, so every clip gets its own.
type DecoderFactory func(track Track) (Decoder, error)

// Resampler converts mono samples from one rate to another. Implementations
// may retain samples internally between calls; Flush drains them.
type Resampler interface {
	Process(in []int16) ([]int16, error)
	Flush() ([]int16, error)
}

// ResamplerFactory creates a mono resampler from srcRate to dstRate.
type ResamplerFactory func(srcRate, dstRate int) (Resampler, error)
