package codec

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/curaai/pkg/audio"
)

// Opus always decodes at 48 kHz; 5760 samples per channel is the largest
// legal frame (120 ms).
const (
	opusSampleRate   = 48000
	opusMaxFrameSize = 5760
)

// NewDecoder selects a decoder by the track's codec identifier.
func NewDecoder(track Track) (Decoder, error) {
	switch track.CodecID {
	case CodecOpus:
		return NewOpusDecoder(track.Channels)
	case CodecPCMInt:
		return NewPCMDecoder(track.SampleRate, track.Channels)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, track.CodecID)
	}
}

// opusDecoder wraps a gopus decoder for a single clip. Opus decoding is
// stateful, so the decoder must see the clip's packets in order.
type opusDecoder struct {
	dec      *gopus.Decoder
	channels int
}

// NewOpusDecoder creates a 48 kHz Opus decoder for mono or stereo streams.
func NewOpusDecoder(channels int) (Decoder, error) {
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		return nil, fmt.Errorf("%w: opus with %d channels", ErrUnsupportedCodec, channels)
	}
	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, channels: channels}, nil
}

func (d *opusDecoder) Decode(packet []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(packet, opusMaxFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: %w", err)
	}
	return pcm, nil
}

func (d *opusDecoder) SampleRate() int { return opusSampleRate }
func (d *opusDecoder) Channels() int   { return d.channels }

// pcmDecoder passes little-endian 16-bit PCM through unchanged.
type pcmDecoder struct {
	rate     int
	channels int
}

// NewPCMDecoder returns a decoder for raw 16-bit little-endian PCM tracks.
func NewPCMDecoder(rate, channels int) (Decoder, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: pcm track without sample rate", ErrUnsupportedCodec)
	}
	if channels < 1 {
		channels = 1
	}
	return &pcmDecoder{rate: rate, channels: channels}, nil
}

func (d *pcmDecoder) Decode(packet []byte) ([]int16, error) {
	if len(packet)%(2*d.channels) != 0 {
		return nil, fmt.Errorf("pcm: packet of %d bytes is not frame aligned", len(packet))
	}
	return audio.BytesToInt16s(packet), nil
}

func (d *pcmDecoder) SampleRate() int { return d.rate }
func (d *pcmDecoder) Channels() int   { return d.channels }
