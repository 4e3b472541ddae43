package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/curaai/pkg/audio"
)

// Bridge converts compressed clips to canonical PCM. It is safe for
// concurrent use; all per-clip state is created inside Decode.
type Bridge struct {
	demuxer      Demuxer
	newDecoder   DecoderFactory
	newResampler ResamplerFactory
	targetRate   int
}

// Option is a functional option for Bridge.
type Option func(*Bridge)

// WithDemuxer replaces the WebM demuxer.
func WithDemuxer(d Demuxer) Option {
	return func(b *Bridge) { b.demuxer = d }
}

// WithDecoderFactory replaces the codec-ID based decoder selection.
func WithDecoderFactory(f DecoderFactory) Option {
	return func(b *Bridge) { b.newDecoder = f }
}

// WithResamplerFactory replaces the default high quality resampler.
func WithResamplerFactory(f ResamplerFactory) Option {
	return func(b *Bridge) { b.newResampler = f }
}

// WithTargetRate sets the output sample rate. Defaults to audio.CanonicalRate.
func WithTargetRate(rate int) Option {
	return func(b *Bridge) { b.targetRate = rate }
}

// New returns a Bridge that reads WebM, decodes Opus (or raw PCM) and
// resamples with [NewSoxrResampler] to 16 kHz unless overridden.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		demuxer:      WebMDemuxer{},
		newDecoder:   NewDecoder,
		newResampler: NewSoxrResampler,
		targetRate:   audio.CanonicalRate,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// TargetRate returns the output sample rate.
func (b *Bridge) TargetRate() int { return b.targetRate }

// Decode converts one complete clip to mono PCM at the target rate.
func (b *Bridge) Decode(ctx context.Context, data []byte) (*audio.PCM, error) {
	stream, err := b.demuxer.Open(bytes.NewReader(data))
	if err != nil {
		var noAudio *NoAudioStreamError
		if errors.As(err, &noAudio) {
			return nil, err
		}
		return nil, fmt.Errorf("codec: open container: %w", err)
	}
	defer stream.Close()

	track := stream.Track()
	dec, err := b.newDecoder(track)
	if err != nil {
		return nil, err
	}
	rs, err := b.newResampler(dec.SampleRate(), b.targetRate)
	if err != nil {
		return nil, fmt.Errorf("codec: create resampler: %w", err)
	}

	var samples []int16
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkt, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("codec: demux packet %d: %w", n, err)
		}

		frame, err := dec.Decode(pkt.Data)
		if err != nil {
			return nil, fmt.Errorf("codec: decode packet %d: %w", n, err)
		}
		out, err := rs.Process(audio.FirstChannel(frame, dec.Channels()))
		if err != nil {
			return nil, fmt.Errorf("codec: resample packet %d: %w", n, err)
		}
		samples = append(samples, out...)
	}

	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("codec: flush resampler: %w", err)
	}
	samples = append(samples, tail...)

	if len(samples) == 0 {
		return nil, ErrEmptyClip
	}
	return &audio.PCM{Samples: samples, SampleRate: b.targetRate}, nil
}
