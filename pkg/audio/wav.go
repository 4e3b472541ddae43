package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrEmptyPCM is returned when asked to persist a buffer with no samples.
var ErrEmptyPCM = errors.New("audio: empty PCM buffer")

// WriteWAV persists pcm as an uncompressed WAV file at path. The header
// carries explicit channel count (1), sample width (16 bit) and frame rate.
// Any existing file is truncated.
func WriteWAV(path string, pcm *PCM) error {
	if pcm == nil || len(pcm.Samples) == 0 {
		return ErrEmptyPCM
	}
	if pcm.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", pcm.SampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create wav: %w", err)
	}
	if err := EncodeWAV(f, pcm); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close wav: %w", err)
	}
	return nil
}

// EncodeWAV writes pcm to w as a mono 16-bit WAV stream. The encoder needs to
// seek back to patch the RIFF sizes, hence io.WriteSeeker.
func EncodeWAV(w io.WriteSeeker, pcm *PCM) error {
	if pcm == nil || len(pcm.Samples) == 0 {
		return ErrEmptyPCM
	}
	data := make([]int, len(pcm.Samples))
	for i, s := range pcm.Samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, pcm.SampleRate, BitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: pcm.SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// ReadWAV loads a 16-bit WAV file. Multi-channel files are reduced to their
// first channel.
func ReadWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV reads a 16-bit WAV stream from r.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("audio: not a valid wav stream")
	}
	if d.BitDepth != BitDepth {
		return nil, fmt.Errorf("audio: unsupported wav bit depth %d", d.BitDepth)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return &PCM{
		Samples:    FirstChannel(samples, int(d.NumChans)),
		SampleRate: int(d.SampleRate),
	}, nil
}
