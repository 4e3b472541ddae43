package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/curaai/pkg/audio"
)

// framesPerBuffer is 20ms at 16 kHz.
const framesPerBuffer = 320

// Local plays clips on the host's default output device. Clips are played
// one at a time; a second Play waits for the device.
type Local struct {
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

var _ Player = (*Local)(nil)

// NewLocal initialises PortAudio. Call Close on shutdown.
func NewLocal() (*Local, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("playback: init portaudio: %w", err)
	}
	return &Local{}, nil
}

// Close terminates PortAudio.
func (l *Local) Close() error {
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		err = portaudio.Terminate()
	})
	return err
}

// Play implements Player. The clip is loaded before Play returns so that the
// caller may delete the file as soon as the completion value arrives.
func (l *Local) Play(ctx context.Context, path string) (<-chan error, error) {
	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- l.play(ctx, pcm)
	}()
	return done, nil
}

func (l *Local) play(ctx context.Context, pcm *audio.PCM) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("playback: device closed")
	}

	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(pcm.SampleRate), len(buf), &buf)
	if err != nil {
		return fmt.Errorf("playback: open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("playback: start stream: %w", err)
	}
	defer stream.Stop()

	samples := pcm.Samples
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples)
		clear(buf[n:])
		samples = samples[n:]
		if err := stream.Write(); err != nil {
			return fmt.Errorf("playback: write: %w", err)
		}
	}
	return nil
}
