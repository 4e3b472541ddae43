package playback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/curaai/pkg/audio"
)

// Sink delivers encoded audio to the connected client.
type Sink interface {
	SendAudio(ctx context.Context, wav []byte) error
}

// Discard is a Sink that drops every clip. Text-only clients use it so that
// spoken replies are still paced and recorded.
var Discard Sink = discard{}

type discard struct{}

func (discard) SendAudio(context.Context, []byte) error { return nil }

type sinkKey struct{}

// WithSink returns a context carrying the connection's sink. The websocket
// handler attaches it before processing each utterance.
func WithSink(ctx context.Context, s Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFrom returns the sink stored in ctx, if any.
func SinkFrom(ctx context.Context) (Sink, bool) {
	s, ok := ctx.Value(sinkKey{}).(Sink)
	return s, ok && s != nil
}

// Client sends the WAV to the browser and completes after the clip's
// duration, which is roughly when the browser finishes playing it. Keeping the
// turn open that long stops the patient's next utterance from overlapping the
// reply.
type Client struct {
	// Slack is added to the clip duration. Defaults to 250ms when zero.
	Slack time.Duration

	Logger *slog.Logger
}

var _ Player = (*Client)(nil)

// Play implements Player.
func (c *Client) Play(ctx context.Context, path string) (<-chan error, error) {
	sink, ok := SinkFrom(ctx)
	if !ok {
		return nil, ErrNoSink
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("playback: read clip: %w", err)
	}
	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	if err := sink.SendAudio(ctx, data); err != nil {
		return nil, fmt.Errorf("playback: send clip: %w", err)
	}

	slack := c.Slack
	if slack == 0 {
		slack = 250 * time.Millisecond
	}
	wait := pcm.Duration() + slack

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("playback: clip sent to client", "bytes", len(data), "duration", pcm.Duration())

	done := make(chan error, 1)
	go func() {
		defer close(done)
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
	}()
	return done, nil
}
