// Package segment turns a continuous stream of network chunks into discrete
// utterance clips using an inactivity timeout.
//
// The segmenter does not look at the waveform. Absence of any new chunk for
// the idle window marks the end of an utterance; the bytes accumulated so far
// are handed to the caller as one [Clip] and the buffer starts empty again.
// There is no upper bound on utterance length: a client that keeps sending
// keeps extending the current clip.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultIdleTimeout is the inactivity window that ends an utterance.
const DefaultIdleTimeout = 3 * time.Second

// ErrConnectionClosed wraps the error that ended the chunk source. Any
// partially accumulated utterance is discarded when it is returned.
var ErrConnectionClosed = errors.New("segment: connection closed")

// Source delivers raw chunks from a persistent connection. Chunk
// boundaries carry no meaning.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Read calls f(ctx).
func (f SourceFunc) Read(ctx context.Context) ([]byte, error) { return f(ctx) }

// Clip is one utterance worth of compressed audio.
type Clip struct {
	Data []byte

	// Chunks is the number of network chunks that made up the clip.
	Chunks int

	// Started is when the first chunk arrived, Ended when the last one did.
	Started time.Time
	Ended   time.Time
}

// Handler consumes a clip. A non-nil error stops the segmenter and is
// returned from Run unchanged.
type Handler func(ctx context.Context, clip Clip) error

// State is the segmenter's position in its two-state cycle.
type State int32

const (
	// Listening accumulates chunks.
	Listening State = iota
	// Flushing hands a completed clip to the handler.
	Flushing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Listening:
		return "listening"
	case Flushing:
		return "flushing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Segmenter runs the idle-timeout state machine for one connection.
type Segmenter struct {
	idle   time.Duration
	logger *slog.Logger
	state  atomic.Int32
}

// Option is a functional option for Segmenter.
type Option func(*Segmenter)

// WithIdleTimeout sets the inactivity window. Non-positive values are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Segmenter) {
		if d > 0 {
			s.idle = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Segmenter) { s.logger = l }
}

// New creates a Segmenter in the Listening state.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{idle: DefaultIdleTimeout, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports the current state.
func (s *Segmenter) State() State { return State(s.state.Load()) }

// IdleTimeout returns the configured inactivity window.
func (s *Segmenter) IdleTimeout() time.Duration { return s.idle }

type readResult struct {
	data []byte
	err  error
}

// Run reads from src until it fails, ctx is cancelled or fn returns an
// error. Clips are delivered synchronously: while fn runs no further chunk is
// taken from src, so a new utterance is not accepted until the previous one
// has been fully handled.
func (s *Segmenter) Run(ctx context.Context, src Source, fn Handler) error {
	done := make(chan struct{})
	defer close(done)

	chunks := make(chan readResult)
	go pump(ctx, src, chunks, done)

	timer := time.NewTimer(s.idle)
	defer timer.Stop()

	var clip Clip
	s.state.Store(int32(Listening))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-chunks:
			if r.err != nil {
				if len(clip.Data) > 0 {
					s.logger.Debug("segment: discarding partial utterance", "bytes", len(clip.Data))
				}
				return fmt.Errorf("%w: %w", ErrConnectionClosed, r.err)
			}
			now := time.Now()
			if clip.Chunks == 0 {
				clip.Started = now
			}
			clip.Data = append(clip.Data, r.data...)
			clip.Chunks++
			clip.Ended = now
			resetTimer(timer, s.idle)

		case <-timer.C:
			if len(clip.Data) == 0 {
				timer.Reset(s.idle)
				continue
			}

			out := clip
			clip = Clip{}
			s.logger.Debug("segment: utterance ended", "bytes", len(out.Data), "chunks", out.Chunks)

			s.state.Store(int32(Flushing))
			err := fn(ctx, out)
			s.state.Store(int32(Listening))
			if err != nil {
				return err
			}
			timer.Reset(s.idle)
		}
	}
}

// pump forwards chunks from src. It stops after the first error or once Run
// has returned; a Read that is still blocked then ends when the owner closes
// the connection.
func pump(ctx context.Context, src Source, out chan<- readResult, done <-chan struct{}) {
	for {
		data, err := src.Read(ctx)
		select {
		case out <- readResult{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// resetTimer re-arms t, draining a pending expiry first.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
