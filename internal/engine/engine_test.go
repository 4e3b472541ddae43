package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/curaai/internal/agent"
	"github.com/MrWong99/curaai/internal/segment"
	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/internal/tools/speak"
	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/audio/codec"
	playmock "github.com/MrWong99/curaai/pkg/audio/playback/mock"
	"github.com/MrWong99/curaai/pkg/provider/llm"
	llmmock "github.com/MrWong99/curaai/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/curaai/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/curaai/pkg/provider/tts/mock"
	"github.com/MrWong99/curaai/pkg/types"
)

// rawPCMDemuxer treats the whole clip as a single 16 kHz mono PCM packet.
type rawPCMDemuxer struct{}

func (rawPCMDemuxer) Open(r io.Reader) (codec.Stream, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &rawStream{data: data}, nil
}

type rawStream struct {
	data []byte
	done bool
}

func (s *rawStream) Track() codec.Track {
	return codec.Track{Number: 1, CodecID: codec.CodecPCMInt, SampleRate: 16000, Channels: 1}
}

func (s *rawStream) Next() (codec.Packet, error) {
	if s.done {
		return codec.Packet{}, io.EOF
	}
	s.done = true
	return codec.Packet{Data: s.data}, nil
}

func (s *rawStream) Close() error { return nil }

func pcmClip(samples int) segment.Clip {
	return segment.Clip{Data: audio.Int16sToBytes(make([]int16, samples)), Chunks: 1}
}

type fakeRecorder struct {
	mu       sync.Mutex
	stages   []string
	outcomes []string
}

func (r *fakeRecorder) RecordStage(_ context.Context, stage string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *fakeRecorder) RecordClip(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) lastOutcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

func newOrchestrator(t *testing.T, provider llm.Provider) *agent.Orchestrator {
	t.Helper()
	box := toolbox.New()
	if err := box.Register(speak.Tool(&ttsmock.Provider{}, &playmock.Player{}, speak.WithScratchDir(t.TempDir()))); err != nil {
		t.Fatal(err)
	}
	return agent.NewOrchestrator(provider, box, agent.Config{Instance: agent.InstanceConfig{
		Model:     "test",
		SpeakTool: speak.Name,
	}})
}

func spoken(text string) []*llm.CompletionResponse {
	return []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{{ID: "1", Name: speak.Name, Arguments: `{"ai_response":"` + text + `"}`}}},
		{Content: text},
	}
}

func TestProcessClip_HeadacheTurn(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	transcriber := &sttmock.Provider{Texts: []string{"I have a headache."}}
	rec := &fakeRecorder{}
	e := New(
		codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
		transcriber,
		newOrchestrator(t, &llmmock.Provider{Responses: spoken("How long have you had it?")}),
		WithScratchDir(scratch),
		WithRecorder(rec),
	)

	ledger := session.NewLedger("CuraAI")
	if err := e.ProcessClip(context.Background(), ledger, pcmClip(1600)); err != nil {
		t.Fatalf("ProcessClip: %v", err)
	}

	if ledger.Len() != 2 {
		t.Fatalf("ledger len = %d, want 2", ledger.Len())
	}
	want := "User: I have a headache.\nCuraAI: How long have you had it?"
	if got := ledger.Render(session.DefaultWindow); got != want {
		t.Errorf("ledger = %q, want %q", got, want)
	}

	calls := transcriber.Calls()
	if len(calls) != 1 {
		t.Fatalf("transcribe called %d times", len(calls))
	}
	if !calls[0].Existed || calls[0].Size < 1600*2 {
		t.Errorf("scratch WAV at transcribe time: %+v", calls[0])
	}
	if _, err := os.Stat(calls[0].Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("scratch file still present: %v", err)
	}
	if entries, _ := os.ReadDir(scratch); len(entries) != 0 {
		t.Errorf("scratch dir not empty: %d entries", len(entries))
	}
	if rec.lastOutcome() != OutcomeHandled || len(rec.stages) != 2 {
		t.Errorf("recorded stages %v outcomes %v", rec.stages, rec.outcomes)
	}
}

func TestProcessClip_Termination(t *testing.T) {
	t.Parallel()

	e := New(
		codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
		&sttmock.Provider{Text: "That's all, thank you."},
		newOrchestrator(t, &llmmock.Provider{Responses: spoken("Goodbye, have a nice day!")}),
		WithScratchDir(t.TempDir()),
	)
	err := e.ProcessClip(context.Background(), session.NewLedger(""), pcmClip(320))
	if !errors.Is(err, ErrConversationEnded) {
		t.Errorf("err = %v, want ErrConversationEnded", err)
	}
}

type failingDecoder struct{ err error }

func (d failingDecoder) Decode(context.Context, []byte) (*audio.PCM, error) { return nil, d.err }

func TestProcessClip_DroppedClips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		decoder     Decoder
		stt         *sttmock.Provider
		llm         *llmmock.Provider
		wantOutcome string
		wantLedger  int
	}{
		{
			name:        "undecodable",
			decoder:     failingDecoder{err: &codec.NoAudioStreamError{Tracks: 1}},
			stt:         &sttmock.Provider{Text: "unused"},
			llm:         &llmmock.Provider{},
			wantOutcome: OutcomeDecodeError,
		},
		{
			name:        "silence",
			decoder:     codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
			stt:         &sttmock.Provider{},
			llm:         &llmmock.Provider{},
			wantOutcome: OutcomeSilence,
		},
		{
			name:        "transcriber down",
			decoder:     codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
			stt:         &sttmock.Provider{Err: errors.New("503")},
			llm:         &llmmock.Provider{},
			wantOutcome: OutcomeSTTError,
		},
		{
			name:        "llm error keeps user turn",
			decoder:     codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
			stt:         &sttmock.Provider{Text: "Hello"},
			llm:         &llmmock.Provider{CompleteErr: errors.New("rate limited")},
			wantOutcome: OutcomeAgentError,
			wantLedger:  1,
		},
		{
			name:        "no output",
			decoder:     codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
			stt:         &sttmock.Provider{Text: "Hello"},
			llm:         &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}},
			wantOutcome: OutcomeNoOutput,
			wantLedger:  1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := &fakeRecorder{}
			e := New(tc.decoder, tc.stt, newOrchestrator(t, tc.llm),
				WithScratchDir(t.TempDir()), WithRecorder(rec))
			ledger := session.NewLedger("")
			if err := e.ProcessClip(context.Background(), ledger, pcmClip(320)); err != nil {
				t.Fatalf("ProcessClip must keep listening, got %v", err)
			}
			if got := rec.lastOutcome(); got != tc.wantOutcome {
				t.Errorf("outcome = %q, want %q", got, tc.wantOutcome)
			}
			if ledger.Len() != tc.wantLedger {
				t.Errorf("ledger len = %d, want %d", ledger.Len(), tc.wantLedger)
			}
		})
	}
}

func TestProcessClip_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(codec.New(codec.WithDemuxer(rawPCMDemuxer{})), &sttmock.Provider{Text: "x"}, newOrchestrator(t, &llmmock.Provider{}),
		WithScratchDir(t.TempDir()))
	if err := e.ProcessClip(ctx, session.NewLedger(""), pcmClip(320)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHandler_WithSegmenter(t *testing.T) {
	t.Parallel()

	chunks := make(chan []byte, 1)
	chunks <- audio.Int16sToBytes(make([]int16, 800))
	src := segment.SourceFunc(func(ctx context.Context) ([]byte, error) {
		select {
		case c := <-chunks:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	e := New(
		codec.New(codec.WithDemuxer(rawPCMDemuxer{})),
		&sttmock.Provider{Text: "Bye."},
		newOrchestrator(t, &llmmock.Provider{Responses: spoken("Goodbye, have a nice day!")}),
		WithScratchDir(t.TempDir()),
	)
	seg := segment.New(segment.WithIdleTimeout(20 * time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger := session.NewLedger("")
	if err := seg.Run(ctx, src, e.Handler(ledger)); !errors.Is(err, ErrConversationEnded) {
		t.Fatalf("Run err = %v, want ErrConversationEnded", err)
	}
	if ledger.Len() != 2 {
		t.Errorf("ledger len = %d, want 2", ledger.Len())
	}
}
