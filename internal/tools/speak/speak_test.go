package speak

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	playmock "github.com/MrWong99/curaai/pkg/audio/playback/mock"
	ttsmock "github.com/MrWong99/curaai/pkg/provider/tts/mock"
)

func TestSpeak_Success(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	synth := &ttsmock.Provider{}
	player := &playmock.Player{}
	ledger := session.NewLedger("")
	tool := Tool(synth, player, WithScratchDir(dir))

	ctx := session.NewContext(context.Background(), ledger)
	res := tool.Handler(ctx, `{"ai_response":"  How long have you had the headache?  "}`)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.Output != "How long have you had the headache?" {
		t.Errorf("output = %q", res.Output)
	}
	if got := ledger.Render(1); got != "CuraAI: How long have you had the headache?" {
		t.Errorf("ledger = %q", got)
	}

	calls := player.Calls()
	if len(calls) != 1 || !calls[0].Existed {
		t.Fatalf("player calls = %+v", calls)
	}
	if _, err := os.Stat(calls[0].Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("scratch file not removed: %v", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("scratch dir not empty: %d entries", len(entries))
	}
}

func TestSpeak_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		synth  *ttsmock.Provider
		player *playmock.Player
		noCtx  bool
		args   string
	}{
		{name: "bad json", synth: &ttsmock.Provider{}, player: &playmock.Player{}, args: `{`},
		{name: "empty text", synth: &ttsmock.Provider{}, player: &playmock.Player{}, args: `{"ai_response":"  "}`},
		{name: "no ledger", synth: &ttsmock.Provider{}, player: &playmock.Player{}, noCtx: true, args: `{"ai_response":"hi"}`},
		{name: "tts error", synth: &ttsmock.Provider{Err: errors.New("quota")}, player: &playmock.Player{}, args: `{"ai_response":"hi"}`},
		{name: "play error", synth: &ttsmock.Provider{}, player: &playmock.Player{PlayErr: errors.New("no device")}, args: `{"ai_response":"hi"}`},
		{name: "playback error", synth: &ttsmock.Provider{}, player: &playmock.Player{DoneErr: errors.New("underrun")}, args: `{"ai_response":"hi"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			ledger := session.NewLedger("")
			ctx := context.Background()
			if !tc.noCtx {
				ctx = session.NewContext(ctx, ledger)
			}
			res := Tool(tc.synth, tc.player, WithScratchDir(dir)).Handler(ctx, tc.args)
			if !res.Failed() || res.Output != "TOOL ERROR" {
				t.Fatalf("result = %+v, want TOOL ERROR failure", res)
			}
			if ledger.Len() != 0 {
				t.Error("failed speech must not be recorded")
			}
			if entries, _ := os.ReadDir(dir); len(entries) != 0 {
				t.Errorf("scratch file leaked on failure")
			}
		})
	}
}

func TestSpeak_WaitsForPlayback(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	player := &playmock.Player{Block: block}
	ledger := session.NewLedger("")
	tool := Tool(&ttsmock.Provider{}, player, WithScratchDir(t.TempDir()))

	resCh := make(chan toolbox.Result, 1)
	go func() {
		resCh <- tool.Handler(session.NewContext(context.Background(), ledger), `{"ai_response":"Take care."}`)
	}()

	select {
	case <-resCh:
		t.Fatal("tool returned before playback finished")
	case <-time.After(50 * time.Millisecond):
	}
	if ledger.Len() != 0 {
		t.Fatal("turn recorded before playback finished")
	}
	close(block)

	select {
	case res := <-resCh:
		if res.Failed() {
			t.Fatalf("unexpected failure: %v", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("tool did not return after playback finished")
	}
	if ledger.Len() != 1 {
		t.Errorf("ledger len = %d, want 1", ledger.Len())
	}
}

func TestSpeak_Definition(t *testing.T) {
	t.Parallel()

	def := Tool(&ttsmock.Provider{}, &playmock.Player{}).Definition
	if def.Name != "assistant_response" {
		t.Errorf("name = %q", def.Name)
	}
	props := def.Parameters["properties"].(map[string]any)
	if _, ok := props["ai_response"]; !ok {
		t.Error("missing ai_response parameter")
	}
}

func TestSpeak_ScratchFileNotRemovable(t *testing.T) {
	t.Parallel()

	// Replacing the reply file with a non-empty directory makes os.Remove fail
	// regardless of the caller's privileges.
	player := &playmock.Player{OnPlay: func(path string) {
		if err := os.Remove(path); err != nil {
			t.Errorf("remove: %v", err)
		}
		if err := os.Mkdir(path, 0o755); err != nil {
			t.Errorf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644); err != nil {
			t.Errorf("write: %v", err)
		}
	}}
	ledger := session.NewLedger("")
	ctx := session.NewContext(context.Background(), ledger)

	res := Tool(&ttsmock.Provider{}, player, WithScratchDir(t.TempDir())).Handler(ctx, `{"ai_response":"Please rest."}`)
	if !res.Failed() || res.Output != Sentinel {
		t.Fatalf("result = %+v, want %s failure", res, Sentinel)
	}
	if ledger.Len() != 0 {
		t.Error("reply must not be recorded when its scratch file could not be removed")
	}
}
