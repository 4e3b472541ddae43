package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/internal/tools/speak"
	"github.com/MrWong99/curaai/internal/tools/summary"
	playmock "github.com/MrWong99/curaai/pkg/audio/playback/mock"
	ttsmock "github.com/MrWong99/curaai/pkg/provider/tts/mock"
)

func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := s.SDK().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newServer(t *testing.T) (*Server, *session.Manager, string) {
	t.Helper()
	summaryPath := filepath.Join(t.TempDir(), "diagnosis_summary.txt")
	box := toolbox.New()
	for _, tool := range []toolbox.Tool{
		speak.Tool(&ttsmock.Provider{}, &playmock.Player{}, speak.WithScratchDir(t.TempDir())),
		summary.Tool(summaryPath),
	} {
		if err := box.Register(tool); err != nil {
			t.Fatal(err)
		}
	}
	mgr, err := session.NewManager(session.ScopeShared, "CuraAI")
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(box, mgr, "test"), mgr, summaryPath
}

func text(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *TextContent", res.Content[0])
	}
	return tc.Text
}

func TestServer_ListsTools(t *testing.T) {
	t.Parallel()

	s, _, _ := newServer(t)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	if !names[speak.Name] || !names[summary.Name] || len(names) != 2 {
		t.Errorf("tools = %v", names)
	}
}

func TestServer_CallTool(t *testing.T) {
	t.Parallel()

	s, mgr, summaryPath := newServer(t)
	cs := connect(t, s)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      summary.Name,
		Arguments: map[string]any{"diagnosis_summary": "Tension headache, 2 days."},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || text(t, res) != "Diagnosis summary saved to "+summaryPath {
		t.Errorf("unexpected result %+v", res)
	}
	if data, _ := os.ReadFile(summaryPath); string(data) != "Tension headache, 2 days." {
		t.Errorf("summary file = %q", data)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      speak.Name,
		Arguments: map[string]any{"ai_response": "Please rest and drink water."},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("speak failed: %s", text(t, res))
	}
	ledger := mgr.Get(DefaultSessionID)
	if got := ledger.Render(0); got != "CuraAI: Please rest and drink water." {
		t.Errorf("ledger = %q", got)
	}
}

func TestServer_ToolFailureIsResult(t *testing.T) {
	t.Parallel()

	s, _, _ := newServer(t)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      speak.Name,
		Arguments: map[string]any{"ai_response": "   "},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || text(t, res) != speak.Sentinel {
		t.Errorf("want sentinel error result, got %+v", res)
	}
}

func TestInputSchema(t *testing.T) {
	t.Parallel()

	if got := inputSchema(nil); got["type"] != "object" {
		t.Errorf("empty schema = %v", got)
	}
	p := toolbox.StringParam("pmid", "id")
	if got := inputSchema(p); got["required"] == nil {
		t.Errorf("schema not passed through: %v", got)
	}
}
