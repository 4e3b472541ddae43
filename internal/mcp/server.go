// Package mcp exposes the agent's tool box as a Model Context Protocol
// server, so external MCP clients can search the literature, look up
// articles, speak to the patient and save summaries with the same handlers
// the voice agent uses.
//
// Tool calls arriving over MCP run against the ledger of a fixed session
// identifier. In the shared session scope that is the same ledger the voice
// connections use.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/types"
)

// DefaultSessionID is the session identifier MCP tool calls run under.
const DefaultSessionID = "mcp"

// Ledgers resolves session identifiers. *session.Manager implements it.
type Ledgers interface {
	Get(id string) *session.Ledger
}

var _ Ledgers = (*session.Manager)(nil)

// Executor runs tool calls. *toolbox.Box implements it.
type Executor interface {
	Definitions() []types.ToolDefinition
	Execute(ctx context.Context, call types.ToolCall) toolbox.Result
}

var _ Executor = (*toolbox.Box)(nil)

// Server wraps an MCP SDK server whose tools dispatch into an Executor.
type Server struct {
	sdk       *mcpsdk.Server
	tools     Executor
	ledgers   Ledgers
	sessionID string
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSessionID changes the session identifier used for tool calls.
func WithSessionID(id string) Option { return func(s *Server) { s.sessionID = id } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer registers every tool known to tools with a new MCP server.
func NewServer(tools Executor, ledgers Ledgers, version string, opts ...Option) *Server {
	s := &Server{
		tools:     tools,
		ledgers:   ledgers,
		sessionID: DefaultSessionID,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	s.sdk = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "curaai", Version: version}, nil)
	for _, def := range tools.Definitions() {
		s.sdk.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def.Parameters),
		}, s.handler(def.Name))
	}
	return s
}

// SDK returns the underlying SDK server.
func (s *Server) SDK() *mcpsdk.Server { return s.sdk }

// Handler returns the streamable HTTP transport for the server.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

func (s *Server) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args string
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			args = string(req.Params.Arguments)
		}

		ledger := s.ledgers.Get(s.sessionID)
		res := s.tools.Execute(session.NewContext(ctx, ledger), types.ToolCall{Name: name, Arguments: args})
		s.logger.Debug("mcp: tool call", "tool", name, "failed", res.Failed())

		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Output}},
			IsError: res.Failed(),
		}, nil
	}
}

// inputSchema returns params, or an empty object schema when a tool takes no
// arguments. The SDK rejects tools without an object schema.
func inputSchema(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{"type": "object"}
	}
	return params
}
