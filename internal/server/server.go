// Package server is the HTTP surface of CuraAI.
//
// Routes:
//
//	GET  /audio                      websocket; binary messages are WebM/Opus chunks
//	GET  /api/session/{id}           conversation dump
//	POST /api/session/{id}/messages  text turn, for clients without a microphone
//	GET  /healthz, /readyz           liveness and readiness
//	GET  /metrics                    Prometheus scrape endpoint
//	     /mcp                        MCP streamable HTTP endpoint
//
// Every audio connection runs its own segmenter on the request goroutine and
// processes utterances synchronously.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/curaai/internal/agent"
	"github.com/MrWong99/curaai/internal/engine"
	"github.com/MrWong99/curaai/internal/health"
	"github.com/MrWong99/curaai/internal/observe"
	"github.com/MrWong99/curaai/internal/segment"
	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/pkg/audio/playback"
)

// Defaults.
const (
	DefaultAudioPath = "/audio"
	DefaultMCPPath   = "/mcp"

	// DefaultReadLimit bounds a single websocket message.
	DefaultReadLimit = 1 << 20

	// maxChatBody bounds the JSON body of a text turn.
	maxChatBody = 64 << 10
)

// Server routes HTTP requests. Create it with New and mount Handler.
type Server struct {
	engine   *engine.Engine
	agent    engine.Agent
	sessions *session.Manager

	audioPath      string
	idleTimeout    time.Duration
	readLimit      int64
	originPatterns []string

	metrics        *observe.Metrics
	metricsHandler http.Handler
	health         *health.Handler
	mcpPath        string
	mcpHandler     http.Handler
	logger         *slog.Logger
}

// Option is a functional option for Server.
type Option func(*Server)

// WithAudioPath changes the websocket path. Default "/audio".
func WithAudioPath(p string) Option { return func(s *Server) { s.audioPath = p } }

// WithIdleTimeout sets the utterance idle timeout of every connection.
func WithIdleTimeout(d time.Duration) Option { return func(s *Server) { s.idleTimeout = d } }

// WithReadLimit bounds a single websocket message in bytes.
func WithReadLimit(n int64) Option { return func(s *Server) { s.readLimit = n } }

// WithOriginPatterns allows cross-origin websocket clients matching the
// given host patterns.
func WithOriginPatterns(p ...string) Option {
	return func(s *Server) { s.originPatterns = append(s.originPatterns, p...) }
}

// WithMetrics instruments requests and connections.
func WithMetrics(m *observe.Metrics, scrape http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = scrape
	}
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithMCP mounts an MCP handler at path.
func WithMCP(path string, h http.Handler) Option {
	return func(s *Server) {
		s.mcpPath = path
		s.mcpHandler = h
	}
}

// WithChat enables text turns handled by a.
func WithChat(a engine.Agent) Option { return func(s *Server) { s.agent = a } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New creates a Server.
func New(eng *engine.Engine, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		engine:      eng,
		sessions:    sessions,
		audioPath:   DefaultAudioPath,
		idleTimeout: segment.DefaultIdleTimeout,
		readLimit:   DefaultReadLimit,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.mcpPath == "" {
		s.mcpPath = DefaultMCPPath
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.audioPath, s.serveAudio)
	mux.HandleFunc("GET /api/session/{id}", s.serveSession)
	if s.agent != nil {
		mux.HandleFunc("POST /api/session/{id}/messages", s.serveChat)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcpHandler != nil {
		mux.Handle(s.mcpPath, s.mcpHandler)
	}

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

type sessionResponse struct {
	SessionID    string         `json:"session_id"`
	Conversation []session.Turn `json:"conversation"`
}

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ledger, ok := s.sessions.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    s.sessions.Resolve(id),
		Conversation: ledger.Turns(),
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response     string         `json:"response"`
	Ended        bool           `json:"ended"`
	Conversation []session.Turn `json:"conversation"`
}

func (s *Server) serveChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	w.Header().Set(SessionHeader, s.sessions.Resolve(id))
	ctx := observe.WithSession(r.Context(), s.sessions.Resolve(id))
	if _, ok := playback.SinkFrom(ctx); !ok {
		ctx = playback.WithSink(ctx, playback.Discard)
	}
	ledger := s.sessions.Get(id)
	out, err := s.agent.HandleUtterance(ctx, ledger, req.Message)
	switch {
	case errors.Is(err, session.ErrEmptyTurn):
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	case errors.Is(err, agent.ErrNoOutput):
		// The turn happened; there is just nothing to report.
	case err != nil:
		observe.Enrich(ctx, s.logger).Error("server: chat turn failed", "err", err)
		writeError(w, http.StatusBadGateway, "agent turn failed")
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:     out.Output,
		Ended:        out.Ended,
		Conversation: ledger.Turns(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
