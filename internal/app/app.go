// Package app wires all CuraAI subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Serve runs the HTTP listener, and Shutdown tears everything down
// in reverse order.
//
// For testing, inject doubles via functional options (WithPlayer,
// WithLiterature, WithMetrics). When an option is not provided, New creates
// the real implementation from the config.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/curaai/internal/agent"
	"github.com/MrWong99/curaai/internal/config"
	"github.com/MrWong99/curaai/internal/engine"
	"github.com/MrWong99/curaai/internal/health"
	"github.com/MrWong99/curaai/internal/mcp"
	"github.com/MrWong99/curaai/internal/observe"
	"github.com/MrWong99/curaai/internal/pubmed"
	"github.com/MrWong99/curaai/internal/resilience"
	"github.com/MrWong99/curaai/internal/server"
	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/internal/tools/pubmedtool"
	"github.com/MrWong99/curaai/internal/tools/speak"
	"github.com/MrWong99/curaai/internal/tools/summary"
	"github.com/MrWong99/curaai/pkg/audio/codec"
	"github.com/MrWong99/curaai/pkg/audio/playback"
)

const (
	readHeaderTimeout = 10 * time.Second
	breakerFailures   = 3
	breakerReset      = 30 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	level     *slog.LevelVar
	version   string

	metrics  *observe.Metrics
	scrape   http.Handler
	player   playback.Player
	articles pubmedtool.Client

	llm *resilience.LLMFallback
	stt *resilience.STTFallback
	tts *resilience.TTSFallback

	sessions *session.Manager
	box      *toolbox.Box
	prompt   string
	orch     *agent.Orchestrator
	engine   *engine.Engine
	server   *server.Server
	handler  http.Handler

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPlayer injects the speech player instead of creating one from
// playback.mode.
func WithPlayer(p playback.Player) Option { return func(a *App) { a.player = p } }

// WithLiterature injects the literature client backing the PubMed tools.
func WithLiterature(c pubmedtool.Client) Option { return func(a *App) { a.articles = c } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(a *App) { a.logger = l } }

// WithLevelVar lets Reload adjust the log level of the handler behind the
// logger.
func WithLevelVar(v *slog.LevelVar) Option { return func(a *App) { a.level = v } }

// WithVersion sets the version reported over MCP and in telemetry.
func WithVersion(v string) Option { return func(a *App) { a.version = v } }

// WithMetrics injects metric instruments and an optional scrape handler. When
// absent, New initialises the OpenTelemetry providers itself.
func WithMetrics(m *observe.Metrics, scrape http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.scrape = scrape
	}
}

// New creates every subsystem described by cfg. The LLM, STT and TTS
// providers are required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM.Provider == nil || providers.STT.Provider == nil || providers.TTS.Provider == nil {
		return nil, errors.New("app: llm, stt and tts providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initObservability(ctx); err != nil {
		return nil, err
	}
	a.initProviders()

	sessions, err := session.NewManager(cfg.Session.Scope, cfg.Agent.Name)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.sessions = sessions

	if err := a.initPlayer(); err != nil {
		return nil, err
	}
	if a.articles == nil {
		a.articles = a.newPubMed()
	}
	if err := a.initTools(); err != nil {
		return nil, err
	}
	if err := a.initAgent(); err != nil {
		return nil, err
	}

	a.engine = engine.New(
		codec.New(
			codec.WithTargetRate(cfg.Audio.SampleRate),
			codec.WithResamplerFactory(codec.ResamplerByName(cfg.Audio.Resampler)),
		),
		a.stt,
		a.orch,
		engine.WithScratchDir(cfg.Audio.ScratchDir),
		engine.WithLogger(a.logger),
		engine.WithRecorder(a.metrics),
	)

	srvOpts := []server.Option{
		server.WithAudioPath(cfg.Server.AudioPath),
		server.WithIdleTimeout(cfg.Server.IdleTimeout),
		server.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		server.WithMetrics(a.metrics, a.scrape),
		server.WithHealth(a.healthHandler()),
		server.WithChat(a.orch),
		server.WithLogger(a.logger),
	}
	if cfg.MCP.Enabled {
		m := mcp.NewServer(a.box, a.sessions, a.version, mcp.WithLogger(a.logger))
		srvOpts = append(srvOpts, server.WithMCP(cfg.MCP.Path, m.Handler()))
	}
	a.server = server.New(a.engine, a.sessions, srvOpts...)
	a.handler = a.server.Handler()

	a.logger.Info("application initialised",
		"scope", cfg.Session.Scope,
		"playback", cfg.Playback.Mode,
		"tools", a.box.Names(),
		"mcp", cfg.MCP.Enabled,
	)
	return a, nil
}

func (a *App) initObservability(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "curaai",
		ServiceVersion: a.version,
	})
	if err != nil {
		return fmt.Errorf("app: init observability: %w", err)
	}
	a.closers = append(a.closers, p.Shutdown)

	m, err := observe.NewMetrics(p.MeterProvider)
	if err != nil {
		return fmt.Errorf("app: create metrics: %w", err)
	}
	a.metrics = m
	a.scrape = p.Handler()
	return nil
}

func (a *App) fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  breakerFailures,
			ResetTimeout: breakerReset,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
		Logger: a.logger,
	}
}

// initProviders wraps every primary in a fallback group. Entry names carry
// the provider kind so breakers stay distinguishable in metrics.
func (a *App) initProviders() {
	ps := a.providers
	fc := a.fallbackConfig()

	a.llm = resilience.NewLLMFallback(ps.LLM.Provider, "llm/"+ps.LLM.Name, fc)
	for _, f := range ps.LLMFallbacks {
		a.llm.AddFallback("llm/"+f.Name, f.Provider)
	}
	a.stt = resilience.NewSTTFallback(ps.STT.Provider, "stt/"+ps.STT.Name, fc)
	for _, f := range ps.STTFallbacks {
		a.stt.AddFallback("stt/"+f.Name, f.Provider)
	}
	a.tts = resilience.NewTTSFallback(ps.TTS.Provider, "tts/"+ps.TTS.Name, fc)
	for _, f := range ps.TTSFallbacks {
		a.tts.AddFallback("tts/"+f.Name, f.Provider)
	}
}

func (a *App) initPlayer() error {
	if a.player != nil {
		return nil
	}
	switch a.cfg.Playback.Mode {
	case playback.ModeLocal:
		l, err := playback.NewLocal()
		if err != nil {
			return fmt.Errorf("app: open audio device: %w", err)
		}
		a.player = l
		a.closers = append(a.closers, func(context.Context) error { return l.Close() })
	case playback.ModeNone:
		a.player = playback.None{}
	default:
		a.player = &playback.Client{Logger: a.logger}
	}
	return nil
}

func (a *App) newPubMed() *pubmed.Client {
	pc := a.cfg.Tools.PubMed
	opts := []pubmed.Option{
		pubmed.WithMaxResults(pc.MaxResults),
		pubmed.WithCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "pubmed",
			MaxFailures:  breakerFailures,
			ResetTimeout: breakerReset,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		}),
	}
	if pc.BaseURL != "" {
		opts = append(opts, pubmed.WithBaseURL(pc.BaseURL))
	}
	if pc.APIKey != "" {
		opts = append(opts, pubmed.WithAPIKey(pc.APIKey))
	}
	if pc.Timeout > 0 {
		opts = append(opts, pubmed.WithTimeout(pc.Timeout))
	}
	return pubmed.New(opts...)
}

// initTools registers the four tools in the order they are offered to the
// model.
func (a *App) initTools() error {
	a.box = toolbox.New(toolbox.WithLogger(a.logger), toolbox.WithRecorder(a.metrics))

	tools := []toolbox.Tool{
		speak.Tool(a.tts, a.player,
			speak.WithScratchDir(a.cfg.Audio.ScratchDir),
			speak.WithLogger(a.logger),
		),
	}
	tools = append(tools, pubmedtool.Tools(a.articles)...)
	tools = append(tools, summary.Tool(a.cfg.Tools.SummaryPath))

	for _, t := range tools {
		if err := a.box.Register(t); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}
	return nil
}

func (a *App) initAgent() error {
	ac := a.cfg.Agent

	prompt, text, err := loadPrompt(ac.PromptFile)
	if err != nil {
		return err
	}
	a.prompt = text

	model := a.cfg.Providers.LLM.Model
	if model == "" {
		model = ac.Model
	}

	a.orch = agent.NewOrchestrator(a.llm, a.box, agent.Config{
		Instance: agent.InstanceConfig{
			Name:        ac.Name,
			Model:       model,
			Temperature: ac.Temperature,
			Prompt:      prompt,
			SpeakTool:   speak.Name,
			SearchTool:  pubmedtool.SearchName,
			FetchTool:   pubmedtool.FetchName,
			SummaryTool: summary.Name,
		},
		Window:   ac.Window,
		MaxTurns: ac.MaxTurns,
	}, agent.WithLogger(a.logger), agent.WithRecorder(a.metrics))
	return nil
}

// loadPrompt reads and parses the instructions template at path. An empty
// path yields the built-in prompt, reported as nil.
func loadPrompt(path string) (*agent.Prompt, string, error) {
	if path == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("app: read prompt: %w", err)
	}
	p, err := agent.ParsePrompt(string(data))
	if err != nil {
		return nil, "", fmt.Errorf("app: %w", err)
	}
	return p, string(data), nil
}

type breakerStates interface {
	BreakerState() resilience.State
}

func (a *App) healthHandler() *health.Handler {
	checkers := []health.Checker{
		health.Required("providers", map[string]any{
			"llm": a.providers.LLM.Provider,
			"stt": a.providers.STT.Provider,
			"tts": a.providers.TTS.Provider,
		}),
		health.Breakers("llm", stateNames(a.llm.States)),
		health.Breakers("stt", stateNames(a.stt.States)),
		health.Breakers("tts", stateNames(a.tts.States)),
	}
	if b, ok := a.articles.(breakerStates); ok {
		checkers = append(checkers, health.Breakers("pubmed", func() map[string]string {
			return map[string]string{"pubmed": b.BreakerState().String()}
		}))
	}
	scratch := a.cfg.Audio.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	checkers = append(checkers, health.WritableDir("scratch", scratch))
	return health.New(checkers...)
}

func stateNames(states func() map[string]resilience.State) func() map[string]string {
	return func() map[string]string {
		s := states()
		out := make(map[string]string, len(s))
		for k, v := range s {
			out[k] = v.String()
		}
		return out
	}
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Tools returns the registered tool names in the order offered to the model.
func (a *App) Tools() []string { return a.box.Names() }

// Sessions returns the ledger manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Run listens on server.listen_addr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts the HTTP
// server down gracefully. It does not call Shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	if t := a.cfg.Server.TLS; t != nil {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("app: load tls keypair: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Reload applies the hot-reloadable parts of next. Everything else is logged
// and takes effect on restart. The prompt file is re-read on every call, so
// edits to it apply even when the config itself is unchanged.
func (a *App) Reload(old, next *config.Config) {
	a.reloadPrompt(next.Agent.PromptFile)

	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.SlogLevel())
		}
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AgentTuningChanged {
		a.orch.Tune(d.NewWindow, d.NewTemperature)
		window, temp := a.orch.Settings()
		a.logger.Info("agent tuning changed", "window", window, "temperature", temp)
	}
	if len(d.RestartRequired) > 0 {
		a.logger.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

func (a *App) reloadPrompt(path string) {
	prompt, text, err := loadPrompt(path)
	if err != nil {
		a.logger.Warn("prompt reload failed, keeping current prompt", "path", path, "err", err)
		return
	}
	if text == a.prompt {
		return
	}
	a.orch.SetPrompt(prompt)
	a.prompt = text
	a.logger.Info("agent prompt changed", "path", path, "builtin", prompt == nil)
}

// Shutdown releases every subsystem. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		a.logger.Info("application stopped")
	})
	return errors.Join(errs...)
}
