package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls by default.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and the prompt file it names. When the content
// of either changes, the file is reloaded and onChange receives the previous
// and the new config. Invalid edits are logged and ignored, so the last valid
// config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    snapshot

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// snapshot identifies the watched content. Modification times let unchanged
// files skip hashing; sum covers the config and prompt bytes together.
type snapshot struct {
	configMod time.Time
	promptMod time.Time
	sum       [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Defaults to slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher loads path once and starts polling it in the background. The
// initial load must succeed.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		logger:   slog.Default(),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, snap, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.seen = cfg, snap

	go w.poll()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight reload to finish. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.exited
}

func (w *Watcher) poll() {
	defer close(w.exited)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	w.mu.Lock()
	seen := w.seen
	prompt := w.current.Agent.PromptFile
	w.mu.Unlock()

	configMod, err := modTime(w.path)
	if err != nil {
		w.logger.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	promptMod, _ := modTime(prompt)
	if configMod.Equal(seen.configMod) && promptMod.Equal(seen.promptMod) {
		return
	}

	cfg, snap, err := w.load()
	if err != nil {
		w.logger.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if snap.sum == w.seen.sum {
		// Touched, not edited.
		w.seen = snap
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.seen = cfg, snap
	w.mu.Unlock()

	w.logger.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// load parses and validates the config, then reads the prompt file it names.
// A prompt file that cannot be read makes the whole load fail.
func (w *Watcher) load() (*Config, snapshot, error) {
	var snap snapshot

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, snap, err
	}
	if snap.configMod, err = modTime(w.path); err != nil {
		return nil, snap, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, snap, err
	}

	h := sha256.New()
	h.Write(data)
	if p := cfg.Agent.PromptFile; p != "" {
		prompt, err := os.ReadFile(p)
		if err != nil {
			return nil, snap, fmt.Errorf("config: read prompt file: %w", err)
		}
		if snap.promptMod, err = modTime(p); err != nil {
			return nil, snap, err
		}
		h.Write([]byte{0})
		h.Write(prompt)
	}
	h.Sum(snap.sum[:0])
	return cfg, snap, nil
}

// modTime returns the modification time of path. An empty path yields the
// zero time.
func modTime(path string) (time.Time, error) {
	if path == "" {
		return time.Time{}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
