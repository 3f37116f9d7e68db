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

// fileState is what the watcher remembers about the config file between
// polls: the parsed config plus the mtime and content hash used to detect
// edits cheaply.
type fileState struct {
	cfg   *Config
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and reports content changes through a
// callback. A file that fails to parse or validate is ignored and the last
// good config stays in effect, so a half-saved edit never takes down a
// running server.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu    sync.Mutex
	state fileState

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. The initial load must succeed; from then on only valid
// revisions replace the current config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	state, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.state = state

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.cfg
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if old, new, changed := w.reload(); changed {
				slog.Info("config watcher: configuration reloaded", "path", w.path)
				if w.onChange != nil {
					// Outside the lock so the callback can call Current().
					w.onChange(old, new)
				}
			}
		}
	}
}

// reload re-reads the file when its mtime moved and swaps in the new config
// when the content actually differs. Returns the old and new configs when a
// swap happened.
func (w *Watcher) reload() (old, new *Config, changed bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	unmoved := info.ModTime().Equal(w.state.mtime)
	w.mu.Unlock()
	if unmoved {
		return nil, nil, false
	}

	next, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return nil, nil, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if next.sum == w.state.sum {
		// Touched but identical (editor save, touch(1)); just remember the
		// new mtime so the next poll skips the read.
		w.state.mtime = next.mtime
		return nil, nil, false
	}

	old = w.state.cfg
	w.state = next
	return old, next.cfg, true
}

// read loads, parses, and validates the file, capturing mtime and content
// hash alongside the config.
func (w *Watcher) read() (fileState, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fileState{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return fileState{}, err
	}
	return fileState{cfg: cfg, mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
