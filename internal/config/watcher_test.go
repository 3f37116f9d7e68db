package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/config"
)

var mtimeBump atomic.Int64

// writeConfig writes content to path and forces a strictly increasing mtime
// so the watcher's fast path sees the file as changed even on filesystems
// with coarse timestamp granularity.
func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	stamp := time.Now().Add(time.Duration(mtimeBump.Add(1)) * time.Second)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []config.ConfigDiff
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, config.Diff(old, new))
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *changeRecorder) last() config.ConfigDiff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[len(r.changes)-1]
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictaflow.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	rec := &changeRecorder{}
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Fatalf("initial log level = %q, want info", got)
	}

	writeConfig(t, path, "server:\n  log_level: debug\n")

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never reported the change")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if d := rec.last(); !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current().Server.LogLevel = %q, want debug", got)
	}
}

func TestWatcherKeepsOldConfigOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictaflow.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	rec := &changeRecorder{}
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "server:\n  log_level: shouting\n")

	// Give the watcher several polling rounds to (wrongly) pick it up.
	time.Sleep(100 * time.Millisecond)

	if rec.count() != 0 {
		t.Errorf("watcher reported %d changes for an invalid file, want 0", rec.count())
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current().Server.LogLevel = %q, want unchanged info", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher() accepted a missing file, want error")
	}
}
