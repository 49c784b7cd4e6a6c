package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 8317\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Port != 9000 {
			t.Errorf("reloaded Port = %d, want 9000", cfg.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}

func TestWatcherSkipsReloadWhenContentUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 8317\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var calls int
	w, err := NewWatcher(path, func(cfg *Config) { calls++ })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Rewriting identical content should not trigger a reload once the
	// watcher has already observed this hash.
	w.handleChange()
	before := calls
	if err := os.WriteFile(path, []byte("port: 8317\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	w.handleChange()
	if calls != before {
		t.Errorf("calls = %d, want %d (unchanged content should not re-trigger reload)", calls, before)
	}
}
