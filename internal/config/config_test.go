package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/planwise/schedcore/internal/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.AutoSave.DebounceMs != 1000 {
		t.Errorf("debounce = %d, want 1000", cfg.AutoSave.DebounceMs)
	}
	if cfg.AutoSave.FlushIntervalMs != 30000 {
		t.Errorf("flush interval = %d, want 30000", cfg.AutoSave.FlushIntervalMs)
	}
	if cfg.AutoSave.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", cfg.AutoSave.MaxRetries)
	}
	if cfg.Demo.MaxConstrainedTasks != 3 {
		t.Errorf("demo cap = %d, want 3", cfg.Demo.MaxConstrainedTasks)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedcore.yaml")
	content := `
project:
  name: harbor-extension
  enforce_links: true
autosave:
  debounce_ms: 250
  max_retries: 5
demo:
  max_constrained_tasks: 2
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project.Name != "harbor-extension" {
		t.Errorf("project name = %q", cfg.Project.Name)
	}
	if !cfg.Project.EnforceLinks {
		t.Error("enforce_links should be true")
	}
	if cfg.AutoSave.Debounce() != 250*time.Millisecond {
		t.Errorf("debounce = %v, want 250ms", cfg.AutoSave.Debounce())
	}
	if cfg.AutoSave.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.AutoSave.MaxRetries)
	}
	// Unset fields pick up defaults.
	if cfg.AutoSave.RetryDelayMs != 2000 {
		t.Errorf("retry delay = %d, want default 2000", cfg.AutoSave.RetryDelayMs)
	}
	if cfg.Demo.MaxConstrainedTasks != 2 {
		t.Errorf("demo cap = %d, want 2", cfg.Demo.MaxConstrainedTasks)
	}
}

func TestLoad_InvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedcore.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for bad log level")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedcore.yaml")
	if err := os.WriteFile(path, []byte("autosave:\n  debounce_ms: 100\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got := make(chan Config, 1)
	w, err := Watch(path, func(c Config) {
		select {
		case got <- c:
		default:
		}
	}, logging.Discard())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("autosave:\n  debounce_ms: 700\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.AutoSave.DebounceMs != 700 {
			t.Errorf("reloaded debounce = %d, want 700", cfg.AutoSave.DebounceMs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
