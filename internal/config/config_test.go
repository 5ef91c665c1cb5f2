package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Generation.ChunkSize != 5 {
		t.Errorf("expected chunk size 5, got %d", cfg.Generation.ChunkSize)
	}
	if cfg.Generation.MaxAttempts != 3 || cfg.Generation.MaxChunkRetries != 3 || cfg.Generation.MaxCriticRetries != 2 {
		t.Errorf("unexpected retry budgets: %+v", cfg.Generation)
	}
	if cfg.Words != DefaultWordLimits() {
		t.Errorf("expected default word limits, got %+v", cfg.Words)
	}
	if cfg.Backoff.Ceiling != 60*time.Second {
		t.Errorf("expected 60s ceiling, got %v", cfg.Backoff.Ceiling)
	}
	if cfg.Backoff.QuotaMin != 30*time.Second || cfg.Backoff.QuotaMax != 60*time.Second {
		t.Errorf("unexpected quota window: %v-%v", cfg.Backoff.QuotaMin, cfg.Backoff.QuotaMax)
	}
	if cfg.Pacing.AfterError != 3*time.Second {
		t.Errorf("expected 3s post-error pacing, got %v", cfg.Pacing.AfterError)
	}
	if cfg.Checkpoint.Backend != "file" {
		t.Errorf("expected file checkpoint backend, got %q", cfg.Checkpoint.Backend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("GENERATION_CHUNK_SIZE", "10")
	t.Setenv("BACKOFF_CEILING", "15s")
	t.Setenv("CHECKPOINT_BACKEND", "sql")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Generation.ChunkSize != 10 {
		t.Errorf("expected chunk size 10, got %d", cfg.Generation.ChunkSize)
	}
	if cfg.Backoff.Ceiling != 15*time.Second {
		t.Errorf("expected 15s ceiling, got %v", cfg.Backoff.Ceiling)
	}
	if cfg.Checkpoint.Backend != "sql" {
		t.Errorf("expected sql backend, got %q", cfg.Checkpoint.Backend)
	}
}

func TestLoad_SecretFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	t.Chdir(dir)

	secretPath := filepath.Join(dir, "llm_key")
	if err := os.WriteFile(secretPath, []byte("sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_API_KEY_FILE", secretPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-file" {
		t.Errorf("expected key from secret file, got %q", cfg.LLM.APIKey)
	}
}
