package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/config"
	"github.com/atlas-desktop/portfolio-replay/internal/data"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Viewer.SpeedMs != 250 {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.Viewer.HoverDebounce != 50*time.Millisecond {
		t.Errorf("Expected 50ms debounce, got %v", cfg.Viewer.HoverDebounce)
	}
	if len(cfg.Viewer.Palette) != 8 {
		t.Errorf("Expected 8 palette colors, got %d", len(cfg.Viewer.Palette))
	}
	if cfg.Data.DefaultFile != data.DefaultFileName {
		t.Errorf("Expected the consolidated result file as default, got %q", cfg.Data.DefaultFile)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "replay.yaml")
	yaml := "server:\n  port: 9000\nviewer:\n  speed_ms: 120\n  hover_debounce: 80ms\ndata:\n  default_file: run.json\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REPLAY_SERVER_PORT", "9100")
	t.Setenv("REPLAY_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Env should override the file port, got %d", cfg.Server.Port)
	}
	if cfg.Viewer.SpeedMs != 120 || cfg.Viewer.HoverDebounce != 80*time.Millisecond {
		t.Errorf("File values not applied: %+v", cfg.Viewer)
	}
	if cfg.Data.DefaultFile != "run.json" || cfg.LogLevel != "debug" {
		t.Errorf("Unexpected data/log settings %+v %s", cfg.Data, cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Viewer.CanvasWidth = 10
	cfg.Viewer.Palette = []string{"#FF0043", "nope"}

	if err := config.Validate(&cfg); err == nil {
		t.Fatal("Expected validation errors")
	}

	ok := config.Default()
	if err := config.Validate(&ok); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}
