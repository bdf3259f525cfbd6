// Package config loads the replay server configuration from defaults, an
// optional config file, a .env file and REPLAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. REPLAY_SERVER_PORT
const EnvPrefix = "REPLAY"

// Default returns the built-in configuration
func Default() types.AppConfig {
	return types.AppConfig{
		Server: types.DefaultServerConfig(),
		Viewer: types.DefaultViewerConfig(),
		Data: types.DataConfig{
			DataDir:      "./data",
			DefaultFile:  data.DefaultFileName,
			FetchTimeout: 10 * time.Second,
			ParseWorkers: 4,
		},
		LogLevel: "info",
	}
}

func setDefaults(v *viper.Viper, cfg types.AppConfig) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.websocket_path", cfg.Server.WebSocketPath)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.max_connections", cfg.Server.MaxConnections)
	v.SetDefault("server.max_upload_bytes", cfg.Server.MaxUploadBytes)
	v.SetDefault("server.enable_metrics", cfg.Server.EnableMetrics)

	v.SetDefault("viewer.canvas_width", cfg.Viewer.CanvasWidth)
	v.SetDefault("viewer.canvas_height", cfg.Viewer.CanvasHeight)
	v.SetDefault("viewer.margins.left", cfg.Viewer.Margins.Left)
	v.SetDefault("viewer.margins.right", cfg.Viewer.Margins.Right)
	v.SetDefault("viewer.margins.top", cfg.Viewer.Margins.Top)
	v.SetDefault("viewer.margins.bottom", cfg.Viewer.Margins.Bottom)
	v.SetDefault("viewer.speed_ms", cfg.Viewer.SpeedMs)
	v.SetDefault("viewer.frame_interval", cfg.Viewer.FrameInterval)
	v.SetDefault("viewer.hover_tolerance_px", cfg.Viewer.HoverTolerancePx)
	v.SetDefault("viewer.click_tolerance_px", cfg.Viewer.ClickTolerancePx)
	v.SetDefault("viewer.min_selection_px", cfg.Viewer.MinSelectionPx)
	v.SetDefault("viewer.hover_debounce", cfg.Viewer.HoverDebounce)
	v.SetDefault("viewer.spline_tension", cfg.Viewer.SplineTension)
	v.SetDefault("viewer.palette", cfg.Viewer.Palette)
	v.SetDefault("viewer.show_ghost_curve", cfg.Viewer.ShowGhostCurve)

	v.SetDefault("data.dir", cfg.Data.DataDir)
	v.SetDefault("data.default_file", cfg.Data.DefaultFile)
	v.SetDefault("data.default_url", cfg.Data.DefaultURL)
	v.SetDefault("data.fetch_timeout", cfg.Data.FetchTimeout)
	v.SetDefault("data.parse_workers", cfg.Data.ParseWorkers)
}

// Load builds the configuration. path may be empty. A missing .env file is
// ignored; a missing config file named explicitly is an error.
func Load(path string) (*types.AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg types.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with
func Validate(cfg *types.AppConfig) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	m := cfg.Viewer.Margins
	if cfg.Viewer.CanvasWidth <= m.Left+m.Right || cfg.Viewer.CanvasHeight <= m.Top+m.Bottom {
		errs = append(errs, fmt.Errorf("viewer canvas %dx%d leaves no plot area inside the margins",
			cfg.Viewer.CanvasWidth, cfg.Viewer.CanvasHeight))
	}
	if cfg.Viewer.SpeedMs <= 0 {
		errs = append(errs, fmt.Errorf("viewer.speed_ms must be positive, got %d", cfg.Viewer.SpeedMs))
	}
	if len(cfg.Viewer.Palette) == 0 {
		errs = append(errs, errors.New("viewer.palette must not be empty"))
	}
	for _, hex := range cfg.Viewer.Palette {
		if _, err := types.ParseRGBColor(hex); err != nil {
			errs = append(errs, fmt.Errorf("viewer.palette: %w", err))
		}
	}
	if cfg.Data.ParseWorkers < 0 {
		errs = append(errs, fmt.Errorf("data.parse_workers must not be negative, got %d", cfg.Data.ParseWorkers))
	}

	return errors.Join(errs...)
}
