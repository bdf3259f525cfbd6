// Package types provides configuration types for the portfolio replay viewer.
package types

import "time"

// AppConfig is the full process configuration
type AppConfig struct {
	Server   ServerConfig `mapstructure:"server" json:"server"`
	Viewer   ViewerConfig `mapstructure:"viewer" json:"viewer"`
	Data     DataConfig   `mapstructure:"data" json:"data"`
	LogLevel string       `mapstructure:"log_level" json:"logLevel"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host" json:"host"`
	Port           int           `mapstructure:"port" json:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path" json:"websocketPath"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" json:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" json:"writeTimeout"`
	MaxConnections int           `mapstructure:"max_connections" json:"maxConnections"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" json:"maxUploadBytes"`
	EnableMetrics  bool          `mapstructure:"enable_metrics" json:"enableMetrics"`
}

// Margins reserve space around the plot for axis labels
type Margins struct {
	Left   int `mapstructure:"left" json:"left"`
	Right  int `mapstructure:"right" json:"right"`
	Top    int `mapstructure:"top" json:"top"`
	Bottom int `mapstructure:"bottom" json:"bottom"`
}

// ViewerConfig tunes the chart engine
type ViewerConfig struct {
	CanvasWidth      int           `mapstructure:"canvas_width" json:"canvasWidth"`
	CanvasHeight     int           `mapstructure:"canvas_height" json:"canvasHeight"`
	Margins          Margins       `mapstructure:"margins" json:"margins"`
	SpeedMs          int           `mapstructure:"speed_ms" json:"speedMs"`
	FrameInterval    time.Duration `mapstructure:"frame_interval" json:"frameInterval"`
	HoverTolerancePx float64       `mapstructure:"hover_tolerance_px" json:"hoverTolerancePx"`
	ClickTolerancePx float64       `mapstructure:"click_tolerance_px" json:"clickTolerancePx"`
	MinSelectionPx   float64       `mapstructure:"min_selection_px" json:"minSelectionPx"`
	HoverDebounce    time.Duration `mapstructure:"hover_debounce" json:"hoverDebounce"`
	SplineTension    float64       `mapstructure:"spline_tension" json:"splineTension"`
	Palette          []string      `mapstructure:"palette" json:"palette"`
	ShowGhostCurve   bool          `mapstructure:"show_ghost_curve" json:"showGhostCurve"`
}

// DataConfig represents result-file loading configuration
type DataConfig struct {
	DataDir      string        `mapstructure:"dir" json:"dataDir"`
	DefaultFile  string        `mapstructure:"default_file" json:"defaultFile"`
	DefaultURL   string        `mapstructure:"default_url" json:"defaultUrl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" json:"fetchTimeout"`
	ParseWorkers int           `mapstructure:"parse_workers" json:"parseWorkers"`
}

// DefaultPalette is the preset dataset color list
var DefaultPalette = []string{
	"#FF0043", "#5D71FC", "#CF8863", "#CFC363",
	"#6D9C72", "#4E95EE", "#B57DFF", "#C36CE6",
}

// DefaultViewerConfig returns the engine defaults
func DefaultViewerConfig() ViewerConfig {
	return ViewerConfig{
		CanvasWidth:      960,
		CanvasHeight:     540,
		Margins:          Margins{Left: 64, Right: 20, Top: 20, Bottom: 32},
		SpeedMs:          250,
		FrameInterval:    16 * time.Millisecond,
		HoverTolerancePx: 12,
		ClickTolerancePx: 8,
		MinSelectionPx:   10,
		HoverDebounce:    50 * time.Millisecond,
		SplineTension:    0.4,
		Palette:          append([]string(nil), DefaultPalette...),
		ShowGhostCurve:   true,
	}
}

// DefaultServerConfig returns the server defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "localhost",
		Port:           8080,
		WebSocketPath:  "/ws",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxConnections: 100,
		MaxUploadBytes: 64 << 20,
		EnableMetrics:  true,
	}
}
