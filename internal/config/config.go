// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Store     StoreConfig     `mapstructure:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CaptureConfig governs buffer sizes, body limits and capture toggles.
type CaptureConfig struct {
	ConsoleMaxEntries  int  `mapstructure:"console_max_entries"`
	NetworkMaxEntries  int  `mapstructure:"network_max_entries"`
	NetworkBodyMaxSize int  `mapstructure:"network_body_max_size"`
	MaxScreenshotBytes int  `mapstructure:"max_screenshot_bytes"`
	SourceTimeoutSec   int  `mapstructure:"source_timeout_seconds"`
	Console            bool `mapstructure:"console"`
	Network            bool `mapstructure:"network"`
	Environment        bool `mapstructure:"environment"`
}

// BrowserConfig configures the browser session monitor.
type BrowserConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Headless       bool    `mapstructure:"headless"`
	NavTimeoutSec  int     `mapstructure:"nav_timeout_seconds"`
	BodyFetchRate  float64 `mapstructure:"body_fetch_rate"`
	BodyFetchBurst int     `mapstructure:"body_fetch_burst"`
}

// StoreConfig selects the session key-value backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ArtifactsConfig sets paths for exported report artifacts.
type ArtifactsConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// IngestConfig tunes the telemetry event hub.
type IngestConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBDIAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("capture.console_max_entries", 1000)
	v.SetDefault("capture.network_max_entries", 500)
	v.SetDefault("capture.network_body_max_size", 10240)
	v.SetDefault("capture.max_screenshot_bytes", 5*1024*1024)
	v.SetDefault("capture.source_timeout_seconds", 10)
	v.SetDefault("capture.console", true)
	v.SetDefault("capture.network", true)
	v.SetDefault("capture.environment", true)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 25)
	v.SetDefault("browser.body_fetch_rate", 5.0)
	v.SetDefault("browser.body_fetch_burst", 10)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "webdiag.db")
	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("ingest.buffer_size", 4096)
	v.SetDefault("ingest.max_batch_events", 256)
	v.SetDefault("ingest.max_batch_wait_ms", 200)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Invalid buffer
// and body limits are rejected here rather than clamped downstream.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Capture.ConsoleMaxEntries <= 0 {
		return fmt.Errorf("capture.console_max_entries must be > 0")
	}
	if c.Capture.NetworkMaxEntries <= 0 {
		return fmt.Errorf("capture.network_max_entries must be > 0")
	}
	if c.Capture.NetworkBodyMaxSize <= 0 {
		return fmt.Errorf("capture.network_body_max_size must be > 0")
	}
	if c.Capture.MaxScreenshotBytes <= 0 {
		return fmt.Errorf("capture.max_screenshot_bytes must be > 0")
	}
	if c.Capture.SourceTimeoutSec <= 0 {
		return fmt.Errorf("capture.source_timeout_seconds must be > 0")
	}
	if c.Browser.Enabled && c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0 when browser is enabled")
	}
	switch c.Store.Backend {
	case "memory":
	case "bolt":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set when store.backend is bolt")
		}
	default:
		return fmt.Errorf("store.backend must be memory or bolt, got %q", c.Store.Backend)
	}
	switch c.Artifacts.Backend {
	case "none", "memory":
	case "local":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir must be set when artifacts.backend is local")
		}
	default:
		return fmt.Errorf("artifacts.backend must be none, memory or local, got %q", c.Artifacts.Backend)
	}
	if c.Ingest.BufferSize <= 0 {
		return fmt.Errorf("ingest.buffer_size must be > 0")
	}
	return nil
}

// SourceTimeout converts the capture source timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Capture.SourceTimeoutSec) * time.Second
}

// BatchWait converts the ingest batch wait into a duration.
func (c Config) BatchWait() time.Duration {
	return time.Duration(c.Ingest.MaxBatchWaitMs) * time.Millisecond
}
