package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/engine"
)

// Camera sources.
const (
	SourceCamera = "camera"
	SourceDir    = "dir"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Camera: CameraConfig{
			Source:    SourceCamera,
			Facing:    "back",
			LockDir:   filepath.Join(os.TempDir(), "camscan-locks"),
			FrameRate: 10,
			Watch:     true,
		},
		Scanner: ScannerConfig{
			Formats:    []string{"ean13", "ean8"},
			IntervalMs: 500,
			Normalize:  true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			ShutdownTimeout: 10,
			PreviewWidth:    640,
			PreviewQuality:  80,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 120,
				RequestsPerHour:   3000,
				MaxRequestsPerDay: 20000,
			},
		},
		Output: OutputConfig{
			Format: "text",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    DefaultHistoryPath(),
		},
	}
}

// DefaultHistoryPath returns $XDG_DATA_HOME/camscan/history.db, falling
// back to ~/.local/share.
func DefaultHistoryPath() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "camscan", "history.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "camscan", "history.db")
	}
	return "camscan-history.db"
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if err := c.Camera.validate(); err != nil {
		return err
	}
	if _, err := barcode.ParseFormats(c.Scanner.Formats); err != nil {
		return fmt.Errorf("scanner.formats: %w", err)
	}
	if c.Scanner.IntervalMs < 0 {
		return fmt.Errorf("scanner.interval_ms must be >= 0, got %d", c.Scanner.IntervalMs)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be >= 0, got %d", c.Server.ShutdownTimeout)
	}
	if c.Server.PreviewQuality < 1 || c.Server.PreviewQuality > 100 {
		return fmt.Errorf("server.preview_quality must be between 1 and 100, got %d", c.Server.PreviewQuality)
	}
	if c.Server.PreviewWidth < 0 {
		return fmt.Errorf("server.preview_width must be >= 0, got %d", c.Server.PreviewWidth)
	}
	if rl := c.Server.RateLimit; rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 {
		return fmt.Errorf("server.rate_limit values must be >= 0")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

func (c CameraConfig) validate() error {
	switch c.Source {
	case SourceCamera:
	case SourceDir:
		if c.SourceDir == "" {
			return fmt.Errorf("camera.source_dir is required when camera.source is %q", SourceDir)
		}
	default:
		return fmt.Errorf("invalid camera source: %s (must be one of: %s, %s)", c.Source, SourceCamera, SourceDir)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("invalid resolution hint %dx%d", c.Width, c.Height)
	}
	if c.FrameRate < 0 {
		return fmt.Errorf("camera.frame_rate must be >= 0, got %g", c.FrameRate)
	}
	if _, err := camera.ParseFacing(c.Facing); err != nil {
		return fmt.Errorf("camera.facing: %w", err)
	}
	return nil
}

// EngineConfig converts the scanner section to decode loop settings.
func (c *Config) EngineConfig() (engine.Config, error) {
	formats, err := barcode.ParseFormats(c.Scanner.Formats)
	if err != nil {
		return engine.Config{}, err
	}
	cfg := engine.DefaultConfig()
	cfg.Formats = formats
	cfg.TryHarder = c.Scanner.TryHarder
	cfg.Multi = c.Scanner.Multi
	cfg.Interval = time.Duration(c.Scanner.IntervalMs) * time.Millisecond
	cfg.Normalize = c.Scanner.Normalize
	return cfg, nil
}

// Constraints converts the camera section to stream constraints. An empty
// device id asks the session manager to pick the default device.
func (c *Config) Constraints() (camera.Constraints, error) {
	facing, err := camera.ParseFacing(c.Camera.Facing)
	if err != nil {
		return camera.Constraints{}, err
	}
	return camera.Constraints{
		DeviceID: c.Camera.DeviceID,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		Facing:   facing,
	}, nil
}

// ShutdownTimeout returns the server's graceful shutdown window.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}
