//nolint:lll
package config

// Config represents the complete configuration for camscan. It covers every
// command (devices, scan, decode, serve, history) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Camera selection and acquisition
	Camera CameraConfig `mapstructure:"camera" yaml:"camera" json:"camera"`

	// Decoder settings
	Scanner ScannerConfig `mapstructure:"scanner" yaml:"scanner" json:"scanner"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Scan history
	History HistoryConfig `mapstructure:"history" yaml:"history" json:"history"`
}

// CameraConfig contains device selection and stream settings.
type CameraConfig struct {
	// Source is "camera" for real devices or "dir" for image directories.
	Source    string `mapstructure:"source" yaml:"source" json:"source"`
	SourceDir string `mapstructure:"source_dir" yaml:"source_dir" json:"source_dir"`

	DeviceID     string   `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	Width        int      `mapstructure:"width" yaml:"width" json:"width"`
	Height       int      `mapstructure:"height" yaml:"height" json:"height"`
	Facing       string   `mapstructure:"facing" yaml:"facing" json:"facing"`
	PreferLabels []string `mapstructure:"prefer_labels" yaml:"prefer_labels" json:"prefer_labels"`

	LockDir   string  `mapstructure:"lock_dir" yaml:"lock_dir" json:"lock_dir"`
	FrameRate float64 `mapstructure:"frame_rate" yaml:"frame_rate" json:"frame_rate"`
	Watch     bool    `mapstructure:"watch" yaml:"watch" json:"watch"`
}

// ScannerConfig contains decoding settings.
type ScannerConfig struct {
	Formats    []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	TryHarder  bool     `mapstructure:"try_harder" yaml:"try_harder" json:"try_harder"`
	Multi      bool     `mapstructure:"multi" yaml:"multi" json:"multi"`
	IntervalMs int      `mapstructure:"interval_ms" yaml:"interval_ms" json:"interval_ms"`
	Normalize  bool     `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	PreviewWidth    int    `mapstructure:"preview_width" yaml:"preview_width" json:"preview_width"`
	PreviewQuality  int    `mapstructure:"preview_quality" yaml:"preview_quality" json:"preview_quality"`
	Autostart       bool   `mapstructure:"autostart" yaml:"autostart" json:"autostart"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig limits control requests per client address.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// HistoryConfig contains scan history settings.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}
