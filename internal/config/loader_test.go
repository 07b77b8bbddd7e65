package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadWithNoConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Scanner.Formats) != 2 {
		t.Errorf("expected default formats, got %v", cfg.Scanner.Formats)
	}
}

func TestLoadWithFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "camscan.yaml")
	content := `
log_level: debug
camera:
  source: dir
  source_dir: /srv/frames
  device_id: back
  width: 1280
  prefer_labels: [scanner]
scanner:
  formats: [qr, ean13]
  interval_ms: 100
server:
  port: 9090
history:
  enabled: true
  path: /tmp/h.db
`
	if err := os.WriteFile(configFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoaderWithViper(viper.New())
	cfg, err := loader.LoadWithFile(configFile)
	if err != nil {
		t.Fatalf("LoadWithFile() error: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Camera.Source != SourceDir || cfg.Camera.SourceDir != "/srv/frames" {
		t.Errorf("camera section not loaded: %+v", cfg.Camera)
	}
	if cfg.Camera.Width != 1280 || cfg.Camera.DeviceID != "back" {
		t.Errorf("unexpected camera hints: %+v", cfg.Camera)
	}
	if len(cfg.Camera.PreferLabels) != 1 || cfg.Camera.PreferLabels[0] != "scanner" {
		t.Errorf("unexpected prefer_labels %v", cfg.Camera.PreferLabels)
	}
	if cfg.Scanner.IntervalMs != 100 || cfg.Scanner.Formats[0] != "qr" {
		t.Errorf("unexpected scanner section %+v", cfg.Scanner)
	}
	if cfg.Server.Port != 9090 || cfg.Server.PreviewQuality != 80 {
		t.Errorf("expected file port and default preview quality, got %+v", cfg.Server)
	}
	if !cfg.History.Enabled || cfg.History.Path != "/tmp/h.db" {
		t.Errorf("unexpected history section %+v", cfg.History)
	}
	if loader.GetConfigFileUsed() != configFile {
		t.Errorf("expected config file %s, got %s", configFile, loader.GetConfigFileUsed())
	}
}

func TestLoadWithMissingFile(t *testing.T) {
	_, err := NewLoaderWithViper(viper.New()).LoadWithFile("/nonexistent/camscan.yaml")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "camscan.yaml")
	if err := os.WriteFile(configFile, []byte("log_level: shouting\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := NewLoaderWithViper(viper.New()).LoadWithFile(configFile); err == nil {
		t.Fatal("expected validation error")
	}
	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFileWithoutValidation(configFile)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() error: %v", err)
	}
	if cfg.LogLevel != "shouting" {
		t.Errorf("expected raw value, got %s", cfg.LogLevel)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CAMSCAN_SERVER_PORT", "7070")
	t.Setenv("CAMSCAN_CAMERA_DEVICE_ID", "cam-7")
	t.Setenv("CAMSCAN_SCANNER_TRY_HARDER", "true")

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070 from env, got %d", cfg.Server.Port)
	}
	if cfg.Camera.DeviceID != "cam-7" {
		t.Errorf("expected device from env, got %q", cfg.Camera.DeviceID)
	}
	if !cfg.Scanner.TryHarder {
		t.Error("expected try_harder from env")
	}
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	if paths[0] != "." {
		t.Errorf("expected current directory first, got %v", paths)
	}
	want := map[string]bool{"/xdg/camscan": false, "/etc/camscan": false}
	for _, p := range paths {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("missing search path %s in %v", p, paths)
		}
	}
}

func TestWriteDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "camscan.yaml")
	if err := WriteDefaultConfigFile(path, false); err != nil {
		t.Fatalf("WriteDefaultConfigFile() error: %v", err)
	}
	if err := WriteDefaultConfigFile(path, false); err == nil {
		t.Error("expected error when file exists without force")
	}
	if err := WriteDefaultConfigFile(path, true); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: test path
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not YAML: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Scanner.IntervalMs != 500 {
		t.Errorf("unexpected written defaults %+v", cfg)
	}

	loaded, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	if err != nil {
		t.Fatalf("written defaults do not load: %v", err)
	}
	if loaded.Camera.Facing != "back" {
		t.Errorf("expected facing back, got %q", loaded.Camera.Facing)
	}
}
