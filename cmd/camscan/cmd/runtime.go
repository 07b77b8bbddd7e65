package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/config"
	"github.com/MeKo-Tech/camscan/internal/engine"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/sink"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
)

// newProvider returns the frame source selected by camera.source.
func newProvider(cfg *config.Config) camera.Provider {
	if cfg.Camera.Source == config.SourceDir {
		return camera.NewDirProvider(cfg.Camera.SourceDir, cfg.Camera.FrameRate)
	}
	return camera.NewMediaProvider()
}

// newEngine builds the decode engine for cfg with the default backend.
func newEngine(cfg *config.Config) (*engine.Engine, error) {
	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	return engine.New(newProvider(cfg), nil, ecfg, slog.Default()), nil
}

// newManager builds a session manager that renders into out.
func newManager(cfg *config.Config, out sink.Sink, opts session.Options) (*session.Manager, error) {
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	opts.PreferLabels = cfg.Camera.PreferLabels
	opts.Locker = camera.NewLocker(cfg.Camera.LockDir)
	opts.Logger = slog.Default()
	return session.NewManager(eng, out, opts), nil
}

type flagBinding struct {
	key  string
	flag string
}

// bindFlags returns a PreRun hook binding the command's flags to config
// keys. Binding at run time keeps commands that share a key from
// overriding each other.
func bindFlags(bindings []flagBinding) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		for _, b := range bindings {
			if f := cmd.Flags().Lookup(b.flag); f != nil {
				_ = viper.BindPFlag(b.key, f)
			}
		}
	}
}

func validateOutputFormat(format string) error {
	switch format {
	case outputFormatText, outputFormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: %s, %s)", format, outputFormatText, outputFormatJSON)
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
)

// shouldColorize reports whether w is an interactive terminal.
func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func highlight(s string, colorize bool) string {
	if !colorize {
		return s
	}
	return ansiGreen + s + ansiReset
}
