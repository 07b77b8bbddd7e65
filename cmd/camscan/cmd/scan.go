package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/camscan/internal/history"
	"github.com/MeKo-Tech/camscan/internal/session"
)

// errStreamEnded is returned when the camera goes away mid-scan.
var errStreamEnded = errors.New("camera stream ended")

type scanRecord struct {
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	DeviceID  string    `json:"device_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan barcodes from a camera until interrupted",
	Long: `Open a camera and print every decoded barcode on its own line.

Without --device the back-facing camera is preferred. Decoding errors are
reported on stderr and do not stop the scan. Interrupt with Ctrl+C, or use
--count to stop after a number of scans.

Examples:
  camscan scan
  camscan scan --count 1
  camscan scan --device 2 --width 1280 --height 720 --format json`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetValidConfig()
		if err != nil {
			return err
		}
		if err := validateOutputFormat(cfg.Output.Format); err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt("count")
		if count < 0 {
			return fmt.Errorf("invalid count: %d (must be >= 0)", count)
		}
		constraints, err := cfg.Constraints()
		if err != nil {
			return err
		}

		// Scans reach the printer through OnEvent, which never drops. The
		// decode loop waits on a full buffer until done is closed.
		events := make(chan session.Event, 64)
		done := make(chan struct{})
		stopForwarding := sync.OnceFunc(func() { close(done) })
		forward := func(ev session.Event) {
			if ev.Type != session.EventScan && ev.Type != session.EventError {
				return
			}
			select {
			case events <- ev:
			case <-done:
			}
		}

		m, err := newManager(cfg, nil, session.Options{OnEvent: forward})
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()
		defer stopForwarding()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.History.Enabled {
			store, err := history.Open(ctx, cfg.History.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			recorded, cancel := m.Subscribe(256)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				history.Follow(context.WithoutCancel(ctx), store, recorded, slog.Default())
			}()
			// Runs before store.Close so pending scans are flushed.
			defer func() {
				cancel()
				wg.Wait()
			}()
		}

		st, err := m.Start(ctx, constraints)
		if err != nil {
			return err
		}
		slog.Info("scanning", "device_id", st.Device.ID, "label", st.Device.Label, "session_id", st.SessionID)

		err = printScans(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), events, cfg.Output.Format, count)
		stopForwarding()
		if stopErr := m.Stop(); stopErr != nil {
			slog.Warn("stopping session reported errors", "error", stopErr)
		}
		return err
	},
}

// printScans writes scan events until ctx ends, count scans were printed
// (0 means no limit) or the stream ends.
func printScans(ctx context.Context, out, errOut io.Writer, events <-chan session.Event, format string, count int) error {
	printed := 0
	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case session.EventScan:
				var err error
				if format == outputFormatJSON {
					err = enc.Encode(scanRecord{
						Text:      ev.Text,
						Format:    ev.Format,
						DeviceID:  ev.DeviceID,
						SessionID: ev.SessionID,
						At:        ev.At,
					})
				} else {
					_, err = fmt.Fprintln(out, ev.Text)
				}
				if err != nil {
					return fmt.Errorf("failed to write scan: %w", err)
				}
				printed++
				if count > 0 && printed >= count {
					return nil
				}
			case session.EventError:
				if ev.Reason == session.ReasonStreamEnded {
					return fmt.Errorf("%w: %s", errStreamEnded, ev.Message)
				}
				_, _ = fmt.Fprintf(errOut, "error: %s: %s\n", ev.Reason, ev.Message)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("device", "d", "", "device id to scan with (default: back-facing camera)")
	scanCmd.Flags().Int("width", 0, "ideal frame width (0 = driver default)")
	scanCmd.Flags().Int("height", 0, "ideal frame height (0 = driver default)")
	scanCmd.Flags().String("facing", "back", "preferred facing when no device is given (front, back, unknown)")
	scanCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	scanCmd.Flags().IntP("count", "n", 0, "stop after this many scans (0 = until interrupted)")
	scanCmd.Flags().StringSlice("formats", nil, "barcode formats to decode (e.g. ean13,qr)")

	scanCmd.PreRun = bindFlags([]flagBinding{
		{"camera.device_id", "device"},
		{"camera.width", "width"},
		{"camera.height", "height"},
		{"camera.facing", "facing"},
		{"output.format", "format"},
		{"scanner.formats", "formats"},
	})
}
