package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/camscan/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently recorded scans",
	Long: `Print the most recent scans from the history database, newest first.

Scans are only recorded while history.enabled is set in the configuration.

Examples:
  camscan history
  camscan history --limit 5 --json
  camscan history --clear`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetValidConfig()
		if err != nil {
			return err
		}
		if cfg.History.Path == "" {
			return errors.New("history.path is not set")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit < 1 {
			return fmt.Errorf("invalid limit: %d (must be >= 1)", limit)
		}

		ctx := cmd.Context()
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		out := cmd.OutOrStdout()
		if clearAll, _ := cmd.Flags().GetBool("clear"); clearAll {
			n, err := store.Clear(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "removed %d scans\n", n)
			return err
		}

		entries, err := store.Recent(ctx, limit)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if entries == nil {
				entries = []history.Entry{}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		if len(entries) == 0 {
			_, err = fmt.Fprintln(out, "no scans recorded")
			return err
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{
				strconv.FormatInt(e.ID, 10),
				e.ScannedAt.Local().Format(time.DateTime),
				e.DeviceID,
				e.Format,
				e.Text,
			}
		}
		_, err = fmt.Fprintln(out, renderTable(
			[]string{"ID", "Scanned", "Device", "Format", "Text"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
		))
		return err
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "number of scans to show")
	historyCmd.Flags().Bool("json", false, "print scans as JSON")
	historyCmd.Flags().Bool("clear", false, "delete every recorded scan")
	historyCmd.Flags().String("db", "", "history database path (default from history.path)")

	historyCmd.PreRun = bindFlags([]flagBinding{
		{"history.path", "db"},
	})
}
