package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/camscan/internal/session"
)

type deviceRow struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Facing  string `json:"facing"`
	Default bool   `json:"default"`
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available cameras",
	Long: `Enumerate the video inputs of the selected source and mark the one a scan
would use when no device is given.

Examples:
  camscan devices
  camscan devices --json
  camscan devices --source dir --source-dir ./frames`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetValidConfig()
		if err != nil {
			return err
		}
		m, err := newManager(cfg, nil, session.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		ctx := cmd.Context()
		devices, err := m.EnumerateDevices(ctx)
		if err != nil {
			return err
		}
		def, err := m.DefaultDevice(ctx)
		if err != nil {
			return err
		}

		rows := make([]deviceRow, len(devices))
		for i, d := range devices {
			rows[i] = deviceRow{ID: d.ID, Label: d.Label, Facing: d.Facing.String(), Default: d.ID == def.ID}
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		colorize := shouldColorize(out)
		table := make([][]string, len(rows))
		for i, r := range rows {
			mark := ""
			if r.Default {
				mark = highlight("*", colorize)
			}
			table[i] = []string{mark, r.ID, r.Label, r.Facing}
		}
		_, err = fmt.Fprintln(out, renderTable(
			[]string{"", "ID", "Label", "Facing"},
			table,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		))
		return err
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().Bool("json", false, "print devices as JSON")
}
