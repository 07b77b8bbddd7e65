package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/utils"
)

// decodeResult is one line of `decode --format json` output.
type decodeResult struct {
	File    string          `json:"file"`
	Found   bool            `json:"found"`
	Symbols []decodedSymbol `json:"symbols,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type decodedSymbol struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

var decodeCmd = &cobra.Command{
	Use:   "decode [FILE|DIR]...",
	Short: "Decode barcodes from still images",
	Long: `Decode barcodes from image files with the same decoder and settings a live
scan uses. Directories are expanded to the supported images they contain.

Files without a barcode are reported but do not fail the command; unreadable
files do.

Examples:
  camscan decode label.png
  camscan decode --recursive ./photos --format json
  camscan decode --formats qr ticket.jpg`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetValidConfig()
		if err != nil {
			return err
		}
		if err := validateOutputFormat(cfg.Output.Format); err != nil {
			return err
		}
		recursive, _ := cmd.Flags().GetBool("recursive")

		files, err := utils.DiscoverImages(args, recursive)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.New("no supported images found")
		}

		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var failed int
		for _, file := range files {
			res := decodeFile(cmd.Context(), eng.DecodeImage, file)
			if res.Error != "" {
				failed++
				slog.Warn("decode failed", "file", file, "error", res.Error)
			}
			if err := writeDecodeResult(out, res, cfg.Output.Format, len(files) > 1); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be decoded", failed, len(files))
		}
		return nil
	},
}

type decodeFunc func(ctx context.Context, img image.Image) ([]barcode.Result, error)

func decodeFile(ctx context.Context, decode decodeFunc, file string) decodeResult {
	res := decodeResult{File: file}
	img, _, err := utils.LoadImage(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	results, err := decode(ctx, img)
	switch {
	case errors.Is(err, barcode.ErrNotFound):
		return res
	case err != nil:
		res.Error = err.Error()
		return res
	}
	res.Found = true
	for _, r := range results {
		res.Symbols = append(res.Symbols, decodedSymbol{Text: r.Value, Format: r.Type.String()})
	}
	return res
}

func writeDecodeResult(w io.Writer, res decodeResult, format string, prefix bool) error {
	if format == outputFormatJSON {
		return json.NewEncoder(w).Encode(res)
	}
	lead := ""
	if prefix {
		lead = res.File + ": "
	}
	var err error
	switch {
	case res.Error != "":
		_, err = fmt.Fprintf(w, "%serror: %s\n", lead, res.Error)
	case !res.Found:
		_, err = fmt.Fprintf(w, "%s(no barcode)\n", lead)
	default:
		for _, s := range res.Symbols {
			if _, err = fmt.Fprintf(w, "%s%s\n", lead, s.Text); err != nil {
				break
			}
		}
	}
	return err
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	decodeCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
	decodeCmd.Flags().StringSlice("formats", nil, "barcode formats to decode (e.g. ean13,qr)")
	decodeCmd.Flags().Bool("try-harder", false, "spend more time per image")
	decodeCmd.Flags().Bool("multi", false, "report every symbol in an image")

	decodeCmd.PreRun = bindFlags([]flagBinding{
		{"output.format", "format"},
		{"scanner.formats", "formats"},
		{"scanner.try_harder", "try-harder"},
		{"scanner.multi", "multi"},
	})
}
