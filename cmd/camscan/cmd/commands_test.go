package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/camscan/internal/history"
	"github.com/MeKo-Tech/camscan/internal/session"
	"github.com/MeKo-Tech/camscan/internal/testutil"
)

func cameraDir(t *testing.T) string {
	t.Helper()
	return testutil.CameraDir(t, map[string][]testutil.FrameSpec{
		"front": {testutil.EAN8(testutil.SampleEAN8)},
		"back":  {testutil.EAN13(testutil.SampleEAN13)},
	})
}

func TestDevicesCommand(t *testing.T) {
	dir := cameraDir(t)

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "devices", "--source", "dir", "--source-dir", dir, "--json")
		require.NoError(t, err)

		var rows []deviceRow
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, deviceRow{ID: "back", Label: "back", Facing: "back", Default: true}, rows[0])
		assert.Equal(t, "front", rows[1].ID)
		assert.False(t, rows[1].Default)
	})

	t.Run("table", func(t *testing.T) {
		out, _, err := execute(t, "devices", "--source", "dir", "--source-dir", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "LABEL")
		assert.Contains(t, out, "front")
		assert.Contains(t, out, "*")
	})

	t.Run("missing directory", func(t *testing.T) {
		_, _, err := execute(t, "devices", "--source", "dir", "--source-dir", filepath.Join(dir, "nope"))
		require.Error(t, err)
	})
}

func TestScanCommand(t *testing.T) {
	dir := cameraDir(t)

	t.Run("default device", func(t *testing.T) {
		out, _, err := execute(t, "scan", "--source", "dir", "--source-dir", dir, "--count", "1")
		require.NoError(t, err)
		assert.Equal(t, testutil.SampleEAN13+"\n", out)
	})

	t.Run("prints every scan up to count", func(t *testing.T) {
		out, _, err := execute(t, "scan", "--source", "dir", "--source-dir", dir, "--device", "front", "--count", "3")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat(testutil.SampleEAN8+"\n", 3), out)
	})

	t.Run("explicit device as json", func(t *testing.T) {
		out, _, err := execute(t, "scan", "--source", "dir", "--source-dir", dir,
			"--device", "front", "--count", "1", "--format", "json")
		require.NoError(t, err)

		var rec scanRecord
		require.NoError(t, json.Unmarshal([]byte(out), &rec))
		assert.Equal(t, testutil.SampleEAN8, rec.Text)
		assert.Equal(t, "ean8", rec.Format)
		assert.Equal(t, "front", rec.DeviceID)
		assert.NotEmpty(t, rec.SessionID)
	})

	t.Run("unknown device", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--source", "dir", "--source-dir", dir, "--device", "side", "--count", "1")
		require.Error(t, err)
		assert.ErrorIs(t, err, session.ErrDeviceNotFound)
	})

	t.Run("negative count", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--source", "dir", "--source-dir", dir, "--count", "-1")
		require.Error(t, err)
	})

	t.Run("records history", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "history.db")
		t.Setenv("CAMSCAN_HISTORY_ENABLED", "true")
		t.Setenv("CAMSCAN_HISTORY_PATH", db)

		_, _, err := execute(t, "scan", "--source", "dir", "--source-dir", dir, "--count", "1")
		require.NoError(t, err)

		store, err := history.Open(t.Context(), db)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		entries, err := store.Recent(t.Context(), 10)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, testutil.SampleEAN13, entries[0].Text)
		assert.Equal(t, "back", entries[0].DeviceID)
	})
}

func TestSubcommandsGetFreshContext(t *testing.T) {
	dir := cameraDir(t)
	// Each subtest's context is canceled when it ends; later runs must not
	// inherit it.
	for i := range 3 {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			_, _, err := execute(t, "devices", "--source", "dir", "--source-dir", dir, "--json")
			require.NoError(t, err)
			assert.True(t, devicesCmd.Context() == t.Context())
		})
	}
}

func TestPrintScans(t *testing.T) {
	t.Run("stops after count and reports errors on stderr", func(t *testing.T) {
		events := make(chan session.Event, 4)
		events <- session.Event{Type: session.EventState, State: session.StateRunning}
		events <- session.Event{Type: session.EventError, Reason: session.ReasonDecodeError, Message: "bad frame"}
		events <- session.Event{Type: session.EventScan, Text: "123"}
		events <- session.Event{Type: session.EventScan, Text: "456"}

		var out, errOut bytes.Buffer
		require.NoError(t, printScans(t.Context(), &out, &errOut, events, outputFormatText, 1))
		assert.Equal(t, "123\n", out.String())
		assert.Equal(t, "error: "+session.ReasonDecodeError+": bad frame\n", errOut.String())
		assert.Len(t, events, 1)
	})

	t.Run("stream end is an error", func(t *testing.T) {
		events := make(chan session.Event, 1)
		events <- session.Event{Type: session.EventError, Reason: session.ReasonStreamEnded, Message: "unplugged"}

		var out, errOut bytes.Buffer
		err := printScans(t.Context(), &out, &errOut, events, outputFormatText, 0)
		require.ErrorIs(t, err, errStreamEnded)
		assert.Contains(t, err.Error(), "unplugged")
	})

	t.Run("returns when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		var out bytes.Buffer
		require.NoError(t, printScans(ctx, &out, &out, make(chan session.Event), outputFormatJSON, 0))
		assert.Empty(t, out.String())
	})
}

func TestDecodeCommand(t *testing.T) {
	dir := t.TempDir()
	ean := filepath.Join(dir, "a_ean.png")
	blank := filepath.Join(dir, "b_blank.png")
	testutil.SaveImage(t, testutil.EAN13(testutil.SampleEAN13).Render(t), ean)
	testutil.SaveImage(t, testutil.Blank().Render(t), blank)

	t.Run("single file", func(t *testing.T) {
		out, _, err := execute(t, "decode", ean)
		require.NoError(t, err)
		assert.Equal(t, testutil.SampleEAN13+"\n", out)
	})

	t.Run("directory as json", func(t *testing.T) {
		out, _, err := execute(t, "decode", "--format", "json", dir)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		var first, second decodeResult
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

		assert.True(t, first.Found)
		require.Len(t, first.Symbols, 1)
		assert.Equal(t, decodedSymbol{Text: testutil.SampleEAN13, Format: "ean13"}, first.Symbols[0])
		assert.False(t, second.Found)
		assert.Empty(t, second.Error)
	})

	t.Run("no barcode is not a failure", func(t *testing.T) {
		out, _, err := execute(t, "decode", blank)
		require.NoError(t, err)
		assert.Equal(t, "(no barcode)\n", out)
	})

	t.Run("restricted formats", func(t *testing.T) {
		out, _, err := execute(t, "decode", "--formats", "qr", ean)
		require.NoError(t, err)
		assert.Equal(t, "(no barcode)\n", out)
	})

	t.Run("unreadable file fails", func(t *testing.T) {
		broken := filepath.Join(t.TempDir(), "broken.png")
		require.NoError(t, os.WriteFile(broken, []byte("not a png"), 0o600))
		out, _, err := execute(t, "decode", broken)
		require.Error(t, err)
		assert.Contains(t, out, "error:")
	})

	t.Run("empty directory", func(t *testing.T) {
		_, _, err := execute(t, "decode", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no supported images")
	})
}

func TestConfigCommands(t *testing.T) {
	t.Run("show", func(t *testing.T) {
		out, _, err := execute(t, "config", "show", "--source", "dir", "--source-dir", "/srv/frames")
		require.NoError(t, err)
		assert.Contains(t, out, "camera:")
		assert.Contains(t, out, "source: dir")
		assert.Contains(t, out, "source_dir: /srv/frames")
	})

	t.Run("init", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "camscan.yaml")

		out, _, err := execute(t, "config", "init", path)
		require.NoError(t, err)
		assert.Contains(t, out, path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "scanner:")

		_, _, err = execute(t, "config", "init", path)
		require.Error(t, err)

		_, _, err = execute(t, "config", "init", "--force", path)
		require.NoError(t, err)
	})
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(t.Context(), db)
	require.NoError(t, err)
	_, err = store.Record(t.Context(), history.Entry{
		SessionID: "s1", DeviceID: "back", Format: "ean13", Text: testutil.SampleEAN13, ScannedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "history", "--db", db, "--json")
		require.NoError(t, err)
		var entries []history.Entry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, testutil.SampleEAN13, entries[0].Text)
	})

	t.Run("table", func(t *testing.T) {
		out, _, err := execute(t, "history", "--db", db)
		require.NoError(t, err)
		assert.Contains(t, out, testutil.SampleEAN13)
		assert.Contains(t, out, "SCANNED")
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, _, err := execute(t, "history", "--db", db, "--limit", "0")
		require.Error(t, err)
	})

	t.Run("clear", func(t *testing.T) {
		out, _, err := execute(t, "history", "--db", db, "--clear")
		require.NoError(t, err)
		assert.Equal(t, "removed 1 scans\n", out)

		out, _, err = execute(t, "history", "--db", db)
		require.NoError(t, err)
		assert.Equal(t, "no scans recorded\n", out)
	})
}
