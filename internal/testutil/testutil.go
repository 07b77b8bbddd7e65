package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CameraDir lays out a directory tree usable by camera.DirProvider: one
// subdirectory per key holding the given frames as numbered PNG files.
func CameraDir(t *testing.T, cameras map[string][]FrameSpec) string {
	t.Helper()

	root := t.TempDir()
	for name, frames := range cameras {
		dir := filepath.Join(root, name)
		require.NoError(t, EnsureDir(dir))
		for i, f := range frames {
			SaveImage(t, f.Render(t), filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i)))
		}
	}
	return root
}
