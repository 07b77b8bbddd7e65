package camera

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Locker hands out per-device lock files so two camscan processes never
// hold the same camera. A Locker with an empty directory is a no-op.
type Locker struct {
	dir string
}

// NewLocker returns a Locker that keeps its lock files in dir.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir}
}

// Acquire takes the lock for deviceID without blocking. The returned
// release function must be called exactly once.
func (l *Locker) Acquire(deviceID string) (func() error, error) {
	if l == nil || l.dir == "" {
		return func() error { return nil }, nil
	}
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return nil, fmt.Errorf("camera: create lock dir: %w", err)
	}

	fl := flock.New(l.Path(deviceID))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("camera: lock %s: %w", deviceID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held by another process", ErrDeviceBusy, deviceID)
	}
	return fl.Unlock, nil
}

// Path returns the lock file used for deviceID.
func (l *Locker) Path(deviceID string) string {
	sum := sha256.Sum256([]byte(deviceID))
	return filepath.Join(l.dir, "camscan-"+hex.EncodeToString(sum[:8])+".lock")
}
