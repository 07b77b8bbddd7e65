//go:build !linux

package camera

import (
	"context"
	"log/slog"
)

// Watcher is a no-op outside Linux; devices are re-enumerated on explicit
// rescans only.
type Watcher struct {
	logger *slog.Logger
}

// NewWatcher returns a watcher that never fires.
func NewWatcher(logger *slog.Logger, _ func(DeviceEvent)) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{logger: logger.With("component", "camera-watcher")}
}

// Start logs that hot-plug detection is unavailable.
func (w *Watcher) Start(context.Context) error {
	w.logger.Debug("hot-plug detection unavailable on this platform")
	return nil
}

// Stop does nothing.
func (w *Watcher) Stop() {}

// Running always reports false.
func (w *Watcher) Running() bool { return false }
