package history

import (
	"context"
	"log/slog"

	"github.com/MeKo-Tech/camscan/internal/session"
)

// Follow records every scan event from events until the channel closes or
// ctx ends. Write failures are logged and do not stop the loop.
func Follow(ctx context.Context, store *Store, events <-chan session.Event, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "history")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != session.EventScan {
				continue
			}
			entry := Entry{
				SessionID: ev.SessionID,
				DeviceID:  ev.DeviceID,
				Format:    ev.Format,
				Text:      ev.Text,
				ScannedAt: ev.At,
			}
			if _, err := store.Record(ctx, entry); err != nil {
				logger.Warn("failed to record scan", "error", err)
			}
		}
	}
}
