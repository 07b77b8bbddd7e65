package session

import (
	"context"
	"time"

	"github.com/MeKo-Tech/camscan/internal/camera"
)

// EnumerateDevices lists the available video inputs and refreshes the
// cached list. Zero devices or a refused permission yield
// ErrEnumerationFailed.
func (m *Manager) EnumerateDevices(ctx context.Context) ([]camera.Device, error) {
	devices, err := m.engine.ListDevices(ctx)
	if err == nil && len(devices) == 0 {
		err = camera.ErrNoDevices
	}
	if err != nil {
		return nil, classifyEnumerate(err)
	}

	m.dmu.Lock()
	m.devices = append([]camera.Device(nil), devices...)
	m.stale = false
	m.dmu.Unlock()

	m.logger.Debug("enumerated devices", "count", len(devices))
	return devices, nil
}

// DefaultDevice enumerates and picks the device a scan uses when none was
// named: a back-facing label first, then an explicit capability request,
// then the first device.
func (m *Manager) DefaultDevice(ctx context.Context) (camera.Device, error) {
	devices, err := m.EnumerateDevices(ctx)
	if err != nil {
		return camera.Device{}, err
	}
	return camera.SelectDefault(ctx, devices, m.resolver(), m.opts.PreferLabels...)
}

// Devices returns the cached device list and whether it may be outdated.
func (m *Manager) Devices() ([]camera.Device, bool) {
	m.dmu.Lock()
	defer m.dmu.Unlock()
	return append([]camera.Device(nil), m.devices...), m.stale
}

// Invalidate marks the cached device list stale, typically after a
// hot-plug notification, and tells subscribers to rescan.
func (m *Manager) Invalidate() {
	m.dmu.Lock()
	m.stale = true
	m.dmu.Unlock()

	m.logger.Info("device list invalidated")
	m.publish(Event{Type: EventDevices, State: m.State(), At: time.Now()})
}

func (m *Manager) resolver() camera.FacingResolver {
	if r, ok := m.engine.Provider().(camera.FacingResolver); ok {
		return r
	}
	return nil
}
