package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrPermissionDenied reports that the platform refused camera access.
	ErrPermissionDenied = errors.New("camera: permission denied")
	// ErrDeviceNotFound reports an unknown or vanished device id.
	ErrDeviceNotFound = errors.New("camera: device not found")
	// ErrNoDevices reports that enumeration found no video inputs.
	ErrNoDevices = errors.New("camera: no camera devices found")
	// ErrDeviceBusy reports that another process holds the device.
	ErrDeviceBusy = errors.New("camera: device busy")
	// ErrStreamClosed is returned by ReadFrame once the stream's tracks stopped.
	ErrStreamClosed = errors.New("camera: stream closed")
)

// Constraints are passed to Provider.Open. DeviceID is matched exactly;
// Width and Height are ideal hints (0 means unset).
type Constraints struct {
	DeviceID string `json:"device_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Facing   Facing `json:"facing,omitempty"`
}

// Validate checks the constraints before any device is touched.
func (c Constraints) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrDeviceNotFound)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("invalid resolution hint %dx%d", c.Width, c.Height)
	}
	return nil
}

// Track is one media track of a stream.
type Track interface {
	ID() string
	// Stop releases the track. It is safe to call more than once.
	Stop() error
	Stopped() bool
}

// Stream is an exclusive handle on a camera.
type Stream interface {
	ID() string
	DeviceID() string
	Tracks() []Track
	// ReadFrame blocks until the next frame is available. It returns
	// ErrStreamClosed once the tracks have been stopped.
	ReadFrame(ctx context.Context) (image.Image, error)
}

// Provider enumerates devices and opens streams on them.
type Provider interface {
	ListDevices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// FacingResolver is implemented by providers that can answer an explicit
// facing-mode capability request.
type FacingResolver interface {
	ResolveFacing(ctx context.Context, f Facing) (Device, error)
}

// StopStream stops every track of s and joins the errors.
func StopStream(s Stream) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, t := range s.Tracks() {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop track %s: %w", t.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// AllStopped reports whether every track of s has been stopped.
func AllStopped(s Stream) bool {
	for _, t := range s.Tracks() {
		if !t.Stopped() {
			return false
		}
	}
	return true
}
