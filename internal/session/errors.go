package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/engine"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceNotFound    = errors.New("device id not available")
	ErrEnumerationFailed = errors.New("camera enumeration failed")
	ErrEngineStartFailed = errors.New("decoding engine failed to start")
	ErrDeviceBusy        = errors.New("camera in use by another process")
	ErrClosed            = errors.New("session manager closed")
)

// Reason codes carried by events and HTTP error bodies.
const (
	ReasonPermissionDenied  = "permission_denied"
	ReasonDeviceNotFound    = "device_not_found"
	ReasonEnumerationFailed = "enumeration_failed"
	ReasonEngineStartFailed = "engine_start_failed"
	ReasonDeviceBusy        = "device_busy"
	ReasonDecodeError       = "decode_error"
	ReasonStreamEnded       = "stream_ended"
	ReasonClosed            = "closed"
	ReasonCanceled          = "canceled"
	ReasonInternal          = "internal"
)

// TransientDecodeError is a per-frame failure. It is reported to the caller
// and never ends the session.
type TransientDecodeError struct {
	DeviceID string
	Frame    uint64
	Err      error
}

func (e *TransientDecodeError) Error() string {
	return fmt.Sprintf("decode error on %s (frame %d): %v", e.DeviceID, e.Frame, e.Err)
}

func (e *TransientDecodeError) Unwrap() error { return e.Err }

// ReasonOf maps an error to its stable reason code.
func ReasonOf(err error) string {
	var te *TransientDecodeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEnumerationFailed):
		return ReasonEnumerationFailed
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return ReasonDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return ReasonDeviceBusy
	case errors.Is(err, ErrEngineStartFailed):
		return ReasonEngineStartFailed
	case errors.As(err, &te):
		return ReasonDecodeError
	case errors.Is(err, camera.ErrStreamClosed):
		return ReasonStreamEnded
	case errors.Is(err, ErrClosed):
		return ReasonClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonInternal
	}
}

// classifyOpen maps a provider or locker failure onto the session taxonomy.
func classifyOpen(err error) error {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, camera.ErrDeviceNotFound):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	case errors.Is(err, camera.ErrDeviceBusy):
		return fmt.Errorf("%w: %w", ErrDeviceBusy, err)
	case errors.Is(err, engine.ErrStart):
		return fmt.Errorf("%w: %w", ErrEngineStartFailed, err)
	default:
		return err
	}
}

// classifyEnumerate wraps every enumeration failure in ErrEnumerationFailed.
func classifyEnumerate(err error) error {
	if errors.Is(err, camera.ErrNoDevices) {
		return fmt.Errorf("%w: no camera devices found", ErrEnumerationFailed)
	}
	return fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
}
