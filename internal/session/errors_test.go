package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/engine"
)

func TestReasonOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{classifyOpen(camera.ErrPermissionDenied), ReasonPermissionDenied},
		{classifyOpen(fmt.Errorf("open: %w", camera.ErrDeviceNotFound)), ReasonDeviceNotFound},
		{classifyOpen(camera.ErrDeviceBusy), ReasonDeviceBusy},
		{classifyOpen(engine.ErrStart), ReasonEngineStartFailed},
		{classifyEnumerate(camera.ErrNoDevices), ReasonEnumerationFailed},
		{classifyEnumerate(camera.ErrPermissionDenied), ReasonEnumerationFailed},
		{&TransientDecodeError{DeviceID: "1", Frame: 3, Err: errors.New("x")}, ReasonDecodeError},
		{camera.ErrStreamClosed, ReasonStreamEnded},
		{ErrClosed, ReasonClosed},
		{context.Canceled, ReasonCanceled},
		{errors.New("mystery"), ReasonInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReasonOf(tt.err), "%v", tt.err)
	}
}

func TestClassifyKeepsCause(t *testing.T) {
	cause := fmt.Errorf("%w: /dev/video0", camera.ErrPermissionDenied)
	err := classifyOpen(cause)
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.ErrorIs(t, err, camera.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "/dev/video0")

	plain := errors.New("driver glitch")
	assert.Equal(t, plain, classifyOpen(plain))
}

func TestTransientDecodeError(t *testing.T) {
	cause := errors.New("format error")
	err := error(&TransientDecodeError{DeviceID: "cam", Frame: 7, Err: cause})

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "decode error on cam (frame 7): format error", err.Error())
}
