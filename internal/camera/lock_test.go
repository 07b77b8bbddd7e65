package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockerExclusive(t *testing.T) {
	l := NewLocker(t.TempDir())

	release, err := l.Acquire("video0")
	require.NoError(t, err)

	_, err = l.Acquire("video0")
	require.ErrorIs(t, err, ErrDeviceBusy)

	other, err := l.Acquire("video1")
	require.NoError(t, err)
	require.NoError(t, other())

	require.NoError(t, release())

	again, err := l.Acquire("video0")
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestLockerDisabled(t *testing.T) {
	var l *Locker
	release, err := l.Acquire("x")
	require.NoError(t, err)
	require.NoError(t, release())

	release, err = NewLocker("").Acquire("x")
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestLockerPathIsStable(t *testing.T) {
	l := NewLocker("/tmp/locks")
	assert.Equal(t, l.Path("/dev/video0"), l.Path("/dev/video0"))
	assert.NotEqual(t, l.Path("/dev/video0"), l.Path("/dev/video1"))
}
