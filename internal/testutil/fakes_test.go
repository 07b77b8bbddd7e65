package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/camera"
)

func TestFakeProviderTracksOpenStreams(t *testing.T) {
	p := NewFakeProvider(camera.NewDevice("A", "Back"), camera.NewDevice("B", "Front"))
	ctx := context.Background()

	a, err := p.Open(ctx, camera.Constraints{DeviceID: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, p.OpenCount())

	require.NoError(t, camera.StopStream(a))
	require.NoError(t, camera.StopStream(a))
	assert.Equal(t, 0, p.OpenCount())

	_, err = p.Open(ctx, camera.Constraints{DeviceID: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"open:A", "stop:A", "open:B"}, p.Log())
	assert.Equal(t, 1, p.MaxOpen())
}

func TestFakeProviderFailures(t *testing.T) {
	p := NewFakeProvider(camera.NewDevice("A", ""))
	boom := errors.New("boom")

	p.FailOpen("A", boom)
	_, err := p.Open(context.Background(), camera.Constraints{DeviceID: "A"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.OpenCount())

	_, err = p.Open(context.Background(), camera.Constraints{DeviceID: "Z"})
	require.ErrorIs(t, err, camera.ErrDeviceNotFound)

	p.FailList(boom)
	_, err = p.ListDevices(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestFakeStreamEnd(t *testing.T) {
	p := NewFakeProvider(camera.NewDevice("A", ""))
	s, err := p.Open(context.Background(), camera.Constraints{DeviceID: "A"})
	require.NoError(t, err)

	_, err = s.ReadFrame(context.Background())
	require.NoError(t, err)

	fs := p.LastStream()
	fs.End()
	_, err = s.ReadFrame(context.Background())
	require.ErrorIs(t, err, camera.ErrStreamClosed)
	assert.False(t, fs.Stopped())
	assert.Equal(t, 1, fs.Reads())
}

func TestFakeBackendScript(t *testing.T) {
	b := NewFakeBackend(Found(barcode.FormatQR, "one"), Failure(errors.New("bad")))
	ctx := context.Background()

	res, err := b.Decode(ctx, nil, barcode.Options{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, "one", res[0].Value)
	assert.True(t, b.LastOptions().Multi)

	_, err = b.Decode(ctx, nil, barcode.Options{})
	require.EqualError(t, err, "bad")

	_, err = b.Decode(ctx, nil, barcode.Options{})
	require.ErrorIs(t, err, barcode.ErrNotFound)
	assert.Equal(t, 3, b.Calls())
}
