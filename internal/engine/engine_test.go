package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/sink"
	"github.com/MeKo-Tech/camscan/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecorder() *recorder { return &recorder{notify: make(chan struct{}, 1024)} }

func (r *recorder) callback(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, 2*time.Second, time.Millisecond)
	return r.snapshot()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = 0
	cfg.ReadRetry = time.Millisecond
	return cfg
}

func openStream(t *testing.T, p *testutil.FakeProvider) (camera.Stream, *sink.Preview) {
	t.Helper()
	s, err := p.Open(context.Background(), camera.Constraints{DeviceID: "A"})
	require.NoError(t, err)
	out := sink.NewPreview(0, 80)
	require.NoError(t, out.Attach(s.ID()))
	return s, out
}

func TestStartValidatesInputs(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", "Back"))
	e := New(p, testutil.NewFakeBackend(), testConfig(), nil)
	s, out := openStream(t, p)
	cb := func(Event) {}

	_, err := e.Start(nil, out, cb)
	require.ErrorIs(t, err, ErrStart)
	_, err = e.Start(s, nil, cb)
	require.ErrorIs(t, err, ErrStart)
	_, err = e.Start(s, out, nil)
	require.ErrorIs(t, err, ErrStart)

	out.Detach()
	_, err = e.Start(s, out, cb)
	require.ErrorIs(t, err, ErrStart)

	require.NoError(t, out.Attach(s.ID()))
	require.NoError(t, camera.StopStream(s))
	_, err = e.Start(s, out, cb)
	require.ErrorIs(t, err, ErrStart)
	require.ErrorIs(t, err, camera.ErrStreamClosed)
}

func TestRunReportsEveryOutcome(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", "Back"))
	boom := errors.New("checksum failed")
	backend := testutil.NewFakeBackend(
		testutil.NotFound(),
		testutil.Found(barcode.FormatEAN13, testutil.SampleEAN13),
		testutil.Failure(boom),
	)
	e := New(p, backend, testConfig(), nil)
	s, out := openStream(t, p)
	rec := newRecorder()

	run, err := e.Start(s, out, rec.callback)
	require.NoError(t, err)
	events := rec.waitFor(t, 3)
	run.Stop()

	assert.Equal(t, EventNotFound, events[0].Kind)
	assert.Equal(t, EventDecoded, events[1].Kind)
	assert.Equal(t, testutil.SampleEAN13, events[1].Text)
	assert.Equal(t, barcode.FormatEAN13, events[1].Format)
	assert.Equal(t, EventError, events[2].Kind)
	require.ErrorIs(t, events[2].Err, boom)
	assert.Less(t, events[0].Frame, events[1].Frame)

	_, info, ok := out.Latest()
	require.True(t, ok)
	assert.Positive(t, info.Frames)
	assert.Equal(t, []barcode.Format{barcode.FormatEAN13, barcode.FormatEAN8}, backend.LastOptions().Formats)
}

func TestRunMultiResultsEmitEach(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", ""))
	backend := testutil.NewFakeBackend(testutil.Decode{Results: []barcode.Result{
		{Type: barcode.FormatQR, Value: "first"},
		{Type: barcode.FormatQR, Value: "second"},
	}})
	cfg := testConfig()
	cfg.Multi = true
	e := New(p, backend, cfg, nil)
	s, out := openStream(t, p)
	rec := newRecorder()

	run, err := e.Start(s, out, rec.callback)
	require.NoError(t, err)
	events := rec.waitFor(t, 2)
	run.Stop()

	assert.Equal(t, "first", events[0].Text)
	assert.Equal(t, "second", events[1].Text)
	assert.Equal(t, events[0].Frame, events[1].Frame)
	assert.True(t, backend.LastOptions().Multi)
}

func TestRunNormalizesText(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", ""))
	// "e" followed by a combining acute accent, plus a stray control byte.
	backend := testutil.NewFakeBackend(testutil.Found(barcode.FormatQR, "cafe\u0301\x00\tok"))
	e := New(p, backend, testConfig(), nil)
	s, out := openStream(t, p)
	rec := newRecorder()

	run, err := e.Start(s, out, rec.callback)
	require.NoError(t, err)
	events := rec.waitFor(t, 1)
	run.Stop()

	assert.Equal(t, "caf\u00e9\tok", events[0].Text)
}

func TestStopIsIdempotentAndWaits(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", ""))
	e := New(p, testutil.NewFakeBackend(), testConfig(), nil)
	s, out := openStream(t, p)
	rec := newRecorder()

	run, err := e.Start(s, out, rec.callback)
	require.NoError(t, err)
	rec.waitFor(t, 1)

	run.Stop()
	run.Stop()
	select {
	case <-run.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
	require.NoError(t, run.Err())

	n := len(rec.snapshot())
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, rec.snapshot(), n, "no callbacks after Stop returned")
	assert.False(t, p.LastStream().Stopped(), "Stop leaves the stream to its owner")
}

func TestRunEndsWhenStreamCloses(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", ""))
	e := New(p, testutil.NewFakeBackend(), testConfig(), nil)
	s, out := openStream(t, p)

	run, err := e.Start(s, out, func(Event) {})
	require.NoError(t, err)
	p.LastStream().End()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	require.ErrorIs(t, run.Err(), camera.ErrStreamClosed)
}

func TestRunRecoversCallbackPanic(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", ""))
	e := New(p, testutil.NewFakeBackend(), testConfig(), nil)
	s, out := openStream(t, p)

	run, err := e.Start(s, out, func(Event) { panic("callback exploded") })
	require.NoError(t, err)

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	require.Error(t, run.Err())
	assert.Contains(t, run.Err().Error(), "callback exploded")
}

func TestIntervalThrottlesDecoding(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", ""))
	backend := testutil.NewFakeBackend()
	cfg := testConfig()
	cfg.Interval = 50 * time.Millisecond
	e := New(p, backend, cfg, nil)
	s, out := openStream(t, p)

	run, err := e.Start(s, out, func(Event) {})
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)
	run.Stop()

	assert.LessOrEqual(t, backend.Calls(), 4)
	assert.GreaterOrEqual(t, backend.Calls(), 1)
}

func TestListDevices(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", "Front"), camera.NewDevice("B", "Back"))
	e := New(p, nil, testConfig(), nil)

	devices, err := e.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	_, err = New(nil, nil, testConfig(), nil).ListDevices(context.Background())
	require.ErrorIs(t, err, camera.ErrNoDevices)
}

func TestDecodesRenderedFrames(t *testing.T) {
	p := testutil.NewFakeProvider(camera.NewDevice("A", "Back camera"))
	p.SetFrame(testutil.EAN13(testutil.SampleEAN13).Render(t), time.Millisecond)
	e := New(p, barcode.NewBackend(), testConfig(), nil)
	s, out := openStream(t, p)
	rec := newRecorder()

	run, err := e.Start(s, out, rec.callback)
	require.NoError(t, err)
	events := rec.waitFor(t, 1)
	run.Stop()

	require.Equal(t, EventDecoded, events[0].Kind, "err: %v", events[0].Err)
	assert.Equal(t, testutil.SampleEAN13, events[0].Text)
}

func TestDecodeImage(t *testing.T) {
	ctx := context.Background()

	b := testutil.NewFakeBackend(
		testutil.Found(barcode.FormatQR, "café"),
		testutil.Decode{},
		testutil.Failure(errors.New("bad frame")),
	)
	e := New(nil, b, testConfig(), nil)
	img := testutil.Blank().Render(t)

	results, err := e.DecodeImage(ctx, img)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "café", results[0].Value)
	assert.Equal(t, testConfig().Formats, b.LastOptions().Formats)

	_, err = e.DecodeImage(ctx, img)
	require.ErrorIs(t, err, barcode.ErrNotFound)

	_, err = e.DecodeImage(ctx, img)
	require.EqualError(t, err, "bad frame")
}

func TestDecodeImageWithGozxing(t *testing.T) {
	e := New(nil, nil, testConfig(), nil)

	results, err := e.DecodeImage(context.Background(), testutil.EAN8(testutil.SampleEAN8).Render(t))
	require.NoError(t, err)
	assert.Equal(t, testutil.SampleEAN8, results[0].Value)
	assert.Equal(t, barcode.FormatEAN8, results[0].Type)

	_, err = e.DecodeImage(context.Background(), testutil.Blank().Render(t))
	require.ErrorIs(t, err, barcode.ErrNotFound)
}
