package testutil

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/camera"
)

// FakeProvider is a scripted camera.Provider that records every acquire and
// release so tests can check ordering and leaks.
type FakeProvider struct {
	mu sync.Mutex

	devices  []camera.Device
	listErr  error
	openErr  map[string]error
	frame    image.Image
	interval time.Duration
	facing   map[camera.Facing]string

	log     []string
	open    int
	maxOpen int
	streams []*FakeStream
}

// NewFakeProvider returns a provider exposing the given devices. Streams
// deliver a blank frame every millisecond until configured otherwise.
func NewFakeProvider(devices ...camera.Device) *FakeProvider {
	return &FakeProvider{
		devices:  devices,
		openErr:  map[string]error{},
		frame:    CreateTestImage(8, 8, color.White),
		interval: time.Millisecond,
	}
}

// SetDevices replaces the enumerated devices.
func (p *FakeProvider) SetDevices(devices ...camera.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = devices
}

// FailList makes ListDevices return err.
func (p *FakeProvider) FailList(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

// FailOpen makes Open of deviceID return err. A nil err clears it.
func (p *FakeProvider) FailOpen(deviceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.openErr, deviceID)
		return
	}
	p.openErr[deviceID] = err
}

// SetFrame sets the frame and pacing of streams opened afterwards.
func (p *FakeProvider) SetFrame(img image.Image, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = img
	p.interval = interval
}

// SetFacing answers ResolveFacing(f) with deviceID.
func (p *FakeProvider) SetFacing(f camera.Facing, deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.facing == nil {
		p.facing = map[camera.Facing]string{}
	}
	p.facing[f] = deviceID
}

func (p *FakeProvider) ListDevices(ctx context.Context) ([]camera.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	if len(p.devices) == 0 {
		return nil, camera.ErrNoDevices
	}
	return append([]camera.Device(nil), p.devices...), nil
}

func (p *FakeProvider) ResolveFacing(_ context.Context, f camera.Facing) (camera.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.facing[f]
	if !ok {
		return camera.Device{}, camera.ErrDeviceNotFound
	}
	d, ok := camera.FindDevice(p.devices, id)
	if !ok {
		return camera.Device{}, camera.ErrDeviceNotFound
	}
	return d, nil
}

func (p *FakeProvider) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if err, ok := p.openErr[c.DeviceID]; ok {
		p.log = append(p.log, "fail:"+c.DeviceID)
		p.mu.Unlock()
		return nil, err
	}
	if _, ok := camera.FindDevice(p.devices, c.DeviceID); !ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", camera.ErrDeviceNotFound, c.DeviceID)
	}

	s := &FakeStream{
		id:       fmt.Sprintf("stream-%d", len(p.streams)+1),
		deviceID: c.DeviceID,
		frame:    p.frame,
		interval: p.interval,
		closed:   make(chan struct{}),
		ended:    make(chan struct{}),
	}
	s.track = camera.NewTrack(s.id+"/video", func() error {
		p.release(s)
		return nil
	})
	p.streams = append(p.streams, s)
	p.open++
	p.maxOpen = max(p.maxOpen, p.open)
	p.log = append(p.log, "open:"+c.DeviceID)
	p.mu.Unlock()
	return s, nil
}

func (p *FakeProvider) release(s *FakeStream) {
	s.closeOnce.Do(func() { close(s.closed) })
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open--
	p.log = append(p.log, "stop:"+s.deviceID)
}

// Log returns the acquire/release history, e.g. ["open:A", "stop:A"].
func (p *FakeProvider) Log() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

// OpenCount returns the number of streams with live tracks.
func (p *FakeProvider) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// MaxOpen returns the highest number of simultaneously live streams seen.
func (p *FakeProvider) MaxOpen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxOpen
}

// Streams returns every stream opened so far.
func (p *FakeProvider) Streams() []*FakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeStream(nil), p.streams...)
}

// LastStream returns the most recently opened stream, or nil.
func (p *FakeProvider) LastStream() *FakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

// FakeStream serves one frame repeatedly.
type FakeStream struct {
	id       string
	deviceID string
	frame    image.Image
	interval time.Duration
	track    camera.Track

	closeOnce sync.Once
	closed    chan struct{}
	endOnce   sync.Once
	ended     chan struct{}

	mu    sync.Mutex
	reads int
}

func (s *FakeStream) ID() string             { return s.id }
func (s *FakeStream) DeviceID() string       { return s.deviceID }
func (s *FakeStream) Tracks() []camera.Track { return []camera.Track{s.track} }

func (s *FakeStream) ReadFrame(ctx context.Context) (image.Image, error) {
	select {
	case <-s.closed:
		return nil, camera.ErrStreamClosed
	case <-s.ended:
		return nil, camera.ErrStreamClosed
	default:
	}

	if s.interval > 0 {
		t := time.NewTimer(s.interval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, camera.ErrStreamClosed
		case <-s.ended:
			return nil, camera.ErrStreamClosed
		case <-t.C:
		}
	}

	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.frame, nil
}

// End simulates the device going away: reads fail with ErrStreamClosed but
// the tracks stay live until somebody stops them.
func (s *FakeStream) End() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Reads returns the number of frames delivered.
func (s *FakeStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Stopped reports whether the stream's track was released.
func (s *FakeStream) Stopped() bool { return s.track.Stopped() }

// Decode is one scripted backend answer.
type Decode struct {
	Results []barcode.Result
	Err     error
}

// Found scripts a successful decode of text.
func Found(format barcode.Format, text string) Decode {
	return Decode{Results: []barcode.Result{{Type: format, Value: text}}}
}

// NotFound scripts a frame without a symbol.
func NotFound() Decode { return Decode{Err: barcode.ErrNotFound} }

// Failure scripts a decoder error.
func Failure(err error) Decode { return Decode{Err: err} }

// FakeBackend answers Decode from a script. Once the script is exhausted
// it repeats the fallback, which defaults to NotFound.
type FakeBackend struct {
	mu       sync.Mutex
	script   []Decode
	fallback Decode
	calls    int
	opts     []barcode.Options
}

// NewFakeBackend returns a backend that plays script in order.
func NewFakeBackend(script ...Decode) *FakeBackend {
	return &FakeBackend{script: script, fallback: NotFound()}
}

// SetFallback sets the answer used after the script ran out.
func (b *FakeBackend) SetFallback(d Decode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = d
}

// Push appends answers to the script.
func (b *FakeBackend) Push(d ...Decode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append(b.script, d...)
}

func (b *FakeBackend) Decode(ctx context.Context, _ image.Image, opts barcode.Options) ([]barcode.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.opts = append(b.opts, opts)
	d := b.fallback
	if len(b.script) > 0 {
		d = b.script[0]
		b.script = b.script[1:]
	}
	return d.Results, d.Err
}

// Calls returns the number of Decode invocations.
func (b *FakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// LastOptions returns the options of the most recent call.
func (b *FakeBackend) LastOptions() barcode.Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opts) == 0 {
		return barcode.Options{}
	}
	return b.opts[len(b.opts)-1]
}
