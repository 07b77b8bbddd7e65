package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/camscan/internal/barcode"
	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/sink"
)

// ErrStart reports that the decode loop could not be attached to a stream.
var ErrStart = errors.New("engine: failed to start decoding")

// Config holds the decoder settings shared by every Run.
type Config struct {
	Formats   []barcode.Format
	TryHarder bool
	Multi     bool
	// Interval is the pause between two decode attempts.
	Interval time.Duration
	// ReadRetry is the pause after a failed frame read.
	ReadRetry time.Duration
	Normalize bool
}

// DefaultConfig returns the settings used for retail product codes.
func DefaultConfig() Config {
	return Config{
		Formats:   []barcode.Format{barcode.FormatEAN13, barcode.FormatEAN8},
		Interval:  500 * time.Millisecond,
		ReadRetry: 100 * time.Millisecond,
		Normalize: true,
	}
}

// Engine enumerates devices and starts decode runs.
type Engine struct {
	provider camera.Provider
	backend  barcode.Backend
	config   Config
	logger   *slog.Logger
}

// New creates an engine. A nil backend selects barcode.NewBackend and a nil
// logger selects slog.Default.
func New(provider camera.Provider, backend barcode.Backend, config Config, logger *slog.Logger) *Engine {
	if backend == nil {
		backend = barcode.NewBackend()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.ReadRetry <= 0 {
		config.ReadRetry = 100 * time.Millisecond
	}
	return &Engine{
		provider: provider,
		backend:  backend,
		config:   config,
		logger:   logger.With("component", "engine"),
	}
}

// Config returns the engine's decoder settings.
func (e *Engine) Config() Config { return e.config }

// ListDevices enumerates the provider's video inputs.
func (e *Engine) ListDevices(ctx context.Context) ([]camera.Device, error) {
	if e.provider == nil {
		return nil, camera.ErrNoDevices
	}
	return e.provider.ListDevices(ctx)
}

// Open acquires a stream on the provider.
func (e *Engine) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("%w: %s", camera.ErrDeviceNotFound, c.DeviceID)
	}
	return e.provider.Open(ctx, c)
}

// Provider returns the engine's camera provider.
func (e *Engine) Provider() camera.Provider { return e.provider }

// Start begins decoding frames of stream. The sink must already be attached.
// cb is invoked on the run's goroutine once per processed frame.
func (e *Engine) Start(stream camera.Stream, out sink.Sink, cb Callback) (*Run, error) {
	switch {
	case stream == nil:
		return nil, fmt.Errorf("%w: no stream", ErrStart)
	case out == nil:
		return nil, fmt.Errorf("%w: no sink", ErrStart)
	case cb == nil:
		return nil, fmt.Errorf("%w: no callback", ErrStart)
	case !out.Attached():
		return nil, fmt.Errorf("%w: sink not attached to stream %s", ErrStart, stream.ID())
	case camera.AllStopped(stream):
		return nil, fmt.Errorf("%w: %w", ErrStart, camera.ErrStreamClosed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Run{
		engine: e,
		stream: stream,
		sink:   out,
		cb:     cb,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: e.logger.With("stream_id", stream.ID(), "device_id", stream.DeviceID()),
	}
	go r.loop(ctx)
	return r, nil
}

// Run is one active decode loop bound to a single stream.
type Run struct {
	engine *Engine
	stream camera.Stream
	sink   sink.Sink
	cb     Callback
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	err    error
	frames uint64
}

// Stop ends the loop and waits for it to exit. It does not stop the stream.
func (r *Run) Stop() {
	r.cancel()
	<-r.done
}

// Done is closed when the loop has exited.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns why the loop ended on its own, or nil after Stop.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Frames returns the number of frames read so far.
func (r *Run) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("decode loop panicked", "panic", p)
			r.fail(fmt.Errorf("engine: decode loop panic: %v", p))
		}
	}()

	cfg := r.engine.config
	opts := cfg.decodeOptions()

	r.logger.Debug("decode loop started")
	for {
		if ctx.Err() != nil {
			r.logger.Debug("decode loop stopped")
			return
		}

		img, err := r.stream.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, camera.ErrStreamClosed) {
				r.logger.Info("stream ended", "frames", r.Frames())
				r.fail(err)
				return
			}
			framesProcessed.WithLabelValues("error").Inc()
			r.cb(Event{Kind: EventError, Err: err, At: time.Now()})
			if !sleepCtx(ctx, cfg.ReadRetry) {
				return
			}
			continue
		}

		r.mu.Lock()
		r.frames++
		frame := r.frames
		r.mu.Unlock()

		r.sink.Present(img)

		start := time.Now()
		results, err := r.engine.backend.Decode(ctx, img, opts)
		decodeDuration.Observe(time.Since(start).Seconds())

		switch {
		case err == nil && len(results) > 0:
			framesProcessed.WithLabelValues("decoded").Inc()
			for _, res := range results {
				text := res.Value
				if cfg.Normalize {
					text = normalizeText(text)
				}
				r.cb(Event{Kind: EventDecoded, Text: text, Format: res.Type, Frame: frame, At: time.Now()})
			}
		case err == nil, errors.Is(err, barcode.ErrNotFound):
			framesProcessed.WithLabelValues("not_found").Inc()
			r.cb(Event{Kind: EventNotFound, Frame: frame, At: time.Now()})
		case ctx.Err() != nil:
			return
		default:
			framesProcessed.WithLabelValues("error").Inc()
			r.cb(Event{Kind: EventError, Err: err, Frame: frame, At: time.Now()})
		}

		if !sleepCtx(ctx, cfg.Interval) {
			return
		}
	}
}

// DecodeImage decodes a single still image with the engine's settings.
// It returns barcode.ErrNotFound when img holds no symbol.
func (e *Engine) DecodeImage(ctx context.Context, img image.Image) ([]barcode.Result, error) {
	results, err := e.backend.Decode(ctx, img, e.config.decodeOptions())
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, barcode.ErrNotFound
	}
	if e.config.Normalize {
		for i := range results {
			results[i].Value = normalizeText(results[i].Value)
		}
	}
	return results, nil
}

func (c Config) decodeOptions() barcode.Options {
	return barcode.Options{Formats: c.Formats, TryHarder: c.TryHarder, Multi: c.Multi}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
