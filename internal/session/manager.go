package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/camscan/internal/camera"
	"github.com/MeKo-Tech/camscan/internal/engine"
	"github.com/MeKo-Tech/camscan/internal/sink"
)

// Options configures a Manager. Callbacks run on the decode goroutine and
// must not call back into the Manager's Start, Stop or SwitchDevice.
type Options struct {
	OnScan  func(text string)
	OnError func(reason string)

	// OnEvent receives every event synchronously, before subscribers. Unlike
	// Subscribe it never drops; a slow OnEvent slows decoding instead.
	OnEvent func(Event)

	// PreferLabels extends the label keywords used for default selection.
	PreferLabels []string
	Locker       *camera.Locker
	Logger       *slog.Logger
}

// Manager owns at most one capture session at a time.
type Manager struct {
	engine *engine.Engine
	sink   sink.Sink
	opts   Options
	logger *slog.Logger
	bus    *bus

	// mu serializes Start, Stop, SwitchDevice and Close.
	mu     sync.Mutex
	cur    *capture
	closed bool
	wg     sync.WaitGroup

	// smu guards the observable status so readers never wait on mu.
	smu        sync.RWMutex
	state      State
	active     *capture
	lastScan   string
	lastError  string
	lastReason string

	dmu     sync.Mutex
	devices []camera.Device
	stale   bool
}

// capture is the live session owned by the manager.
type capture struct {
	id          string
	device      camera.Device
	constraints camera.Constraints
	stream      camera.Stream
	run         *engine.Run
	unlock      func() error
	started     time.Time

	frames   atomic.Uint64
	scans    atomic.Uint64
	errors   atomic.Uint64
	stopping atomic.Bool
}

// NewManager creates a manager that runs eng against out.
func NewManager(eng *engine.Engine, out sink.Sink, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = &sink.Discard{}
	}
	return &Manager{
		engine: eng,
		sink:   out,
		opts:   opts,
		logger: logger.With("component", "session"),
		bus:    newBus(),
		stale:  true,
	}
}

// Start acquires a stream for c and begins decoding. An empty DeviceID
// selects the default device. Starting while a session runs switches to the
// new device: the old stream is released first.
func (m *Manager) Start(ctx context.Context, c camera.Constraints) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.Status(), ErrClosed
	}
	if m.cur != nil {
		if err := m.stopLocked(); err != nil {
			m.logger.Warn("release before restart reported errors", "error", err)
		}
	}
	err := m.startLocked(ctx, c)
	return m.Status(), err
}

// SwitchDevice stops the current session, waits for its tracks to be
// released and starts a new one on deviceID with the previous resolution
// hints.
func (m *Manager) SwitchDevice(ctx context.Context, deviceID string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.Status(), ErrClosed
	}
	c := camera.Constraints{DeviceID: deviceID}
	if m.cur != nil {
		prev := m.cur.constraints
		c.Width, c.Height = prev.Width, prev.Height
		if err := m.stopLocked(); err != nil {
			m.logger.Warn("release before switch reported errors", "error", err)
		}
	}
	if deviceID == "" {
		err := fmt.Errorf("%w: empty device id", ErrDeviceNotFound)
		m.failStart(err)
		return m.Status(), err
	}
	err := m.startLocked(ctx, c)
	return m.Status(), err
}

// Stop ends the current session. It is a no-op when idle.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

// Close stops any session, waits for background work and ends every
// subscription. Further Start calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	err := m.stopLocked()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	m.bus.close()
	return err
}

// Subscribe returns a channel of relayed events and a function that ends
// the subscription. Slow subscribers lose events rather than stalling the
// decode loop.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.bus.subscribe(buffer)
}

// DroppedEvents returns how many events subscribers have missed.
func (m *Manager) DroppedEvents() uint64 { return m.bus.dropped() }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.smu.RLock()
	defer m.smu.RUnlock()
	return m.state
}

// Status returns a snapshot of the current session.
func (m *Manager) Status() Status {
	m.smu.RLock()
	defer m.smu.RUnlock()

	st := Status{
		State:      m.state,
		LastScan:   m.lastScan,
		LastError:  m.lastError,
		LastReason: m.lastReason,
	}
	if c := m.active; c != nil {
		dev := c.device
		started := c.started
		st.SessionID = c.id
		st.Device = &dev
		st.Constraints = c.constraints
		st.StartedAt = &started
		st.Frames = c.frames.Load()
		st.Scans = c.scans.Load()
		st.Errors = c.errors.Load()
	}
	return st
}

func (m *Manager) startLocked(ctx context.Context, c camera.Constraints) (err error) {
	m.setState(StateStarting, nil)

	var (
		stream   camera.Stream
		unlock   func() error
		attached bool
		run      *engine.Run
	)
	release := func() {
		if run != nil {
			run.Stop()
		}
		if stream != nil {
			if stopErr := camera.StopStream(stream); stopErr != nil {
				m.logger.Warn("failed to stop tracks after failed start", "error", stopErr)
			}
			streamsOpen.Dec()
		}
		if attached {
			m.sink.Detach()
		}
		if unlock != nil {
			if unlockErr := unlock(); unlockErr != nil {
				m.logger.Warn("failed to release device lock", "error", unlockErr)
			}
		}
	}
	defer func() {
		if p := recover(); p != nil {
			release()
			m.failStart(fmt.Errorf("panic during start: %v", p))
			panic(p)
		}
		if err != nil {
			release()
			m.failStart(err)
		}
	}()

	device, err := m.resolveDevice(ctx, c)
	if err != nil {
		return err
	}
	c.DeviceID = device.ID

	unlock, err = m.opts.Locker.Acquire(c.DeviceID)
	if err != nil {
		return classifyOpen(err)
	}

	stream, err = m.engine.Open(ctx, c)
	if err != nil {
		stream = nil
		return classifyOpen(err)
	}
	streamsOpen.Inc()

	if err = m.sink.Attach(stream.ID()); err != nil {
		return fmt.Errorf("%w: %w", ErrEngineStartFailed, err)
	}
	attached = true

	sess := &capture{
		id:          uuid.NewString(),
		device:      device,
		constraints: c,
		stream:      stream,
		unlock:      unlock,
		started:     time.Now(),
	}
	run, err = m.engine.Start(stream, m.sink, m.relay(sess))
	if err != nil {
		return classifyOpen(err)
	}
	sess.run = run

	m.cur = sess
	m.setState(StateRunning, sess)
	sessionsStarted.WithLabelValues("ok").Inc()
	m.logger.Info("session started",
		"session_id", sess.id,
		"device_id", device.ID,
		"label", device.Label,
		"width", c.Width,
		"height", c.Height)

	m.wg.Add(1)
	go m.watch(sess)
	return nil
}

// resolveDevice fills in the device for c, picking a default when no id
// was given. An explicit id missing from a fresh enumeration fails with
// ErrDeviceNotFound; when enumeration itself fails the bare id is handed
// to the provider, which has the final say.
func (m *Manager) resolveDevice(ctx context.Context, c camera.Constraints) (camera.Device, error) {
	if c.DeviceID != "" {
		cached, stale := m.Devices()
		if d, ok := camera.FindDevice(cached, c.DeviceID); ok && !stale {
			return d, nil
		}
		devices, err := m.EnumerateDevices(ctx)
		if err != nil {
			m.logger.Debug("enumeration failed, opening device by id", "device", c.DeviceID, "error", err)
			return camera.NewDevice(c.DeviceID, ""), nil
		}
		if d, ok := camera.FindDevice(devices, c.DeviceID); ok {
			return d, nil
		}
		return camera.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, c.DeviceID)
	}

	devices, err := m.EnumerateDevices(ctx)
	if err != nil {
		return camera.Device{}, err
	}
	if c.Facing != camera.FacingUnknown {
		for _, d := range devices {
			if d.Facing == c.Facing {
				return d, nil
			}
		}
		if r, ok := m.engine.Provider().(camera.FacingResolver); ok {
			if d, err := r.ResolveFacing(ctx, c.Facing); err == nil && d.ID != "" {
				return d, nil
			}
		}
	}
	return camera.SelectDefault(ctx, devices, m.resolver(), m.opts.PreferLabels...)
}

func (m *Manager) failStart(err error) {
	reason := ReasonOf(err)
	sessionsStarted.WithLabelValues(reason).Inc()
	m.logger.Error("session start failed", "reason", reason, "error", err)

	m.smu.Lock()
	m.state = StateIdle
	m.active = nil
	m.lastError = err.Error()
	m.lastReason = reason
	m.smu.Unlock()

	m.publish(Event{Type: EventState, State: StateIdle, Reason: reason, Message: err.Error(), At: time.Now()})
}

func (m *Manager) stopLocked() error {
	c := m.cur
	if c == nil {
		return nil
	}
	c.stopping.Store(true)

	c.run.Stop()
	err := camera.StopStream(c.stream)
	streamsOpen.Dec()
	m.sink.Detach()
	if c.unlock != nil {
		if unlockErr := c.unlock(); unlockErr != nil {
			err = errors.Join(err, fmt.Errorf("release device lock: %w", unlockErr))
		}
	}

	m.cur = nil
	m.setState(StateIdle, nil)
	m.logger.Info("session stopped",
		"session_id", c.id,
		"device_id", c.device.ID,
		"frames", c.frames.Load(),
		"scans", c.scans.Load())
	return err
}

// watch releases a session whose decode loop ended on its own, for example
// because the camera was unplugged.
func (m *Manager) watch(c *capture) {
	defer m.wg.Done()
	<-c.run.Done()
	if c.stopping.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != c {
		return
	}

	cause := c.run.Err()
	if cause == nil {
		cause = camera.ErrStreamClosed
	}
	m.logger.Warn("session ended unexpectedly", "session_id", c.id, "device_id", c.device.ID, "error", cause)
	if err := m.stopLocked(); err != nil {
		m.logger.Warn("release after stream end reported errors", "error", err)
	}
	m.reportError(c, cause)
}

func (m *Manager) publish(ev Event) {
	if m.opts.OnEvent != nil {
		m.opts.OnEvent(ev)
	}
	m.bus.publish(ev)
}

func (m *Manager) setState(s State, active *capture) {
	m.smu.Lock()
	m.state = s
	m.active = active
	if s == StateStarting {
		m.lastError = ""
		m.lastReason = ""
	}
	m.smu.Unlock()

	ev := Event{Type: EventState, State: s, At: time.Now()}
	if active != nil {
		ev.SessionID = active.id
		ev.DeviceID = active.device.ID
	}
	m.publish(ev)
}

// relay turns engine events into caller callbacks and subscriber events.
func (m *Manager) relay(c *capture) engine.Callback {
	return func(ev engine.Event) {
		if ev.Frame > c.frames.Load() {
			c.frames.Store(ev.Frame)
		}
		switch ev.Kind {
		case engine.EventDecoded:
			c.scans.Add(1)
			scansTotal.WithLabelValues(ev.Format.String()).Inc()
			m.smu.Lock()
			m.lastScan = ev.Text
			m.smu.Unlock()

			m.logger.Debug("decoded", "session_id", c.id, "format", ev.Format.String(), "frame", ev.Frame)
			if m.opts.OnScan != nil {
				m.opts.OnScan(ev.Text)
			}
			m.publish(Event{
				Type:      EventScan,
				SessionID: c.id,
				DeviceID:  c.device.ID,
				Text:      ev.Text,
				Format:    ev.Format.String(),
				State:     StateRunning,
				At:        ev.At,
			})
		case engine.EventError:
			c.errors.Add(1)
			transientErrors.Inc()
			m.reportError(c, &TransientDecodeError{DeviceID: c.device.ID, Frame: ev.Frame, Err: ev.Err})
		case engine.EventNotFound:
			// Most frames have no symbol; nothing to relay.
		}
	}
}

func (m *Manager) reportError(c *capture, err error) {
	reason := ReasonOf(err)
	msg := err.Error()

	m.smu.Lock()
	m.lastError = msg
	m.lastReason = reason
	state := m.state
	m.smu.Unlock()

	m.logger.Warn("session error", "session_id", c.id, "reason", reason, "error", err)
	if m.opts.OnError != nil {
		m.opts.OnError(msg)
	}
	m.publish(Event{
		Type:      EventError,
		SessionID: c.id,
		DeviceID:  c.device.ID,
		State:     state,
		Reason:    reason,
		Message:   msg,
		At:        time.Now(),
	})
}
