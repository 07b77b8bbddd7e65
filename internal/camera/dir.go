package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/camscan/internal/utils"
)

// DirProvider replays directories of still images as virtual cameras.
//
// Every subdirectory of Root that contains images is one device whose id is
// the subdirectory name and whose label is the same name, so a directory
// called "back" is picked by the default-selection heuristic. If Root
// itself holds images it is exposed as device ".".
type DirProvider struct {
	Root string
	// FrameRate paces ReadFrame; zero delivers frames as fast as requested.
	FrameRate float64
}

// NewDirProvider returns a provider rooted at root.
func NewDirProvider(root string, frameRate float64) *DirProvider {
	return &DirProvider{Root: root, FrameRate: frameRate}
}

// ListDevices enumerates image directories in lexical order.
func (p *DirProvider) ListDevices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, p.Root)
		}
		return nil, fmt.Errorf("camera: list %s: %w", p.Root, err)
	}

	var devices []Device
	rootHasImages := false
	for _, e := range entries {
		if !e.IsDir() {
			if utils.IsSupportedImage(e.Name()) {
				rootHasImages = true
			}
			continue
		}
		frames, err := utils.DiscoverImages([]string{filepath.Join(p.Root, e.Name())}, false)
		if err != nil || len(frames) == 0 {
			continue
		}
		devices = append(devices, NewDevice(e.Name(), e.Name()))
	}
	if rootHasImages {
		devices = append([]Device{NewDevice(".", filepath.Base(p.Root))}, devices...)
	}
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	return devices, nil
}

// ResolveFacing returns the first device whose label infers facing f.
func (p *DirProvider) ResolveFacing(ctx context.Context, f Facing) (Device, error) {
	devices, err := p.ListDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.Facing == f {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: no %s-facing camera", ErrDeviceNotFound, f)
}

// Open starts replaying the frames of the named directory.
func (p *DirProvider) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	devices, err := p.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := FindDevice(devices, c.DeviceID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, c.DeviceID)
	}

	frames, err := utils.DiscoverImages([]string{filepath.Join(p.Root, c.DeviceID)}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, c.DeviceID, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s has no frames", ErrDeviceNotFound, c.DeviceID)
	}

	s := &dirStream{
		id:       uuid.NewString(),
		deviceID: c.DeviceID,
		frames:   frames,
		width:    c.Width,
		height:   c.Height,
		closed:   make(chan struct{}),
	}
	if p.FrameRate > 0 {
		s.interval = time.Duration(float64(time.Second) / p.FrameRate)
	}
	s.track = NewTrack(s.id+"/video", func() error {
		s.closeOnce.Do(func() { close(s.closed) })
		return nil
	})
	return s, nil
}

type dirStream struct {
	id       string
	deviceID string
	frames   []string
	width    int
	height   int
	interval time.Duration
	track    Track

	mu        sync.Mutex
	next      int
	lastFrame time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *dirStream) ID() string       { return s.id }
func (s *dirStream) DeviceID() string { return s.deviceID }
func (s *dirStream) Tracks() []Track  { return []Track{s.track} }

func (s *dirStream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval > 0 && !s.lastFrame.IsZero() {
		wait := time.Until(s.lastFrame.Add(s.interval))
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.closed:
				return nil, ErrStreamClosed
			case <-timer.C:
			}
		}
	}

	select {
	case <-s.closed:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path := s.frames[s.next%len(s.frames)]
	s.next++
	s.lastFrame = time.Now()

	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("camera: read frame: %w", err)
	}
	if s.width > 0 || s.height > 0 {
		return utils.FitWithin(img, s.width, s.height)
	}
	return img, nil
}
