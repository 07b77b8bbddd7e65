package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

// MediaProvider opens real cameras through pion/mediadevices. A camera
// driver must be registered by importing
// github.com/pion/mediadevices/pkg/driver/camera in the main package.
type MediaProvider struct{}

// NewMediaProvider returns a provider backed by the registered drivers.
func NewMediaProvider() *MediaProvider { return &MediaProvider{} }

// ListDevices enumerates video inputs in driver order.
func (p *MediaProvider) ListDevices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var devices []Device
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		devices = append(devices, NewDevice(info.DeviceID, info.Label))
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	return devices, nil
}

// ResolveFacing looks for a device whose inferred facing matches f.
// mediadevices exposes no facingMode capability, so only labels are
// consulted; a miss is reported as ErrDeviceNotFound.
func (p *MediaProvider) ResolveFacing(ctx context.Context, f Facing) (Device, error) {
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

// Open acquires the device named in c.DeviceID.
func (p *MediaProvider) Open(ctx context.Context, c Constraints) (Stream, error) {
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

	ms, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			mc.DeviceID = prop.StringExact(c.DeviceID)
			if c.Width > 0 {
				mc.Width = prop.Int(c.Width)
			}
			if c.Height > 0 {
				mc.Height = prop.Int(c.Height)
			}
		},
	})
	if err != nil {
		return nil, classifyOpenError(c.DeviceID, err)
	}

	var tracks []Track
	var vt *mediadevices.VideoTrack
	for _, t := range ms.GetTracks() {
		mt := t
		tracks = append(tracks, NewTrack(mt.ID(), mt.Close))
		if v, ok := mt.(*mediadevices.VideoTrack); ok && vt == nil {
			vt = v
		}
	}
	s := &mediaStream{id: uuid.NewString(), deviceID: c.DeviceID, tracks: tracks}
	if vt == nil {
		_ = StopStream(s)
		return nil, fmt.Errorf("%w: %s has no video track", ErrDeviceNotFound, c.DeviceID)
	}
	s.reader = vt.NewReader(false)

	// The context may have been cancelled while the driver was opening.
	if err := ctx.Err(); err != nil {
		_ = StopStream(s)
		return nil, err
	}
	return s, nil
}

func classifyOpenError(deviceID string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrPermission), strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, deviceID, err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "failed to find"), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, deviceID, err)
	case strings.Contains(msg, "busy"):
		return fmt.Errorf("%w: %s: %v", ErrDeviceBusy, deviceID, err)
	default:
		return fmt.Errorf("camera: open %s: %w", deviceID, err)
	}
}

type mediaStream struct {
	id       string
	deviceID string
	tracks   []Track
	reader   video.Reader
}

func (s *mediaStream) ID() string       { return s.id }
func (s *mediaStream) DeviceID() string { return s.deviceID }
func (s *mediaStream) Tracks() []Track  { return s.tracks }

func (s *mediaStream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if AllStopped(s) {
		return nil, ErrStreamClosed
	}
	img, release, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) || AllStopped(s) {
			return nil, ErrStreamClosed
		}
		return nil, fmt.Errorf("camera: read frame: %w", err)
	}
	// The driver reuses its buffer after release.
	frame := imaging.Clone(img)
	if release != nil {
		release()
	}
	return frame, nil
}
