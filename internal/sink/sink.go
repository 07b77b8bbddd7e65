// Package sink receives the frames of an active capture session.
package sink

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/MeKo-Tech/camscan/internal/utils"
)

var (
	// ErrAlreadyAttached is returned when a second stream is attached.
	ErrAlreadyAttached = errors.New("sink: already attached to a stream")
	// ErrNoFrame is returned by Snapshot before the first frame arrives.
	ErrNoFrame = errors.New("sink: no frame available")
)

// Sink is the video output a stream is attached to while it is scanned.
type Sink interface {
	Attach(streamID string) error
	Present(img image.Image)
	Detach()
	Attached() bool
}

// Discard accepts one stream at a time and drops every frame.
type Discard struct {
	mu       sync.Mutex
	streamID string
}

func (d *Discard) Attach(streamID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streamID != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, d.streamID)
	}
	d.streamID = streamID
	return nil
}

func (d *Discard) Present(image.Image) {}

func (d *Discard) Detach() {
	d.mu.Lock()
	d.streamID = ""
	d.mu.Unlock()
}

func (d *Discard) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamID != ""
}

// FrameInfo describes the frame held by a Preview.
type FrameInfo struct {
	StreamID string    `json:"stream_id"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Frames   uint64    `json:"frames"`
	Updated  time.Time `json:"updated"`
}

// Preview keeps the most recent frame so it can be served as a JPEG
// snapshot. Frames are only downscaled when a snapshot is requested.
type Preview struct {
	maxWidth int
	quality  int

	mu       sync.RWMutex
	streamID string
	frame    image.Image
	frames   uint64
	updated  time.Time
}

// NewPreview returns a preview that scales snapshots to at most maxWidth
// pixels wide (0 keeps the original size) with the given JPEG quality.
func NewPreview(maxWidth, quality int) *Preview {
	return &Preview{maxWidth: maxWidth, quality: quality}
}

func (p *Preview) Attach(streamID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamID != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, p.streamID)
	}
	p.streamID = streamID
	p.frame = nil
	p.frames = 0
	p.updated = time.Time{}
	return nil
}

func (p *Preview) Present(img image.Image) {
	if img == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamID == "" {
		return
	}
	p.frame = img
	p.frames++
	p.updated = time.Now()
}

// Detach releases the stream and drops the held frame.
func (p *Preview) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamID = ""
	p.frame = nil
}

func (p *Preview) Attached() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.streamID != ""
}

// Latest returns the most recent frame and its description.
func (p *Preview) Latest() (image.Image, FrameInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return nil, FrameInfo{}, false
	}
	b := p.frame.Bounds()
	return p.frame, FrameInfo{
		StreamID: p.streamID,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Frames:   p.frames,
		Updated:  p.updated,
	}, true
}

// Snapshot encodes the latest frame as JPEG.
func (p *Preview) Snapshot() ([]byte, FrameInfo, error) {
	img, info, ok := p.Latest()
	if !ok {
		return nil, FrameInfo{}, ErrNoFrame
	}
	scaled, err := utils.FitWithin(img, p.maxWidth, 0)
	if err != nil {
		return nil, FrameInfo{}, err
	}
	data, err := utils.EncodeJPEG(scaled, p.quality)
	if err != nil {
		return nil, FrameInfo{}, err
	}
	return data, info, nil
}
