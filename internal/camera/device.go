package camera

import (
	"context"
	"fmt"
	"strings"
)

// Facing is a heuristic hint about which way a camera points.
type Facing int

const (
	FacingUnknown Facing = iota
	FacingFront
	FacingBack
)

// Label keywords used to infer the facing direction.
var (
	BackKeywords  = []string{"back", "rear", "environment"}
	FrontKeywords = []string{"front", "user", "face"}
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	default:
		return "unknown"
	}
}

// MarshalText encodes the facing as its name.
func (f Facing) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText accepts any name understood by ParseFacing.
func (f *Facing) UnmarshalText(b []byte) error {
	v, err := ParseFacing(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFacing maps browser-style and plain names to a Facing.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "any":
		return FacingUnknown, nil
	case "front", "user":
		return FacingFront, nil
	case "back", "rear", "environment":
		return FacingBack, nil
	default:
		return FacingUnknown, fmt.Errorf("invalid facing mode %q (must be front, back or unknown)", s)
	}
}

// Device describes a video input available to the platform.
type Device struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Facing Facing `json:"facing"`
}

// NewDevice builds a descriptor and infers its facing from the label.
func NewDevice(id, label string) Device {
	return Device{ID: id, Label: label, Facing: InferFacing(label)}
}

// InferFacing guesses the facing direction from a device label.
func InferFacing(label string) Facing {
	switch {
	case labelMatches(label, BackKeywords):
		return FacingBack
	case labelMatches(label, FrontKeywords):
		return FacingFront
	default:
		return FacingUnknown
	}
}

func labelMatches(label string, keywords []string) bool {
	l := strings.ToLower(label)
	if l == "" {
		return false
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(l, k) {
			return true
		}
	}
	return false
}

// FindDevice returns the descriptor with the given id.
func FindDevice(devices []Device, id string) (Device, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// SelectDefault picks the device a scan should use when the caller did not
// name one. A label containing one of BackKeywords (or the extra keywords)
// wins; otherwise the resolver is asked for an environment-facing device;
// otherwise the first descriptor is used.
func SelectDefault(ctx context.Context, devices []Device, resolver FacingResolver, extraKeywords ...string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrNoDevices
	}

	keywords := append(append([]string{}, BackKeywords...), extraKeywords...)
	for _, d := range devices {
		if labelMatches(d.Label, keywords) {
			return d, nil
		}
	}

	if resolver != nil {
		if d, err := resolver.ResolveFacing(ctx, FacingBack); err == nil && d.ID != "" {
			return d, nil
		}
	}

	return devices[0], nil
}
