package barcode

import (
	"context"
	"errors"
	"image"
)

// ErrNotFound reports that no symbol could be recognized in the image.
// For a live camera feed this is the expected outcome for most frames.
var ErrNotFound = errors.New("barcode: no symbol found")

// Format represents a barcode symbology.
type Format int

const (
	FormatUnknown Format = iota
	FormatQR
	FormatDataMatrix
	FormatAztec
	FormatCode128
	FormatCode39
	FormatCode93
	FormatEAN8
	FormatEAN13
	FormatUPCA
	FormatUPCE
	FormatITF
	FormatCodabar
)

// AllFormats lists every symbology the default backend can decode.
var AllFormats = []Format{
	FormatQR, FormatDataMatrix, FormatAztec,
	FormatCode128, FormatCode39, FormatCode93, FormatEAN8, FormatEAN13,
	FormatUPCA, FormatUPCE, FormatITF, FormatCodabar,
}

// Options controls backend decoding behavior.
type Options struct {
	// Formats constrains the set of symbologies to search. Empty means all.
	Formats []Format

	// TryHarder enables more exhaustive search (slower but more robust).
	TryHarder bool

	// Multi enables multi-symbol detection in a single image.
	Multi bool

	// ROI optionally restricts decoding to a sub-rectangle of the image.
	// If zero-sized or out of bounds, backends ignore it.
	ROI image.Rectangle
}

// Point is an integer point in image coordinates.
type Point struct {
	X int
	Y int
}

// Result represents a decoded barcode.
type Result struct {
	Type   Format
	Value  string
	Points []Point          // Corner or key points if available
	BBox   image.Rectangle // Bounding box if derivable from points
}

// Backend is a pluggable barcode decoder implementation.
type Backend interface {
	Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error)
}

// NewBackend returns the default gozxing-backed implementation.
func NewBackend() Backend { return &gozxingBackend{} }
