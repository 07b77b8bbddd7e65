package barcode

import (
	"slices"

	gozxing "github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
)

const (
	// maxMultiDepth bounds the crop-and-recurse search.
	maxMultiDepth = 4
	// minRecurseDimension is the smallest leftover strip worth searching.
	minRecurseDimension = 100
)

// decodeMultiple collects every distinct symbol in bitmap. QR codes go
// through gozxing's dedicated multi reader; all enabled formats then go
// through a crop-and-recurse search around each hit. Failed attempts are
// not errors; an empty result means nothing was found.
func decodeMultiple(bitmap *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}, formats []Format, reader gozxing.Reader) []*gozxing.Result {
	c := &multiCollector{reader: reader, hints: hints, seen: make(map[resultKey]bool)}

	if wantsFormat(formats, FormatQR) {
		if qrs, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bitmap, hints); err == nil {
			for _, r := range qrs {
				c.add(r)
			}
		}
	}

	c.search(bitmap, 0, 0, 0)
	return c.results
}

func wantsFormat(formats []Format, f Format) bool {
	return len(formats) == 0 || slices.Contains(formats, f)
}

type resultKey struct {
	format gozxing.BarcodeFormat
	text   string
}

type multiCollector struct {
	reader  gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
	seen    map[resultKey]bool
	results []*gozxing.Result
}

func (c *multiCollector) add(r *gozxing.Result) {
	key := resultKey{format: r.GetBarcodeFormat(), text: r.GetText()}
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.results = append(c.results, r)
}

// search decodes one symbol, then searches the strips left, above, right and
// below of it. Offsets translate points back into the original bitmap.
func (c *multiCollector) search(bitmap *gozxing.BinaryBitmap, xOffset, yOffset, depth int) {
	if depth > maxMultiDepth {
		return
	}
	r, err := c.reader.Decode(bitmap, c.hints)
	if err != nil || r == nil {
		return
	}
	c.add(translate(r, xOffset, yOffset))

	pts := r.GetResultPoints()
	if len(pts) == 0 || !bitmap.IsCropSupported() {
		return
	}
	width, height := bitmap.GetWidth(), bitmap.GetHeight()
	minX, minY := float64(width), float64(height)
	maxX, maxY := 0.0, 0.0
	for _, p := range pts {
		if p == nil {
			continue
		}
		minX = min(minX, p.GetX())
		minY = min(minY, p.GetY())
		maxX = max(maxX, p.GetX())
		maxY = max(maxY, p.GetY())
	}

	crop := func(left, top, w, h, dx, dy int) {
		sub, err := bitmap.Crop(left, top, w, h)
		if err != nil {
			return
		}
		c.search(sub, xOffset+dx, yOffset+dy, depth+1)
	}
	if minX > minRecurseDimension {
		crop(0, 0, int(minX), height, 0, 0)
	}
	if minY > minRecurseDimension {
		crop(0, 0, width, int(minY), 0, 0)
	}
	if maxX < float64(width-minRecurseDimension) {
		crop(int(maxX), 0, width-int(maxX), height, int(maxX), 0)
	}
	if maxY < float64(height-minRecurseDimension) {
		crop(0, int(maxY), width, height-int(maxY), 0, int(maxY))
	}
}

func translate(r *gozxing.Result, xOffset, yOffset int) *gozxing.Result {
	if xOffset == 0 && yOffset == 0 {
		return r
	}
	pts := r.GetResultPoints()
	moved := make([]gozxing.ResultPoint, 0, len(pts))
	for _, p := range pts {
		if p == nil {
			continue
		}
		moved = append(moved, gozxing.NewResultPoint(p.GetX()+float64(xOffset), p.GetY()+float64(yOffset)))
	}
	out := gozxing.NewResult(r.GetText(), r.GetRawBytes(), moved, r.GetBarcodeFormat())
	out.PutAllMetadata(r.GetResultMetadata())
	return out
}
