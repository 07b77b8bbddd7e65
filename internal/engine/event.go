package engine

import (
	"time"

	"github.com/MeKo-Tech/camscan/internal/barcode"
)

// EventKind tags the outcome of processing one frame.
type EventKind int

const (
	// EventDecoded carries decoded text.
	EventDecoded EventKind = iota + 1
	// EventNotFound means no symbol was recognizable in the frame.
	EventNotFound
	// EventError carries a per-frame failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventDecoded:
		return "decoded"
	case EventNotFound:
		return "not_found"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the result of processing one frame.
type Event struct {
	Kind   EventKind
	Text   string
	Format barcode.Format
	Err    error
	Frame  uint64
	At     time.Time
}

// Callback receives every Event of a Run on the run's goroutine.
type Callback func(Event)
