package session

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/camscan/internal/camera"
)

// State is the manager's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	default:
		return "idle"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle", "":
		*s = StateIdle
	case "starting":
		*s = StateStarting
	case "running":
		*s = StateRunning
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// Status is a snapshot of the manager and its current session.
type Status struct {
	State       State              `json:"state"`
	SessionID   string             `json:"session_id,omitempty"`
	Device      *camera.Device     `json:"device,omitempty"`
	Constraints camera.Constraints `json:"constraints"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	Frames      uint64             `json:"frames"`
	Scans       uint64             `json:"scans"`
	Errors      uint64             `json:"errors"`
	LastScan    string             `json:"last_scan,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	LastReason  string             `json:"last_reason,omitempty"`
}

// Scanning reports whether a session is decoding frames.
func (s Status) Scanning() bool { return s.State == StateRunning }
