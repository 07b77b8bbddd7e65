package camera

import (
	"sync"
	"sync/atomic"
)

// funcTrack is a Track whose release is a plain function.
type funcTrack struct {
	id      string
	release func() error
	once    sync.Once
	err     error
	stopped atomic.Bool
}

// NewTrack returns a Track that calls release exactly once on the first Stop.
func NewTrack(id string, release func() error) Track {
	return &funcTrack{id: id, release: release}
}

func (t *funcTrack) ID() string { return t.id }

func (t *funcTrack) Stop() error {
	t.once.Do(func() {
		if t.release != nil {
			t.err = t.release()
		}
		t.stopped.Store(true)
	})
	return t.err
}

func (t *funcTrack) Stopped() bool { return t.stopped.Load() }
