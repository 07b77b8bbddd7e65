package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType tags relayed events.
type EventType string

const (
	EventScan    EventType = "scan"
	EventError   EventType = "error"
	EventState   EventType = "state"
	EventDevices EventType = "devices"
)

// Event is what subscribers receive. NotFound frames never produce one.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Format    string    `json:"format,omitempty"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

type subscriber struct {
	ch      chan Event
	dropped atomic.Uint64
}

// bus fans events out without ever blocking the publisher. A full
// subscriber channel drops the event for that subscriber only.
type bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

func newBus() *bus {
	return &bus{subs: make(map[string]*subscriber)}
}

func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			subscriberDrops.Inc()
		}
	}
}

// dropped returns the total number of events dropped across subscribers.
func (b *bus) dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n uint64
	for _, sub := range b.subs {
		n += sub.dropped.Load()
	}
	return n
}

func (b *bus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// close ends every subscription. Later subscribers get a closed channel.
func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
