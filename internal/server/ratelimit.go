package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter limits control requests per client address.
type RateLimiter struct {
	mu sync.RWMutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int

	clients map[string]*clientUsage
	now     func() time.Time
}

// clientUsage tracks the request counters of one client.
type clientUsage struct {
	requestsLastMinute int
	requestsLastHour   int
	requestsToday      int

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	lastSeen    time.Time
}

// Usage is a copy of a client's counters.
type Usage struct {
	RequestsLastMinute int       `json:"requests_last_minute"`
	RequestsLastHour   int       `json:"requests_last_hour"`
	RequestsToday      int       `json:"requests_today"`
	LastSeen           time.Time `json:"last_seen"`
}

// NewRateLimiter creates a limiter. A zero limit disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// Allow records a request from client or returns a *RateLimitError or
// *QuotaExceededError when it would exceed a limit.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage := rl.usageFor(client, now)
	usage.roll(now)

	if rl.requestsPerMinute > 0 && usage.requestsLastMinute >= rl.requestsPerMinute {
		return &RateLimitError{
			Window:     "minute",
			Limit:      rl.requestsPerMinute,
			RetryAfter: usage.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.requestsPerHour > 0 && usage.requestsLastHour >= rl.requestsPerHour {
		return &RateLimitError{
			Window:     "hour",
			Limit:      rl.requestsPerHour,
			RetryAfter: usage.hourStart.Add(time.Hour).Sub(now),
		}
	}
	if rl.maxRequestsPerDay > 0 && usage.requestsToday >= rl.maxRequestsPerDay {
		return &QuotaExceededError{
			Limit:  rl.maxRequestsPerDay,
			Used:   usage.requestsToday,
			Resets: nextMidnight(now),
		}
	}

	usage.requestsLastMinute++
	usage.requestsLastHour++
	usage.requestsToday++
	usage.lastSeen = now
	return nil
}

func (rl *RateLimiter) usageFor(client string, now time.Time) *clientUsage {
	usage, ok := rl.clients[client]
	if !ok {
		usage = &clientUsage{minuteStart: now, hourStart: now, dayStart: now, lastSeen: now}
		rl.clients[client] = usage
	}
	return usage
}

// roll resets the windows that have elapsed.
func (u *clientUsage) roll(now time.Time) {
	if now.Sub(u.minuteStart) >= time.Minute {
		u.requestsLastMinute = 0
		u.minuteStart = now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.requestsLastHour = 0
		u.hourStart = now
	}
	y1, m1, d1 := now.Date()
	y2, m2, d2 := u.dayStart.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		u.requestsToday = 0
		u.dayStart = now
	}
}

// Usage returns the counters recorded for client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsLastMinute: u.requestsLastMinute,
		RequestsLastHour:   u.requestsLastHour,
		RequestsToday:      u.requestsToday,
		LastSeen:           u.lastSeen,
	}
}

// Prune forgets clients idle for longer than maxIdle and returns how many
// were removed.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	n := 0
	for id, u := range rl.clients {
		if u.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

// RateLimitError reports an exceeded per-minute or per-hour limit.
type RateLimitError struct {
	Window     string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Window, e.Limit, e.RetryAfter)
}

// QuotaExceededError reports an exhausted daily request quota.
type QuotaExceededError struct {
	Limit  int
	Used   int
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded (used: %d, limit: %d, resets: %s)",
		e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
