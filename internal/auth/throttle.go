package auth

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// UnknownAddress is the shared bucket for requests without a client address.
const UnknownAddress = "unknown"

type attemptWindow struct {
	start time.Time
	count int
}

// LoginThrottle limits login attempts per client address using fixed
// windows. A blocked attempt is not counted, so a window always ends on
// schedule no matter how often a blocked client retries.
type LoginThrottle struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	buckets     map[string]*attemptWindow
	lastPrune   time.Time
}

// NewLoginThrottle creates a throttle allowing maxAttempts per window.
// A nil now uses time.Now.
func NewLoginThrottle(maxAttempts int, window time.Duration, now func() time.Time) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &LoginThrottle{
		maxAttempts: maxAttempts,
		window:      window,
		now:         now,
		buckets:     make(map[string]*attemptWindow),
	}
}

// Check records an attempt from address and reports whether it may proceed.
func (t *LoginThrottle) Check(address string) bool {
	if address == "" {
		address = UnknownAddress
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.prune(now)

	b, ok := t.buckets[address]
	if !ok || now.After(b.start.Add(t.window)) {
		t.buckets[address] = &attemptWindow{start: now, count: 1}
		return true
	}
	if b.count >= t.maxAttempts {
		return false
	}
	b.count++
	return true
}

// prune drops expired windows, at most once per window.
func (t *LoginThrottle) prune(now time.Time) {
	if now.Sub(t.lastPrune) < t.window {
		return
	}
	t.lastPrune = now
	for addr, b := range t.buckets {
		if now.After(b.start.Add(t.window)) {
			delete(t.buckets, addr)
		}
	}
}

// ClientAddress returns the first X-Forwarded-For entry. Without one, the
// socket peer is used when trustRemote is set, otherwise UnknownAddress.
func ClientAddress(r *http.Request, trustRemote bool) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if trustRemote && r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return UnknownAddress
}
