package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = eris.New("enrichment backend circuit open")

// Breaker stops hammering a backend that keeps failing. After Threshold
// consecutive transient failures it rejects calls for Cooldown, then lets a
// single probe through. A nil *Breaker allows everything.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker returns a breaker, or nil when threshold <= 0 (disabled).
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// Allow returns ErrBreakerOpen wrapped as a TransientError while open.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.Threshold {
		return nil
	}
	if b.probing || b.now().Sub(b.openedAt) < b.Cooldown {
		return NewTransientError(ErrBreakerOpen, 0)
	}
	b.probing = true
	return nil
}

// Record feeds a call outcome back. Only transient failures count; fatal
// errors abort the run on their own.
func (b *Breaker) Record(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil || !IsTransient(err) {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.Threshold {
		b.openedAt = b.now()
	}
}

// Open reports whether calls are currently being rejected.
func (b *Breaker) Open() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.Threshold && b.now().Sub(b.openedAt) < b.Cooldown
}
