package attempt

import (
	"sync"
	"time"

	"assessment-attempt-service/internal/domain"
)

// Clock is the only producer of time-based events for an attempt.
// Ticks carry no payload; the consumer keeps its own counter.
type Clock interface {
	// Arm starts emitting at most totalSeconds ticks to onTick.
	Arm(totalSeconds int, onTick func()) error
	// Disarm stops emission. Safe to call when not armed.
	Disarm()
}

// TickerClock emits ticks from a time.Ticker goroutine.
type TickerClock struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewTickerClock returns a clock ticking every interval (one second in production).
func NewTickerClock(interval time.Duration) *TickerClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &TickerClock{interval: interval}
}

func (c *TickerClock) Arm(totalSeconds int, onTick func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return domain.ErrAlreadyArmed
	}
	stop := make(chan struct{})
	c.stop = stop
	go c.run(stop, totalSeconds, onTick)
	return nil
}

func (c *TickerClock) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	c.stop = nil
}

// Armed reports whether the clock is currently emitting.
func (c *TickerClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

func (c *TickerClock) run(stop <-chan struct{}, totalSeconds int, onTick func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for emitted := 0; emitted < totalSeconds; emitted++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		// A tick and a disarm can be ready together; disarm wins.
		select {
		case <-stop:
			return
		default:
		}
		onTick()
	}
}

// ManualClock emits ticks only when Advance is called. Used by tests and
// by hosts that drive time from an external source.
type ManualClock struct {
	mu     sync.Mutex
	armed  bool
	left   int
	onTick func()
	arms   int
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Arm(totalSeconds int, onTick func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed {
		return domain.ErrAlreadyArmed
	}
	c.armed = true
	c.left = totalSeconds
	c.onTick = onTick
	c.arms++
	return nil
}

func (c *ManualClock) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
	c.onTick = nil
}

// Advance fires up to n ticks synchronously and returns how many were delivered.
func (c *ManualClock) Advance(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		c.mu.Lock()
		if !c.armed || c.left == 0 {
			c.mu.Unlock()
			break
		}
		c.left--
		fn := c.onTick
		c.mu.Unlock()

		fn()
		delivered++
	}
	return delivered
}

// Armed reports whether the clock is currently emitting.
func (c *ManualClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Arms returns how many times the clock was armed.
func (c *ManualClock) Arms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arms
}
