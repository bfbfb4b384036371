package capture

import "sync"

// DefaultSeconds is the kiosk countdown length
const DefaultSeconds = 15

// Countdown counts whole seconds down to a single capture
type Countdown struct {
	mu        sync.Mutex
	total     int
	remaining int
	fired     bool
}

// NewCountdown returns a countdown of seconds; non-positive means the default
func NewCountdown(seconds int) *Countdown {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	return &Countdown{total: seconds, remaining: seconds}
}

// Tick takes one second off. It returns true exactly once, on the tick that
// reaches zero; later ticks do nothing.
func (c *Countdown) Tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fired {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.fired = true
		return true
	}
	return false
}

// Remaining returns the seconds left
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Total returns the configured length
func (c *Countdown) Total() int {
	return c.total
}

// Done reports whether the capture has been triggered
func (c *Countdown) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}
