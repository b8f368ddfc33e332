// Package interrupt gates alert firing behind a score threshold and a
// cooldown window.
package interrupt

import (
	"sync"
	"time"

	"github.com/Tankman61/VibeTrade/internal/models"
)

// Controller decides when an interrupt may fire. It is a two-state machine:
// armed (can fire) and cooling down (cannot). The cooldown is evaluated
// lazily against the last-fired timestamp on each observation instead of
// with a timer task, so there is nothing to schedule or cancel.
type Controller struct {
	mu        sync.Mutex
	threshold float64
	cooldown  time.Duration
	lastFired time.Time // zero value means never fired
	fired     int64
	now       func() time.Time
}

// New creates a controller with the given threshold and cooldown.
func New(threshold float64, cooldown time.Duration) *Controller {
	return &Controller{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Observe consumes one composite score and reports whether an interrupt
// fires. At most one interrupt fires per cooldown window no matter how
// many above-threshold scores arrive inside it; the check-and-record is
// atomic under the controller's lock.
func (c *Controller) Observe(score models.CompositeRiskScore) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if score.Value < c.threshold {
		return false
	}
	return c.tryFireLocked()
}

// Force fires regardless of the current score. It still consults and
// resets the cooldown, so operational testing cannot flood clients either.
func (c *Controller) Force() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tryFireLocked()
}

func (c *Controller) tryFireLocked() bool {
	now := c.now()
	if !c.lastFired.IsZero() && now.Sub(c.lastFired) < c.cooldown {
		return false
	}
	c.lastFired = now
	c.fired++
	return true
}

// Armed reports whether the cooldown has elapsed.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFired.IsZero() || c.now().Sub(c.lastFired) >= c.cooldown
}

// FiredCount returns how many interrupts have fired.
func (c *Controller) FiredCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// LastFiredAt returns the last firing time; the zero time means never.
func (c *Controller) LastFiredAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFired
}
