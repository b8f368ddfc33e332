package interrupt

import (
	"testing"
	"time"

	"github.com/Tankman61/VibeTrade/internal/models"
)

func score(v float64, at time.Time) models.CompositeRiskScore {
	return models.CompositeRiskScore{Value: v, Timestamp: at}
}

// fakeClock advances only when the test says so.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time        { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestController(threshold float64, cooldown time.Duration) (*Controller, *fakeClock) {
	c := New(threshold, cooldown)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c.SetClock(clock.now)
	return c, clock
}

func TestFiringSequence(t *testing.T) {
	// threshold=75, cooldown=60s, scores [60@t0, 80@t1, 82@t2, 76@t70]:
	// exactly two fires, at t1 and t70.
	c, clock := newTestController(75, 60*time.Second)

	if c.Observe(score(60, clock.t)) {
		t.Error("t0: 60 is below threshold, must not fire")
	}
	clock.advance(time.Second)
	if !c.Observe(score(80, clock.t)) {
		t.Error("t1: first crossing must fire")
	}
	clock.advance(time.Second)
	if c.Observe(score(82, clock.t)) {
		t.Error("t2: still cooling down, must not fire")
	}
	clock.advance(68 * time.Second) // now at t70
	if !c.Observe(score(76, clock.t)) {
		t.Error("t70: cooldown elapsed and still above threshold, must fire")
	}

	if got := c.FiredCount(); got != 2 {
		t.Errorf("expected exactly 2 fires, got %d", got)
	}
}

func TestNeverFiredIsArmed(t *testing.T) {
	c, _ := newTestController(75, time.Minute)
	if !c.Armed() {
		t.Error("a fresh controller must be armed")
	}
}

func TestRearmsExactlyAtCooldown(t *testing.T) {
	c, clock := newTestController(75, time.Minute)

	if !c.Observe(score(90, clock.t)) {
		t.Fatal("first crossing must fire")
	}
	clock.advance(time.Minute - time.Nanosecond)
	if c.Armed() {
		t.Error("must still be cooling down one nanosecond before the boundary")
	}
	clock.advance(time.Nanosecond)
	if !c.Armed() {
		t.Error("must be armed once now - lastFired >= cooldown")
	}
}

func TestForceBypassesThresholdButNotCooldown(t *testing.T) {
	c, clock := newTestController(75, time.Minute)

	if !c.Force() {
		t.Error("force on an armed controller must fire")
	}
	if c.Force() {
		t.Error("force during cooldown must not fire")
	}
	if c.Observe(score(99, clock.t)) {
		t.Error("forcing must reset the cooldown for threshold fires too")
	}

	clock.advance(time.Minute)
	if !c.Observe(score(99, clock.t)) {
		t.Error("threshold fire must work after the forced cooldown elapses")
	}
}

func TestBurstAboveThresholdFiresOnce(t *testing.T) {
	c, clock := newTestController(75, time.Minute)

	fires := 0
	for i := 0; i < 100; i++ {
		if c.Observe(score(95, clock.t)) {
			fires++
		}
		clock.advance(100 * time.Millisecond)
	}
	if fires != 1 {
		t.Errorf("a 10s burst above threshold must fire exactly once, fired %d times", fires)
	}
}
