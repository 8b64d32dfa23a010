package domain

import "time"

// RateWindow is a rolling fixed-window quota. It is the only state shared
// across agents and is touched once per tick, so it carries no lock.
type RateWindow struct {
	WindowStart time.Time
	Duration    time.Duration
	Capacity    int
	Remaining   int
}

func NewRateWindow(capacity int, duration time.Duration, start time.Time) *RateWindow {
	if capacity < 0 {
		capacity = 0
	}

	return &RateWindow{
		WindowStart: start,
		Duration:    duration,
		Capacity:    capacity,
		Remaining:   capacity,
	}
}

// TryAcquire consumes one unit when available. The window rolls first when
// now - WindowStart >= Duration. A false result has no side effect beyond the roll.
func (w *RateWindow) TryAcquire(now time.Time) bool {
	w.roll(now)

	if w.Remaining <= 0 {
		return false
	}
	w.Remaining--
	return true
}

// ResetsAt reports when the current window ends.
func (w *RateWindow) ResetsAt() time.Time {
	return w.WindowStart.Add(w.Duration)
}

func (w *RateWindow) roll(now time.Time) {
	if w.WindowStart.IsZero() || now.Sub(w.WindowStart) >= w.Duration {
		w.WindowStart = now
		w.Remaining = w.Capacity
	}
}
