package admission

import "time"

// window is a fixed counting period. Counters are only touched while the
// owning client's mutex is held.
type window struct {
	start time.Time
	count int
	max   int
	span  time.Duration
}

func newWindow(now time.Time, max int, span time.Duration) window {
	return window{start: now, max: max, span: span}
}

// refresh resets the window when its span has elapsed. start never moves
// backwards.
func (w *window) refresh(now time.Time) {
	if now.Sub(w.start) >= w.span {
		w.count = 0
		w.start = now
	}
}

// full reports whether the window has reached the effective ceiling.
func (w *window) full(max int) bool {
	return w.count >= max
}

// retryAfter is the time left until the window resets.
func (w *window) retryAfter(now time.Time) time.Duration {
	remaining := w.span - now.Sub(w.start)
	if remaining < 0 {
		return 0
	}
	return remaining
}
