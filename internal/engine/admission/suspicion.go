package admission

import "time"

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// suspicion tracks a rolling window of send outcomes for one client. When
// the failure ratio over the window exceeds the configured threshold the
// score climbs; past the score threshold the client's per-minute ceiling
// is halved until the cooldown elapses or a reconnect resets it.
type suspicion struct {
	outcomes []bool // true = failure
	next     int
	filled   int
	score    int
	until    time.Time
}

func newSuspicion(windowSize int) suspicion {
	if windowSize <= 0 {
		windowSize = 20
	}
	return suspicion{outcomes: make([]bool, windowSize)}
}

func (s *suspicion) record(outcome Outcome, now time.Time, failureRatio float64, scoreThreshold int, cooldown time.Duration) {
	failed := outcome == OutcomeFailure
	s.outcomes[s.next] = failed
	s.next = (s.next + 1) % len(s.outcomes)
	if s.filled < len(s.outcomes) {
		s.filled++
	}

	if !failed {
		return
	}

	failures := 0
	for i := 0; i < s.filled; i++ {
		if s.outcomes[i] {
			failures++
		}
	}
	if float64(failures)/float64(s.filled) > failureRatio {
		s.score++
	}
	if s.score >= scoreThreshold {
		s.until = now.Add(cooldown)
	}
}

// active reports whether the protective multiplier applies, resetting the
// score once the cooldown has fully elapsed.
func (s *suspicion) active(now time.Time) bool {
	if s.until.IsZero() {
		return false
	}
	if now.Before(s.until) {
		return true
	}
	s.reset()
	return false
}

func (s *suspicion) reset() {
	for i := range s.outcomes {
		s.outcomes[i] = false
	}
	s.next = 0
	s.filled = 0
	s.score = 0
	s.until = time.Time{}
}
