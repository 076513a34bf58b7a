package admission

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Gate decides, per session, whether an outbound message may proceed now.
// A blocked result is a normal outcome, not an error; the only error the
// gate returns is for a missing client id.
//
// Window accounting for one client is serialized by that client's mutex.
// Different clients never contend beyond the sync.Map lookup.

var ErrMissingClient = errors.New("admission: client id is required")

type Reason string

const (
	ReasonContent         Reason = "content"
	ReasonRateLimitMinute Reason = "rate_limit_minute"
	ReasonRateLimitHour   Reason = "rate_limit_hour"
	ReasonRateLimitDay    Reason = "rate_limit_day"
)

// Result is what TryAdmit hands back. Delay is advisory: the caller is
// expected to wait it out before invoking the transport; the gate itself
// never sleeps.
type Result struct {
	Allowed    bool
	Delay      time.Duration
	Reason     Reason
	RetryAfter time.Duration
}

type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

type Config struct {
	Limits Limits
	Screen ScreenConfig

	// Human-like delay bounds.
	BaseDelayMin time.Duration
	BaseDelayMax time.Duration
	PauseChance  float64
	PauseMin     time.Duration
	PauseMax     time.Duration

	// Suspicion scoring.
	OutcomeWindow      int
	FailureRatio       float64
	SuspicionThreshold int
	SuspicionCooldown  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Limits.PerMinute <= 0 {
		c.Limits.PerMinute = 20
	}
	if c.Limits.PerHour <= 0 {
		c.Limits.PerHour = 300
	}
	if c.Limits.PerDay <= 0 {
		c.Limits.PerDay = 2000
	}
	if c.BaseDelayMin <= 0 {
		c.BaseDelayMin = 2 * time.Second
	}
	if c.BaseDelayMax <= c.BaseDelayMin {
		c.BaseDelayMax = 5 * time.Second
	}
	if c.PauseChance <= 0 {
		c.PauseChance = 0.10
	}
	if c.PauseMin <= 0 {
		c.PauseMin = 5 * time.Second
	}
	if c.PauseMax <= c.PauseMin {
		c.PauseMax = 15 * time.Second
	}
	if c.OutcomeWindow <= 0 {
		c.OutcomeWindow = 20
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.30
	}
	if c.SuspicionThreshold <= 0 {
		c.SuspicionThreshold = 3
	}
	if c.SuspicionCooldown <= 0 {
		c.SuspicionCooldown = 10 * time.Minute
	}
}

type clientState struct {
	mu        sync.Mutex
	minute    window
	hour      window
	day       window
	suspicion suspicion
}

type Gate struct {
	cfg    Config
	screen *Screen
	clock  clockwork.Clock

	clients sync.Map // map[string]*clientState

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewGate(cfg Config, clock clockwork.Clock) *Gate {
	cfg.applyDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{
		cfg:    cfg,
		screen: NewScreen(cfg.Screen),
		clock:  clock,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// TryAdmit runs the content screen, refreshes the client's windows and
// either blocks with a machine-readable reason or admits the message and
// returns the delay to apply before sending.
func (g *Gate) TryAdmit(clientID, content string) (Result, error) {
	if clientID == "" {
		return Result{}, ErrMissingClient
	}

	if g.screen.Flagged(content) {
		return Result{Reason: ReasonContent}, nil
	}

	state := g.state(clientID)
	state.mu.Lock()
	defer state.mu.Unlock()

	now := g.clock.Now()
	state.minute.refresh(now)
	state.hour.refresh(now)
	state.day.refresh(now)

	minuteMax := state.minute.max
	if state.suspicion.active(now) {
		minuteMax = minuteMax / 2
		if minuteMax < 1 {
			minuteMax = 1
		}
	}

	if state.minute.full(minuteMax) {
		return Result{Reason: ReasonRateLimitMinute, RetryAfter: state.minute.retryAfter(now)}, nil
	}
	if state.hour.full(state.hour.max) {
		return Result{Reason: ReasonRateLimitHour, RetryAfter: state.hour.retryAfter(now)}, nil
	}
	if state.day.full(state.day.max) {
		return Result{Reason: ReasonRateLimitDay, RetryAfter: state.day.retryAfter(now)}, nil
	}

	state.minute.count++
	state.hour.count++
	state.day.count++

	return Result{Allowed: true, Delay: g.drawDelay()}, nil
}

// RecordOutcome feeds the suspicion tracker with the result of a send that
// was previously admitted.
func (g *Gate) RecordOutcome(clientID string, outcome Outcome) {
	if clientID == "" {
		return
	}
	state := g.state(clientID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.suspicion.record(outcome, g.clock.Now(), g.cfg.FailureRatio, g.cfg.SuspicionThreshold, g.cfg.SuspicionCooldown)
}

// ResetSuspicion clears the suspicion state, used when a session
// successfully reconnects.
func (g *Gate) ResetSuspicion(clientID string) {
	if clientID == "" {
		return
	}
	state := g.state(clientID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.suspicion.reset()
}

func (g *Gate) state(clientID string) *clientState {
	if val, ok := g.clients.Load(clientID); ok {
		return val.(*clientState)
	}

	now := g.clock.Now()
	fresh := &clientState{
		minute:    newWindow(now, g.cfg.Limits.PerMinute, time.Minute),
		hour:      newWindow(now, g.cfg.Limits.PerHour, time.Hour),
		day:       newWindow(now, g.cfg.Limits.PerDay, 24*time.Hour),
		suspicion: newSuspicion(g.cfg.OutcomeWindow),
	}
	val, _ := g.clients.LoadOrStore(clientID, fresh)
	return val.(*clientState)
}

func (g *Gate) drawDelay() time.Duration {
	g.randMu.Lock()
	defer g.randMu.Unlock()

	if g.rand.Float64() < g.cfg.PauseChance {
		return g.cfg.PauseMin + time.Duration(g.rand.Int63n(int64(g.cfg.PauseMax-g.cfg.PauseMin)))
	}
	return g.cfg.BaseDelayMin + time.Duration(g.rand.Int63n(int64(g.cfg.BaseDelayMax-g.cfg.BaseDelayMin)))
}
