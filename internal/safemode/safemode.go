// Package safemode is the tripwire state machine that degrades the engine to
// a conservative parameter set when invariants keep failing.
//
// The controller is either NORMAL or SAFE_MODE. It enters SAFE_MODE on any
// conservation violation, on too many violations inside a sliding window, or
// when one tripwire fails for too many consecutive checks. It leaves only
// after a minimum dwell, with every streak cleared and a quiet trailing
// window, so it cannot flap.
package safemode

import (
	"fmt"
	"sync"
	"time"
)

// State is the controller state.
type State int

const (
	StateNormal State = iota
	StateSafeMode
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateSafeMode:
		return "SAFE_MODE"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config configures the controller.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Window and WindowCount: WindowCount violations inside Window trip.
	// Defaults: 60s and 3.
	Window      time.Duration `yaml:"window" json:"window" validate:"gt=0"`
	WindowCount int           `yaml:"window_count" json:"window_count" validate:"gte=1"`

	// Consecutive failures per tripwire that trip. Defaults: 10, 20, 5.
	CriticalityStreak   int `yaml:"criticality_streak" json:"criticality_streak" validate:"gte=1"`
	FrontierStreak      int `yaml:"frontier_streak" json:"frontier_streak" validate:"gte=1"`
	ObservabilityStreak int `yaml:"observability_streak" json:"observability_streak" validate:"gte=1"`

	// MinDwell is the shortest stay in SAFE_MODE. Default: 30s.
	MinDwell time.Duration `yaml:"min_dwell" json:"min_dwell" validate:"gte=0"`

	// ExitQuietWindow must be free of violations before exit. Default: 60s.
	ExitQuietWindow time.Duration `yaml:"exit_quiet_window" json:"exit_quiet_window" validate:"gte=0"`

	// HistorySize bounds the violation buffer. Default: 100.
	HistorySize int `yaml:"history_size" json:"history_size" validate:"gte=1"`

	Overrides Overrides `yaml:"overrides" json:"overrides"`
}

// DefaultConfig returns the default safe-mode configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Window:              60 * time.Second,
		WindowCount:         3,
		CriticalityStreak:   10,
		FrontierStreak:      20,
		ObservabilityStreak: 5,
		MinDwell:            30 * time.Second,
		ExitQuietWindow:     60 * time.Second,
		HistorySize:         100,
		Overrides:           DefaultOverrides(),
	}
}

// streakLimit returns the consecutive-failure limit for t; zero means any
// single failure trips.
func (c Config) streakLimit(t TripwireType) int {
	switch t {
	case TripwireCriticality:
		return c.CriticalityStreak
	case TripwireFrontier:
		return c.FrontierStreak
	case TripwireObservability:
		return c.ObservabilityStreak
	default:
		return 0
	}
}

// Transition describes a state change.
type Transition struct {
	From      State         `json:"from"`
	To        State         `json:"to"`
	Reason    string        `json:"reason"`
	Tripwire  *TripwireType `json:"tripwire,omitempty"`
	Overrides *Overrides    `json:"overrides,omitempty"`
	At        time.Time     `json:"at"`
}

// Status is a point-in-time view of the controller.
type Status struct {
	State      State          `json:"state"`
	EnteredAt  time.Time      `json:"entered_at,omitzero"`
	Streaks    map[string]int `json:"streaks"`
	Recent     int            `json:"recent_violations"`
	Total      int            `json:"total_violations"`
	Entries    int            `json:"entries"`
	LastReason string         `json:"last_reason,omitempty"`
}

// Controller is the tripwire state machine. It is safe for concurrent use.
type Controller struct {
	mu  sync.Mutex
	cfg Config

	state     State
	enteredAt time.Time
	streaks   [numTripwires]int
	history   *ring
	total     int
	entries   int
	reason    string

	nowFunc func() time.Time
}

// New creates a controller in NORMAL. now may be nil for time.Now.
func New(cfg Config, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		cfg:     cfg,
		history: newRing(cfg.HistorySize),
		nowFunc: now,
	}
}

// SetConfig replaces the configuration. The history is kept unless its size
// changes.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.HistorySize != c.cfg.HistorySize {
		old := c.history.list()
		c.history = newRing(cfg.HistorySize)
		for _, v := range old {
			c.history.add(v)
		}
	}
	c.cfg = cfg
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether the controller is in SAFE_MODE.
func (c *Controller) Active() bool { return c.State() == StateSafeMode }

// Overrides returns the override set to apply, or nil in NORMAL.
func (c *Controller) Overrides() *Overrides {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSafeMode {
		return nil
	}
	o := c.cfg.Overrides
	return &o
}

// RecordViolation records v and returns the transition it caused, if any.
// A zero v.At is stamped with the controller clock.
func (c *Controller) RecordViolation(v Violation) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.At.IsZero() {
		v.At = c.nowFunc()
	}
	c.history.add(v)
	c.total++
	if v.Type >= 0 && v.Type < numTripwires {
		c.streaks[v.Type]++
	}

	if !c.cfg.Enabled || c.state == StateSafeMode {
		return nil
	}

	var reason string
	switch limit := c.cfg.streakLimit(v.Type); {
	case v.Type == TripwireConservation:
		reason = fmt.Sprintf("conservation violated: %s", v.Message)
	case limit > 0 && c.streaks[v.Type] >= limit:
		reason = fmt.Sprintf("%s failed %d consecutive checks", v.Type, c.streaks[v.Type])
	case c.history.since(v.At.Add(-c.cfg.Window)) >= c.cfg.WindowCount:
		reason = fmt.Sprintf("%d violations within %s", c.history.since(v.At.Add(-c.cfg.Window)), c.cfg.Window)
	default:
		return nil
	}
	return c.enter(v, reason)
}

// RecordCompliance clears the streak of t and, in SAFE_MODE, checks whether
// the exit conditions now hold.
func (c *Controller) RecordCompliance(t TripwireType) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t >= 0 && t < numTripwires {
		c.streaks[t] = 0
	}
	return c.maybeExit(c.nowFunc())
}

// Evaluate checks the exit conditions without recording anything.
func (c *Controller) Evaluate() *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maybeExit(c.nowFunc())
}

func (c *Controller) enter(v Violation, reason string) *Transition {
	c.state = StateSafeMode
	c.enteredAt = v.At
	c.entries++
	c.reason = reason
	tw := v.Type
	o := c.cfg.Overrides
	return &Transition{
		From:      StateNormal,
		To:        StateSafeMode,
		Reason:    reason,
		Tripwire:  &tw,
		Overrides: &o,
		At:        v.At,
	}
}

func (c *Controller) maybeExit(now time.Time) *Transition {
	if c.state != StateSafeMode {
		return nil
	}
	if dwell := now.Sub(c.enteredAt); dwell < c.cfg.MinDwell {
		return nil
	}
	for _, s := range c.streaks {
		if s != 0 {
			return nil
		}
	}
	if c.history.since(now.Add(-c.cfg.ExitQuietWindow)) > 0 {
		return nil
	}
	c.state = StateNormal
	c.reason = fmt.Sprintf("stable for %s", now.Sub(c.enteredAt).Truncate(time.Millisecond))
	return &Transition{
		From:   StateSafeMode,
		To:     StateNormal,
		Reason: c.reason,
		At:     now,
	}
}

// Violations returns the buffered violations oldest first.
func (c *Controller) Violations() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.list()
}

// Streak returns the consecutive failure count of t.
func (c *Controller) Streak(t TripwireType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 || t >= numTripwires {
		return 0
	}
	return c.streaks[t]
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:      c.state,
		Streaks:    make(map[string]int, numTripwires),
		Recent:     c.history.since(c.nowFunc().Add(-c.cfg.Window)),
		Total:      c.total,
		Entries:    c.entries,
		LastReason: c.reason,
	}
	if c.state == StateSafeMode {
		s.EnteredAt = c.enteredAt
	}
	for i, n := range c.streaks {
		s.Streaks[TripwireType(i).String()] = n
	}
	return s
}

// Reset returns the controller to NORMAL and clears all history.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateNormal
	c.enteredAt = time.Time{}
	c.streaks = [numTripwires]int{}
	c.history = newRing(c.cfg.HistorySize)
	c.total, c.entries = 0, 0
	c.reason = ""
}
