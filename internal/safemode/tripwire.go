package safemode

import (
	"fmt"
	"time"
)

// TripwireType identifies the invariant a violation broke.
type TripwireType int

const (
	// TripwireConservation fires when diffusion creates or loses energy
	// beyond tolerance, or leaves a node negative. One is enough to trip.
	TripwireConservation TripwireType = iota
	// TripwireCriticality fires when ρ leaves the safe band.
	TripwireCriticality
	// TripwireFrontier fires when too much of the graph is active at once.
	TripwireFrontier
	// TripwireObservability fires when the per-tick summary cannot be published.
	TripwireObservability

	numTripwires
)

var tripwireNames = [numTripwires]string{"conservation", "criticality", "frontier", "observability"}

func (t TripwireType) String() string {
	if t < 0 || t >= numTripwires {
		return fmt.Sprintf("tripwire(%d)", int(t))
	}
	return tripwireNames[t]
}

// MarshalText encodes the tripwire by name.
func (t TripwireType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Violation records one failed invariant check.
type Violation struct {
	Type      TripwireType `json:"type"`
	At        time.Time    `json:"at"`
	Tick      uint64       `json:"tick"`
	Value     float64      `json:"value"`
	Threshold float64      `json:"threshold"`
	Message   string       `json:"message"`
}

// TripwireConfig holds the thresholds the engine checks each tick.
type TripwireConfig struct {
	// ConservationEpsilon is the largest accepted |ΣΔE + leak|. Default: 1e-3.
	ConservationEpsilon float64 `yaml:"conservation_epsilon" json:"conservation_epsilon" validate:"gt=0"`

	// RhoMin and RhoMax bound the healthy spectral radius. Defaults: 0.7 and 1.3.
	RhoMin float64 `yaml:"rho_min" json:"rho_min" validate:"gte=0"`
	RhoMax float64 `yaml:"rho_max" json:"rho_max" validate:"gtfield=RhoMin"`

	// FrontierFraction is the largest accepted share of active nodes.
	// Default: 0.3.
	FrontierFraction float64 `yaml:"frontier_fraction" json:"frontier_fraction" validate:"gt=0,lte=1"`
}

// DefaultTripwireConfig returns the default tripwire thresholds.
func DefaultTripwireConfig() TripwireConfig {
	return TripwireConfig{
		ConservationEpsilon: 1e-3,
		RhoMin:              0.7,
		RhoMax:              1.3,
		FrontierFraction:    0.3,
	}
}

// ring is a fixed-capacity violation buffer that overwrites the oldest entry.
type ring struct {
	buf  []Violation
	next int
	full bool
}

func newRing(n int) *ring {
	return &ring{buf: make([]Violation, max(1, n))}
}

func (r *ring) add(v Violation) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// list returns the buffered violations oldest first.
func (r *ring) list() []Violation {
	if !r.full {
		return append([]Violation(nil), r.buf[:r.next]...)
	}
	out := make([]Violation, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// since counts buffered violations at or after t.
func (r *ring) since(t time.Time) int {
	n := 0
	for _, v := range r.list() {
		if !v.At.Before(t) {
			n++
		}
	}
	return n
}
