package criticality

// SafetyState buckets ρ for tripwires and thresholds.
type SafetyState int

const (
	SafetyDying SafetyState = iota
	SafetySubcritical
	SafetyCritical
	SafetySupercritical
)

var safetyNames = [...]string{"dying", "subcritical", "critical", "supercritical"}

func (s SafetyState) String() string {
	if s < 0 || int(s) >= len(safetyNames) {
		return "unknown"
	}
	return safetyNames[s]
}

// MarshalText encodes the state by name.
func (s SafetyState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SafetyFor classifies ρ.
func SafetyFor(rho float64) SafetyState {
	switch {
	case rho < 0.5:
		return SafetyDying
	case rho < 0.8:
		return SafetySubcritical
	case rho < 1.2:
		return SafetyCritical
	default:
		return SafetySupercritical
	}
}

// ThresholdMultiplier is the safety factor applied to activation thresholds:
// supercritical raises them by 10%.
func (s SafetyState) ThresholdMultiplier() float64 {
	if s == SafetySupercritical {
		return 1.1
	}
	return 1
}

// Mode is an informational label combining ρ and coherence.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeSubcritical
	ModeFlow
	ModeGenerativeOverflow
	ModeChaoticRacing
	ModeMixed
)

var modeNames = [...]string{"unknown", "subcritical", "flow", "generative_overflow", "chaotic_racing", "mixed"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ClassifyMode labels the regime from ρ and coherence C ∈ [0,1].
func ClassifyMode(rho, coherence float64) Mode {
	switch {
	case rho < 0.9:
		return ModeSubcritical
	case rho <= 1.1 && coherence >= 0.7:
		return ModeFlow
	case rho > 1.1 && coherence >= 0.7:
		return ModeGenerativeOverflow
	case rho > 1.1 && coherence < 0.4:
		return ModeChaoticRacing
	default:
		return ModeMixed
	}
}
