package threshold

import (
	"math"
	"testing"
)

func TestBase(t *testing.T) {
	got := Base(0.1, 0.05, 1.28)
	want := 0.1 + 1.28*0.05
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Base() = %f, want %f", got, want)
	}
	if got := Base(0.1, -1, 1.28); got != 0.1 {
		t.Errorf("Base() with negative sigma = %f, want 0.1", got)
	}
}

func TestCompute_CriticalityGuardMonotone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoadShedding = false
	cfg.SafetyGuard = false
	stats := NoiseStats{Mu: 0.2, Sigma: 0.05, Samples: 10}
	base := cfg.Compute(stats, Neutral())

	prev := base
	for _, rho := range []float64{1.0, 1.05, 1.2, 1.5, 2.0, 5.0} {
		got := cfg.Compute(stats, Modulation{Rho: rho, SafetyMultiplier: 1})
		if got < base {
			t.Errorf("rho=%.2f: threshold %f below base %f", rho, got, base)
		}
		if got < prev {
			t.Errorf("rho=%.2f: threshold %f decreased from %f", rho, got, prev)
		}
		prev = got
	}

	for _, rho := range []float64{0.0, 0.5, 0.99} {
		if got := cfg.Compute(stats, Modulation{Rho: rho}); got != base {
			t.Errorf("subcritical rho=%.2f changed threshold: %f != %f", rho, got, base)
		}
	}
}

func TestCompute_FactorsCompose(t *testing.T) {
	cfg := DefaultConfig()
	stats := NoiseStats{Mu: 0.1, Sigma: 0.0}
	m := Modulation{Rho: 1.4, LoadDelta: 0.5, SafetyMultiplier: 1.1}

	got := cfg.Compute(stats, m)
	want := 0.1 * (1 + 0.5*0.4) * (1 + 0.3*0.5) * 1.1
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Compute() = %f, want %f", got, want)
	}
}

func TestCompute_DisabledFactorsAreNeutral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CriticalityGuard = false
	cfg.LoadShedding = false
	cfg.SafetyGuard = false
	stats := NoiseStats{Mu: 0.1}
	m := Modulation{Rho: 3, LoadDelta: 3, SafetyMultiplier: 3}
	if got := cfg.Compute(stats, m); got != 0.1 {
		t.Errorf("Compute() with factors disabled = %f, want 0.1", got)
	}
}

func TestCompute_NonFiniteSignalsIgnored(t *testing.T) {
	cfg := DefaultConfig()
	stats := NoiseStats{Mu: 0.1}
	m := Modulation{Rho: math.NaN(), LoadDelta: math.Inf(1), SafetyMultiplier: math.NaN()}
	if got := cfg.Compute(stats, m); got != 0.1 {
		t.Errorf("Compute() = %f, want 0.1", got)
	}
}

func TestCompute_Floor(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Compute(NoiseStats{}, Neutral()); got != cfg.Floor {
		t.Errorf("Compute() on zero stats = %f, want floor %f", got, cfg.Floor)
	}
}

func TestSoftAndHard(t *testing.T) {
	if got := Soft(0.5, 0.5, 10); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Soft at threshold = %f, want 0.5", got)
	}
	if Soft(1.0, 0.5, 10) <= Soft(0.6, 0.5, 10) {
		t.Error("Soft should increase with energy")
	}
	if !Hard(0.5, 0.5) {
		t.Error("Hard(E == θ) should be active")
	}
	if Hard(0.4999, 0.5) {
		t.Error("Hard(E < θ) should be inactive")
	}
}

func TestTracker_QuietOnly(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Observe("a", 5.0, false)
	if tr.Len() != 0 {
		t.Fatal("non-quiet sample should be discarded")
	}

	tr.Observe("a", 0.2, true)
	s := tr.Stats("a")
	if s.Mu != 0.2 || s.Sigma != 0.01 || s.Samples != 1 {
		t.Errorf("first sample stats = %+v, want mu=0.2 sigma=0.01", s)
	}

	tr.Observe("a", 0.4, true)
	s = tr.Stats("a")
	wantMu := 0.1*0.4 + 0.9*0.2
	wantSigma := 0.1*math.Abs(0.4-wantMu) + 0.9*0.01
	if math.Abs(s.Mu-wantMu) > 1e-12 || math.Abs(s.Sigma-wantSigma) > 1e-12 {
		t.Errorf("stats = %+v, want mu=%f sigma=%f", s, wantMu, wantSigma)
	}

	tr.Observe("a", 100, false)
	if got := tr.Stats("a"); got != s {
		t.Errorf("stimulated sample changed stats: %+v -> %+v", s, got)
	}
}

func TestTracker_Retain(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)
	for _, id := range []string{"kept", "gone-1", "gone-2"} {
		tr.Observe(id, 0.2, true)
	}

	dropped := tr.Retain(func(id string) bool { return id == "kept" })
	if dropped != 2 || tr.Len() != 1 {
		t.Errorf("Retain dropped %d, left %d; want 2 and 1", dropped, tr.Len())
	}
	if s := tr.Stats("kept"); s.Samples != 1 {
		t.Errorf("kept stats = %+v", s)
	}
	if s := tr.Stats("gone-1"); s.Samples != 0 || s.Mu != cfg.InitialMu {
		t.Errorf("dropped node stats = %+v, want initial", s)
	}
}

func TestTracker_InitialStats(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)
	s := tr.Stats("unknown")
	if s.Mu != cfg.InitialMu || s.Sigma != cfg.InitialSigma || s.Samples != 0 {
		t.Errorf("Stats(unknown) = %+v", s)
	}

	tr.Observe("a", 0.3, true)
	tr.Reset()
	if tr.Len() != 0 {
		t.Error("Reset should clear statistics")
	}
}
