package smoother_test

import (
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/smoother"
)

func TestSmootherEmitsOnMajorityRule(t *testing.T) {
	s, err := smoother.New(smoother.Config{WindowSize: 3, RequiredPositives: 2, CooldownFrames: 2, BypassThreshold: 0.99})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ticks := []smoother.Tick{{Accepted: true, PBark: 0.6}, {Accepted: false}, {Accepted: true, PBark: 0.6}}
	var emitted bool
	for _, tick := range ticks {
		if s.Step(tick).Emit {
			emitted = true
		}
	}
	if !emitted {
		t.Fatal("expected majority rule (2 of 3) to emit")
	}
}

func TestSmootherHighConfidenceBypassIgnoresWindow(t *testing.T) {
	s, err := smoother.New(smoother.Config{WindowSize: 5, RequiredPositives: 4, CooldownFrames: 2, BypassThreshold: 0.8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	outcome := s.Step(smoother.Tick{Accepted: true, PBark: 0.95})
	if !outcome.Emit {
		t.Fatal("expected bypass threshold to emit immediately regardless of window fill")
	}
}

func TestSmootherEnforcesCooldownSpacing(t *testing.T) {
	// Invariant 2: consecutive emissions must be spaced by at least the
	// cooldown duration.
	s, err := smoother.New(smoother.Config{WindowSize: 2, RequiredPositives: 1, CooldownFrames: 5, BypassThreshold: 0.99})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first := s.Step(smoother.Tick{Accepted: true, PBark: 0.6})
	if !first.Emit {
		t.Fatal("expected first tick to emit")
	}
	for i := 0; i < 5; i++ {
		outcome := s.Step(smoother.Tick{Accepted: true, PBark: 0.6})
		if outcome.Emit {
			t.Fatalf("expected no emission during cooldown, tick %d emitted", i)
		}
	}
	outcome := s.Step(smoother.Tick{Accepted: true, PBark: 0.6})
	if !outcome.Emit {
		t.Fatal("expected emission once cooldown elapses and window refills")
	}
}

func TestSmootherBypassZeroEmitsEveryAcceptSubjectOnlyToCooldown(t *testing.T) {
	// Boundary behaviour 9: bypass_threshold = 0 means every accept emits,
	// gated only by cooldown.
	s, err := smoother.New(smoother.Config{WindowSize: 3, RequiredPositives: 3, CooldownFrames: 1, BypassThreshold: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	outcome := s.Step(smoother.Tick{Accepted: true, PBark: 0.01})
	if !outcome.Emit {
		t.Fatal("expected any accept to emit when bypass_threshold is 0")
	}
}

func TestSmootherShutdownResetsToIdle(t *testing.T) {
	s, err := smoother.New(smoother.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Step(smoother.Tick{Accepted: true, PBark: 0.9})
	s.Shutdown()
	if s.Phase() != smoother.PhaseIdle {
		t.Fatalf("expected terminal Idle phase after shutdown, got %s", s.Phase())
	}
}

func TestSmootherRejectsInvalidConfig(t *testing.T) {
	if _, err := smoother.New(smoother.Config{WindowSize: 0, RequiredPositives: 1}); err == nil {
		t.Fatal("expected error for zero window_size")
	}
	if _, err := smoother.New(smoother.Config{WindowSize: 3, RequiredPositives: 4}); err == nil {
		t.Fatal("expected error for required_positives exceeding window_size")
	}
}
