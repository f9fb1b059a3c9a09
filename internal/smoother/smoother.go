// Package smoother implements C5 (Decision Smoother): the rolling-window
// majority rule, high-confidence bypass, and cooldown state machine that
// turns a stream of tentative fine-classifier accepts into discrete,
// de-bounced BarkEvents.
package smoother

import "fmt"

// Phase names the smoother's state machine states.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePriming   Phase = "priming"
	PhaseArmed     Phase = "armed"
	PhaseCooldown  Phase = "cooldown"
)

// Config holds the rolling window size, the majority threshold within it,
// and the cooldown length after an emit.
type Config struct {
	WindowSize        int
	RequiredPositives int
	CooldownFrames    int
	BypassThreshold   float64
}

// DefaultConfig returns a 3-tick window requiring 2 positives.
func DefaultConfig() Config {
	return Config{WindowSize: 3, RequiredPositives: 2, CooldownFrames: 22, BypassThreshold: 0.8}
}

// Tick is one fine-classifier evaluation fed into the smoother.
type Tick struct {
	Accepted bool
	PBark    float64
}

// Outcome reports whether this tick emitted a BarkEvent.
type Outcome struct {
	Emit  bool
	Phase Phase
}

// Smoother owns its decision state exclusively: a bit window of recent
// accepts plus cooldown bookkeeping.
type Smoother struct {
	cfg Config

	window               []bool
	windowFilled         int
	cooldownFramesLeft   int
	phase                Phase
}

// New constructs a Smoother starting in PhaseIdle.
func New(cfg Config) (*Smoother, error) {
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("smoother: window_size must be positive, got %d", cfg.WindowSize)
	}
	if cfg.RequiredPositives <= 0 || cfg.RequiredPositives > cfg.WindowSize {
		return nil, fmt.Errorf("smoother: required_positives must be in [1, window_size], got %d", cfg.RequiredPositives)
	}
	return &Smoother{
		cfg:    cfg,
		window: make([]bool, cfg.WindowSize),
		phase:  PhaseIdle,
	}, nil
}

// Step advances the state machine by one tick and reports whether a
// BarkEvent should be emitted.
func (s *Smoother) Step(t Tick) Outcome {
	if s.phase == PhaseIdle {
		s.phase = PhasePriming
	}

	s.pushWindow(t.Accepted)

	if s.cooldownFramesLeft > 0 {
		s.cooldownFramesLeft--
		if s.cooldownFramesLeft == 0 {
			s.phase = PhaseArmed
		}
		return Outcome{Emit: false, Phase: s.phase}
	}

	bypass := t.Accepted && t.PBark >= s.cfg.BypassThreshold
	majority := s.countPositives() >= s.cfg.RequiredPositives

	if bypass || majority {
		s.cooldownFramesLeft = s.cfg.CooldownFrames
		s.phase = PhaseCooldown
		return Outcome{Emit: true, Phase: s.phase}
	}

	if s.phase == PhasePriming && s.windowFilled >= s.cfg.WindowSize {
		s.phase = PhaseArmed
	}
	return Outcome{Emit: false, Phase: s.phase}
}

// Shutdown transitions the smoother to its terminal Idle state.
func (s *Smoother) Shutdown() {
	s.phase = PhaseIdle
	s.cooldownFramesLeft = 0
	s.windowFilled = 0
	for i := range s.window {
		s.window[i] = false
	}
}

// Phase reports the smoother's current state.
func (s *Smoother) Phase() Phase { return s.phase }

func (s *Smoother) pushWindow(accepted bool) {
	copy(s.window, s.window[1:])
	s.window[len(s.window)-1] = accepted
	if s.windowFilled < len(s.window) {
		s.windowFilled++
	}
}

func (s *Smoother) countPositives() int {
	n := 0
	for _, v := range s.window {
		if v {
			n++
		}
	}
	return n
}
