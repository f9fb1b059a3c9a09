// Package energygate implements C2: a cheap dB-RMS pre-filter that rejects
// silent or quiet ticks before they reach the classifier cascade.
package energygate

import (
	"math"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
)

// Config holds the dB-RMS threshold and the averaging window it's measured
// over.
type Config struct {
	Enabled       bool
	ThresholdDB   float64
	WindowSeconds float64
}

// DefaultConfig returns a -40dB threshold over a 1-second window.
func DefaultConfig() Config {
	return Config{Enabled: true, ThresholdDB: -40, WindowSeconds: 1.0}
}

// Result is one evaluation's observable outcome.
type Result struct {
	Passed      bool
	LevelDB     float64
	ThresholdDB float64
}

// Gate evaluates dB-RMS over its configured window.
type Gate struct {
	cfg Config
}

// New constructs a Gate from cfg.
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate computes dB-RMS across frames (already trimmed by the caller to
// roughly WindowSeconds) and compares against the configured threshold. A
// disabled gate always passes without measuring anything and reports
// LevelDB as +Inf.
func (g *Gate) Evaluate(frames []audioio.Frame) Result {
	if !g.cfg.Enabled {
		return Result{Passed: true, LevelDB: math.Inf(1), ThresholdDB: g.cfg.ThresholdDB}
	}

	level := rmsDB(frames)
	return Result{
		Passed:      level >= g.cfg.ThresholdDB,
		LevelDB:     level,
		ThresholdDB: g.cfg.ThresholdDB,
	}
}

// rmsDB computes 20*log10(rms) across every sample in frames. An empty input
// reports -inf dB, which never passes a finite threshold — the correct
// behaviour for a ring-buffer underrun.
func rmsDB(frames []audioio.Frame) float64 {
	var sumSquares float64
	var n int
	for _, f := range frames {
		for _, s := range f.Samples {
			sumSquares += float64(s) * float64(s)
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1)
	}
	rms := math.Sqrt(sumSquares / float64(n))
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}
