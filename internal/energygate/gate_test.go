package energygate_test

import (
	"math"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
	"github.com/machug/woofalytics-v2-sub000/internal/energygate"
)

func sineFrame(amplitude float32, n int) audioio.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return audioio.Frame{Samples: samples, Channels: 1, SampleRate: 44100}
}

func TestGatePassesAboveThreshold(t *testing.T) {
	g := energygate.New(energygate.Config{Enabled: true, ThresholdDB: -40, WindowSeconds: 1})
	frames := []audioio.Frame{sineFrame(0.5, 4410)}
	res := g.Evaluate(frames)
	if !res.Passed {
		t.Fatalf("expected loud frame to pass, got level_db=%v threshold=%v", res.LevelDB, res.ThresholdDB)
	}
}

func TestGateRejectsBelowThreshold(t *testing.T) {
	g := energygate.New(energygate.Config{Enabled: true, ThresholdDB: -40, WindowSeconds: 1})
	frames := []audioio.Frame{sineFrame(0.0001, 4410)}
	res := g.Evaluate(frames)
	if res.Passed {
		t.Fatalf("expected quiet frame to fail, got level_db=%v", res.LevelDB)
	}
}

func TestGateAlwaysRejectsWithInfiniteThreshold(t *testing.T) {
	// Boundary behaviour 8: threshold_db = +Inf means no input ever passes.
	g := energygate.New(energygate.Config{Enabled: true, ThresholdDB: math.Inf(1), WindowSeconds: 1})
	loud := []audioio.Frame{sineFrame(1.0, 4410)}
	res := g.Evaluate(loud)
	if res.Passed {
		t.Fatal("expected +Inf threshold to reject all input")
	}
}

func TestGateSilentStreamNeverPasses(t *testing.T) {
	g := energygate.New(energygate.DefaultConfig())
	silence := []audioio.Frame{{Samples: make([]float32, 44100), Channels: 1, SampleRate: 44100}}
	res := g.Evaluate(silence)
	if res.Passed {
		t.Fatal("expected all-zero samples to fail the gate")
	}
	if !math.IsInf(res.LevelDB, -1) {
		t.Fatalf("expected -Inf dB for silence, got %v", res.LevelDB)
	}
}

func TestGateDisabledAlwaysPasses(t *testing.T) {
	g := energygate.New(energygate.Config{Enabled: false})
	silence := []audioio.Frame{{Samples: make([]float32, 100), Channels: 1, SampleRate: 44100}}
	res := g.Evaluate(silence)
	if !res.Passed {
		t.Fatal("expected disabled gate to always pass")
	}
}

func TestGateEmptyFramesReportsUnderrun(t *testing.T) {
	g := energygate.New(energygate.DefaultConfig())
	res := g.Evaluate(nil)
	if res.Passed {
		t.Fatal("expected empty snapshot to fail the gate")
	}
}
