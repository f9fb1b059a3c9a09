package doa_test

import (
	"math"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
	"github.com/machug/woofalytics-v2-sub000/internal/doa"
)

func twoChannelToneFrame(sampleRate int, n int, freqHz, delaySamples float64) audioio.Frame {
	samples := make([]float32, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		left := math.Sin(2 * math.Pi * freqHz * t)
		tDelayed := float64(i-int(delaySamples)) / float64(sampleRate)
		right := math.Sin(2 * math.Pi * freqHz * tDelayed)
		samples[2*i] = float32(left)
		samples[2*i+1] = float32(right)
	}
	return audioio.Frame{Samples: samples, Channels: 2, SampleRate: sampleRate}
}

func TestEstimateAbsentBelowTwoChannels(t *testing.T) {
	// Invariant 10: channels=1 => DoA absent.
	frame := audioio.Frame{Samples: make([]float32, 256), Channels: 1, SampleRate: 16000}
	_, err := doa.Estimate(doa.DefaultConfig(), []audioio.Frame{frame})
	if err != doa.ErrInsufficientChannels {
		t.Fatalf("expected ErrInsufficientChannels, got %v", err)
	}
}

func TestEstimateReturnsBearingWithinConfiguredRange(t *testing.T) {
	cfg := doa.DefaultConfig()
	cfg.AngleStepDegrees = 5
	frame := twoChannelToneFrame(16000, 512, 1000, 1)
	result, err := doa.Estimate(cfg, []audioio.Frame{frame})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if result.BartlettDeg < cfg.AngleMin || result.BartlettDeg > cfg.AngleMax {
		t.Fatalf("expected bearing within [%v, %v], got %v", cfg.AngleMin, cfg.AngleMax, result.BartlettDeg)
	}
	if result.DirectionBucket == "" {
		t.Fatal("expected a non-empty direction bucket")
	}
}

func TestEstimateEmptyFramesIsInsufficientChannels(t *testing.T) {
	_, err := doa.Estimate(doa.DefaultConfig(), nil)
	if err != doa.ErrInsufficientChannels {
		t.Fatalf("expected ErrInsufficientChannels for empty input, got %v", err)
	}
}
