package pipeline

import (
	"testing"
	"time"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
	"github.com/machug/woofalytics-v2-sub000/internal/config"
	"github.com/machug/woofalytics-v2-sub000/internal/evidence"
)

type fakeCoarseModel struct {
	prob float32
}

func (f *fakeCoarseModel) Probabilities(samples []float32, sampleRate int) ([]float32, error) {
	return []float32{f.prob}, nil
}
func (f *fakeCoarseModel) ClassIndexMap() map[string]int { return map[string]int{"dog": 0} }
func (f *fakeCoarseModel) Close() error                  { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.ChunkSamples = 1600
	cfg.Coarse.Enabled = true
	cfg.Coarse.DogClassIDs = []int{0}
	cfg.Coarse.FallbackOnlyMode = true // skip fine classifier; no ONNX model needed for this test
	cfg.DoA.Enabled = false
	cfg.Evidence.Directory = t.TempDir()
	return &cfg
}

func silentFrame(sampleRate, n int) audioio.Frame {
	return audioio.Frame{
		Samples:    make([]float32, n),
		Channels:   1,
		SampleRate: sampleRate,
		Wall:       time.Now(),
	}
}

func TestSilentStreamEmitsNoBarkEvents(t *testing.T) {
	cfg := testConfig(t)
	models := Models{Coarse: &fakeCoarseModel{prob: 0}}
	sup, err := New(cfg, models, evidence.DeviceInfo{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 20; i++ {
		sup.ring.Append(silentFrame(cfg.Audio.SampleRate, cfg.Audio.ChunkSamples))
	}

	for i := 0; i < 20; i++ {
		sup.runTick(nil, cfg.EnergyGate.WindowSeconds)
	}

	status := sup.Status()
	if status.Counters.EventsEmitted != 0 {
		t.Fatalf("expected 0 bark events for a silent stream, got %d", status.Counters.EventsEmitted)
	}
	if status.Counters.VadSkipped < 19 {
		t.Fatalf("expected at least 19 vad_skipped ticks, got %d", status.Counters.VadSkipped)
	}
}

func TestLoudCoarsePositiveEmitsBarkEventAfterWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.Smoother.WindowSize = 3
	cfg.Smoother.RequiredPositives = 2
	cfg.Coarse.Threshold = 0.1
	cfg.Fine.Threshold = 0.5
	models := Models{Coarse: &fakeCoarseModel{prob: 0.9}}
	sup, err := New(cfg, models, evidence.DeviceInfo{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	loud := make([]float32, cfg.Audio.ChunkSamples)
	for i := range loud {
		loud[i] = 0.5
	}
	frame := audioio.Frame{Samples: loud, Channels: 1, SampleRate: cfg.Audio.SampleRate, Wall: time.Now()}
	for i := 0; i < 50; i++ {
		sup.ring.Append(frame)
	}

	emitted := 0
	for i := 0; i < cfg.Smoother.WindowSize+1; i++ {
		before := sup.counters.EventsEmitted.Load()
		sup.runTick(nil, cfg.EnergyGate.WindowSeconds)
		if sup.counters.EventsEmitted.Load() > before {
			emitted++
		}
	}
	if emitted == 0 {
		t.Fatal("expected at least one bark event once the smoother's majority window fills")
	}
}
