package daemon

import (
	"context"
	"os"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/config"
	"github.com/machug/woofalytics-v2-sub000/internal/evidence"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
	"github.com/machug/woofalytics-v2-sub000/internal/pipeline"
)

type fakeCoarseModel struct{}

func (fakeCoarseModel) Probabilities(samples []float32, sampleRate int) ([]float32, error) {
	return []float32{0}, nil
}
func (fakeCoarseModel) ClassIndexMap() map[string]int { return map[string]int{"dog": 0} }
func (fakeCoarseModel) Close() error                  { return nil }

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.Default()
	cfg.LogDir = t.TempDir()
	cfg.Evidence.Directory = t.TempDir()
	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.ChunkSamples = 1600
	cfg.Audio.DeviceName = "test-device"
	cfg.Coarse.FallbackOnlyMode = true
	cfg.DoA.Enabled = false

	sup, err := pipeline.New(&cfg, pipeline.Models{Coarse: fakeCoarseModel{}}, evidence.DeviceInfo{}, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	onnxLib := t.TempDir() + "/libonnxruntime.so"
	d, err := New(&cfg, sup, logging.NewNop(), "", nil, nil, onnxLib)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestStartFailsDependencyChecksWhenONNXLibraryMissing(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail when the ONNX runtime library is missing")
	}
}

func TestSecondStartFailsWhileLockHeld(t *testing.T) {
	// Write a stub ONNX library so dependency checks pass.
	d := newTestDaemon(t)
	libPath := d.onnxLibraryPath
	writeStubFile(t, libPath)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer d.Stop(context.Background())

	second, err := New(d.cfg, d.supervisor, logging.NewNop(), "", nil, nil, libPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second daemon instance to fail acquiring the lock")
	}
}

func writeStubFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write stub library: %v", err)
	}
}
