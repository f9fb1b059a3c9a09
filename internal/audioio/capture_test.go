package audioio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStream is a deterministic stand-in for the PortAudio stream so Run's
// retry and framing behaviour can be exercised without a real device.
type fakeStream struct {
	chunks   [][]float32
	idx      atomic.Int64
	closed   atomic.Bool
	failRead bool
}

func (f *fakeStream) Start() error { return nil }
func (f *fakeStream) Stop() error  { return nil }
func (f *fakeStream) Close() error { f.closed.Store(true); return nil }

func (f *fakeStream) Read() error {
	if f.failRead {
		return errors.New("simulated read failure")
	}
	if int(f.idx.Load()) >= len(f.chunks) {
		return errors.New("no more chunks")
	}
	return nil
}

func (f *fakeStream) LastChunk() ([]float32, time.Time, bool) {
	i := f.idx.Add(1) - 1
	if int(i) >= len(f.chunks) {
		return nil, time.Now(), false
	}
	return f.chunks[i], time.Now(), false
}

func TestCaptureRunAssignsGapFreeSequence(t *testing.T) {
	ring := NewRingBuffer(30, 10*time.Millisecond)
	stream := &fakeStream{chunks: [][]float32{
		make([]float32, 441),
		make([]float32, 441),
		make([]float32, 441),
	}}
	capt := New(Config{SampleRate: 44100, Channels: 1, ChunkSamples: 441}, ring, nil)
	capt.openFunc = func(Config) (portaudioStream, error) { return stream, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- capt.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for ring.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	frames := ring.SnapshotAll()
	if len(frames) < 3 {
		t.Fatalf("expected at least 3 captured frames, got %d", len(frames))
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Seq != frames[i-1].Seq+1 {
			t.Fatalf("expected gap-free seq, got %d then %d", frames[i-1].Seq, frames[i].Seq)
		}
	}
}

func TestCaptureRunRetriesOnOpenFailure(t *testing.T) {
	ring := NewRingBuffer(30, 10*time.Millisecond)
	attempts := atomic.Int32{}
	stream := &fakeStream{chunks: [][]float32{make([]float32, 441)}}

	capt := New(Config{SampleRate: 44100, Channels: 1, ChunkSamples: 441}, ring, nil)
	capt.openFunc = func(Config) (portaudioStream, error) {
		n := attempts.Add(1)
		if n < 3 {
			return nil, errors.New("device busy")
		}
		return stream, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- capt.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for ring.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if attempts.Load() < 3 {
		t.Fatalf("expected at least 3 open attempts before success, got %d", attempts.Load())
	}
	if ring.Len() == 0 {
		t.Fatal("expected a frame to be captured after recovering from open failures")
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	b := 100 * time.Millisecond
	max := 30 * time.Second
	for i := 0; i < 20; i++ {
		b = nextBackoff(b, max)
	}
	if b != max {
		t.Fatalf("expected backoff capped at %v, got %v", max, b)
	}
}
