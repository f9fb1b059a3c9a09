package audioio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/machug/woofalytics-v2-sub000/internal/barkerr"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// Config describes device selection and framing parameters.
type Config struct {
	DeviceName       string
	SampleRate       float64
	Channels         int
	ChunkSamples     int
	InputGainPercent int
}

// Stats exposes capture counters for the supervisor's status snapshot.
type Stats struct {
	FramesIn uint64
	Xruns    uint64
}

// LevelCallback receives downsampled RMS for VU display, at roughly 10Hz.
type LevelCallback func(rmsDB float64, t time.Time)

// Capture owns the ring buffer's write end exclusively and runs on a
// dedicated worker reading from the audio device.
type Capture struct {
	cfg    Config
	logger *slog.Logger
	ring   *RingBuffer
	stream portaudioStream

	seq        atomic.Uint64
	framesIn   atomic.Uint64
	xruns      atomic.Uint64
	start      time.Time

	mu        sync.Mutex
	levelSubs []LevelCallback

	openFunc func(Config) (portaudioStream, error)
}

// portaudioStream is the narrow slice of *portaudio.Stream this package
// depends on, so tests can substitute a fake without a real device.
type portaudioStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
}

// New constructs a Capture worker writing into ring.
func New(cfg Config, ring *RingBuffer, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Capture{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "capture"),
		ring:     ring,
		start:    time.Now(),
		openFunc: openPortAudioStream,
	}
}

// SubscribeLevels registers a callback for downsampled RMS updates.
func (c *Capture) SubscribeLevels(cb LevelCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levelSubs = append(c.levelSubs, cb)
}

// Snapshot returns seconds of audio ending now from the ring buffer.
func (c *Capture) Snapshot(seconds float64) []Frame {
	return c.ring.Snapshot(seconds)
}

// Stats returns a point-in-time copy of capture counters.
func (c *Capture) Stats() Stats {
	return Stats{FramesIn: c.framesIn.Load(), Xruns: c.xruns.Load()}
}

// Run drives the capture loop until ctx is cancelled, retrying device
// acquisition with exponential backoff (100ms to a 30s cap) on
// DeviceUnavailable.
func (c *Capture) Run(ctx context.Context) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}
		stream, err := c.openFunc(c.cfg)
		if err != nil {
			c.logger.Warn("device open failed; retrying",
				logging.Error(err),
				logging.String(logging.FieldEventType, "device_unavailable"),
				logging.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 100 * time.Millisecond
		c.stream = stream
		if err := c.readLoop(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("capture stream failed; reopening",
				logging.Error(err),
				logging.String(logging.FieldEventType, "device_unavailable"),
			)
		}
		_ = stream.Stop()
		_ = stream.Close()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * 2)
	if next > max {
		return max
	}
	return next
}

// rawReader is implemented by the portaudio stream wrapper so readLoop can
// pull the buffered chunk that Read() just filled.
type rawReader interface {
	LastChunk() ([]float32, time.Time, bool)
}

func (c *Capture) readLoop(ctx context.Context, stream portaudioStream) error {
	reader, _ := stream.(rawReader)
	var levelAccum []float64
	lastLevelEmit := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := stream.Read(); err != nil {
			return barkerr.Wrap(barkerr.ErrDeviceUnavailable, "capture", "read", err)
		}
		var samples []float32
		var wall time.Time
		var xrun bool
		if reader != nil {
			samples, wall, xrun = reader.LastChunk()
		} else {
			wall = time.Now()
		}
		if xrun {
			c.xruns.Add(1)
		}

		seq := c.seq.Add(1) - 1
		frame := Frame{
			Samples:    samples,
			Channels:   c.cfg.Channels,
			SampleRate: int(c.cfg.SampleRate),
			Monotonic:  time.Since(c.start),
			Wall:       wall,
			Seq:        seq,
		}
		c.ring.Append(frame)
		c.framesIn.Add(1)

		levelAccum = append(levelAccum, rmsDB(samples))
		if time.Since(lastLevelEmit) >= 100*time.Millisecond {
			c.emitLevel(averageDB(levelAccum), wall)
			levelAccum = levelAccum[:0]
			lastLevelEmit = time.Now()
		}
	}
}

func (c *Capture) emitLevel(db float64, t time.Time) {
	c.mu.Lock()
	subs := append([]LevelCallback(nil), c.levelSubs...)
	c.mu.Unlock()
	for _, sub := range subs {
		sub(db, t)
	}
}

func rmsDB(samples []float32) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

func averageDB(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, v := range values {
		if math.IsInf(v, -1) {
			continue
		}
		sum += v
	}
	return sum / float64(len(values))
}

func openPortAudioStream(cfg Config) (portaudioStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, barkerr.Wrap(barkerr.ErrDeviceUnavailable, "capture", "initialize", err)
	}
	device, err := resolveDevice(cfg.DeviceName)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, barkerr.Wrap(barkerr.ErrDeviceUnavailable, "capture", "resolve_device", err)
	}

	wrapper := &paStream{chunkSamples: cfg.ChunkSamples, channels: cfg.Channels}
	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.ChunkSamples

	stream, err := portaudio.OpenStream(params, wrapper.process)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, barkerr.Wrap(barkerr.ErrDeviceUnavailable, "capture", "open_stream", err)
	}
	wrapper.stream = stream
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, barkerr.Wrap(barkerr.ErrDeviceUnavailable, "capture", "start", err)
	}
	return wrapper, nil
}

func resolveDevice(name string) (*portaudio.DeviceInfo, error) {
	if strings.TrimSpace(name) == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), lower) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", name)
}

// paStream adapts the blocking portaudio.Stream to the portaudioStream
// interface, copying each processed chunk out for readLoop to pick up.
type paStream struct {
	stream       *portaudio.Stream
	chunkSamples int
	channels     int

	mu     sync.Mutex
	buf    []float32
	wall   time.Time
	xrun   bool
	filled bool
}

func (p *paStream) process(in []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append([]float32(nil), in...)
	p.wall = time.Now()
	p.filled = true
}

func (p *paStream) Start() error { return p.stream.Start() }
func (p *paStream) Stop() error  { return p.stream.Stop() }
func (p *paStream) Close() error { return p.stream.Close() }

func (p *paStream) Read() error {
	// portaudio delivers chunks via the callback registered in process;
	// Read simply waits for the next one to land.
	for i := 0; i < 1000; i++ {
		p.mu.Lock()
		filled := p.filled
		p.mu.Unlock()
		if filled {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return errors.New("timed out waiting for device callback")
}

func (p *paStream) LastChunk() ([]float32, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled = false
	xrun := p.xrun
	p.xrun = false
	return p.buf, p.wall, xrun
}
