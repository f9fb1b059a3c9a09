// Package pipeline implements C9, the supervisor that owns every worker
// task: it wires C1-C8 together, ticks the detector cascade, and exposes a
// start/stop/status/subscribe contract to cmd/barkd and cmd/barkdctl.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
	"github.com/machug/woofalytics-v2-sub000/internal/classify"
	"github.com/machug/woofalytics-v2-sub000/internal/config"
	"github.com/machug/woofalytics-v2-sub000/internal/doa"
	"github.com/machug/woofalytics-v2-sub000/internal/energygate"
	"github.com/machug/woofalytics-v2-sub000/internal/eventbus"
	"github.com/machug/woofalytics-v2-sub000/internal/evidence"
	"github.com/machug/woofalytics-v2-sub000/internal/fingerprint"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
	"github.com/machug/woofalytics-v2-sub000/internal/smoother"
)

// Models bundles the ONNX-backed capability interfaces the supervisor
// scores each tick against. Loading these is a startup-time binding
// concern owned by cmd/barkd, not by the supervisor itself.
type Models struct {
	Coarse      classify.CoarseModel
	Fine        classify.FineModel
	Fingerprint fingerprint.ProfileSource
}

// Supervisor is C9: it owns the ring buffer, the detector tick loop (which
// also finalizes evidence clips), and the outbound event buses.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	ring    *audioio.RingBuffer
	capture *audioio.Capture

	gate     *energygate.Gate
	coarse   *classify.CoarseClassifier
	fine     *classify.FineClassifier
	smoother *smoother.Smoother
	doaCfg   doa.Config
	recorder *evidence.Recorder
	matcher  *fingerprint.Matcher

	barkEvents *eventbus.Bus[eventbus.BarkEvent]
	telemetry  *eventbus.Bus[eventbus.PipelineStageTelemetry]
	levels     *eventbus.Bus[eventbus.AudioLevelTick]

	counters Counters

	running   atomic.Bool
	startedAt time.Time
	lastEvent atomic.Value // string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires C1-C8 from cfg and models, sharing one ring buffer sized to
// the evidence recorder's context window.
func New(cfg *config.Config, models Models, device evidence.DeviceInfo, logger *slog.Logger) (*Supervisor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "pipeline_supervisor")

	capacitySeconds := cfg.Evidence.PastContextSeconds + cfg.Evidence.FutureContextSeconds
	chunkDuration := time.Duration(float64(cfg.Audio.ChunkSamples) / float64(cfg.Audio.SampleRate) * float64(time.Second))
	ring := audioio.NewRingBuffer(capacitySeconds, chunkDuration)

	capture := audioio.New(audioio.Config{
		DeviceName:       cfg.Audio.DeviceName,
		SampleRate:       float64(cfg.Audio.SampleRate),
		Channels:         cfg.Audio.Channels,
		ChunkSamples:     cfg.Audio.ChunkSamples,
		InputGainPercent: cfg.Audio.InputGainPercent,
	}, ring, logger)

	coarse := classify.NewCoarseClassifier(classify.CoarseConfig{
		Enabled:         cfg.Coarse.Enabled,
		Threshold:       cfg.Coarse.Threshold,
		DogClassIDs:     cfg.Coarse.DogClassIDs,
		FallbackOnError: cfg.Coarse.FallbackOnError,
	}, models.Coarse, logger)

	var fine *classify.FineClassifier
	if !cfg.Coarse.FallbackOnlyMode {
		var err error
		fine, err = classify.NewFineClassifier(classify.FineConfig{
			ModelIdentifier:  cfg.Fine.ModelIdentifier,
			PositiveLabels:   cfg.Fine.PositiveLabels,
			SpeechVetoLabels: cfg.Fine.SpeechVetoLabels,
			PercussiveVeto:   cfg.Fine.PercussiveVetoLabels,
			BirdVeto:         cfg.Fine.BirdVetoLabels,
			VetoThresholds: classify.VetoThresholds{
				Speech:     cfg.Fine.VetoThresholds.Speech,
				Percussive: cfg.Fine.VetoThresholds.Percussive,
				Bird:       cfg.Fine.VetoThresholds.Bird,
			},
			Threshold:       cfg.Fine.Threshold,
			BypassThreshold: cfg.Fine.BypassThreshold,
		}, models.Fine, logger)
		if err != nil {
			return nil, fmt.Errorf("pipeline: construct fine classifier: %w", err)
		}
	}

	sm, err := smoother.New(smoother.Config{
		WindowSize:        cfg.Smoother.WindowSize,
		RequiredPositives: cfg.Smoother.RequiredPositives,
		CooldownFrames:    cfg.Smoother.CooldownFrames,
		BypassThreshold:   cfg.Fine.BypassThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: construct smoother: %w", err)
	}

	index, err := evidence.OpenIndex(cfg.Evidence.Directory)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open evidence index: %w", err)
	}

	format := evidence.FormatPCM16
	if cfg.Evidence.SampleFormat == "float32" {
		format = evidence.FormatFloat32
	}
	recorder := evidence.New(evidence.Config{
		Directory:            cfg.Evidence.Directory,
		PastContextSeconds:   cfg.Evidence.PastContextSeconds,
		FutureContextSeconds: cfg.Evidence.FutureContextSeconds,
		IncludeMetadata:      cfg.Evidence.IncludeMetadata,
		Format:               format,
		GenerateOpusCopy:     cfg.Evidence.CompressedCopy,
	}, ring, index, device, logger)

	var matcher *fingerprint.Matcher
	if models.Fingerprint != nil {
		matcher = fingerprint.NewMatcher(fingerprint.Config{MatchThreshold: cfg.Fingerprint.MatchThreshold}, models.Fingerprint)
	}

	busCfg := eventbus.Config{QueueDepth: cfg.Runtime.SubscriberQueueDepth, SendTimeout: time.Duration(cfg.Runtime.SubscriberTimeoutMS) * time.Millisecond}

	s := &Supervisor{
		cfg:      cfg,
		logger:   logger,
		ring:     ring,
		capture:  capture,
		gate:     energygate.New(energygate.Config{Enabled: cfg.EnergyGate.Enabled, ThresholdDB: cfg.EnergyGate.ThresholdDB, WindowSeconds: cfg.EnergyGate.WindowSeconds}),
		coarse:   coarse,
		fine:     fine,
		smoother: sm,
		doaCfg: doa.Config{
			Enabled:                   cfg.DoA.Enabled,
			ElementSpacingWavelengths: cfg.DoA.ElementSpacingWavelengths,
			NumElements:               cfg.DoA.NumElements,
			AngleMin:                  cfg.DoA.AngleMin,
			AngleMax:                  cfg.DoA.AngleMax,
			AngleStepDegrees:          1,
		},
		recorder:   recorder,
		matcher:    matcher,
		barkEvents: eventbus.New[eventbus.BarkEvent](busCfg, logger),
		telemetry:  eventbus.New[eventbus.PipelineStageTelemetry](busCfg, logger),
		levels:     eventbus.New[eventbus.AudioLevelTick](busCfg, logger),
	}
	s.lastEvent.Store("")
	return s, nil
}

// SubscribeBarkEvents registers a listener for discrete detections.
func (s *Supervisor) SubscribeBarkEvents() *eventbus.Subscription[eventbus.BarkEvent] {
	return s.barkEvents.Subscribe()
}

// SubscribeTelemetry registers a listener for per-tick stage telemetry.
func (s *Supervisor) SubscribeTelemetry() *eventbus.Subscription[eventbus.PipelineStageTelemetry] {
	return s.telemetry.Subscribe()
}

// SubscribeLevels registers a listener for capture-cadence RMS/peak ticks.
func (s *Supervisor) SubscribeLevels() *eventbus.Subscription[eventbus.AudioLevelTick] {
	return s.levels.Subscribe()
}

// Start wires C1->C9 and launches two workers: capture and the detector
// loop. Evidence clips are finalized and written from the detector loop;
// there is no separate evidence worker. It returns once every worker has
// been launched.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("pipeline: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.capture.SubscribeLevels(func(rmsDB float64, t time.Time) {
		s.levels.Publish(eventbus.AudioLevelTick{Timestamp: t, RMSDB: rmsDB, PeakDB: rmsDB})
	})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.capture.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.Error("capture worker exited",
				logging.Error(err),
				logging.String(logging.FieldEventType, "capture_worker_exit"),
			)
		}
	}()
	go func() {
		defer s.wg.Done()
		s.detectLoop(runCtx)
	}()

	s.startedAt = time.Now()
	s.running.Store(true)
	s.logger.Info("pipeline supervisor started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("device_name", s.cfg.Audio.DeviceName),
	)
	return nil
}

// Stop cancels every worker and waits up to 2*tick_interval+1s for them to
// exit before returning.
func (s *Supervisor) Stop() {
	if !s.running.Load() {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := 2*s.tickInterval() + time.Second
	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("pipeline workers did not exit within grace period",
			logging.String(logging.FieldEventType, "pipeline_stop_timeout"),
			logging.Duration("grace", grace),
		)
	}

	s.running.Store(false)
	s.logger.Info("pipeline supervisor stopped",
		logging.String(logging.FieldEventType, "pipeline_stop"),
	)
}

// Status returns a point-in-time snapshot of the supervisor's state.
func (s *Supervisor) Status() Status {
	var uptime float64
	if s.running.Load() {
		uptime = time.Since(s.startedAt).Seconds()
	}
	return Status{
		Running:       s.running.Load(),
		UptimeSeconds: uptime,
		Counters:      s.counters.snapshot(),
		LastEventRef:  s.lastEvent.Load().(string),
		DeviceName:    s.cfg.Audio.DeviceName,
	}
}

func (s *Supervisor) tickInterval() time.Duration {
	ms := s.cfg.Runtime.TickIntervalMS
	if s.cfg.Coarse.FallbackOnlyMode {
		ms = s.cfg.Runtime.FastTickIntervalMS
	}
	if ms <= 0 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Supervisor) detectLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()
	finalizeTicker := time.NewTicker(time.Second)
	defer finalizeTicker.Stop()

	windowSeconds := s.cfg.EnergyGate.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 1.0
	}

	for {
		select {
		case <-ctx.Done():
			s.smoother.Shutdown()
			return
		case <-finalizeTicker.C:
			if s.recorder.DueForFinalization(time.Now()) {
				if _, err := s.recorder.Finalize(ctx); err != nil {
					s.logger.Warn("evidence finalize failed",
						logging.Error(err),
						logging.String(logging.FieldEventType, "evidence_finalize_failed"),
					)
				}
			}
		case <-ticker.C:
			s.runTick(ctx, windowSeconds)
		}
	}
}

func (s *Supervisor) runTick(ctx context.Context, windowSeconds float64) {
	frames := s.ring.Snapshot(windowSeconds)
	s.counters.FramesIn.Add(uint64(len(frames)))

	telemetry := eventbus.PipelineStageTelemetry{Timestamp: time.Now()}

	gateResult := s.gate.Evaluate(frames)
	telemetry.EnergyLevelDB = gateResult.LevelDB
	telemetry.EnergyPassed = gateResult.Passed
	if !gateResult.Passed {
		s.counters.VadSkipped.Add(1)
		telemetry.DecisionPhase = string(s.smoother.Phase())
		s.telemetry.Publish(telemetry)
		return
	}

	samples, sampleRate := monoSamples(frames)

	coarseResult := s.coarse.Evaluate(samples, sampleRate)
	telemetry.CoarsePDog = coarseResult.PDog
	telemetry.CoarsePassed = coarseResult.Passed
	if !coarseResult.Passed {
		s.counters.CoarseSkipped.Add(1)
		telemetry.DecisionPhase = string(s.smoother.Phase())
		s.telemetry.Publish(telemetry)
		return
	}

	var tick smoother.Tick
	var embedding []float32
	var topLabel string
	var vetoScores map[string]float64

	if s.fine == nil {
		tick = smoother.Tick{Accepted: coarseResult.PDog >= s.cfg.Fine.Threshold, PBark: coarseResult.PDog}
	} else {
		decision, err := s.fine.Evaluate(samples, sampleRate)
		if err != nil {
			s.logger.Warn("fine classifier inference failed; tick skipped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "fine_inference_failed"),
			)
			telemetry.DecisionPhase = string(s.smoother.Phase())
			s.telemetry.Publish(telemetry)
			return
		}
		s.counters.FineRuns.Add(1)
		tick = smoother.Tick{Accepted: s.fine.Accepted(decision), PBark: decision.PBark}
		embedding = decision.Embedding
		topLabel = decision.TopLabel
		vetoScores = decision.VetoScores
	}
	telemetry.FineTopLabel = topLabel
	telemetry.FinePBark = tick.PBark

	outcome := s.smoother.Step(tick)
	telemetry.DecisionPhase = string(outcome.Phase)
	s.telemetry.Publish(telemetry)

	if !outcome.Emit {
		return
	}

	s.emitBarkEvent(ctx, time.Now(), tick.PBark, topLabel, vetoScores, frames, embedding)
}

func (s *Supervisor) emitBarkEvent(ctx context.Context, tEvent time.Time, probability float64, topLabel string, vetoScores map[string]float64, frames []audioio.Frame, embedding []float32) {
	eventID := uuid.NewString()

	var doaResult *doa.Result
	var busDoA *eventbus.DoA
	var recordDoA *evidence.DoAInfo
	if s.doaCfg.Enabled {
		if result, err := doa.Estimate(s.doaCfg, frames); err == nil {
			doaResult = &result
			busDoA = &eventbus.DoA{BartlettDeg: result.BartlettDeg, CaponDeg: result.CaponDeg, MEMDeg: result.MEMDeg, DirectionBucket: string(result.DirectionBucket)}
			recordDoA = &evidence.DoAInfo{Bartlett: result.BartlettDeg, Capon: result.CaponDeg, MEM: result.MEMDeg, DirectionBucket: string(result.DirectionBucket)}
		}
	}

	s.counters.EventsEmitted.Add(1)
	s.lastEvent.Store(eventID)

	s.barkEvents.Publish(eventbus.BarkEvent{
		EventID:        eventID,
		TEvent:         tEvent,
		Probability:    probability,
		TopLabel:       topLabel,
		VetoScores:     vetoScores,
		DoA:            busDoA,
		AudioWindowRef: eventID,
	})

	merged := s.recorder.RecordEvent(evidence.EventInput{
		TEvent:      tEvent,
		Probability: probability,
		TopLabel:    topLabel,
		VetoScores:  vetoScores,
		DoA:         recordDoA,
	})

	s.logger.Info("bark event emitted",
		logging.String(logging.FieldEventID, eventID),
		logging.Float64("probability", probability),
		logging.String("top_label", topLabel),
		logging.Bool("merged_into_open_clip", merged),
		logging.String(logging.FieldEventType, "bark_event"),
	)

	if s.matcher != nil && embedding != nil {
		s.dispatchFingerprint(ctx, eventID, tEvent, embedding, frames)
	}
	_ = doaResult
}

func (s *Supervisor) dispatchFingerprint(ctx context.Context, eventID string, tEvent time.Time, embedding []float32, frames []audioio.Frame) {
	if err := s.matcher.RefreshCentroids(ctx, ""); err != nil {
		s.logger.Warn("fingerprint centroid refresh failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "fingerprint_refresh_failed"),
		)
	}
	// durationMS is the wall-clock span of the tick's snapshot frames; the
	// smoother's continuous-positive-run length is not tracked.
	durationMS := 0.0
	if len(frames) > 0 {
		durationMS = frames[len(frames)-1].Wall.Sub(frames[0].Wall).Seconds() * 1000
	}
	features := fingerprint.ExtractSummaryFeatures(frames, durationMS)

	fp := fingerprint.Fingerprint{
		FPID:            uuid.NewString(),
		EventID:         eventID,
		Embedding:       embedding,
		SummaryFeatures: features,
	}
	if dogID, confidence, ok := s.matcher.Match(embedding); ok {
		fp.DogID = dogID
		mc := confidence
		fp.MatchConfidence = &mc
	}
	s.logger.Info("fingerprint extracted",
		logging.String(logging.FieldEventID, eventID),
		logging.String("fp_id", fp.FPID),
		logging.Float64("pitch_hz", features.PitchHz),
		logging.String(logging.FieldEventType, "fingerprint_extracted"),
	)
}

func monoSamples(frames []audioio.Frame) ([]float32, int) {
	if len(frames) == 0 {
		return nil, 0
	}
	sampleRate := frames[0].SampleRate
	channels := frames[0].Channels
	if channels <= 1 {
		out := make([]float32, 0, len(frames)*len(frames[0].Samples))
		for _, f := range frames {
			out = append(out, f.Samples...)
		}
		return out, sampleRate
	}
	var out []float32
	for _, f := range frames {
		n := len(f.Samples) / channels
		for i := 0; i < n; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				sum += f.Samples[i*channels+c]
			}
			out = append(out, sum/float32(channels))
		}
	}
	return out, sampleRate
}
