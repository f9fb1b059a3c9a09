package classify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/machug/woofalytics-v2-sub000/internal/barkerr"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// CoarseConfig holds the dog-class probability threshold and which class
// indices count as "dog" in the underlying tagger's label space.
type CoarseConfig struct {
	Enabled         bool
	Threshold       float64
	DogClassIDs     []int
	FallbackOnError string // "pass" | "block"
}

// DefaultCoarseConfig returns a low-threshold, fail-open starting point.
func DefaultCoarseConfig() CoarseConfig {
	return CoarseConfig{Enabled: true, Threshold: 0.05, FallbackOnError: "pass"}
}

// CoarseResult is what a tick observes from C3.
type CoarseResult struct {
	Passed  bool
	PDog    float64
	Skipped bool // model unavailable; frame passed through without scoring
}

// CoarseClassifier wraps a CoarseModel with a fail-open degradation rule: a
// load failure at startup degrades to always-pass with a one-shot warning;
// a per-frame inference failure fails open for that tick only.
type CoarseClassifier struct {
	cfg    CoarseConfig
	model  CoarseModel
	logger *slog.Logger

	loadFailed    atomic.Bool
	warnOnce      sync.Once
	inferenceFail atomic.Uint64
}

// NewCoarseClassifier wraps model (nil means the load already failed).
func NewCoarseClassifier(cfg CoarseConfig, model CoarseModel, logger *slog.Logger) *CoarseClassifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &CoarseClassifier{
		cfg:    cfg,
		model:  model,
		logger: logging.NewComponentLogger(logger, "coarse_classifier"),
	}
	if model == nil {
		c.loadFailed.Store(true)
	}
	return c
}

// Evaluate scores samples and returns whether the window should continue to
// the fine classifier.
func (c *CoarseClassifier) Evaluate(samples []float32, sampleRate int) CoarseResult {
	if !c.cfg.Enabled {
		return CoarseResult{Passed: true}
	}
	if c.loadFailed.Load() {
		c.warnOnce.Do(func() {
			c.logger.Warn("coarse model unavailable; degrading to always-pass",
				logging.String(logging.FieldEventType, "model_load_failure"),
				logging.String(logging.FieldImpact, "all frames forwarded to fine classifier"),
			)
		})
		return CoarseResult{Passed: true, Skipped: true}
	}

	probs, err := c.model.Probabilities(samples, sampleRate)
	if err != nil {
		n := c.inferenceFail.Add(1)
		c.logger.Warn("coarse inference failed; passing frame open",
			logging.Error(err),
			logging.String(logging.FieldEventType, "inference_failure"),
			logging.Int64("inference_failures_total", int64(n)),
		)
		_ = barkerr.Wrap(barkerr.ErrInferenceFailure, "coarse_classifier", "probabilities", err)
		return CoarseResult{Passed: true, Skipped: true}
	}

	pDog := maxAtIndices(probs, c.cfg.DogClassIDs)
	return CoarseResult{Passed: pDog >= c.cfg.Threshold, PDog: pDog}
}

// Close releases the underlying model's resources, if any.
func (c *CoarseClassifier) Close() error {
	if c.model == nil {
		return nil
	}
	return c.model.Close()
}

func maxAtIndices(probs []float32, indices []int) float64 {
	if len(indices) == 0 {
		var max float64
		for _, p := range probs {
			if float64(p) > max {
				max = float64(p)
			}
		}
		return max
	}
	var max float64
	for _, idx := range indices {
		if idx < 0 || idx >= len(probs) {
			continue
		}
		if float64(probs[idx]) > max {
			max = float64(probs[idx])
		}
	}
	return max
}
