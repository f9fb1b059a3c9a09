package classify

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/machug/woofalytics-v2-sub000/internal/barkerr"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// VetoThresholds holds the per-group score threshold above which that
// group vetoes a tentative bark decision.
type VetoThresholds struct {
	Speech     float64
	Percussive float64
	Bird       float64
}

// FineConfig holds the fine classifier's label groups and decision thresholds.
type FineConfig struct {
	ModelIdentifier     string
	PositiveLabels      []string
	SpeechVetoLabels    []string
	PercussiveVeto      []string
	BirdVeto            []string
	VetoThresholds      VetoThresholds
	Threshold           float64
	BypassThreshold     float64
}

// DefaultFineConfig returns a middle-of-the-road threshold/bypass pair.
func DefaultFineConfig() FineConfig {
	return FineConfig{
		Threshold:       0.5,
		BypassThreshold: 0.8,
		VetoThresholds:  VetoThresholds{Speech: 0.5, Percussive: 0.5, Bird: 0.5},
	}
}

// Decision is the scored outcome of one fine-classifier invocation, carrying
// every field a BarkEvent needs (veto_scores, top_label, and the embedding
// the fingerprint matcher reuses).
type Decision struct {
	PBark      float64
	TopLabel   string
	VetoScores map[string]float64
	Rejected   bool
	Embedding  []float32 // the audio-tower output, reused verbatim by the fingerprint matcher
}

type labelGroup struct {
	role   string
	labels []string
}

// FineClassifier scores a window against a fixed, cached label set.
//
// Normalization choice: each label is scored
// independently via a temperature-scaled sigmoid over cosine similarity, not
// a joint softmax across the label set. A softmax's shared normalizer would
// make p_veto_threshold_g mean a different thing as labels are added or
// removed from a veto group; independent sigmoids keep each group's
// threshold stable regardless of how many labels the operator configures.
type FineClassifier struct {
	cfg    FineConfig
	model  FineModel
	logger *slog.Logger

	// temperature scales cosine similarity before the sigmoid; tuned once and
	// held fixed since it is not an exposed config knob.
	temperature float64

	textEmbeddings map[string][]float32
	groups         []labelGroup
	vetoSet        map[string]struct{}
}

// NewFineClassifier pre-computes and caches every label's text embedding
// exactly once, keeping the hot path audio-only.
func NewFineClassifier(cfg FineConfig, model FineModel, logger *slog.Logger) (*FineClassifier, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &FineClassifier{
		cfg:         cfg,
		model:       model,
		logger:      logging.NewComponentLogger(logger, "fine_classifier"),
		temperature: 10.0,
		vetoSet:     make(map[string]struct{}),
	}
	c.groups = []labelGroup{
		{role: "positive", labels: cfg.PositiveLabels},
		{role: "speech", labels: cfg.SpeechVetoLabels},
		{role: "percussive", labels: cfg.PercussiveVeto},
		{role: "bird", labels: cfg.BirdVeto},
	}
	for _, g := range c.groups {
		if g.role == "positive" {
			continue
		}
		for _, label := range g.labels {
			c.vetoSet[label] = struct{}{}
		}
	}

	if model == nil {
		return nil, barkerr.Wrap(barkerr.ErrModelLoadFailure, "fine_classifier", "new", fmt.Errorf("nil model"))
	}

	c.textEmbeddings = make(map[string][]float32)
	for _, g := range c.groups {
		for _, label := range g.labels {
			if _, ok := c.textEmbeddings[label]; ok {
				continue
			}
			emb, err := model.EmbedText(label)
			if err != nil {
				return nil, barkerr.Wrap(barkerr.ErrModelLoadFailure, "fine_classifier", "embed_text", err)
			}
			c.textEmbeddings[label] = emb
		}
	}
	return c, nil
}

// Evaluate scores a ~1s audio window against every cached label: embed the
// window, score each label, take the max over each veto group, then reject
// if the top label is a veto label or a veto group outscores the positive
// score.
func (c *FineClassifier) Evaluate(samples []float32, sampleRate int) (Decision, error) {
	audioEmb, err := c.model.EmbedAudio(samples, sampleRate)
	if err != nil {
		return Decision{}, barkerr.Wrap(barkerr.ErrInferenceFailure, "fine_classifier", "embed_audio", err)
	}

	scores := make(map[string]float64, len(c.textEmbeddings))
	var topLabel string
	var topScore float64 = math.Inf(-1)
	for label, textEmb := range c.textEmbeddings {
		score := sigmoidScore(audioEmb, textEmb, c.temperature)
		scores[label] = score
		if score > topScore {
			topScore = score
			topLabel = label
		}
	}

	pBark := maxOverLabels(scores, c.cfg.PositiveLabels)
	vetoScores := map[string]float64{
		"speech":     maxOverLabels(scores, c.cfg.SpeechVetoLabels),
		"percussive": maxOverLabels(scores, c.cfg.PercussiveVeto),
		"bird":       maxOverLabels(scores, c.cfg.BirdVeto),
	}

	_, topIsVeto := c.vetoSet[topLabel]
	rejected := topIsVeto ||
		(vetoScores["speech"] > c.cfg.VetoThresholds.Speech && vetoScores["speech"] > pBark) ||
		(vetoScores["percussive"] > c.cfg.VetoThresholds.Percussive && vetoScores["percussive"] > pBark) ||
		(vetoScores["bird"] > c.cfg.VetoThresholds.Bird && vetoScores["bird"] > pBark)

	return Decision{
		PBark:      pBark,
		TopLabel:   topLabel,
		VetoScores: vetoScores,
		Rejected:   rejected,
		Embedding:  audioEmb,
	}, nil
}

// Accepted reports whether d is a tentative accept: not vetoed and at or
// above threshold.
func (c *FineClassifier) Accepted(d Decision) bool {
	return !d.Rejected && d.PBark >= c.cfg.Threshold
}

// Close releases the underlying model.
func (c *FineClassifier) Close() error {
	if c.model == nil {
		return nil
	}
	return c.model.Close()
}

func maxOverLabels(scores map[string]float64, labels []string) float64 {
	var max float64
	for _, label := range labels {
		if v, ok := scores[label]; ok && v > max {
			max = v
		}
	}
	return max
}

func sigmoidScore(a, b []float32, temperature float64) float64 {
	cos := cosineSimilarity(a, b)
	return 1 / (1 + math.Exp(-temperature*cos))
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
