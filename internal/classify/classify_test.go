package classify_test

import (
	"errors"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/classify"
)

type fakeCoarseModel struct {
	probs   []float32
	err     error
	closeCh chan struct{}
}

func (f *fakeCoarseModel) Probabilities(samples []float32, sr int) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.probs, nil
}
func (f *fakeCoarseModel) ClassIndexMap() map[string]int { return map[string]int{"Dog": 0, "Bark": 1} }
func (f *fakeCoarseModel) Close() error {
	if f.closeCh != nil {
		close(f.closeCh)
	}
	return nil
}

func TestCoarseClassifierPassesAboveThreshold(t *testing.T) {
	model := &fakeCoarseModel{probs: []float32{0.9, 0.2}}
	c := classify.NewCoarseClassifier(classify.CoarseConfig{Enabled: true, Threshold: 0.05, DogClassIDs: []int{0}}, model, nil)
	res := c.Evaluate(make([]float32, 16000), 16000)
	if !res.Passed {
		t.Fatalf("expected pass, got %+v", res)
	}
	if res.PDog != float64(float32(0.9)) {
		t.Fatalf("expected p_dog 0.9, got %v", res.PDog)
	}
}

func TestCoarseClassifierRejectsBelowThreshold(t *testing.T) {
	model := &fakeCoarseModel{probs: []float32{0.01, 0.01}}
	c := classify.NewCoarseClassifier(classify.CoarseConfig{Enabled: true, Threshold: 0.05, DogClassIDs: []int{0}}, model, nil)
	res := c.Evaluate(make([]float32, 16000), 16000)
	if res.Passed {
		t.Fatalf("expected reject, got %+v", res)
	}
}

func TestCoarseClassifierDegradesToAlwaysPassOnNilModel(t *testing.T) {
	c := classify.NewCoarseClassifier(classify.CoarseConfig{Enabled: true, Threshold: 0.5}, nil, nil)
	res := c.Evaluate(make([]float32, 16000), 16000)
	if !res.Passed || !res.Skipped {
		t.Fatalf("expected always-pass fail-open, got %+v", res)
	}
}

func TestCoarseClassifierFailsOpenOnInferenceError(t *testing.T) {
	model := &fakeCoarseModel{err: errors.New("boom")}
	c := classify.NewCoarseClassifier(classify.CoarseConfig{Enabled: true, Threshold: 0.9}, model, nil)
	res := c.Evaluate(make([]float32, 16000), 16000)
	if !res.Passed || !res.Skipped {
		t.Fatalf("expected fail-open on inference error, got %+v", res)
	}
}

type fakeFineModel struct {
	textEmbeddings  map[string][]float32
	audioEmbedding  []float32
	embedAudioErr   error
}

func (f *fakeFineModel) EmbedText(label string) ([]float32, error) {
	return f.textEmbeddings[label], nil
}
func (f *fakeFineModel) EmbedAudio(samples []float32, sr int) ([]float32, error) {
	if f.embedAudioErr != nil {
		return nil, f.embedAudioErr
	}
	return f.audioEmbedding, nil
}
func (f *fakeFineModel) Close() error { return nil }

func baseFineConfig() classify.FineConfig {
	return classify.FineConfig{
		PositiveLabels:   []string{"dog barking"},
		SpeechVetoLabels: []string{"person talking"},
		PercussiveVeto:   []string{"hand clap"},
		BirdVeto:         []string{"bird chirping"},
		VetoThresholds:   classify.VetoThresholds{Speech: 0.5, Percussive: 0.5, Bird: 0.5},
		Threshold:        0.5,
		BypassThreshold:  0.8,
	}
}

func TestFineClassifierAcceptsDominantPositiveLabel(t *testing.T) {
	model := &fakeFineModel{
		textEmbeddings: map[string][]float32{
			"dog barking":    {1, 0},
			"person talking": {0, 1},
			"hand clap":      {0, 1},
			"bird chirping":  {0, 1},
		},
		audioEmbedding: []float32{1, 0},
	}
	fc, err := classify.NewFineClassifier(baseFineConfig(), model, nil)
	if err != nil {
		t.Fatalf("NewFineClassifier: %v", err)
	}
	decision, err := fc.Evaluate(make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Rejected {
		t.Fatalf("expected accept, got rejected decision: %+v", decision)
	}
	if !fc.Accepted(decision) {
		t.Fatalf("expected Accepted true, p_bark=%v", decision.PBark)
	}
	if decision.TopLabel != "dog barking" {
		t.Fatalf("expected top_label dog barking, got %q", decision.TopLabel)
	}
}

func TestFineClassifierRejectsWhenTopLabelIsVeto(t *testing.T) {
	model := &fakeFineModel{
		textEmbeddings: map[string][]float32{
			"dog barking":    {0, 1},
			"person talking": {1, 0},
			"hand clap":      {0, 1},
			"bird chirping":  {0, 1},
		},
		audioEmbedding: []float32{1, 0},
	}
	fc, err := classify.NewFineClassifier(baseFineConfig(), model, nil)
	if err != nil {
		t.Fatalf("NewFineClassifier: %v", err)
	}
	decision, err := fc.Evaluate(make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !decision.Rejected {
		t.Fatal("expected rejection when top_label is a veto label (invariant 4)")
	}
	if fc.Accepted(decision) {
		t.Fatal("expected Accepted false for a rejected decision")
	}
}

func TestFineClassifierEmbeddingReusedFromAudioTower(t *testing.T) {
	model := &fakeFineModel{
		textEmbeddings: map[string][]float32{"dog barking": {1, 0}},
		audioEmbedding: []float32{0.5, 0.5},
	}
	fc, err := classify.NewFineClassifier(classify.FineConfig{
		PositiveLabels: []string{"dog barking"},
		Threshold:      0.1,
	}, model, nil)
	if err != nil {
		t.Fatalf("NewFineClassifier: %v", err)
	}
	decision, err := fc.Evaluate(make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(decision.Embedding) != 2 || decision.Embedding[0] != 0.5 {
		t.Fatalf("expected decision to carry the audio tower embedding verbatim, got %v", decision.Embedding)
	}
}
