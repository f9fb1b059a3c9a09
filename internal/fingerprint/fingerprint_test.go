package fingerprint

import (
	"context"
	"math"
	"testing"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
)

func toneFrame(freq float64, sampleRate int, n int) audioio.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}
	return audioio.Frame{Samples: samples, Channels: 1, SampleRate: sampleRate}
}

func TestExtractSummaryFeaturesRecoversApproximatePitch(t *testing.T) {
	frames := []audioio.Frame{toneFrame(440, 16000, 4096)}
	features := ExtractSummaryFeatures(frames, 120)
	if features.DurationMS != 120 {
		t.Fatalf("duration_ms = %v, want 120", features.DurationMS)
	}
	if math.Abs(features.PitchHz-440) > 20 {
		t.Fatalf("pitch_hz = %v, want ~440", features.PitchHz)
	}
}

func TestExtractSummaryFeaturesSilenceYieldsZeroPitch(t *testing.T) {
	frames := []audioio.Frame{{Samples: make([]float32, 2048), Channels: 1, SampleRate: 16000}}
	features := ExtractSummaryFeatures(frames, 50)
	if features.PitchHz != 0 {
		t.Fatalf("pitch_hz = %v, want 0 for silence", features.PitchHz)
	}
}

type fakeSource struct {
	version  string
	dogIDs   []string
	members  map[string][][]float32
	calls    int
}

func (f *fakeSource) Version(ctx context.Context) (string, error) { f.calls++; return f.version, nil }
func (f *fakeSource) DogIDs(ctx context.Context) ([]string, error) { return f.dogIDs, nil }
func (f *fakeSource) Members(ctx context.Context, dogID string) ([][]float32, error) {
	return f.members[dogID], nil
}

func TestRefreshCentroidsBuildsMeanNormalizedCentroid(t *testing.T) {
	src := &fakeSource{
		version: "v1",
		dogIDs:  []string{"rex"},
		members: map[string][][]float32{
			"rex": {{1, 0, 0}, {0, 1, 0}},
		},
	}
	m := NewMatcher(DefaultConfig(), src)
	if err := m.RefreshCentroids(context.Background(), ""); err != nil {
		t.Fatalf("RefreshCentroids: %v", err)
	}
	dogID, confidence, ok := m.Match([]float32{0.7, 0.7, 0})
	if !ok || dogID != "rex" {
		t.Fatalf("Match() = (%q, %v, %v), want rex match", dogID, confidence, ok)
	}
}

func TestRefreshCentroidsIsIdempotentWhenVersionUnchanged(t *testing.T) {
	src := &fakeSource{
		version: "v1",
		dogIDs:  []string{"rex"},
		members: map[string][][]float32{"rex": {{1, 0}}},
	}
	m := NewMatcher(DefaultConfig(), src)
	ctx := context.Background()
	if err := m.RefreshCentroids(ctx, ""); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	src.members["rex"] = [][]float32{{0, 1}} // catalog mutated but version not bumped
	if err := m.RefreshCentroids(ctx, ""); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	// Since version didn't change, the second refresh must be a no-op: the
	// centroid should still reflect the original {1,0} member.
	dogID, _, ok := m.Match([]float32{1, 0})
	if !ok || dogID != "rex" {
		t.Fatalf("centroid changed despite unchanged catalog version")
	}
}

func TestMatchReturnsNotOkBeyondThreshold(t *testing.T) {
	src := &fakeSource{version: "v1", dogIDs: []string{"rex"}, members: map[string][][]float32{"rex": {{1, 0}}}}
	m := NewMatcher(Config{MatchThreshold: 0.01}, src)
	_ = m.RefreshCentroids(context.Background(), "")
	_, _, ok := m.Match([]float32{0, 1})
	if ok {
		t.Fatalf("Match() ok = true, want false for orthogonal embedding beyond threshold")
	}
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	a := []float32{1, 2, 3}
	if got := cosineSimilarity(a, a); math.Abs(got-1) > 1e-6 {
		t.Fatalf("cosineSimilarity(a, a) = %v, want 1", got)
	}
}
