// Package fingerprint implements C8: a compact per-event descriptor plus
// embedding, matched against known-dog centroid profiles by cosine
// similarity. Identity curation (accepting, tagging, rejecting matches)
// lives outside the core; this package only emits candidates.
package fingerprint

import "context"

// SummaryFeatures are the cheap, human-interpretable descriptors attached
// alongside the embedding: duration of the triggering run, fundamental
// pitch, and spectral centroid.
type SummaryFeatures struct {
	DurationMS          float64 `json:"duration_ms"`
	PitchHz             float64 `json:"pitch_hz"`
	SpectralCentroidHz  float64 `json:"spectral_centroid_hz"`
}

// Fingerprint is the per-event candidate record C8 builds after a
// BarkEvent; the supervisor logs its fp_id and pitch and does not hand the
// record to a catalog or bus. dog_id and rejection_reason are populated
// here only as a suggestion (the core never sets rejection_reason); they
// are read-only from the core's perspective — curation mutates its own
// copy.
type Fingerprint struct {
	FPID            string          `json:"fp_id"`
	EventID         string          `json:"event_id"`
	Embedding       []float32       `json:"embedding"`
	SummaryFeatures SummaryFeatures `json:"summary_features"`
	DogID           string          `json:"dog_id,omitempty"`
	MatchConfidence *float64        `json:"match_confidence,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

// ProfileSource is the external dog-profile catalog C8 queries to rebuild
// centroids. Version must change whenever any dog's tagged member set
// changes, so RefreshCentroids can detect a no-op refresh (invariant: two
// refreshes in succession with no catalog change are equivalent to one).
type ProfileSource interface {
	Version(ctx context.Context) (string, error)
	DogIDs(ctx context.Context) ([]string, error)
	Members(ctx context.Context, dogID string) ([][]float32, error)
}
