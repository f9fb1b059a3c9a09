// Package evidence implements C7: stitching pre/post-trigger audio around a
// BarkEvent into a durable clip, writing its JSON sidecar, and maintaining
// the queryable EvidenceIndex.
package evidence

import "time"

// Record is an evidence clip's metadata, persisted as a `.wav` + `.json`
// sidecar pair sharing a common basename.
type Record struct {
	Filename          string    `json:"filename"`
	TimestampUTC      time.Time `json:"timestamp_utc"`
	TimestampLocal    time.Time `json:"timestamp_local"`
	DurationSeconds   float64   `json:"duration_seconds"`
	PeakProbability   float64   `json:"peak_probability"`
	BarkCountInClip   int       `json:"bark_count_in_clip"`
	Detection         Detection `json:"detection"`
	DoA               *DoAInfo  `json:"doa,omitempty"`
	Device            DeviceInfo `json:"device"`
	SchemaVersion     int       `json:"schema_version"`
}

// Detection is the per-event classification summary embedded in the sidecar.
type Detection struct {
	Probability float64            `json:"probability"`
	TopLabel    string             `json:"top_label"`
	VetoScores  map[string]float64 `json:"veto_scores"`
}

// DoAInfo is the optional bearing payload; absent when channels < 2.
type DoAInfo struct {
	Bartlett        float64 `json:"bartlett"`
	Capon           float64 `json:"capon"`
	MEM             float64 `json:"mem"`
	DirectionBucket string  `json:"direction_bucket"`
}

// DeviceInfo identifies the capture hardware.
type DeviceInfo struct {
	Hostname       string `json:"hostname"`
	MicrophoneName string `json:"microphone_name"`
	SampleRate     int    `json:"sample_rate"`
	Channels       int    `json:"channels"`
}

// SchemaVersion is the current sidecar schema revision.
const SchemaVersion = 1

// IndexEntry is a row of the queryable evidence index.
type IndexEntry struct {
	ID              int64
	Filename        string
	TimestampUTC    time.Time
	DurationSeconds float64
	PeakProbability float64
	BarkCountInClip int
	TopLabel        string
	DogID           string
	FingerprintID   string
}
