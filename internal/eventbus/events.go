package eventbus

import "time"

// BarkEvent is the discrete, de-bounced detection the smoother emits. It is
// immutable after creation and totally ordered by TEvent within a stream.
type BarkEvent struct {
	EventID     string             `json:"event_id"`
	TEvent      time.Time          `json:"t_event"`
	Probability float64            `json:"probability"`
	TopLabel    string             `json:"top_label"`
	VetoScores  map[string]float64 `json:"veto_scores"`
	DoA         *DoA               `json:"doa,omitempty"`
	AudioWindowRef string          `json:"audio_window_ref"`
}

// DoA is the bearing payload attached to a BarkEvent when two or more
// channels were captured.
type DoA struct {
	BartlettDeg     float64 `json:"bartlett"`
	CaponDeg        float64 `json:"capon"`
	MEMDeg          float64 `json:"mem"`
	DirectionBucket string  `json:"direction_bucket"`
}

// Stage names a pipeline component for telemetry tagging.
type Stage string

const (
	StageCapture    Stage = "capture"
	StageEnergyGate Stage = "energy_gate"
	StageCoarse     Stage = "coarse"
	StageFine       Stage = "fine"
	StageSmoother   Stage = "smoother"
	StageDoA        Stage = "doa"
)

// PipelineStageTelemetry reports one tick's per-stage observables: VAD
// level, coarse probability, fine top-label and probability, and the
// smoother's decision phase.
type PipelineStageTelemetry struct {
	Timestamp       time.Time `json:"timestamp"`
	Stage           Stage     `json:"stage"`
	EnergyLevelDB   float64   `json:"energy_level_db"`
	EnergyPassed    bool      `json:"energy_passed"`
	CoarsePDog      float64   `json:"coarse_p_dog"`
	CoarsePassed    bool      `json:"coarse_passed"`
	FineTopLabel    string    `json:"fine_top_label,omitempty"`
	FinePBark       float64   `json:"fine_p_bark"`
	DecisionPhase   string    `json:"decision_phase"`
}

// AudioLevelTick is a lightweight level sample published at capture
// cadence, independent of the detector's tick_interval. PeakDB carries the
// same averaged dB-RMS value as RMSDB; no separate peak level is measured.
type AudioLevelTick struct {
	Timestamp time.Time `json:"timestamp"`
	RMSDB     float64   `json:"rms_db"`
	PeakDB    float64   `json:"peak_db"`
}
