package pipeline

import "sync/atomic"

// Counters tracks the supervisor's per-run tick accounting, reported in
// status snapshots.
type Counters struct {
	FramesIn       atomic.Uint64
	VadSkipped     atomic.Uint64
	CoarseSkipped  atomic.Uint64
	FineRuns       atomic.Uint64
	EventsEmitted  atomic.Uint64
}

// Snapshot is the read-only counters view a Status embeds.
type Snapshot struct {
	FramesIn      uint64 `json:"frames_in"`
	VadSkipped    uint64 `json:"vad_skipped"`
	CoarseSkipped uint64 `json:"coarse_skipped"`
	FineRuns      uint64 `json:"fine_runs"`
	EventsEmitted uint64 `json:"events_emitted"`
}

func (c *Counters) snapshot() Snapshot {
	return Snapshot{
		FramesIn:      c.FramesIn.Load(),
		VadSkipped:    c.VadSkipped.Load(),
		CoarseSkipped: c.CoarseSkipped.Load(),
		FineRuns:      c.FineRuns.Load(),
		EventsEmitted: c.EventsEmitted.Load(),
	}
}

// Status is the supervisor's point-in-time snapshot.
type Status struct {
	Running      bool     `json:"running"`
	UptimeSeconds float64 `json:"uptime_s"`
	Counters     Snapshot `json:"counters"`
	LastEventRef string   `json:"last_event_ref,omitempty"`
	DeviceName   string   `json:"device_name"`
}
