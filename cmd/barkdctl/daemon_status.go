package main

// statusPayload mirrors daemon.Status's JSON shape without importing
// package daemon, keeping the CLI decoupled from the daemon's internal
// Go types the same way it only ever talks to it over the control socket.
type statusPayload struct {
	Running      bool                 `json:"Running"`
	LockFilePath string               `json:"LockFilePath"`
	Dependencies []dependencyPayload  `json:"Dependencies"`
	PID          int                  `json:"PID"`
	Pipeline     pipelineStatusPayload `json:"Pipeline"`
}

type dependencyPayload struct {
	Name      string `json:"Name"`
	Command   string `json:"Command"`
	Available bool   `json:"Available"`
	Detail    string `json:"Detail"`
}

type pipelineStatusPayload struct {
	Running       bool    `json:"running"`
	UptimeSeconds float64 `json:"uptime_s"`
	Counters      struct {
		FramesIn      uint64 `json:"frames_in"`
		VadSkipped    uint64 `json:"vad_skipped"`
		CoarseSkipped uint64 `json:"coarse_skipped"`
		FineRuns      uint64 `json:"fine_runs"`
		EventsEmitted uint64 `json:"events_emitted"`
	} `json:"counters"`
	LastEventRef string `json:"last_event_ref"`
	DeviceName   string `json:"device_name"`
}

type logEventPayload struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component"`
	Fields    map[string]string `json:"fields"`
}

type evidenceEntryPayload struct {
	ID              int64   `json:"ID"`
	Filename        string  `json:"Filename"`
	TimestampUTC    string  `json:"TimestampUTC"`
	DurationSeconds float64 `json:"DurationSeconds"`
	PeakProbability float64 `json:"PeakProbability"`
	BarkCountInClip int     `json:"BarkCountInClip"`
	TopLabel        string  `json:"TopLabel"`
	DogID           string  `json:"DogID"`
	FingerprintID   string  `json:"FingerprintID"`
}
