package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
	"github.com/machug/woofalytics-v2-sub000/internal/barkerr"
	"github.com/machug/woofalytics-v2-sub000/internal/fileutil"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
)

// Config describes where evidence clips land and how much context to
// capture around each bark event.
type Config struct {
	Directory             string
	PastContextSeconds     float64
	FutureContextSeconds   float64
	IncludeMetadata        bool
	Format                 AudioFormat
	GenerateOpusCopy       bool
	OpusBitrate            int
}

// DefaultConfig returns the recorder's standard 15s/15s context window.
func DefaultConfig() Config {
	return Config{PastContextSeconds: 15, FutureContextSeconds: 15, IncludeMetadata: true, Format: FormatPCM16}
}

// EventInput is what the supervisor hands C7 on BarkEvent emission.
type EventInput struct {
	TEvent      time.Time
	Probability float64
	TopLabel    string
	VetoScores  map[string]float64
	DoA         *DoAInfo
}

// Recorder implements C7. It owns all writes to the evidence index;
// nothing else appends or mutates clip rows.
type Recorder struct {
	cfg    Config
	ring   *audioio.RingBuffer
	index  *Index
	logger *slog.Logger
	device DeviceInfo
	newID  func() string
	now    func() time.Time

	mu       sync.Mutex
	active   *activeClip
	progress *logging.ProgressSampler
}

type activeClip struct {
	basename        string
	tEventFirst     time.Time
	deadline        time.Time
	barkCount       int
	peakProbability float64
	detection       Detection
	doa             *DoAInfo
}

// New constructs a Recorder writing clips under cfg.Directory.
func New(cfg Config, ring *audioio.RingBuffer, index *Index, device DeviceInfo, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		cfg:      cfg,
		ring:     ring,
		index:    index,
		device:   device,
		logger:   logging.NewComponentLogger(logger, "evidence_recorder"),
		newID:    func() string { return uuid.NewString()[:8] },
		now:      time.Now,
		progress: logging.NewProgressSampler(20),
	}
}

// RecordEvent merges ev into the currently open clip if one is in progress,
// or starts a new one. It reports whether the event merged into an existing
// clip.
//
// An event that would fall inside an earlier, already-closed clip's
// past-context window never back-extends that clip. Only a still-open clip
// can merge.
func (r *Recorder) RecordEvent(ev EventInput) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && !ev.TEvent.After(r.active.deadline) {
		r.active.barkCount++
		if ev.Probability > r.active.peakProbability {
			r.active.peakProbability = ev.Probability
		}
		newDeadline := ev.TEvent.Add(time.Duration(r.cfg.FutureContextSeconds * float64(time.Second)))
		if newDeadline.After(r.active.deadline) {
			r.active.deadline = newDeadline
		}
		return true
	}

	r.active = &activeClip{
		basename:        clipBasename(ev.TEvent, r.newID()),
		tEventFirst:     ev.TEvent,
		deadline:        ev.TEvent.Add(time.Duration(r.cfg.FutureContextSeconds * float64(time.Second))),
		barkCount:       1,
		peakProbability: ev.Probability,
		detection:       Detection{Probability: ev.Probability, TopLabel: ev.TopLabel, VetoScores: ev.VetoScores},
		doa:             ev.DoA,
	}
	return false
}

// DueForFinalization reports whether the open clip's future-context window
// has elapsed as of now.
func (r *Recorder) DueForFinalization(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil && !now.Before(r.active.deadline)
}

// Finalize writes the open clip's audio, sidecar and index entry, in that
// order, then clears the active clip. A finalize with no open clip is a
// no-op.
func (r *Recorder) Finalize(ctx context.Context) (*Record, error) {
	r.mu.Lock()
	clip := r.active
	r.active = nil
	r.mu.Unlock()
	if clip == nil {
		return nil, nil
	}

	totalSeconds := r.cfg.PastContextSeconds + clip.deadline.Sub(clip.tEventFirst).Seconds()
	frames := r.ring.Snapshot(totalSeconds)
	if len(frames) == 0 {
		return nil, barkerr.Wrap(barkerr.ErrEvidenceIO, "evidence_recorder", "finalize", fmt.Errorf("ring buffer empty at finalize"))
	}

	if err := os.MkdirAll(r.cfg.Directory, 0o755); err != nil {
		return nil, barkerr.Wrap(barkerr.ErrEvidenceIO, "evidence_recorder", "mkdir", err)
	}

	wavPath := filepath.Join(r.cfg.Directory, clip.basename+".wav")
	tempPath := wavPath + ".tmp"
	r.progress.Reset()
	duration, err := writeWAV(tempPath, frames, r.cfg.Format, func(percent float64) {
		if r.progress.ShouldLog(percent, clip.basename, "") {
			r.logger.Debug("encoding evidence clip",
				logging.String("clip", clip.basename),
				logging.Float64("percent", percent),
				logging.String(logging.FieldEventType, "evidence_encode_progress"),
			)
		}
	})
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, barkerr.Wrap(barkerr.ErrEvidenceIO, "evidence_recorder", "write_wav", err)
	}
	if err := fileutil.FinalizeTemp(tempPath, wavPath); err != nil {
		return nil, barkerr.Wrap(barkerr.ErrEvidenceIO, "evidence_recorder", "rename_wav", err)
	}

	if r.cfg.GenerateOpusCopy {
		opusPath := filepath.Join(r.cfg.Directory, clip.basename+".opus")
		if err := writeOpusCopy(opusPath, frames, r.cfg.OpusBitrate); err != nil {
			r.logger.Warn("opus copy failed; wav evidence remains intact",
				logging.Error(err),
				logging.String(logging.FieldEventType, "evidence_opus_failure"),
			)
		}
	}

	record := &Record{
		Filename:        clip.basename + ".wav",
		TimestampUTC:    clip.tEventFirst.UTC(),
		TimestampLocal:  clip.tEventFirst.Local(),
		DurationSeconds: duration,
		PeakProbability: clip.peakProbability,
		BarkCountInClip: clip.barkCount,
		Detection:       clip.detection,
		DoA:             clip.doa,
		Device:          r.device,
		SchemaVersion:   SchemaVersion,
	}
	record.Detection.Probability = clip.peakProbability

	if r.cfg.IncludeMetadata {
		jsonPath := filepath.Join(r.cfg.Directory, clip.basename+".json")
		if err := writeSidecar(jsonPath, record); err != nil {
			return nil, barkerr.Wrap(barkerr.ErrEvidenceIO, "evidence_recorder", "write_sidecar", err)
		}
	}

	id, err := r.index.Append(ctx, IndexEntry{
		Filename:        record.Filename,
		TimestampUTC:    record.TimestampUTC,
		DurationSeconds: record.DurationSeconds,
		PeakProbability: record.PeakProbability,
		BarkCountInClip: record.BarkCountInClip,
		TopLabel:        record.Detection.TopLabel,
	})
	if err != nil {
		return nil, barkerr.Wrap(barkerr.ErrEvidenceIO, "evidence_recorder", "index_append", err)
	}
	_ = id

	return record, nil
}

func writeSidecar(path string, record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return file.Sync()
}

func clipBasename(t time.Time, shortID string) string {
	return fmt.Sprintf("%s_%s", t.Local().Format("2006-01-02T15-04-05"), shortID)
}
