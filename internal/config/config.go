// Package config loads and validates barkd's typed configuration record.
// Unrecognized keys are rejected at startup (the TOML decoder runs with
// DisallowUnknownFields), and
// every path/duration field is normalized before the supervisor wires up
// workers.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/machug/woofalytics-v2-sub000/internal/barkerr"
)

// Audio describes capture device parameters.
type Audio struct {
	DeviceName       string `toml:"device_name"`
	SampleRate       int    `toml:"sample_rate"`
	Channels         int    `toml:"channels"`
	ChunkSamples     int    `toml:"chunk_samples"`
	InputGainPercent int    `toml:"input_gain_percent"`
}

// EnergyGate configures the RMS-threshold voice activity gate.
type EnergyGate struct {
	Enabled        bool    `toml:"enabled"`
	ThresholdDB    float64 `toml:"threshold_db"`
	WindowSeconds  float64 `toml:"window_seconds"`
}

// Coarse configures the coarse dog/not-dog classifier.
type Coarse struct {
	Enabled          bool    `toml:"enabled"`
	Threshold        float64 `toml:"threshold"`
	DogClassIDs      []int   `toml:"dog_class_ids"`
	FallbackOnError  string  `toml:"fallback_on_error"` // "pass" | "block"
	FallbackOnlyMode bool    `toml:"fallback_only_mode"` // reduced-accuracy coarse-only mode: skips the fine classifier, ticks at fast_tick_interval_ms
	ModelPath        string  `toml:"model_path"`
}

// Fine configures the fine-grained bark classifier and its veto labels.
type Fine struct {
	ModelIdentifier    string   `toml:"model_identifier"`
	TextModelPath      string   `toml:"text_model_path"`
	AudioModelPath     string   `toml:"audio_model_path"`
	PositiveLabels     []string `toml:"positive_labels"`
	SpeechVetoLabels   []string `toml:"speech_veto_labels"`
	PercussiveVetoLabels []string `toml:"percussive_veto_labels"`
	BirdVetoLabels     []string `toml:"bird_veto_labels"`
	VetoThresholds     VetoThresholds `toml:"veto_thresholds"`
	Threshold          float64  `toml:"threshold"`
	BypassThreshold    float64  `toml:"bypass_threshold"`
}

// VetoThresholds holds the per-group score thresholds above which the fine
// classifier vetoes a tentative bark decision.
type VetoThresholds struct {
	Speech     float64 `toml:"speech"`
	Percussive float64 `toml:"percussive"`
	Bird       float64 `toml:"bird"`
}

// Smoother configures the rolling-window majority-vote smoother.
type Smoother struct {
	WindowSize       int `toml:"window_size"`
	RequiredPositives int `toml:"required_positives"`
	CooldownFrames   int `toml:"cooldown_frames"`
}

// DoA configures direction-of-arrival beamforming.
type DoA struct {
	Enabled                   bool     `toml:"enabled"`
	ElementSpacingWavelengths float64  `toml:"element_spacing_wavelengths"`
	NumElements               int      `toml:"num_elements"`
	AngleMin                  float64  `toml:"angle_min"`
	AngleMax                  float64  `toml:"angle_max"`
	Methods                   []string `toml:"methods"`
}

// Evidence configures where clips land and how much context surrounds them.
type Evidence struct {
	Directory            string `toml:"directory"`
	PastContextSeconds   float64 `toml:"past_context_seconds"`
	FutureContextSeconds float64 `toml:"future_context_seconds"`
	IncludeMetadata      bool   `toml:"include_metadata"`
	SampleFormat         string `toml:"sample_format"` // "pcm16" | "float32"
	CompressedCopy       bool   `toml:"compressed_copy"`
}

// Fingerprint configures per-dog voiceprint matching.
type Fingerprint struct {
	MatchThreshold         float64 `toml:"match_threshold"`
	CentroidRefreshPolicy  string  `toml:"centroid_refresh_policy"` // "on_change" | "periodic"
}

// Runtime configures the supervisor's tick cadence and subscriber fan-out.
type Runtime struct {
	TickIntervalMS       int `toml:"tick_interval_ms"`
	FastTickIntervalMS   int `toml:"fast_tick_interval_ms"`
	SubscriberTimeoutMS  int `toml:"subscriber_timeout_ms"`
	SubscriberQueueDepth int `toml:"subscriber_queue_depth"`
}

// Config is the typed configuration record the supervisor builds from.
type Config struct {
	LogDir     string `toml:"log_dir"`
	LogFormat  string `toml:"log_format"`
	LogLevel   string `toml:"log_level"`
	APIBind    string `toml:"api_bind"`
	SocketPath string `toml:"socket_path"`
	ONNXLibraryPath string `toml:"onnx_library_path"`

	Audio       Audio       `toml:"audio"`
	EnergyGate  EnergyGate  `toml:"energy_gate"`
	Coarse      Coarse      `toml:"coarse"`
	Fine        Fine        `toml:"fine"`
	Smoother    Smoother    `toml:"smoother"`
	DoA         DoA         `toml:"doa"`
	Evidence    Evidence    `toml:"evidence"`
	Fingerprint Fingerprint `toml:"fingerprint"`
	Runtime     Runtime     `toml:"runtime"`
}

// Default returns a Config populated with barkd's out-of-the-box defaults.
func Default() Config {
	return Config{
		LogDir:    "~/.local/share/woofalytics/logs",
		LogFormat: "console",
		LogLevel:  "info",
		APIBind:   "127.0.0.1:8787",
		SocketPath: "~/.local/share/woofalytics/barkd.sock",
		Audio: Audio{
			SampleRate:       44100,
			Channels:         2,
			ChunkSamples:     441,
			InputGainPercent: 100,
		},
		EnergyGate: EnergyGate{
			Enabled:       true,
			ThresholdDB:   -40,
			WindowSeconds: 1,
		},
		Coarse: Coarse{
			Enabled:         true,
			Threshold:       0.05,
			FallbackOnError: "pass",
		},
		Fine: Fine{
			ModelIdentifier: "clap-zero-shot",
			PositiveLabels:  []string{"dog barking", "dog howling"},
			SpeechVetoLabels: []string{"person talking", "shouting"},
			PercussiveVetoLabels: []string{"hand clap", "door knock"},
			BirdVetoLabels:  []string{"bird chirping"},
			VetoThresholds: VetoThresholds{
				Speech:     0.5,
				Percussive: 0.5,
				Bird:       0.5,
			},
			Threshold:       0.5,
			BypassThreshold: 0.8,
		},
		Smoother: Smoother{
			WindowSize:        3,
			RequiredPositives: 2,
			CooldownFrames:    10,
		},
		DoA: DoA{
			Enabled:                   true,
			ElementSpacingWavelengths: 0.5,
			NumElements:               2,
			AngleMin:                  0,
			AngleMax:                  180,
			Methods:                   []string{"bartlett", "capon", "mem"},
		},
		Evidence: Evidence{
			Directory:            "~/.local/share/woofalytics/evidence",
			PastContextSeconds:   15,
			FutureContextSeconds: 15,
			IncludeMetadata:      true,
			SampleFormat:         "pcm16",
		},
		Fingerprint: Fingerprint{
			MatchThreshold:        0.25,
			CentroidRefreshPolicy: "on_change",
		},
		Runtime: Runtime{
			TickIntervalMS:       500,
			FastTickIntervalMS:   80,
			SubscriberTimeoutMS:  100,
			SubscriberQueueDepth: 32,
		},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/woofalytics/config.toml")
}

// Load locates, strictly parses, normalizes, and validates a configuration
// file. When path is empty the default config path is used; a missing file
// at that location simply yields defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, barkerr.Wrap(barkerr.ErrConfigInvalid, "config", "resolve", err)
	}

	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, barkerr.Wrap(barkerr.ErrConfigInvalid, "config", "read", err)
		}
		dec := toml.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, "", false, barkerr.Wrap(barkerr.ErrConfigInvalid, "config", "parse", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, barkerr.Wrap(barkerr.ErrConfigInvalid, "config", "normalize", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, barkerr.Wrap(barkerr.ErrConfigInvalid, "config", "validate", err)
	}

	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.LogDir, err = expandPath(c.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.Evidence.Directory, err = expandPath(c.Evidence.Directory); err != nil {
		return fmt.Errorf("evidence.directory: %w", err)
	}
	if c.SocketPath, err = expandPath(c.SocketPath); err != nil {
		return fmt.Errorf("socket_path: %w", err)
	}
	if c.ONNXLibraryPath, err = expandPath(c.ONNXLibraryPath); err != nil {
		return fmt.Errorf("onnx_library_path: %w", err)
	}
	if c.Runtime.TickIntervalMS <= 0 {
		c.Runtime.TickIntervalMS = 500
	}
	if c.Runtime.FastTickIntervalMS <= 0 {
		c.Runtime.FastTickIntervalMS = 80
	}
	if c.Runtime.SubscriberTimeoutMS <= 0 {
		c.Runtime.SubscriberTimeoutMS = 100
	}
	if c.Runtime.SubscriberQueueDepth <= 0 {
		c.Runtime.SubscriberQueueDepth = 32
	}
	c.Coarse.FallbackOnError = strings.ToLower(strings.TrimSpace(c.Coarse.FallbackOnError))
	if c.Coarse.FallbackOnError == "" {
		c.Coarse.FallbackOnError = "pass"
	}
	c.Fingerprint.CentroidRefreshPolicy = strings.ToLower(strings.TrimSpace(c.Fingerprint.CentroidRefreshPolicy))
	if c.Fingerprint.CentroidRefreshPolicy == "" {
		c.Fingerprint.CentroidRefreshPolicy = "on_change"
	}
	c.Evidence.SampleFormat = strings.ToLower(strings.TrimSpace(c.Evidence.SampleFormat))
	if c.Evidence.SampleFormat == "" {
		c.Evidence.SampleFormat = "pcm16"
	}
	return nil
}

// Validate enforces the invariants that make a Config fatal to start with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if c.Audio.ChunkSamples <= 0 {
		return errors.New("audio.chunk_samples must be positive")
	}
	if c.Audio.InputGainPercent < 0 || c.Audio.InputGainPercent > 100 {
		return errors.New("audio.input_gain_percent must be within [0,100]")
	}
	if c.Coarse.FallbackOnError != "pass" && c.Coarse.FallbackOnError != "block" {
		return fmt.Errorf("coarse.fallback_on_error must be pass or block, got %q", c.Coarse.FallbackOnError)
	}
	if c.Fine.Threshold < 0 || c.Fine.Threshold > 1 {
		return errors.New("fine.threshold must be within [0,1]")
	}
	if c.Fine.BypassThreshold < 0 || c.Fine.BypassThreshold > 1 {
		return errors.New("fine.bypass_threshold must be within [0,1]")
	}
	if c.Smoother.WindowSize <= 0 {
		return errors.New("smoother.window_size must be positive")
	}
	if c.Smoother.RequiredPositives <= 0 || c.Smoother.RequiredPositives > c.Smoother.WindowSize {
		return errors.New("smoother.required_positives must be within (0, window_size]")
	}
	if c.Smoother.CooldownFrames < 0 {
		return errors.New("smoother.cooldown_frames must be non-negative")
	}
	if c.DoA.Enabled {
		if c.DoA.NumElements < 2 {
			return errors.New("doa.num_elements must be >= 2 when enabled")
		}
		if c.DoA.AngleMin >= c.DoA.AngleMax {
			return errors.New("doa.angle_min must be less than angle_max")
		}
		for _, m := range c.DoA.Methods {
			switch m {
			case "bartlett", "capon", "mem":
			default:
				return fmt.Errorf("doa.methods: unsupported method %q", m)
			}
		}
	}
	if c.Evidence.PastContextSeconds < 0 || c.Evidence.FutureContextSeconds < 0 {
		return errors.New("evidence context seconds must be non-negative")
	}
	switch c.Evidence.SampleFormat {
	case "pcm16", "float32":
	default:
		return fmt.Errorf("evidence.sample_format must be pcm16 or float32, got %q", c.Evidence.SampleFormat)
	}
	if c.Fingerprint.MatchThreshold <= 0 {
		return errors.New("fingerprint.match_threshold must be positive")
	}
	switch c.Fingerprint.CentroidRefreshPolicy {
	case "on_change", "periodic":
	default:
		return fmt.Errorf("fingerprint.centroid_refresh_policy must be on_change or periodic, got %q", c.Fingerprint.CentroidRefreshPolicy)
	}
	return nil
}

// EnsureDirectories creates every directory the config references.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.LogDir, c.Evidence.Directory} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			return home, nil
		}
		return filepath.Join(home, pathValue[2:]), nil
	}
	return pathValue, nil
}
