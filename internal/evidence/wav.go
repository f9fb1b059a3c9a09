package evidence

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
)

// AudioFormat selects the WAV sample encoding: little-endian PCM16 or
// IEEE-float32, operator-configurable.
type AudioFormat string

const (
	FormatPCM16   AudioFormat = "pcm16"
	FormatFloat32 AudioFormat = "float32"
)

// writeWAV encodes frames as a WAV file at path using format, returning the
// duration written. Frames must already be in capture-timestamp order.
// onProgress, when non-nil, is called with the percentage of frames written
// so far so a long clip's encode doesn't log silently for tens of seconds.
func writeWAV(path string, frames []audioio.Frame, format AudioFormat, onProgress func(percent float64)) (float64, error) {
	if len(frames) == 0 {
		return 0, fmt.Errorf("evidence: no frames to encode")
	}
	sampleRate := frames[0].SampleRate
	channels := frames[0].Channels

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("evidence: create wav file: %w", err)
	}
	defer file.Close()

	bitDepth := 16
	wavFormat := 1 // PCM
	if format == FormatFloat32 {
		bitDepth = 32
		wavFormat = 3 // IEEE float
	}

	encoder := wav.NewEncoder(file, sampleRate, bitDepth, channels, wavFormat)

	var totalSamples int
	for i, f := range frames {
		buf := &audio.IntBuffer{
			Format: &audio.Format{SampleRate: sampleRate, NumChannels: channels},
			Data:   make([]int, len(f.Samples)),
		}
		for j, s := range f.Samples {
			if format == FormatFloat32 {
				buf.Data[j] = int(s)
			} else {
				buf.Data[j] = int(clampInt16(s))
			}
		}
		if err := encoder.Write(buf); err != nil {
			return 0, fmt.Errorf("evidence: write wav samples: %w", err)
		}
		totalSamples += len(f.Samples) / channels
		if onProgress != nil {
			onProgress(100 * float64(i+1) / float64(len(frames)))
		}
	}

	if err := encoder.Close(); err != nil {
		return 0, fmt.Errorf("evidence: close wav encoder: %w", err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("evidence: fsync wav file: %w", err)
	}
	return float64(totalSamples) / float64(sampleRate), nil
}

func clampInt16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
