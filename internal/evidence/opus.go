package evidence

import (
	"encoding/binary"
	"fmt"
	"os"

	"gopkg.in/hraban/opus.v2"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
)

// writeOpusCopy generates a compressed Opus copy of frames at path, on
// demand rather than on the hot path.
func writeOpusCopy(path string, frames []audioio.Frame, bitrate int) error {
	if len(frames) == 0 {
		return fmt.Errorf("evidence: no frames to encode")
	}
	sampleRate := frames[0].SampleRate
	channels := frames[0].Channels

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("evidence: create opus encoder: %w", err)
	}
	if bitrate > 0 {
		_ = enc.SetBitrate(bitrate)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("evidence: create opus file: %w", err)
	}
	defer file.Close()

	frameSize := 960 // 20ms @ 48kHz-equivalent ratio; opus tolerates other rates
	opusBuf := make([]byte, 4000)
	var pcm []int16
	for _, f := range frames {
		for _, s := range f.Samples {
			pcm = append(pcm, clampInt16(s))
		}
	}

	for len(pcm) >= frameSize*channels {
		chunk := pcm[:frameSize*channels]
		n, err := enc.Encode(chunk, opusBuf)
		if err != nil {
			return fmt.Errorf("evidence: opus encode: %w", err)
		}
		if err := binary.Write(file, binary.LittleEndian, uint32(n)); err != nil {
			return fmt.Errorf("evidence: write opus frame length: %w", err)
		}
		if _, err := file.Write(opusBuf[:n]); err != nil {
			return fmt.Errorf("evidence: write opus frame: %w", err)
		}
		pcm = pcm[frameSize*channels:]
	}
	return file.Sync()
}
