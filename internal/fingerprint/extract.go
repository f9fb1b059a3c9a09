package fingerprint

import (
	"math"
	"math/cmplx"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
)

// pitchMinHz and pitchMaxHz bound the autocorrelation search to the range
// dog barks actually occupy, rejecting spurious sub/super-harmonic locks.
const (
	pitchMinHz = 80.0
	pitchMaxHz = 2000.0
)

// ExtractSummaryFeatures computes pitch (autocorrelation) and spectral
// centroid over the triggering window's frames, recording durationMS
// exactly as the caller supplies it.
func ExtractSummaryFeatures(frames []audioio.Frame, durationMS float64) SummaryFeatures {
	mono := monoSamples(frames)
	sampleRate := 0
	if len(frames) > 0 {
		sampleRate = frames[0].SampleRate
	}
	return SummaryFeatures{
		DurationMS:         durationMS,
		PitchHz:            estimatePitch(mono, sampleRate),
		SpectralCentroidHz: spectralCentroid(mono, sampleRate),
	}
}

// monoSamples downmixes interleaved multi-channel frames to mono by
// averaging channels, concatenated in capture order.
func monoSamples(frames []audioio.Frame) []float64 {
	var out []float64
	for _, f := range frames {
		if f.Channels <= 1 {
			for _, s := range f.Samples {
				out = append(out, float64(s))
			}
			continue
		}
		for i := 0; i+f.Channels <= len(f.Samples); i += f.Channels {
			var sum float64
			for c := 0; c < f.Channels; c++ {
				sum += float64(f.Samples[i+c])
			}
			out = append(out, sum/float64(f.Channels))
		}
	}
	return out
}

// estimatePitch finds the fundamental via normalized autocorrelation,
// searching lags corresponding to [pitchMinHz, pitchMaxHz]. Returns 0 when
// the signal is too short or silent to have a confident peak.
func estimatePitch(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) < 2 {
		return 0
	}
	minLag := sampleRate / int(pitchMaxHz)
	maxLag := sampleRate / int(pitchMinHz)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(samples) {
		maxLag = len(samples) - 1
	}
	if minLag >= maxLag {
		return 0
	}

	var energy float64
	for _, s := range samples {
		energy += s * s
	}
	if energy == 0 {
		return 0
	}

	bestLag := -1
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(samples); i++ {
			corr += samples[i] * samples[i+lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag <= 0 || bestCorr/energy < 0.1 {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

// spectralCentroid returns the magnitude-weighted mean frequency of the
// window, a standard brightness descriptor.
func spectralCentroid(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) == 0 {
		return 0
	}
	n := nextPowerOfTwo(len(samples))
	spectrum := make([]complex128, n)
	for i, s := range samples {
		window := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(len(samples)-1))
		spectrum[i] = complex(s*window, 0)
	}
	fft(spectrum)

	var weighted, magnitudeSum float64
	half := n / 2
	for k := 0; k < half; k++ {
		mag := cmplx.Abs(spectrum[k])
		freq := float64(k) * float64(sampleRate) / float64(n)
		weighted += freq * mag
		magnitudeSum += mag
	}
	if magnitudeSum == 0 {
		return 0
	}
	return weighted / magnitudeSum
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	if p == 0 {
		p = 1
	}
	return p
}

// fft is an in-place radix-2 Cooley-Tukey transform. len(x) must be a power
// of two; callers pad with zeros.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}
	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}
	fft(even)
	fft(odd)
	for k := 0; k < n/2; k++ {
		twiddle := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n))) * odd[k]
		x[k] = even[k] + twiddle
		x[k+n/2] = even[k] - twiddle
	}
}
