// Package doa implements C6: direction-of-arrival bearing estimation over a
// multi-channel audio snapshot using three beamforming variants sharing a
// common steering-vector helper. No third-party beamforming or
// array-processing library appears anywhere in the reference corpus (the
// pack's only angle-adjacent libraries, golang/geo and tzneal/coordconv, are
// geodesy helpers for latitude/longitude bearings — not microphone-array
// signal processing), so this component is stdlib-only by necessity
// (math, math/cmplx).
package doa

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/machug/woofalytics-v2-sub000/internal/audioio"
)

// Config holds the microphone array geometry and the bearing sweep range
// used by all three beamforming variants.
type Config struct {
	Enabled                   bool
	ElementSpacingWavelengths float64
	NumElements               int
	AngleMin                  float64
	AngleMax                  float64
	AngleStepDegrees          float64
}

// DefaultConfig returns a two-element array swept across a 0-180 front arc.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		ElementSpacingWavelengths: 0.5,
		NumElements:               2,
		AngleMin:                  0,
		AngleMax:                  180,
		AngleStepDegrees:          1,
	}
}

// DirectionBucket is a coarse 5-way quantization of bearing degrees.
type DirectionBucket string

const (
	BucketLeft       DirectionBucket = "left"
	BucketFrontLeft  DirectionBucket = "front-left"
	BucketFront      DirectionBucket = "front"
	BucketFrontRight DirectionBucket = "front-right"
	BucketRight      DirectionBucket = "right"
)

// Result is the bearing estimate attached to a BarkEvent.
type Result struct {
	BartlettDeg     float64
	CaponDeg        float64
	MEMDeg          float64
	DirectionBucket DirectionBucket
}

// ErrInsufficientChannels signals that fewer than 2 channels were captured,
// so a BarkEvent must be emitted with no DoA payload.
var ErrInsufficientChannels = errors.New("doa: fewer than 2 channels, estimation skipped")

// Estimate computes bearing from a multi-channel snapshot. Frames are
// de-interleaved into per-channel sample slices before building the
// cross-spectral matrix.
func Estimate(cfg Config, frames []audioio.Frame) (Result, error) {
	channels, sampleRate, err := deinterleave(frames)
	if err != nil {
		return Result{}, err
	}
	if len(channels) < 2 {
		return Result{}, ErrInsufficientChannels
	}

	csm := crossSpectralMatrix(channels)
	steering := steeringVectorFunc(cfg.ElementSpacingWavelengths, len(channels), float64(sampleRate))

	bartlett := sweepBearing(cfg, csm, steering, bartlettPower)
	capon := sweepBearing(cfg, csm, steering, caponPower)
	mem := sweepBearing(cfg, csm, steering, maxEntropyPower)

	return Result{
		BartlettDeg:     bartlett,
		CaponDeg:        capon,
		MEMDeg:          mem,
		DirectionBucket: bucketFor(bartlett, cfg.AngleMin, cfg.AngleMax),
	}, nil
}

func deinterleave(frames []audioio.Frame) ([][]float64, int, error) {
	if len(frames) == 0 {
		return nil, 0, ErrInsufficientChannels
	}
	channels := frames[0].Channels
	sampleRate := frames[0].SampleRate
	if channels < 1 {
		return nil, sampleRate, ErrInsufficientChannels
	}
	out := make([][]float64, channels)
	for _, f := range frames {
		perChannel := len(f.Samples) / f.Channels
		for c := 0; c < f.Channels && c < channels; c++ {
			for i := 0; i < perChannel; i++ {
				out[c] = append(out[c], float64(f.Samples[i*f.Channels+c]))
			}
		}
	}
	return out, sampleRate, nil
}

// crossSpectralMatrix computes R = E[x x^H] per-bin using a single-frame FFT
// per channel and averaging the outer product across frequency bins into one
// overall narrowband-equivalent covariance, sufficient for a steered-response
// bearing estimate at the array's dominant band.
func crossSpectralMatrix(channels [][]float64) [][]complex128 {
	n := len(channels)
	spectra := make([][]complex128, n)
	for i, ch := range channels {
		spectra[i] = fft(toComplex(ch))
	}
	bins := len(spectra[0])
	r := make([][]complex128, n)
	for i := range r {
		r[i] = make([]complex128, n)
	}
	for b := 0; b < bins; b++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				r[i][j] += spectra[i][b] * cmplx.Conj(spectra[j][b])
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r[i][j] /= complex(float64(bins), 0)
		}
	}
	return r
}

// steeringVectorFunc returns a(theta) for a uniform linear array.
func steeringVectorFunc(spacingWavelengths float64, numElements int, sampleRate float64) func(thetaDeg float64) []complex128 {
	return func(thetaDeg float64) []complex128 {
		theta := thetaDeg * math.Pi / 180
		v := make([]complex128, numElements)
		for m := 0; m < numElements; m++ {
			phase := -2 * math.Pi * spacingWavelengths * float64(m) * math.Cos(theta)
			v[m] = cmplx.Exp(complex(0, phase))
		}
		return v
	}
}

func sweepBearing(cfg Config, r [][]complex128, steering func(float64) []complex128, power func([][]complex128, []complex128) float64) float64 {
	step := cfg.AngleStepDegrees
	if step <= 0 {
		step = 1
	}
	bestDeg := cfg.AngleMin
	bestPower := math.Inf(-1)
	for deg := cfg.AngleMin; deg <= cfg.AngleMax; deg += step {
		a := steering(deg)
		p := power(r, a)
		if p > bestPower {
			bestPower = p
			bestDeg = deg
		}
	}
	return bestDeg
}

// bartlettPower is the conventional beamformer power a^H R a.
func bartlettPower(r [][]complex128, a []complex128) float64 {
	return real(quadForm(r, a))
}

// caponPower is the MVDR power 1 / (a^H R^-1 a), approximated here with a
// diagonally-loaded inverse since a full pseudo-inverse is unnecessary for
// the small (2-8 element) arrays this system targets.
func caponPower(r [][]complex128, a []complex128) float64 {
	inv := invertLoaded(r, 1e-6)
	denom := real(quadForm(inv, a))
	if denom <= 0 {
		return 0
	}
	return 1 / denom
}

// maxEntropyPower implements the maximum-entropy (autoregressive) spectral
// estimator, which resolves closely-spaced or multiple sources better than
// Bartlett at the cost of more sensitivity to noise.
func maxEntropyPower(r [][]complex128, a []complex128) float64 {
	inv := invertLoaded(r, 1e-6)
	n := len(a)
	u := make([]complex128, n)
	u[0] = 1
	num := real(quadForm(inv, u))
	denom := real(quadForm(inv, a))
	if denom <= 0 {
		return 0
	}
	return num / (denom * denom)
}

func quadForm(r [][]complex128, a []complex128) complex128 {
	n := len(a)
	var sum complex128
	for i := 0; i < n; i++ {
		var rowSum complex128
		for j := 0; j < n; j++ {
			rowSum += r[i][j] * a[j]
		}
		sum += cmplx.Conj(a[i]) * rowSum
	}
	return sum
}

// invertLoaded inverts a small complex matrix via Gauss-Jordan elimination
// after adding loading*I to its diagonal for numerical stability.
func invertLoaded(r [][]complex128, loading float64) [][]complex128 {
	n := len(r)
	aug := make([][]complex128, n)
	for i := range aug {
		aug[i] = make([]complex128, 2*n)
		copy(aug[i], r[i])
		aug[i][i] += complex(loading, 0)
		aug[i][n+i] = 1
	}
	for col := 0; col < n; col++ {
		pivot := aug[col][col]
		if cmplx.Abs(pivot) < 1e-12 {
			pivot = complex(1e-12, 0)
		}
		for k := 0; k < 2*n; k++ {
			aug[col][k] /= pivot
		}
		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			for k := 0; k < 2*n; k++ {
				aug[row][k] -= factor * aug[col][k]
			}
		}
	}
	inv := make([][]complex128, n)
	for i := range inv {
		inv[i] = append([]complex128(nil), aug[i][n:]...)
	}
	return inv
}

func bucketFor(bearingDeg, min, max float64) DirectionBucket {
	span := max - min
	if span <= 0 {
		return BucketFront
	}
	frac := (bearingDeg - min) / span
	switch {
	case frac < 0.2:
		return BucketLeft
	case frac < 0.4:
		return BucketFrontLeft
	case frac < 0.6:
		return BucketFront
	case frac < 0.8:
		return BucketFrontRight
	default:
		return BucketRight
	}
}

func toComplex(samples []float64) []complex128 {
	out := make([]complex128, len(samples))
	for i, s := range samples {
		out[i] = complex(s, 0)
	}
	return out
}

// fft is a recursive radix-2 Cooley-Tukey FFT. Input is zero-padded to the
// next power of two.
func fft(x []complex128) []complex128 {
	n := nextPowerOfTwo(len(x))
	padded := make([]complex128, n)
	copy(padded, x)
	return fftRec(padded)
}

func fftRec(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}
	even := make([]complex128, n/2)
	odd := make([]complex128, n/2)
	for i := 0; i < n/2; i++ {
		even[i] = x[2*i]
		odd[i] = x[2*i+1]
	}
	even = fftRec(even)
	odd = fftRec(odd)

	out := make([]complex128, n)
	for k := 0; k < n/2; k++ {
		t := cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(n))) * odd[k]
		out[k] = even[k] + t
		out[k+n/2] = even[k] - t
	}
	return out
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
