package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/maastricht-university/edmo-emotion/types"
)

// MFCCConfig mirrors the usual librosa defaults.
type MFCCConfig struct {
	SampleRate int
	NumCoeffs  int
	FFTSize    int
	HopSize    int
	NumMels    int
	TopDB      float64
}

func DefaultMFCCConfig() MFCCConfig {
	return MFCCConfig{
		SampleRate: 22050,
		NumCoeffs:  20,
		FFTSize:    2048,
		HopSize:    512,
		NumMels:    128,
		TopDB:      80,
	}
}

// MFCC computes cepstral coefficients over a mono signal. The result is
// time-major: one row of NumCoeffs values per hop.
type MFCC struct {
	cfg    MFCCConfig
	window []float64
	mel    *mat.Dense // NumMels x (FFTSize/2+1)
	dct    *mat.Dense // NumCoeffs x NumMels
	fft    *fourier.FFT
}

func NewMFCC(cfg MFCCConfig) *MFCC {
	return &MFCC{
		cfg:    cfg,
		window: hannWindow(cfg.FFTSize),
		mel:    slaneyMelBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate),
		dct:    dctBasis(cfg.NumCoeffs, cfg.NumMels),
		fft:    fourier.NewFFT(cfg.FFTSize),
	}
}

func (m *MFCC) Compute(samples []float32) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, types.ErrEmptySequence
	}
	nfft, hop := m.cfg.FFTSize, m.cfg.HopSize
	bins := nfft/2 + 1

	// centered frames, zero padded by half a window on each side
	padded := make([]float64, len(samples)+nfft)
	for i, s := range samples {
		padded[nfft/2+i] = float64(s)
	}
	frames := 1 + (len(padded)-nfft)/hop

	power := mat.NewDense(frames, bins, nil)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, bins)
	for t := 0; t < frames; t++ {
		start := t * hop
		for i := range frame {
			frame[i] = padded[start+i] * m.window[i]
		}
		coeffs = m.fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			power.Set(t, k, a*a)
		}
	}

	var melSpec mat.Dense
	melSpec.Mul(power, m.mel.T())
	powerToDB(&melSpec, m.cfg.TopDB)

	var cep mat.Dense
	cep.Mul(&melSpec, m.dct.T())

	out := make([][]float64, frames)
	for t := range out {
		out[t] = mat.Row(nil, t, &cep)
	}
	return out, nil
}

// powerToDB converts in place to decibels relative to 1.0 and clips
// everything more than topDB below the peak.
func powerToDB(s *mat.Dense, topDB float64) {
	const amin = 1e-10
	peak := math.Inf(-1)
	s.Apply(func(_, _ int, v float64) float64 {
		db := 10 * math.Log10(math.Max(amin, v))
		if db > peak {
			peak = db
		}
		return db
	}, s)
	if topDB <= 0 {
		return
	}
	floor := peak - topDB
	s.Apply(func(_, _ int, v float64) float64 { return math.Max(v, floor) }, s)
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func hzToMelSlaney(hz float64) float64 {
	const (
		fsp       = 200.0 / 3
		minLogHz  = 1000.0
		minLogMel = minLogHz / fsp
	)
	logstep := math.Log(6.4) / 27
	if hz < minLogHz {
		return hz / fsp
	}
	return minLogMel + math.Log(hz/minLogHz)/logstep
}

func melToHzSlaney(mel float64) float64 {
	const (
		fsp       = 200.0 / 3
		minLogHz  = 1000.0
		minLogMel = minLogHz / fsp
	)
	logstep := math.Log(6.4) / 27
	if mel < minLogMel {
		return mel * fsp
	}
	return minLogHz * math.Exp(logstep*(mel-minLogMel))
}

// slaneyMelBank builds area-normalized triangular filters from 0 Hz to
// Nyquist.
func slaneyMelBank(numMels, nfft, sampleRate int) *mat.Dense {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	maxMel := hzToMelSlaney(float64(sampleRate) / 2)
	melHz := make([]float64, numMels+2)
	for i := range melHz {
		melHz[i] = melToHzSlaney(maxMel * float64(i) / float64(numMels+1))
	}

	bank := mat.NewDense(numMels, bins, nil)
	for m := 0; m < numMels; m++ {
		lo, c, hi := melHz[m], melHz[m+1], melHz[m+2]
		norm := 2 / (hi - lo)
		for k, f := range fftFreqs {
			lower := (f - lo) / (c - lo)
			upper := (hi - f) / (hi - c)
			w := math.Max(0, math.Min(lower, upper))
			bank.Set(m, k, w*norm)
		}
	}
	return bank
}

// dctBasis is the orthonormal DCT-II truncated to the first n outputs.
func dctBasis(n, size int) *mat.Dense {
	b := mat.NewDense(n, size, nil)
	for k := 0; k < n; k++ {
		scale := math.Sqrt(2 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1 / float64(size))
		}
		for i := 0; i < size; i++ {
			b.Set(k, i, scale*math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(size))))
		}
	}
	return b
}
