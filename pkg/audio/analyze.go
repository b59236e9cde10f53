package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// silenceFloor is the dB value reported for silent or empty audio
const silenceFloor = -96.0

// clippingThreshold marks samples close enough to full scale to count as clipped
const clippingThreshold = 32700

// Analysis summarizes level and spectrum measurements for a clip
type Analysis struct {
	RMSdB      float32   `json:"rms_db"`
	PeakdB     float32   `json:"peak_db"`
	Clipping   bool      `json:"clipping"`
	DominantHz float32   `json:"dominant_hz"`
	FreqStep   float32   `json:"freq_step"`
	Spectrum   []float32 `json:"spectrum,omitempty"`
}

// LevelMeter measures RMS/peak levels and FFT spectra of decoded clips
type LevelMeter struct {
	fftSize int
	window  []float64
}

// NewLevelMeter creates a meter with the given FFT size. Sizes that are
// not a power of two fall back to 1024.
func NewLevelMeter(fftSize int) *LevelMeter {
	if fftSize < 64 || fftSize&(fftSize-1) != 0 {
		fftSize = 1024
	}
	return &LevelMeter{
		fftSize: fftSize,
		window:  makeHannWindow(fftSize),
	}
}

// makeHannWindow creates a Hann window function for FFT
func makeHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := 0; i < size; i++ {
		window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}

// Analyze measures the whole clip: RMS and peak over every sample, plus a
// spectrum from the first full FFT frame
func (m *LevelMeter) Analyze(clip *Clip) *Analysis {
	analysis := &Analysis{
		RMSdB:  silenceFloor,
		PeakdB: silenceFloor,
	}
	if clip == nil || len(clip.Samples) == 0 {
		return analysis
	}

	var sumSquares float64
	var peak int32
	for _, s := range clip.Samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
		f := float64(s) / 32768.0
		sumSquares += f * f
	}

	rms := math.Sqrt(sumSquares / float64(len(clip.Samples)))
	analysis.RMSdB = amplitudeToDb(rms)
	analysis.PeakdB = amplitudeToDb(float64(peak) / 32768.0)
	analysis.Clipping = peak >= clippingThreshold

	if len(clip.Samples) >= m.fftSize && clip.SampleRate > 0 {
		analysis.Spectrum = m.spectrum(clip.Samples[:m.fftSize])
		analysis.FreqStep = float32(clip.SampleRate) / float32(m.fftSize)

		// Dominant bin, skipping DC
		maxBin := 1
		for i := 2; i < len(analysis.Spectrum); i++ {
			if analysis.Spectrum[i] > analysis.Spectrum[maxBin] {
				maxBin = i
			}
		}
		analysis.DominantHz = float32(maxBin) * analysis.FreqStep
	}

	return analysis
}

// spectrum computes the magnitude spectrum in dB for one windowed frame
func (m *LevelMeter) spectrum(samples []int16) []float32 {
	input := make([]complex128, m.fftSize)
	for i := 0; i < m.fftSize; i++ {
		input[i] = complex(float64(samples[i])/32768.0*m.window[i], 0)
	}

	result := fft.FFT(input)

	half := m.fftSize / 2
	spectrum := make([]float32, half)
	for i := 0; i < half; i++ {
		magnitude := cmplx.Abs(result[i]) / float64(m.fftSize)
		spectrum[i] = amplitudeToDb(magnitude)
	}
	return spectrum
}

// amplitudeToDb converts a 0..1 amplitude to dBFS, clamped at the silence floor
func amplitudeToDb(amplitude float64) float32 {
	if amplitude <= 0 {
		return silenceFloor
	}
	db := 20.0 * math.Log10(amplitude)
	if db < silenceFloor {
		return silenceFloor
	}
	return float32(db)
}
