package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// encodeWAV builds a 16-bit PCM WAV in memory for tests
func encodeWAV(sampleRate, channels int, samples []int16) []byte {
	var buf bytes.Buffer

	dataLen := len(samples) * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// sineWave generates amplitude-scaled sine samples
func sineWave(sampleRate, n int, freq, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767.0 * math.Sin(2.0*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func TestDecodeWAVMono(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	data := encodeWAV(16000, 1, samples)

	clip, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if clip.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", clip.SampleRate)
	}
	if clip.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", clip.Channels)
	}
	if len(clip.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(clip.Samples))
	}
	for i, s := range samples {
		if clip.Samples[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, clip.Samples[i])
		}
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	// Interleaved L/R pairs
	samples := []int16{100, 200, -100, -200, 1000, 3000}
	data := encodeWAV(44100, 2, samples)

	clip, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if clip.Channels != 2 {
		t.Errorf("Expected source channels 2, got %d", clip.Channels)
	}
	expected := []int16{150, -150, 2000}
	if len(clip.Samples) != len(expected) {
		t.Fatalf("Expected %d downmixed samples, got %d", len(expected), len(clip.Samples))
	}
	for i, s := range expected {
		if clip.Samples[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, clip.Samples[i])
		}
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	t.Run("Too Short", func(t *testing.T) {
		if _, err := DecodeWAV([]byte("RIF")); err == nil {
			t.Error("Expected error for short data, got nil")
		}
	})

	t.Run("Bad Magic", func(t *testing.T) {
		data := encodeWAV(16000, 1, []int16{1, 2, 3})
		copy(data[0:4], "OGGS")
		if _, err := DecodeWAV(data); err == nil {
			t.Error("Expected error for non-RIFF data, got nil")
		}
	})

	t.Run("Non-PCM Encoding", func(t *testing.T) {
		data := encodeWAV(16000, 1, []int16{1, 2, 3})
		// Patch the fmt chunk's audio format to IEEE float (3)
		binary.LittleEndian.PutUint16(data[20:22], 3)
		if _, err := DecodeWAV(data); err == nil {
			t.Error("Expected error for non-PCM encoding, got nil")
		}
	})

	t.Run("Truncated Data Chunk", func(t *testing.T) {
		data := encodeWAV(16000, 1, []int16{1, 2, 3, 4})
		if _, err := DecodeWAV(data[:len(data)-3]); err == nil {
			t.Error("Expected error for truncated data, got nil")
		}
	})

	t.Run("Oversized Chunk Length", func(t *testing.T) {
		data := encodeWAV(16000, 1, []int16{1, 2, 3})
		// Declare a data chunk far larger than the buffer; must error,
		// not panic, even where int is 32 bits
		binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFFF)
		if _, err := DecodeWAV(data); err == nil {
			t.Error("Expected error for oversized chunk, got nil")
		}
	})

	t.Run("Missing Data Chunk", func(t *testing.T) {
		data := encodeWAV(16000, 1, []int16{})
		// Chop the empty data chunk header off
		if _, err := DecodeWAV(data[:len(data)-8]); err == nil {
			t.Error("Expected error for missing data chunk, got nil")
		}
	})
}

func TestReadWAVFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "speechd-audio-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "tone.wav")
	samples := sineWave(16000, 16000, 440, 0.3)
	if err := os.WriteFile(path, encodeWAV(16000, 1, samples), 0644); err != nil {
		t.Fatalf("Failed to write wav: %v", err)
	}

	clip, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if d := clip.DurationSeconds(); math.Abs(d-1.0) > 0.001 {
		t.Errorf("Expected 1.0s duration, got %f", d)
	}

	if _, err := ReadWAVFile(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestResample(t *testing.T) {
	t.Run("Same Rate Passthrough", func(t *testing.T) {
		samples := []int16{1, 2, 3}
		out := Resample(samples, 16000, 16000)
		if len(out) != 3 {
			t.Errorf("Expected passthrough, got %d samples", len(out))
		}
	})

	t.Run("Upsample Doubles Length", func(t *testing.T) {
		samples := make([]int16, 8000)
		for i := range samples {
			samples[i] = 1000
		}
		out := Resample(samples, 8000, 16000)
		if len(out) != 16000 {
			t.Errorf("Expected 16000 samples, got %d", len(out))
		}
		// A constant signal stays constant under linear interpolation
		for i, s := range out {
			if s != 1000 {
				t.Fatalf("Sample %d: expected 1000, got %d", i, s)
			}
		}
	})

	t.Run("Downsample Halves Length", func(t *testing.T) {
		samples := make([]int16, 16000)
		out := Resample(samples, 16000, 8000)
		if len(out) != 8000 {
			t.Errorf("Expected 8000 samples, got %d", len(out))
		}
	})

	t.Run("Empty Input", func(t *testing.T) {
		out := Resample(nil, 8000, 16000)
		if len(out) != 0 {
			t.Errorf("Expected empty output, got %d samples", len(out))
		}
	})
}

func TestAnalyzeSine(t *testing.T) {
	meter := NewLevelMeter(1024)

	clip := &Clip{
		SampleRate: 16000,
		Channels:   1,
		Samples:    sineWave(16000, 4096, 1000, 0.5),
	}

	analysis := meter.Analyze(clip)

	// Half-scale sine: RMS = 0.5/sqrt(2) = -9.03 dB, peak = -6.02 dB
	if math.Abs(float64(analysis.RMSdB)+9.03) > 0.5 {
		t.Errorf("Expected RMS near -9.03 dB, got %f", analysis.RMSdB)
	}
	if math.Abs(float64(analysis.PeakdB)+6.02) > 0.5 {
		t.Errorf("Expected peak near -6.02 dB, got %f", analysis.PeakdB)
	}
	if analysis.Clipping {
		t.Error("Half-scale sine should not clip")
	}

	// 1000 Hz falls exactly on bin 64 at 16 kHz / 1024 points
	if math.Abs(float64(analysis.DominantHz)-1000.0) > float64(analysis.FreqStep) {
		t.Errorf("Expected dominant frequency near 1000 Hz, got %f", analysis.DominantHz)
	}
	if len(analysis.Spectrum) != 512 {
		t.Errorf("Expected 512 spectrum bins, got %d", len(analysis.Spectrum))
	}
}

func TestAnalyzeClipping(t *testing.T) {
	meter := NewLevelMeter(1024)

	samples := make([]int16, 2048)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 32767
		} else {
			samples[i] = -32768
		}
	}

	analysis := meter.Analyze(&Clip{SampleRate: 16000, Channels: 1, Samples: samples})

	if !analysis.Clipping {
		t.Error("Full-scale square wave should clip")
	}
	if math.Abs(float64(analysis.PeakdB)) > 0.1 {
		t.Errorf("Expected peak near 0 dB, got %f", analysis.PeakdB)
	}
}

func TestAnalyzeSilenceAndEmpty(t *testing.T) {
	meter := NewLevelMeter(1024)

	t.Run("Silence", func(t *testing.T) {
		analysis := meter.Analyze(&Clip{SampleRate: 16000, Channels: 1, Samples: make([]int16, 4096)})
		if analysis.RMSdB != silenceFloor {
			t.Errorf("Expected silence floor RMS, got %f", analysis.RMSdB)
		}
		if analysis.PeakdB != silenceFloor {
			t.Errorf("Expected silence floor peak, got %f", analysis.PeakdB)
		}
		if analysis.Clipping {
			t.Error("Silence should not clip")
		}
	})

	t.Run("Empty Clip", func(t *testing.T) {
		analysis := meter.Analyze(&Clip{SampleRate: 16000, Channels: 1})
		if analysis.RMSdB != silenceFloor || analysis.PeakdB != silenceFloor {
			t.Error("Empty clip should report the silence floor")
		}
		if analysis.Spectrum != nil {
			t.Error("Empty clip should have no spectrum")
		}
	})

	t.Run("Nil Clip", func(t *testing.T) {
		analysis := meter.Analyze(nil)
		if analysis == nil {
			t.Fatal("Expected analysis for nil clip, got nil")
		}
	})
}

func TestAnalyzeShortClip(t *testing.T) {
	meter := NewLevelMeter(1024)

	// Shorter than one FFT frame: levels yes, spectrum no
	analysis := meter.Analyze(&Clip{SampleRate: 16000, Channels: 1, Samples: sineWave(16000, 512, 440, 0.5)})

	if analysis.Spectrum != nil {
		t.Error("Expected no spectrum for short clip")
	}
	if analysis.RMSdB == silenceFloor {
		t.Error("Expected measurable RMS for short clip")
	}
}

func TestNewLevelMeterFallback(t *testing.T) {
	meter := NewLevelMeter(1000) // not a power of two
	if meter.fftSize != 1024 {
		t.Errorf("Expected fallback fft size 1024, got %d", meter.fftSize)
	}
}
