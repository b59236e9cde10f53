// Package audio provides WAV decoding, resampling, and level/spectrum
// analysis for transcription jobs. There is no capture or playback here;
// the daemon only ever works with audio files.
package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Clip holds decoded PCM audio. Samples are mono; multi-channel input is
// downmixed during decoding.
type Clip struct {
	SampleRate int
	Channels   int // channel count of the source file
	Samples    []int16
}

// DurationSeconds returns the clip length in seconds
func (c *Clip) DurationSeconds() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadWAVFile reads and decodes a WAV file from disk
func ReadWAVFile(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wav file: %w", err)
	}
	return DecodeWAV(data)
}

// DecodeWAV decodes RIFF/WAVE data containing 16-bit PCM samples
func DecodeWAV(data []byte) (*Clip, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("wav data too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		haveFormat    bool
		pcm           []byte
	)

	// Walk the chunk list; chunks are word-aligned
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := data[offset+8:]
		// Compare as int64: int(chunkSize) can wrap negative on 32-bit platforms
		if int64(chunkSize) > int64(len(body)) {
			return nil, fmt.Errorf("truncated %q chunk: need %d bytes, have %d", chunkID, chunkSize, len(body))
		}
		size := int(chunkSize)
		body = body[:size]

		switch chunkID {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short (%d bytes)", size)
			}
			audioFormat := int(binary.LittleEndian.Uint16(body[0:2]))
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported wav encoding %d (only PCM is supported)", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFormat = true
		case "data":
			pcm = body
		}

		offset += 8 + size
		if size%2 == 1 {
			offset++
		}
	}

	if !haveFormat {
		return nil, fmt.Errorf("wav file has no fmt chunk")
	}
	if pcm == nil {
		return nil, fmt.Errorf("wav file has no data chunk")
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d (only 16-bit PCM is supported)", bitsPerSample)
	}
	if channels < 1 {
		return nil, fmt.Errorf("wav file reports %d channels", channels)
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("wav file reports sample rate %d", sampleRate)
	}

	frameBytes := channels * 2
	frames := len(pcm) / frameBytes

	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		// Downmix by averaging channels
		var sum int
		base := i * frameBytes
		for ch := 0; ch < channels; ch++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[base+ch*2 : base+ch*2+2])))
		}
		samples[i] = int16(sum / channels)
	}

	return &Clip{
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    samples,
	}, nil
}

// Resample converts samples between rates using linear interpolation.
// Good enough for speech backends wanting 16 kHz input; not intended for
// music-grade conversion.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	outLen := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return []int16{}
	}

	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
	}
	return out
}
