package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cuttledoc/speechd/pkg/audio"
)

func main() {
	var (
		input      = flag.String("input", "", "WAV file to inspect")
		rate       = flag.Int("rate", 0, "Resample to this rate before analysis (0 = keep original)")
		fftSize    = flag.Int("fft", 1024, "FFT size for spectrum analysis")
		jsonOutput = flag.Bool("json", false, "Print analysis as JSON")
		showBins   = flag.Bool("bins", false, "Show spectrum bins")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -input recording.wav [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	clip, err := audio.ReadWAVFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read WAV: %v\n", err)
		os.Exit(1)
	}

	sourceRate := clip.SampleRate
	if *rate > 0 && *rate != clip.SampleRate {
		clip.Samples = audio.Resample(clip.Samples, clip.SampleRate, *rate)
		clip.SampleRate = *rate
	}

	meter := audio.NewLevelMeter(*fftSize)
	analysis := meter.Analyze(clip)

	if *jsonOutput {
		out := map[string]interface{}{
			"path":             *input,
			"source_rate":      sourceRate,
			"analysis_rate":    clip.SampleRate,
			"channels":         clip.Channels,
			"samples":          len(clip.Samples),
			"duration_seconds": clip.DurationSeconds(),
			"analysis":         analysis,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("WAV File Analysis\n")
	fmt.Printf("=================\n")
	fmt.Printf("File:     %s\n", *input)
	fmt.Printf("Rate:     %d Hz", sourceRate)
	if clip.SampleRate != sourceRate {
		fmt.Printf(" (resampled to %d Hz)", clip.SampleRate)
	}
	fmt.Printf("\n")
	fmt.Printf("Channels: %d\n", clip.Channels)
	fmt.Printf("Samples:  %d\n", len(clip.Samples))
	fmt.Printf("Duration: %.2f seconds\n", clip.DurationSeconds())
	fmt.Printf("\n")

	fmt.Printf("Levels:\n")
	fmt.Printf("  RMS:      %.1f dB\n", analysis.RMSdB)
	fmt.Printf("  Peak:     %.1f dB\n", analysis.PeakdB)
	fmt.Printf("  Clipping: %v\n", analysis.Clipping)
	fmt.Printf("\n")

	fmt.Printf("Spectrum:\n")
	fmt.Printf("  Dominant:  %.1f Hz\n", analysis.DominantHz)
	fmt.Printf("  Bin width: %.2f Hz\n", analysis.FreqStep)
	fmt.Printf("  Bins:      %d\n", len(analysis.Spectrum))

	if *showBins {
		fmt.Printf("\nSpectrum Bins:\n")
		fmt.Printf("==============\n")
		for i, level := range analysis.Spectrum {
			freq := float32(i) * analysis.FreqStep
			fmt.Printf("%7.1f Hz: %6.1f dB\n", freq, level)
		}
	}
}
