//go:build darwin

package apple

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cuttledoc/speechd/pkg/speech"
)

const helperName = "speechd-apple-helper"

// localeProbeTimeout bounds the helper call behind GetSupportedLocales,
// which has no context of its own.
const localeProbeTimeout = 5 * time.Second

// Backend bridges to the Apple Speech helper binary on macOS. The helper
// wraps SFSpeechRecognizer and speaks JSON on stdout.
type Backend struct {
	helperPath string
}

var _ speech.Backend = (*Backend)(nil)

// New locates the helper and returns the backend. A missing helper is not
// an error: the backend stays registered and reports unavailability, the
// same contract the non-macOS stub follows.
func New(cfg Config) *Backend {
	return &Backend{helperPath: findHelper(cfg.HelperPath)}
}

// findHelper resolves the helper binary: explicit override, PATH,
// $SPEECHD_APPLE_HELPER, then next to the running executable
func findHelper(override string) string {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
		return ""
	}

	if path, err := exec.LookPath(helperName); err == nil {
		return path
	}

	if env := os.Getenv("SPEECHD_APPLE_HELPER"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env
		}
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), helperName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// Name returns the backend identifier
func (b *Backend) Name() string {
	return BackendName
}

// IsAvailable reports whether the helper binary was found
func (b *Backend) IsAvailable() bool {
	return b.helperPath != ""
}

// SupportsOnDevice reports on-device capability; SFSpeechRecognizer handles
// on-device recognition whenever the helper is present
func (b *Backend) SupportsOnDevice() bool {
	return b.helperPath != ""
}

// helperTranscription is the JSON shape the helper prints for "transcribe"
type helperTranscription struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Locale   string  `json:"locale"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe runs the helper's transcribe subcommand on the request audio
func (b *Backend) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.TranscribeResult, error) {
	if b.helperPath == "" {
		return nil, speech.NewBackendUnavailableError(BackendName, HelperMissingMessage)
	}
	if req.AudioPath == "" {
		return nil, speech.ErrNoAudioInput
	}

	args := []string{"transcribe", "--file", req.AudioPath}
	if req.Locale != "" {
		args = append(args, "--locale", req.Locale)
	}
	if req.PreferOnDevice {
		args = append(args, "--on-device")
	}

	start := time.Now()
	output, err := exec.CommandContext(ctx, b.helperPath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("apple helper transcribe failed: %w", err)
	}

	var parsed helperTranscription
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse apple helper output: %w", err)
	}

	result := &speech.TranscribeResult{
		Text:              parsed.Text,
		DurationSeconds:   parsed.Duration,
		ProcessingSeconds: time.Since(start).Seconds(),
		Locale:            parsed.Locale,
		Backend:           BackendName,
	}
	if result.Locale == "" {
		result.Locale = req.Locale
	}
	for _, seg := range parsed.Segments {
		result.Segments = append(result.Segments, speech.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	return result, nil
}

// GetSupportedLocales asks the helper for the recognizer's locale list
func (b *Backend) GetSupportedLocales() []string {
	if b.helperPath == "" {
		return []string{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), localeProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, b.helperPath, "locales").Output()
	if err != nil {
		return []string{}
	}

	var locales []string
	if err := json.Unmarshal(output, &locales); err != nil || locales == nil {
		return []string{}
	}
	return locales
}

// RequestAuthorization runs the helper's authorize subcommand, which calls
// SFSpeechRecognizer.requestAuthorization and blocks on the user's answer.
// With no helper the future settles to denied before returning, matching
// the stub contract.
func (b *Backend) RequestAuthorization() <-chan speech.AuthorizationResult {
	ch := make(chan speech.AuthorizationResult, 1)

	if b.helperPath == "" {
		ch <- speech.AuthorizationResult{
			Status: speech.AuthorizationDenied,
			Err:    speech.NewBackendUnavailableError(BackendName, HelperMissingMessage),
		}
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		output, err := exec.CommandContext(ctx, b.helperPath, "authorize").Output()
		if err != nil {
			ch <- speech.AuthorizationResult{
				Status: speech.AuthorizationDenied,
				Err:    fmt.Errorf("apple helper authorize failed: %w", err),
			}
			return
		}

		var parsed struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(output, &parsed); err != nil {
			ch <- speech.AuthorizationResult{
				Status: speech.AuthorizationDenied,
				Err:    fmt.Errorf("failed to parse apple helper output: %w", err),
			}
			return
		}

		ch <- speech.AuthorizationResult{Status: parseAuthorizationStatus(parsed.Status)}
	}()

	return ch
}

func parseAuthorizationStatus(s string) speech.AuthorizationStatus {
	switch s {
	case "authorized":
		return speech.AuthorizationAuthorized
	case "denied":
		return speech.AuthorizationDenied
	case "restricted":
		return speech.AuthorizationRestricted
	default:
		return speech.AuthorizationNotDetermined
	}
}
