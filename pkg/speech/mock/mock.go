// Package mock provides a deterministic in-process speech backend for
// development and tests. It returns canned text, optionally after an
// artificial delay, and lets tests flip availability at runtime.
package mock

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cuttledoc/speechd/pkg/speech"
)

// BackendName identifies this backend in the registry
const BackendName = "mock"

// Backend implements speech.Backend with canned responses
type Backend struct {
	mu         sync.RWMutex
	text       string
	delay      time.Duration
	available  bool
	onDevice   bool
	locales    []string
	authStatus speech.AuthorizationStatus

	transcribeCalls int
	authCalls       int
}

var _ speech.Backend = (*Backend)(nil)

// New creates a mock backend that answers every transcription with text,
// after an optional artificial processing delay
func New(text string, delay time.Duration) *Backend {
	return &Backend{
		text:       text,
		delay:      delay,
		available:  true,
		onDevice:   true,
		locales:    []string{"en-US", "en-GB"},
		authStatus: speech.AuthorizationAuthorized,
	}
}

// Name returns the backend identifier
func (b *Backend) Name() string {
	return BackendName
}

// Transcribe returns the canned text. The artificial delay honors context
// cancellation so job timeout paths can be exercised in tests.
func (b *Backend) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.TranscribeResult, error) {
	b.mu.Lock()
	b.transcribeCalls++
	text := b.text
	delay := b.delay
	available := b.available
	b.mu.Unlock()

	if !available {
		return nil, speech.NewBackendUnavailableError(BackendName, "mock backend is disabled")
	}

	start := time.Now()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	locale := req.Locale
	if locale == "" {
		locale = "en-US"
	}

	// Pretend each word took half a second of audio
	words := len(strings.Fields(text))
	duration := float64(words) * 0.5

	log.Printf("MockSpeech: transcribed %q (%d words)", req.AudioPath, words)

	return &speech.TranscribeResult{
		Text: text,
		Segments: []speech.Segment{
			{Start: 0, End: duration, Text: text},
		},
		DurationSeconds:   duration,
		ProcessingSeconds: time.Since(start).Seconds(),
		Locale:            locale,
		Backend:           BackendName,
	}, nil
}

// IsAvailable reports the configured availability
func (b *Backend) IsAvailable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available
}

// SupportsOnDevice reports the configured on-device capability
func (b *Backend) SupportsOnDevice() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.onDevice
}

// GetSupportedLocales returns a copy of the configured locale list
func (b *Backend) GetSupportedLocales() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	locales := make([]string, len(b.locales))
	copy(locales, b.locales)
	return locales
}

// RequestAuthorization returns a future settled to the configured status
// before this function returns
func (b *Backend) RequestAuthorization() <-chan speech.AuthorizationResult {
	b.mu.Lock()
	b.authCalls++
	status := b.authStatus
	b.mu.Unlock()

	ch := make(chan speech.AuthorizationResult, 1)
	result := speech.AuthorizationResult{Status: status}
	if status != speech.AuthorizationAuthorized {
		result.Err = speech.NewBackendUnavailableError(BackendName, "mock authorization refused")
	}
	ch <- result
	close(ch)
	return ch
}

// SetAvailable flips availability at runtime
func (b *Backend) SetAvailable(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = available
}

// SetOnDevice flips on-device capability at runtime
func (b *Backend) SetOnDevice(onDevice bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDevice = onDevice
}

// SetLocales replaces the locale list
func (b *Backend) SetLocales(locales []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locales = make([]string, len(locales))
	copy(b.locales, locales)
}

// SetAuthorizationStatus changes what future authorization requests settle to
func (b *Backend) SetAuthorizationStatus(status speech.AuthorizationStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authStatus = status
}

// TranscribeCalls returns how many times Transcribe has been invoked
func (b *Backend) TranscribeCalls() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.transcribeCalls
}

// AuthorizationCalls returns how many times RequestAuthorization has been invoked
func (b *Backend) AuthorizationCalls() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.authCalls
}
