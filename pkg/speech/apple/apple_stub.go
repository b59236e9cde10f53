//go:build !darwin

package apple

import (
	"context"

	"github.com/cuttledoc/speechd/pkg/speech"
)

// Backend is the fallback used on platforms without Apple Speech. It holds
// no state; every operation returns a fixed unavailability response.
type Backend struct{}

var _ speech.Backend = (*Backend)(nil)

// New returns the stub backend. cfg is accepted for parity with the macOS
// build and ignored.
func New(cfg Config) *Backend {
	return &Backend{}
}

// Name returns the backend identifier
func (b *Backend) Name() string {
	return BackendName
}

// Transcribe always fails with the fixed unavailability message. The
// request is never inspected and no audio is read.
func (b *Backend) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.TranscribeResult, error) {
	return nil, speech.NewBackendUnavailableError(BackendName, UnavailableMessage)
}

// IsAvailable always reports false on this platform
func (b *Backend) IsAvailable() bool {
	return false
}

// SupportsOnDevice always reports false on this platform
func (b *Backend) SupportsOnDevice() bool {
	return false
}

// GetSupportedLocales returns an empty list. The slice is non-nil so API
// responses marshal as [] rather than null.
func (b *Backend) GetSupportedLocales() []string {
	return []string{}
}

// RequestAuthorization returns a future that is already settled to denied.
// The channel is buffered, filled, and closed before this function returns,
// so the result is observable immediately without blocking.
func (b *Backend) RequestAuthorization() <-chan speech.AuthorizationResult {
	ch := make(chan speech.AuthorizationResult, 1)
	ch <- speech.AuthorizationResult{
		Status: speech.AuthorizationDenied,
		Err:    speech.NewBackendUnavailableError(BackendName, UnavailableMessage),
	}
	close(ch)
	return ch
}
