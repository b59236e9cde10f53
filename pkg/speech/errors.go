package speech

import "errors"

// Sentinel errors shared by backends and the engine
var (
	// ErrBackendNotFound is returned when a backend name is not registered
	ErrBackendNotFound = errors.New("speech backend not found")

	// ErrNoBackends is returned when the registry is empty
	ErrNoBackends = errors.New("no speech backends registered")

	// ErrNoAudioInput is returned when a request carries no audio
	ErrNoAudioInput = errors.New("no audio input provided")
)

// BackendUnavailableError reports that a backend cannot operate on this
// platform or in this environment. The message is stable, user-facing text
// and Error returns it verbatim.
type BackendUnavailableError struct {
	Backend string
	Message string
}

func (e *BackendUnavailableError) Error() string {
	return e.Message
}

// NewBackendUnavailableError creates a BackendUnavailableError for the named backend
func NewBackendUnavailableError(backend, message string) *BackendUnavailableError {
	return &BackendUnavailableError{
		Backend: backend,
		Message: message,
	}
}

// IsBackendUnavailable reports whether err is a BackendUnavailableError
func IsBackendUnavailable(err error) bool {
	var unavailable *BackendUnavailableError
	return errors.As(err, &unavailable)
}
