//go:build !darwin

package apple

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuttledoc/speechd/pkg/speech"
)

func TestTranscribeAlwaysUnavailable(t *testing.T) {
	backend := New(Config{})

	requests := map[string]speech.TranscribeRequest{
		"empty request":    {},
		"with audio path":  {AudioPath: "/tmp/clip.wav"},
		"with locale":      {AudioPath: "/tmp/clip.wav", Locale: "de-DE"},
		"prefer on-device": {AudioPath: "/tmp/clip.wav", PreferOnDevice: true},
	}

	for name, req := range requests {
		t.Run(name, func(t *testing.T) {
			result, err := backend.Transcribe(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, result)

			var unavailable *speech.BackendUnavailableError
			require.True(t, errors.As(err, &unavailable))
			assert.Equal(t, "Apple Speech is only available on macOS", unavailable.Message)
			assert.Equal(t, "apple", unavailable.Backend)
			assert.Equal(t, "Apple Speech is only available on macOS", err.Error())
		})
	}
}

func TestTranscribeIgnoresContext(t *testing.T) {
	backend := New(Config{})

	// A canceled context changes nothing: the stub fails the same way
	// without ever looking at the input.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Transcribe(ctx, speech.TranscribeRequest{AudioPath: "/tmp/clip.wav"})
	require.Error(t, err)
	assert.True(t, speech.IsBackendUnavailable(err))
	assert.Equal(t, "Apple Speech is only available on macOS", err.Error())
}

func TestIsAvailableAlwaysFalse(t *testing.T) {
	backend := New(Config{})

	for i := 0; i < 3; i++ {
		assert.False(t, backend.IsAvailable())
	}
}

func TestSupportsOnDeviceAlwaysFalse(t *testing.T) {
	backend := New(Config{})

	for i := 0; i < 3; i++ {
		assert.False(t, backend.SupportsOnDevice())
	}
}

func TestGetSupportedLocalesEmpty(t *testing.T) {
	backend := New(Config{})

	locales := backend.GetSupportedLocales()
	require.NotNil(t, locales, "locales must marshal as [], not null")
	assert.Len(t, locales, 0)
}

func TestRequestAuthorizationAlreadySettled(t *testing.T) {
	backend := New(Config{})

	future := backend.RequestAuthorization()

	// The future is settled before RequestAuthorization returns, so a
	// non-blocking receive must succeed.
	var result speech.AuthorizationResult
	select {
	case result = <-future:
	default:
		t.Fatal("authorization future was not settled synchronously")
	}

	assert.Equal(t, speech.AuthorizationDenied, result.Status)
	require.Error(t, result.Err)
	assert.True(t, speech.IsBackendUnavailable(result.Err))
	assert.Equal(t, "Apple Speech is only available on macOS", result.Err.Error())

	// Exactly one result: the channel is closed afterwards.
	select {
	case _, ok := <-future:
		assert.False(t, ok, "future channel should be closed after the single result")
	default:
		t.Fatal("future channel should be closed, not empty and open")
	}
}

func TestOperationsAreIdempotent(t *testing.T) {
	backend := New(Config{})

	first, firstErr := backend.Transcribe(context.Background(), speech.TranscribeRequest{AudioPath: "a.wav"})
	second, secondErr := backend.Transcribe(context.Background(), speech.TranscribeRequest{AudioPath: "a.wav"})
	assert.Equal(t, first, second)
	require.Error(t, firstErr)
	require.Error(t, secondErr)
	assert.Equal(t, firstErr.Error(), secondErr.Error())

	assert.Equal(t, backend.IsAvailable(), backend.IsAvailable())
	assert.Equal(t, backend.SupportsOnDevice(), backend.SupportsOnDevice())
	assert.Equal(t, backend.GetSupportedLocales(), backend.GetSupportedLocales())

	firstAuth := <-backend.RequestAuthorization()
	secondAuth := <-backend.RequestAuthorization()
	assert.Equal(t, firstAuth.Status, secondAuth.Status)
	assert.Equal(t, firstAuth.Err.Error(), secondAuth.Err.Error())
}

func TestAvailabilityThenTranscribe(t *testing.T) {
	backend := New(Config{})

	require.False(t, backend.IsAvailable())

	_, err := backend.Transcribe(context.Background(), speech.TranscribeRequest{AudioPath: "anything.wav"})
	require.Error(t, err)
	assert.Equal(t, "Apple Speech is only available on macOS", err.Error())
}

func TestStubName(t *testing.T) {
	backend := New(Config{HelperPath: "/does/not/matter"})
	assert.Equal(t, "apple", backend.Name())
}
