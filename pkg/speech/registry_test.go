package speech

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal Backend for registry tests
type fakeBackend struct {
	name      string
	available bool
	locales   []string
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	if !f.available {
		return nil, NewBackendUnavailableError(f.name, f.name+" is unavailable")
	}
	return &TranscribeResult{Text: "ok", Backend: f.name}, nil
}

func (f *fakeBackend) IsAvailable() bool      { return f.available }
func (f *fakeBackend) SupportsOnDevice() bool { return f.available }

func (f *fakeBackend) GetSupportedLocales() []string { return f.locales }

func (f *fakeBackend) RequestAuthorization() <-chan AuthorizationResult {
	ch := make(chan AuthorizationResult, 1)
	ch <- AuthorizationResult{Status: AuthorizationAuthorized}
	close(ch)
	return ch
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeBackend{name: "alpha", available: true})
	registry.Register(&fakeBackend{name: "beta"})

	b, err := registry.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", b.Name())

	_, err = registry.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendNotFound))
}

func TestRegistryDefault(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Default()
	assert.True(t, errors.Is(err, ErrNoBackends))

	// First registration becomes the default
	registry.Register(&fakeBackend{name: "alpha"})
	registry.Register(&fakeBackend{name: "beta"})

	b, err := registry.Default()
	require.NoError(t, err)
	assert.Equal(t, "alpha", b.Name())
	assert.Equal(t, "alpha", registry.DefaultName())

	require.NoError(t, registry.SetDefault("beta"))
	assert.Equal(t, "beta", registry.DefaultName())

	err = registry.SetDefault("missing")
	assert.True(t, errors.Is(err, ErrBackendNotFound))
	assert.Equal(t, "beta", registry.DefaultName(), "failed SetDefault must not change the default")
}

func TestRegistryNamesSorted(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeBackend{name: "zulu"})
	registry.Register(&fakeBackend{name: "alpha"})
	registry.Register(&fakeBackend{name: "mike"})

	assert.Equal(t, []string{"alpha", "mike", "zulu"}, registry.Names())
	assert.Equal(t, 3, registry.Count())
}

func TestRegistryReplace(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeBackend{name: "alpha", available: false})
	registry.Register(&fakeBackend{name: "alpha", available: true})

	assert.Equal(t, 1, registry.Count())
	b, err := registry.Get("alpha")
	require.NoError(t, err)
	assert.True(t, b.IsAvailable())
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeBackend{name: "beta", available: true, locales: []string{"en-US"}})
	registry.Register(&fakeBackend{name: "alpha"})

	infos := registry.List()
	require.Len(t, infos, 2)

	// Sorted by name
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "beta", infos[1].Name)

	assert.False(t, infos[0].Available)
	assert.True(t, infos[1].Available)

	// First registered backend is flagged default
	assert.True(t, infos[1].Default)
	assert.False(t, infos[0].Default)

	// Locales are never nil, even for backends returning nil
	assert.NotNil(t, infos[0].Locales)
	assert.Len(t, infos[0].Locales, 0)
	assert.Equal(t, []string{"en-US"}, infos[1].Locales)
}
