package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuttledoc/speechd/pkg/speech"
)

func TestTranscribeCannedText(t *testing.T) {
	backend := New("hello from the mock", 0)

	result, err := backend.Transcribe(context.Background(), speech.TranscribeRequest{
		AudioPath: "clip.wav",
		Locale:    "en-GB",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Text != "hello from the mock" {
		t.Errorf("Expected canned text, got %q", result.Text)
	}
	if result.Locale != "en-GB" {
		t.Errorf("Expected request locale echoed, got %s", result.Locale)
	}
	if result.Backend != "mock" {
		t.Errorf("Expected backend mock, got %s", result.Backend)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("Expected one segment, got %d", len(result.Segments))
	}
	if result.DurationSeconds != 2.0 {
		t.Errorf("Expected 2.0s duration for 4 words, got %f", result.DurationSeconds)
	}

	if backend.TranscribeCalls() != 1 {
		t.Errorf("Expected 1 transcribe call, got %d", backend.TranscribeCalls())
	}
}

func TestTranscribeDefaultLocale(t *testing.T) {
	backend := New("text", 0)

	result, err := backend.Transcribe(context.Background(), speech.TranscribeRequest{AudioPath: "clip.wav"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Locale != "en-US" {
		t.Errorf("Expected default locale en-US, got %s", result.Locale)
	}
}

func TestTranscribeHonorsContext(t *testing.T) {
	backend := New("slow result", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := backend.Transcribe(ctx, speech.TranscribeRequest{AudioPath: "clip.wav"})
	if err == nil {
		t.Fatal("Expected context error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Cancellation should not wait out the artificial delay")
	}
}

func TestUnavailableMock(t *testing.T) {
	backend := New("text", 0)
	backend.SetAvailable(false)

	if backend.IsAvailable() {
		t.Error("Expected unavailable after SetAvailable(false)")
	}

	_, err := backend.Transcribe(context.Background(), speech.TranscribeRequest{AudioPath: "clip.wav"})
	if !speech.IsBackendUnavailable(err) {
		t.Errorf("Expected BackendUnavailableError, got: %v", err)
	}
}

func TestAuthorizationConfigurable(t *testing.T) {
	backend := New("text", 0)

	result := <-backend.RequestAuthorization()
	if result.Status != speech.AuthorizationAuthorized {
		t.Errorf("Expected authorized by default, got %s", result.Status)
	}
	if result.Err != nil {
		t.Errorf("Expected no error for authorized, got: %v", result.Err)
	}

	backend.SetAuthorizationStatus(speech.AuthorizationRestricted)

	result = <-backend.RequestAuthorization()
	if result.Status != speech.AuthorizationRestricted {
		t.Errorf("Expected restricted after override, got %s", result.Status)
	}
	if result.Err == nil {
		t.Error("Expected error for non-authorized status")
	}

	if backend.AuthorizationCalls() != 2 {
		t.Errorf("Expected 2 authorization calls, got %d", backend.AuthorizationCalls())
	}
}

func TestLocalesCopied(t *testing.T) {
	backend := New("text", 0)
	backend.SetLocales([]string{"ja-JP"})

	locales := backend.GetSupportedLocales()
	if len(locales) != 1 || locales[0] != "ja-JP" {
		t.Fatalf("Expected [ja-JP], got %v", locales)
	}

	locales[0] = "xx-XX"
	if backend.GetSupportedLocales()[0] != "ja-JP" {
		t.Error("Mutating the returned slice should not affect the backend")
	}
}
