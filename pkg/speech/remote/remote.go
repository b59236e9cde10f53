// Package remote implements a speech backend backed by an HTTP ASR sidecar.
// The sidecar exposes GET /health and POST /transcribe (multipart), the
// same surface the python-asr service speaks.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuttledoc/speechd/pkg/speech"
)

// BackendName identifies this backend in the registry
const BackendName = "remote"

// availabilityTTL caches the outcome of a health probe so repeated
// IsAvailable calls do not hammer the sidecar
const availabilityTTL = 15 * time.Second

// probeTimeout bounds a single health probe
const probeTimeout = 3 * time.Second

// Config holds the sidecar connection settings
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
	Locales []string
}

// Backend talks to the ASR sidecar over HTTP
type Backend struct {
	config Config
	client *http.Client

	mu            sync.Mutex
	lastProbe     time.Time
	lastAvailable bool
}

var _ speech.Backend = (*Backend)(nil)

// New creates a remote backend for the sidecar at cfg.URL
func New(cfg Config) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Backend{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the backend identifier
func (b *Backend) Name() string {
	return BackendName
}

// IsAvailable probes the sidecar's health endpoint. Probe results are
// cached for a short interval.
func (b *Backend) IsAvailable() bool {
	b.mu.Lock()
	if !b.lastProbe.IsZero() && time.Since(b.lastProbe) < availabilityTTL {
		available := b.lastAvailable
		b.mu.Unlock()
		return available
	}
	b.mu.Unlock()

	available := b.probeHealth()

	b.mu.Lock()
	b.lastProbe = time.Now()
	b.lastAvailable = available
	b.mu.Unlock()

	return available
}

func (b *Backend) probeHealth() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.config.URL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// SupportsOnDevice is always false: recognition happens across the network
func (b *Backend) SupportsOnDevice() bool {
	return false
}

// GetSupportedLocales returns a copy of the configured locale allowlist
func (b *Backend) GetSupportedLocales() []string {
	locales := make([]string, len(b.config.Locales))
	copy(locales, b.config.Locales)
	return locales
}

// transcribeResponse is the sidecar's JSON response shape
type transcribeResponse struct {
	Text              string  `json:"text"`
	DurationSeconds   float64 `json:"duration_seconds"`
	ProcessingSeconds float64 `json:"processing_seconds"`
	Language          string  `json:"language"`
	Device            string  `json:"device"`
	Backend           string  `json:"backend"`
	Segments          []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio file to the sidecar and decodes the result
func (b *Backend) Transcribe(ctx context.Context, req speech.TranscribeRequest) (*speech.TranscribeResult, error) {
	if req.AudioPath == "" {
		return nil, speech.ErrNoAudioInput
	}

	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(req.AudioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	if b.config.Model != "" {
		writer.WriteField("model", b.config.Model)
	}
	if req.Locale != "" {
		writer.WriteField("language", req.Locale)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.URL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote transcribe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, speech.NewBackendUnavailableError(BackendName, "remote ASR sidecar is not available")
	}
	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote transcribe returned status %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt))
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse remote response: %w", err)
	}

	processing := parsed.ProcessingSeconds
	if processing == 0 {
		processing = time.Since(start).Seconds()
	}

	locale := parsed.Language
	if locale == "" {
		locale = req.Locale
	}

	result := &speech.TranscribeResult{
		Text:              parsed.Text,
		DurationSeconds:   parsed.DurationSeconds,
		ProcessingSeconds: processing,
		Locale:            locale,
		Backend:           BackendName,
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

// RequestAuthorization settles immediately: a network backend has no OS
// consent flow, so the future reflects reachability instead
func (b *Backend) RequestAuthorization() <-chan speech.AuthorizationResult {
	ch := make(chan speech.AuthorizationResult, 1)

	if b.IsAvailable() {
		ch <- speech.AuthorizationResult{Status: speech.AuthorizationAuthorized}
	} else {
		ch <- speech.AuthorizationResult{
			Status: speech.AuthorizationDenied,
			Err:    speech.NewBackendUnavailableError(BackendName, "remote ASR sidecar is not reachable"),
		}
	}
	close(ch)
	return ch
}
