package speech

import "context"

// TranscribeRequest describes a single transcription request
type TranscribeRequest struct {
	AudioPath      string `json:"audio_path"`
	Locale         string `json:"locale,omitempty"`
	PreferOnDevice bool   `json:"prefer_on_device,omitempty"`
}

// Segment is one timed span of recognized speech
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscribeResult is the outcome of a successful transcription
type TranscribeResult struct {
	Text              string    `json:"text"`
	Segments          []Segment `json:"segments,omitempty"`
	DurationSeconds   float64   `json:"duration_seconds"`
	ProcessingSeconds float64   `json:"processing_seconds"`
	Locale            string    `json:"locale"`
	Backend           string    `json:"backend"`
}

// AuthorizationStatus mirrors the OS-level speech authorization states
type AuthorizationStatus string

const (
	AuthorizationNotDetermined AuthorizationStatus = "not_determined"
	AuthorizationDenied        AuthorizationStatus = "denied"
	AuthorizationRestricted    AuthorizationStatus = "restricted"
	AuthorizationAuthorized    AuthorizationStatus = "authorized"
)

// AuthorizationResult is the settled outcome of an authorization request
type AuthorizationResult struct {
	Status AuthorizationStatus `json:"status"`
	Err    error               `json:"-"`
}

// BackendInfo is a point-in-time snapshot of a registered backend
type BackendInfo struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	OnDevice  bool     `json:"on_device"`
	Locales   []string `json:"locales"`
	Default   bool     `json:"default"`
}

// Backend is the capability surface every speech backend implements.
//
// RequestAuthorization returns a channel that receives exactly one result
// and is then closed. Backends that cannot prompt for consent settle the
// channel before returning, so callers may receive without blocking.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error)
	IsAvailable() bool
	SupportsOnDevice() bool
	GetSupportedLocales() []string
	RequestAuthorization() <-chan AuthorizationResult
}
