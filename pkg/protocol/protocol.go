package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cuttledoc/speechd/pkg/speech"
)

// Command represents a command sent to the speech engine
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the speech engine
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Transcript represents a stored transcription result
type Transcript struct {
	ID                string           `json:"id"`
	CreatedAt         time.Time        `json:"created_at"`
	AudioPath         string           `json:"audio_path"`
	Backend           string           `json:"backend"`
	Locale            string           `json:"locale"`
	Text              string           `json:"text"`
	DurationSeconds   float64          `json:"duration_seconds"`
	ProcessingSeconds float64          `json:"processing_seconds"`
	RMSdB             float64          `json:"rms_db"`
	PeakdB            float64          `json:"peak_db"`
	Segments          []speech.Segment `json:"segments,omitempty"`
}

// Status represents the current daemon status
type Status struct {
	ActiveBackend  string    `json:"active_backend"`
	BackendDisplay string    `json:"backend_display"`
	Available      bool      `json:"available"`
	OnDevice       bool      `json:"on_device"`
	QueueDepth     int       `json:"queue_depth"`
	ActiveJobs     int       `json:"active_jobs"`
	JobsProcessed  int64     `json:"jobs_processed"`
	JobsFailed     int64     `json:"jobs_failed"`
	Transcripts    int       `json:"transcripts"`
	Uptime         string    `json:"uptime"`
	StartTime      time.Time `json:"start_time"`
	Version        string    `json:"version"`
}

// ParseCommand parses a text command into a Command struct
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	parts := strings.SplitN(text, ":", 2)

	cmd := &Command{
		Type: strings.ToUpper(parts[0]),
		Args: make(map[string]interface{}),
	}

	if len(parts) > 1 {
		args := parts[1]

		switch cmd.Type {
		case CmdTranscribe:
			// TRANSCRIBE:/path/to/audio.wav
			cmd.Args["path"] = args

		case CmdHistory:
			// HISTORY:10 or HISTORY:search:hello world
			if strings.HasPrefix(args, "search:") {
				cmd.Args["search"] = strings.TrimPrefix(args, "search:")
			} else {
				cmd.Args["limit"] = args
			}

		case CmdSearch:
			// SEARCH:hello world
			cmd.Args["term"] = args

		case CmdSwitch:
			// SWITCH:remote
			cmd.Args["backend"] = args

		case CmdLocales, CmdAuthorize:
			// LOCALES:apple / AUTHORIZE:apple (backend optional)
			cmd.Args["backend"] = args
		}
	}

	return cmd, nil
}

// String converts a Response to its JSON wire form
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// Protocol commands
const (
	CmdStatus     = "STATUS"
	CmdBackends   = "BACKENDS"
	CmdTranscribe = "TRANSCRIBE"
	CmdHistory    = "HISTORY"
	CmdSearch     = "SEARCH"
	CmdSwitch     = "SWITCH"
	CmdLocales    = "LOCALES"
	CmdAuthorize  = "AUTHORIZE"
	CmdPing       = "PING"
	CmdQuit       = "QUIT"
)
