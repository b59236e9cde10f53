package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/cuttledoc/speechd/pkg/protocol"
	"github.com/cuttledoc/speechd/pkg/speech"
)

// SocketClient represents a client connection to the speech engine
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// QueuedJob is the wire form of a job accepted by the daemon
type QueuedJob struct {
	ID        string `json:"id"`
	AudioPath string `json:"audio_path"`
	Backend   string `json:"backend,omitempty"`
	Status    string `json:"status"`
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	// Connect to Unix socket
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	// Set read/write timeout
	conn.SetDeadline(time.Now().Add(c.timeout))

	// Send command
	_, err = conn.Write([]byte(cmd + "\n"))
	if err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	// Read response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return nil, fmt.Errorf("no response received")
	}

	responseText := scanner.Text()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}

	// Parse JSON response
	var response protocol.Response
	if err := json.Unmarshal([]byte(responseText), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// GetStatus gets the current daemon status
func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	resp, err := c.SendCommand("STATUS")
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("status error: %s", resp.Error)
	}

	// Extract status from response
	statusData, ok := resp.Data["status"]
	if !ok {
		return nil, fmt.Errorf("status not found in response")
	}

	// Convert to JSON and back to parse properly
	statusJSON, _ := json.Marshal(statusData)
	var status protocol.Status
	if err := json.Unmarshal(statusJSON, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}

	return &status, nil
}

// GetBackends lists the registered speech backends
func (c *SocketClient) GetBackends() ([]speech.BackendInfo, error) {
	resp, err := c.SendCommand("BACKENDS")
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("backends error: %s", resp.Error)
	}

	backendsData, ok := resp.Data["backends"]
	if !ok {
		return []speech.BackendInfo{}, nil
	}

	// Convert to JSON and back to parse properly
	backendsJSON, _ := json.Marshal(backendsData)
	var backends []speech.BackendInfo
	if err := json.Unmarshal(backendsJSON, &backends); err != nil {
		return nil, fmt.Errorf("failed to parse backends: %w", err)
	}

	return backends, nil
}

// GetLocales lists the locales a backend supports. An empty backend
// name asks the active backend.
func (c *SocketClient) GetLocales(backend string) ([]string, error) {
	cmd := "LOCALES"
	if backend != "" {
		cmd = fmt.Sprintf("LOCALES:%s", backend)
	}

	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("locales error: %s", resp.Error)
	}

	localesData, ok := resp.Data["locales"]
	if !ok {
		return []string{}, nil
	}

	localesJSON, _ := json.Marshal(localesData)
	var locales []string
	if err := json.Unmarshal(localesJSON, &locales); err != nil {
		return nil, fmt.Errorf("failed to parse locales: %w", err)
	}

	return locales, nil
}

// Authorize asks a backend for speech authorization and returns the
// settled status plus any message
func (c *SocketClient) Authorize(backend string) (string, string, error) {
	cmd := "AUTHORIZE"
	if backend != "" {
		cmd = fmt.Sprintf("AUTHORIZE:%s", backend)
	}

	resp, err := c.SendCommand(cmd)
	if err != nil {
		return "", "", err
	}

	if !resp.Success {
		return "", "", fmt.Errorf("authorize error: %s", resp.Error)
	}

	status, _ := resp.Data["status"].(string)
	message, _ := resp.Data["message"].(string)
	return status, message, nil
}

// Transcribe queues an audio file for transcription
func (c *SocketClient) Transcribe(audioPath string) (*QueuedJob, error) {
	resp, err := c.SendCommand(fmt.Sprintf("TRANSCRIBE:%s", audioPath))
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("transcribe error: %s", resp.Error)
	}

	jobData, ok := resp.Data["job"]
	if !ok {
		return nil, fmt.Errorf("job not found in response")
	}

	jobJSON, _ := json.Marshal(jobData)
	var job QueuedJob
	if err := json.Unmarshal(jobJSON, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}

	return &job, nil
}

// GetHistory gets recent transcripts
func (c *SocketClient) GetHistory(limit int) ([]protocol.Transcript, error) {
	cmd := "HISTORY"
	if limit > 0 {
		cmd = fmt.Sprintf("HISTORY:%d", limit)
	}

	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("history error: %s", resp.Error)
	}

	return parseTranscripts(resp)
}

// SearchTranscripts finds transcripts containing a term
func (c *SocketClient) SearchTranscripts(term string) ([]protocol.Transcript, error) {
	resp, err := c.SendCommand(fmt.Sprintf("SEARCH:%s", term))
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, fmt.Errorf("search error: %s", resp.Error)
	}

	return parseTranscripts(resp)
}

// parseTranscripts extracts the transcript list from a response
func parseTranscripts(resp *protocol.Response) ([]protocol.Transcript, error) {
	transcriptsData, ok := resp.Data["transcripts"]
	if !ok {
		return []protocol.Transcript{}, nil
	}

	transcriptsJSON, _ := json.Marshal(transcriptsData)
	var transcripts []protocol.Transcript
	if err := json.Unmarshal(transcriptsJSON, &transcripts); err != nil {
		return nil, fmt.Errorf("failed to parse transcripts: %w", err)
	}

	return transcripts, nil
}

// SwitchBackend changes the active backend
func (c *SocketClient) SwitchBackend(name string) error {
	resp, err := c.SendCommand(fmt.Sprintf("SWITCH:%s", name))
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("switch error: %s", resp.Error)
	}

	return nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	resp, err := c.SendCommand("PING")
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("ping error: %s", resp.Error)
	}

	return nil
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
