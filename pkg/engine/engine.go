package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuttledoc/speechd/pkg/audio"
	"github.com/cuttledoc/speechd/pkg/config"
	"github.com/cuttledoc/speechd/pkg/protocol"
	"github.com/cuttledoc/speechd/pkg/speech"
	"github.com/cuttledoc/speechd/pkg/storage"
)

// Job states
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Engine event types delivered to subscribers
const (
	EventJobQueued       = "job.queued"
	EventJobStarted      = "job.started"
	EventJobDone         = "job.done"
	EventJobFailed       = "job.failed"
	EventAudioLevels     = "audio.levels"
	EventBackendSwitched = "backend.switched"
)

// maxTrackedJobs bounds the finished-job window kept in memory
const maxTrackedJobs = 100

// authorizeWait caps how long a control command waits for an
// authorization future to settle
const authorizeWait = 5 * time.Second

// ErrQueueFull is returned when the job queue cannot accept more work
var ErrQueueFull = errors.New("transcription queue full")

// Job tracks one transcription request through the queue
type Job struct {
	ID           string               `json:"id"`
	AudioPath    string               `json:"audio_path"`
	Backend      string               `json:"backend,omitempty"`
	Locale       string               `json:"locale,omitempty"`
	Status       string               `json:"status"`
	QueuedAt     time.Time            `json:"queued_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	Error        string               `json:"error,omitempty"`
	Err          error                `json:"-"`
	TranscriptID string               `json:"transcript_id,omitempty"`
	Result       *protocol.Transcript `json:"result,omitempty"`

	done        chan struct{}
	removeInput bool
}

// Event is a single engine event delivered to subscribers
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data,omitempty"`
}

// SpeechEngine represents the main transcription engine
type SpeechEngine struct {
	config     *config.Config
	socketPath string
	listener   net.Listener
	running    bool
	mutex      sync.RWMutex
	startTime  time.Time

	// Speech and storage components
	registry *speech.Registry
	store    *storage.TranscriptStore
	meter    *audio.LevelMeter

	// Job tracking
	jobs     chan *Job
	jobIndex map[string]*Job
	jobOrder []string
	jobMutex sync.RWMutex

	// Counters guarded by mutex
	activeJobs    int
	jobsProcessed int64
	jobsFailed    int64

	// Event subscribers
	subscribers map[int]chan Event
	nextSubID   int
	subMutex    sync.RWMutex
}

// NewSpeechEngine creates a new speech engine
func NewSpeechEngine(cfg *config.Config, registry *speech.Registry, store *storage.TranscriptStore, socketPath string) *SpeechEngine {
	queueSize := cfg.Speech.QueueSize
	if queueSize < 1 {
		queueSize = 16
	}

	return &SpeechEngine{
		config:      cfg,
		socketPath:  socketPath,
		startTime:   time.Now(),
		registry:    registry,
		store:       store,
		meter:       audio.NewLevelMeter(cfg.Audio.FFTSize),
		jobs:        make(chan *Job, queueSize),
		jobIndex:    make(map[string]*Job),
		subscribers: make(map[int]chan Event),
	}
}

// Start starts the job worker and Unix socket server
func (e *SpeechEngine) Start() error {
	e.mutex.Lock()
	e.running = true
	e.mutex.Unlock()

	// Select the configured default backend if it is registered
	if name := e.config.Speech.DefaultBackend; name != "" {
		if err := e.registry.SetDefault(name); err != nil {
			log.Printf("Warning: configured backend %q not registered, using %q",
				name, e.registry.DefaultName())
		}
	}

	// Remove existing socket file
	os.Remove(e.socketPath)

	// Create Unix domain socket
	listener, err := net.Listen("unix", e.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create Unix socket: %w", err)
	}
	e.listener = listener

	// Set socket permissions (readable/writable by owner and group)
	if err := os.Chmod(e.socketPath, 0660); err != nil {
		log.Printf("Warning: failed to set socket permissions: %v", err)
	}

	log.Printf("Speech engine listening on %s", e.socketPath)

	// Start job worker
	go e.jobWorker()

	// Accept connections
	go e.acceptConnections()

	return nil
}

// Stop stops the engine and closes the socket
func (e *SpeechEngine) Stop() error {
	e.mutex.Lock()
	e.running = false
	e.mutex.Unlock()

	if e.listener != nil {
		e.listener.Close()
	}

	// Clean up socket file
	os.Remove(e.socketPath)

	e.closeSubscribers()

	return nil
}

// isRunning checks if the engine is running
func (e *SpeechEngine) isRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

// acceptConnections accepts and handles socket connections
func (e *SpeechEngine) acceptConnections() {
	for e.isRunning() {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.isRunning() {
				log.Printf("Socket accept error: %v", err)
			}
			continue
		}

		go e.handleConnection(conn)
	}
}

// handleConnection handles a single socket connection
func (e *SpeechEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// Parse command
		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		// Handle command
		response := e.HandleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		// Close connection after QUIT command
		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

// HandleCommand processes a single control command
func (e *SpeechEngine) HandleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return e.handleStatus()

	case protocol.CmdBackends:
		return e.handleBackends()

	case protocol.CmdLocales:
		return e.handleLocales(cmd)

	case protocol.CmdAuthorize:
		return e.handleAuthorize(cmd)

	case protocol.CmdTranscribe:
		return e.handleTranscribe(cmd)

	case protocol.CmdHistory:
		return e.handleHistory(cmd)

	case protocol.CmdSearch:
		return e.handleSearch(cmd)

	case protocol.CmdSwitch:
		return e.handleSwitch(cmd)

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

// handleStatus returns current daemon status
func (e *SpeechEngine) handleStatus() *protocol.Response {
	return protocol.NewSuccessResponse(map[string]interface{}{
		"status": e.Status(),
	})
}

// handleBackends returns the registered backends with live availability
func (e *SpeechEngine) handleBackends() *protocol.Response {
	infos := e.registry.List()
	return protocol.NewSuccessResponse(map[string]interface{}{
		"backends": infos,
		"count":    len(infos),
		"active":   e.registry.DefaultName(),
	})
}

// handleLocales returns the locales a backend supports
func (e *SpeechEngine) handleLocales(cmd *protocol.Command) *protocol.Response {
	name, _ := cmd.Args["backend"].(string)
	backend, err := e.resolveBackend(name)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	locales := backend.GetSupportedLocales()
	if locales == nil {
		locales = []string{}
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"backend": backend.Name(),
		"locales": locales,
		"count":   len(locales),
	})
}

// handleAuthorize asks a backend for speech authorization. Backends
// settle the future immediately unless a real consent prompt is shown,
// so the wait only triggers on interactive platforms.
func (e *SpeechEngine) handleAuthorize(cmd *protocol.Command) *protocol.Response {
	name, _ := cmd.Args["backend"].(string)
	backend, err := e.resolveBackend(name)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	data := map[string]interface{}{
		"backend": backend.Name(),
	}

	select {
	case result, ok := <-backend.RequestAuthorization():
		if !ok {
			data["status"] = string(speech.AuthorizationNotDetermined)
		} else {
			data["status"] = string(result.Status)
			if result.Err != nil {
				data["message"] = result.Err.Error()
			}
		}

	case <-time.After(authorizeWait):
		data["status"] = "pending"
	}

	return protocol.NewSuccessResponse(data)
}

// handleTranscribe queues an audio file for transcription
func (e *SpeechEngine) handleTranscribe(cmd *protocol.Command) *protocol.Response {
	path, _ := cmd.Args["path"].(string)
	if path == "" {
		return protocol.NewErrorResponse("audio path cannot be empty")
	}

	backendName, _ := cmd.Args["backend"].(string)
	locale, _ := cmd.Args["locale"].(string)

	job, err := e.EnqueueJob(path, backendName, locale)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"status": "queued",
		"job":    job,
	})
}

// handleHistory returns recent transcripts, optionally filtered
func (e *SpeechEngine) handleHistory(cmd *protocol.Command) *protocol.Response {
	limit := e.config.Speech.HistoryLimit
	if raw, ok := cmd.Args["limit"].(string); ok && raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return protocol.NewErrorResponse(fmt.Sprintf("invalid limit: %s", raw))
		}
		limit = parsed
	}

	var transcripts []*protocol.Transcript
	var err error
	if term, ok := cmd.Args["search"].(string); ok && term != "" {
		transcripts, err = e.store.SearchTranscripts(term, limit)
	} else {
		transcripts, err = e.store.GetRecentTranscripts(limit)
	}
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("history query failed: %v", err))
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"transcripts": transcripts,
		"count":       len(transcripts),
	})
}

// handleSearch finds transcripts containing a term
func (e *SpeechEngine) handleSearch(cmd *protocol.Command) *protocol.Response {
	term, _ := cmd.Args["term"].(string)
	if term == "" {
		return protocol.NewErrorResponse("search term cannot be empty")
	}

	transcripts, err := e.store.SearchTranscripts(term, e.config.Speech.HistoryLimit)
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("search failed: %v", err))
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"transcripts": transcripts,
		"count":       len(transcripts),
	})
}

// handleSwitch changes the active backend
func (e *SpeechEngine) handleSwitch(cmd *protocol.Command) *protocol.Response {
	name, _ := cmd.Args["backend"].(string)
	if name == "" {
		return protocol.NewErrorResponse("backend name cannot be empty")
	}

	info, err := e.SwitchBackend(name)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	return protocol.NewSuccessResponse(map[string]interface{}{
		"active":    info.Name,
		"available": info.Available,
		"on_device": info.OnDevice,
	})
}

// EnqueueJob adds a transcription job to the queue. The audio file
// belongs to the caller and is left in place.
func (e *SpeechEngine) EnqueueJob(audioPath, backendName, locale string) (*Job, error) {
	return e.enqueue(audioPath, backendName, locale, false)
}

// EnqueueUpload queues a job whose input file the engine owns. The file
// is removed once the job settles, so callers handing off uploaded temp
// files need no cleanup of their own.
func (e *SpeechEngine) EnqueueUpload(audioPath, backendName, locale string) (*Job, error) {
	return e.enqueue(audioPath, backendName, locale, true)
}

func (e *SpeechEngine) enqueue(audioPath, backendName, locale string, removeInput bool) (*Job, error) {
	if audioPath == "" {
		return nil, fmt.Errorf("audio path cannot be empty")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not accessible: %w", err)
	}
	if backendName != "" {
		if _, err := e.registry.Get(backendName); err != nil {
			return nil, err
		}
	}

	job := &Job{
		ID:          uuid.NewString(),
		AudioPath:   audioPath,
		Backend:     backendName,
		Locale:      locale,
		Status:      JobQueued,
		QueuedAt:    time.Now(),
		done:        make(chan struct{}),
		removeInput: removeInput,
	}

	select {
	case e.jobs <- job:
		e.trackJob(job)
		log.Printf("Engine: job %s queued for %s", job.ID, job.AudioPath)
		e.publish(EventJobQueued, e.jobSnapshot(job))
		return e.jobSnapshot(job), nil
	default:
		return nil, ErrQueueFull
	}
}

// GetJob returns a copy of a tracked job
func (e *SpeechEngine) GetJob(id string) (*Job, bool) {
	e.jobMutex.RLock()
	defer e.jobMutex.RUnlock()

	job, ok := e.jobIndex[id]
	if !ok {
		return nil, false
	}
	clone := *job
	return &clone, true
}

// ListJobs returns copies of tracked jobs, newest first
func (e *SpeechEngine) ListJobs() []*Job {
	e.jobMutex.RLock()
	defer e.jobMutex.RUnlock()

	jobs := make([]*Job, 0, len(e.jobOrder))
	for i := len(e.jobOrder) - 1; i >= 0; i-- {
		if job, ok := e.jobIndex[e.jobOrder[i]]; ok {
			clone := *job
			jobs = append(jobs, &clone)
		}
	}
	return jobs
}

// WaitForJob blocks until the job finishes or the context is done
func (e *SpeechEngine) WaitForJob(ctx context.Context, id string) (*Job, error) {
	e.jobMutex.RLock()
	job, ok := e.jobIndex[id]
	e.jobMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown job: %s", id)
	}

	select {
	case <-job.done:
		return e.jobSnapshot(job), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetBackend resolves a backend by name, or the default for ""
func (e *SpeechEngine) GetBackend(name string) (speech.Backend, error) {
	return e.resolveBackend(name)
}

// ListBackends returns the registry snapshot
func (e *SpeechEngine) ListBackends() []speech.BackendInfo {
	return e.registry.List()
}

// ActiveBackend returns the name of the current default backend
func (e *SpeechEngine) ActiveBackend() string {
	return e.registry.DefaultName()
}

// SwitchBackend changes the default backend. Switching to an
// unavailable backend is allowed so a target can be selected before it
// comes up.
func (e *SpeechEngine) SwitchBackend(name string) (*speech.BackendInfo, error) {
	backend, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if err := e.registry.SetDefault(name); err != nil {
		return nil, err
	}

	e.mutex.Lock()
	e.config.Speech.DefaultBackend = name
	e.mutex.Unlock()

	available := backend.IsAvailable()
	if available {
		log.Printf("Engine: switched to backend %q", name)
	} else {
		log.Printf("Warning: switched to backend %q which is not available", name)
	}

	info := &speech.BackendInfo{
		Name:      name,
		Available: available,
		OnDevice:  backend.SupportsOnDevice(),
		Locales:   backend.GetSupportedLocales(),
		Default:   true,
	}
	if info.Locales == nil {
		info.Locales = []string{}
	}

	e.publish(EventBackendSwitched, info)
	return info, nil
}

// Status returns a point-in-time snapshot of the daemon state
func (e *SpeechEngine) Status() protocol.Status {
	e.mutex.RLock()
	status := protocol.Status{
		ActiveBackend:  e.registry.DefaultName(),
		BackendDisplay: e.config.GetBackendDisplayName(),
		QueueDepth:     len(e.jobs),
		ActiveJobs:     e.activeJobs,
		JobsProcessed:  e.jobsProcessed,
		JobsFailed:     e.jobsFailed,
		Uptime:         time.Since(e.startTime).String(),
		StartTime:      e.startTime,
		Version:        "0.1.0-dev",
	}
	e.mutex.RUnlock()

	if backend, err := e.registry.Default(); err == nil {
		status.Available = backend.IsAvailable()
		status.OnDevice = backend.SupportsOnDevice()
	}

	if count, err := e.store.GetTranscriptCount(); err == nil {
		status.Transcripts = count
	}

	return status
}

// Subscribe registers an event channel. The returned function removes
// the subscription and closes the channel.
func (e *SpeechEngine) Subscribe() (<-chan Event, func()) {
	e.subMutex.Lock()
	defer e.subMutex.Unlock()

	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Event, 16)
	e.subscribers[id] = ch

	return ch, func() {
		e.subMutex.Lock()
		defer e.subMutex.Unlock()
		if sub, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(sub)
		}
	}
}

// publish fans an event out to subscribers. Slow subscribers have the
// event dropped rather than blocking the engine.
func (e *SpeechEngine) publish(eventType string, data interface{}) {
	event := Event{
		Type: eventType,
		Time: time.Now(),
		Data: data,
	}

	e.subMutex.RLock()
	defer e.subMutex.RUnlock()

	for id, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
			log.Printf("Engine: dropping %s event for slow subscriber %d", eventType, id)
		}
	}
}

// closeSubscribers closes every event channel at shutdown
func (e *SpeechEngine) closeSubscribers() {
	e.subMutex.Lock()
	defer e.subMutex.Unlock()

	for id, ch := range e.subscribers {
		delete(e.subscribers, id)
		close(ch)
	}
}

// resolveBackend picks the named backend or falls back to the default
func (e *SpeechEngine) resolveBackend(name string) (speech.Backend, error) {
	if name != "" {
		return e.registry.Get(name)
	}
	return e.registry.Default()
}

// trackJob records a job in the in-memory index
func (e *SpeechEngine) trackJob(job *Job) {
	e.jobMutex.Lock()
	defer e.jobMutex.Unlock()

	e.jobIndex[job.ID] = job
	e.jobOrder = append(e.jobOrder, job.ID)

	// Evict finished jobs beyond the tracking window
	for len(e.jobOrder) > maxTrackedJobs {
		oldest := e.jobOrder[0]
		tracked, ok := e.jobIndex[oldest]
		if !ok {
			e.jobOrder = e.jobOrder[1:]
			continue
		}
		if tracked.Status != JobDone && tracked.Status != JobFailed {
			break
		}
		delete(e.jobIndex, oldest)
		e.jobOrder = e.jobOrder[1:]
	}
}

// jobSnapshot returns a copy safe to hand to subscribers
func (e *SpeechEngine) jobSnapshot(job *Job) *Job {
	e.jobMutex.RLock()
	defer e.jobMutex.RUnlock()

	clone := *job
	return &clone
}

// jobWorker processes queued transcription jobs one at a time
func (e *SpeechEngine) jobWorker() {
	for e.isRunning() {
		select {
		case job := <-e.jobs:
			e.processJob(job)

		case <-time.After(1 * time.Second):
			// Periodic wakeup to observe shutdown
			continue
		}
	}
}

// processJob runs a single transcription job end to end
func (e *SpeechEngine) processJob(job *Job) {
	e.mutex.Lock()
	e.activeJobs++
	e.mutex.Unlock()

	started := time.Now()
	e.jobMutex.Lock()
	job.Status = JobRunning
	job.StartedAt = &started
	e.jobMutex.Unlock()

	log.Printf("Engine: job %s started (%s)", job.ID, job.AudioPath)
	e.publish(EventJobStarted, e.jobSnapshot(job))

	transcript, err := e.transcribeFile(job)

	// Engine-owned inputs are dropped once the transcription attempt is
	// over, whatever its outcome
	if job.removeInput {
		if rerr := os.Remove(job.AudioPath); rerr != nil {
			log.Printf("Warning: failed to remove upload %s: %v", job.AudioPath, rerr)
		}
	}

	finished := time.Now()
	e.jobMutex.Lock()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		job.Err = err
	} else {
		job.Status = JobDone
		job.TranscriptID = transcript.ID
		job.Result = transcript
	}
	e.jobMutex.Unlock()
	close(job.done)

	e.mutex.Lock()
	e.activeJobs--
	if err != nil {
		e.jobsFailed++
	} else {
		e.jobsProcessed++
	}
	e.mutex.Unlock()

	if err != nil {
		log.Printf("Engine: job %s failed: %v", job.ID, err)
		if serr := e.store.RecordFailure(); serr != nil {
			log.Printf("Warning: failed to record failure: %v", serr)
		}
		e.publish(EventJobFailed, e.jobSnapshot(job))
		return
	}

	log.Printf("Engine: job %s done (%.2fs audio in %.2fs)",
		job.ID, transcript.DurationSeconds, transcript.ProcessingSeconds)
	e.publish(EventJobDone, e.jobSnapshot(job))
}

// transcribeFile loads, analyzes and transcribes the audio for a job
func (e *SpeechEngine) transcribeFile(job *Job) (*protocol.Transcript, error) {
	backend, err := e.resolveBackend(job.Backend)
	if err != nil {
		return nil, err
	}

	clip, err := audio.ReadWAVFile(job.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	// Resample to the rate the backends expect
	targetRate := e.config.Audio.TargetSampleRate
	if targetRate > 0 && clip.SampleRate != targetRate {
		clip.Samples = audio.Resample(clip.Samples, clip.SampleRate, targetRate)
		clip.SampleRate = targetRate
	}

	analysis := e.meter.Analyze(clip)
	e.publish(EventAudioLevels, map[string]interface{}{
		"job_id":      job.ID,
		"rms_db":      analysis.RMSdB,
		"peak_db":     analysis.PeakdB,
		"clipping":    analysis.Clipping,
		"dominant_hz": analysis.DominantHz,
	})
	if analysis.Clipping {
		log.Printf("Warning: job %s audio is clipping (peak %.1f dBFS)", job.ID, analysis.PeakdB)
	}

	locale := job.Locale
	if locale == "" {
		locale = e.config.Speech.PreferredLocale
	}

	timeout := time.Duration(e.config.Speech.JobTimeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	result, err := backend.Transcribe(ctx, speech.TranscribeRequest{
		AudioPath:      job.AudioPath,
		Locale:         locale,
		PreferOnDevice: e.config.Speech.PreferOnDevice,
	})
	if err != nil {
		return nil, err
	}

	processing := result.ProcessingSeconds
	if processing == 0 {
		processing = time.Since(start).Seconds()
	}

	duration := result.DurationSeconds
	if duration == 0 {
		duration = clip.DurationSeconds()
	}

	transcript := &protocol.Transcript{
		AudioPath:         job.AudioPath,
		Backend:           backend.Name(),
		Locale:            result.Locale,
		Text:              result.Text,
		DurationSeconds:   duration,
		ProcessingSeconds: processing,
		RMSdB:             float64(analysis.RMSdB),
		PeakdB:            float64(analysis.PeakdB),
		Segments:          result.Segments,
	}
	if transcript.Locale == "" {
		transcript.Locale = locale
	}

	if err := e.store.StoreTranscript(transcript); err != nil {
		return nil, fmt.Errorf("failed to store transcript: %w", err)
	}

	return transcript, nil
}
