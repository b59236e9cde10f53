package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v2"

	"github.com/cuttledoc/speechd/pkg/engine"
	"github.com/cuttledoc/speechd/pkg/speech"
	"github.com/cuttledoc/speechd/pkg/storage"
)

// syncTranscribeTimeout caps how long a synchronous transcribe request
// waits before falling back to the job ID for polling
const syncTranscribeTimeout = 60 * time.Second

// handleHealth reports daemon liveness plus the active backend and its
// availability
func (d *SpeechDaemon) handleHealth(c *gin.Context) {
	status := d.engine.Status()

	if err := d.socketClient.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "degraded",
			"version":   Version,
			"backend":   status.ActiveBackend,
			"available": status.Available,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   Version,
		"backend":   status.ActiveBackend,
		"available": status.Available,
	})
}

// handleGetStatus returns daemon status via socket
func (d *SpeechDaemon) handleGetStatus(c *gin.Context) {
	status, err := d.socketClient.GetStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "running",
		"version":        status.Version,
		"backend":        status.ActiveBackend,
		"display":        status.BackendDisplay,
		"available":      status.Available,
		"on_device":      status.OnDevice,
		"queue_depth":    status.QueueDepth,
		"active_jobs":    status.ActiveJobs,
		"jobs_processed": status.JobsProcessed,
		"jobs_failed":    status.JobsFailed,
		"transcripts":    status.Transcripts,
		"uptime":         status.Uptime,
	})
}

// handleGetBackends returns the registered speech backends via socket
func (d *SpeechDaemon) handleGetBackends(c *gin.Context) {
	backends, err := d.socketClient.GetBackends()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"backends": backends,
		"count":    len(backends),
	})
}

// handleSwitchBackend changes the active speech backend. The switch
// goes straight to the engine rather than over the socket so an unknown
// backend keeps its error identity.
func (d *SpeechDaemon) handleSwitchBackend(c *gin.Context) {
	var req struct {
		Backend string `json:"backend" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := d.engine.SwitchBackend(req.Backend)
	if err != nil {
		if errors.Is(err, speech.ErrBackendNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"backend":   info.Name,
		"available": info.Available,
	})
}

// handleGetLocales returns the locales a backend supports
func (d *SpeechDaemon) handleGetLocales(c *gin.Context) {
	backend := c.Query("backend")

	locales, err := d.socketClient.GetLocales(backend)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	if backend == "" {
		backend = d.engine.ActiveBackend()
	}

	c.JSON(http.StatusOK, gin.H{
		"backend": backend,
		"locales": locales,
		"count":   len(locales),
	})
}

// handleAuthorize requests speech recognition authorization from a
// backend. The result is already settled for backends without an
// interactive consent prompt, so this normally returns immediately.
func (d *SpeechDaemon) handleAuthorize(c *gin.Context) {
	var req struct {
		Backend string `json:"backend"`
	}

	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	status, message, err := d.socketClient.Authorize(req.Backend)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	backend := req.Backend
	if backend == "" {
		backend = d.engine.ActiveBackend()
	}

	resp := gin.H{
		"backend": backend,
		"status":  status,
	}
	if message != "" {
		resp["message"] = message
	}

	// Denials are reported in the body, not as an HTTP error: the
	// request itself succeeded even when authorization did not.
	c.JSON(http.StatusOK, resp)
}

// handleTranscribe accepts an audio file (multipart upload or a JSON
// path reference) and queues it for transcription. With wait=true (the
// default) the response carries the finished transcript; wait=false
// returns 202 with the job for later polling.
func (d *SpeechDaemon) handleTranscribe(c *gin.Context) {
	backend := c.PostForm("backend")
	locale := c.PostForm("locale")
	wait := c.DefaultQuery("wait", "true") != "false"

	var audioPath string
	var uploaded bool

	if file, err := c.FormFile("file"); err == nil {
		// Save the upload where the engine worker can read it
		name := fmt.Sprintf("speechd-upload-%s%s", uuid.NewString(), filepath.Ext(file.Filename))
		audioPath = filepath.Join(os.TempDir(), name)
		if err := c.SaveUploadedFile(file, audioPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("failed to save upload: %v", err),
			})
			return
		}
		uploaded = true
	} else {
		var req struct {
			Path    string `json:"path" binding:"required"`
			Backend string `json:"backend"`
			Locale  string `json:"locale"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "audio upload or JSON path required",
			})
			return
		}

		audioPath = req.Path
		if req.Backend != "" {
			backend = req.Backend
		}
		if req.Locale != "" {
			locale = req.Locale
		}
	}

	// Uploads become engine-owned once queued: the worker removes them
	// when the job settles, covering the async and timed-out paths too
	enqueue := d.engine.EnqueueJob
	if uploaded {
		enqueue = d.engine.EnqueueUpload
	}

	job, err := enqueue(audioPath, backend, locale)
	if err != nil {
		if uploaded {
			os.Remove(audioPath)
		}
		if errors.Is(err, engine.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !wait {
		c.JSON(http.StatusAccepted, gin.H{
			"status": "queued",
			"job":    job,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), syncTranscribeTimeout)
	defer cancel()

	finished, err := d.engine.WaitForJob(ctx, job.ID)
	if err != nil {
		// Still processing: hand back the job ID for polling
		c.JSON(http.StatusAccepted, gin.H{
			"status": "processing",
			"job":    job,
		})
		return
	}

	if finished.Status == engine.JobFailed {
		code := http.StatusInternalServerError
		if speech.IsBackendUnavailable(finished.Err) {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"error": finished.Error,
			"job":   finished,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "complete",
		"job":        finished,
		"transcript": finished.Result,
	})
}

// handleGetJobs returns recent transcription jobs, newest first
func (d *SpeechDaemon) handleGetJobs(c *gin.Context) {
	jobs := d.engine.ListJobs()

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns a single transcription job by ID
func (d *SpeechDaemon) handleGetJob(c *gin.Context) {
	id := c.Param("id")

	job, ok := d.engine.GetJob(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("unknown job: %s", id),
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// handleGetTranscripts returns stored transcripts with optional filters
func (d *SpeechDaemon) handleGetTranscripts(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		limit = 50
	}

	offsetStr := c.DefaultQuery("offset", "0")
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		offset = 0
	}

	query := storage.TranscriptQuery{
		Limit:      limit,
		Offset:     offset,
		Backend:    c.Query("backend"),
		SearchText: c.Query("search"),
	}

	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("invalid since timestamp: %v", err),
			})
			return
		}
		query.Since = &since
	}

	transcripts, err := d.store.GetTranscripts(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transcripts": transcripts,
		"count":       len(transcripts),
	})
}

// handleGetTranscript returns a single transcript with its segments
func (d *SpeechDaemon) handleGetTranscript(c *gin.Context) {
	id := c.Param("id")

	transcript, err := d.store.GetTranscript(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": fmt.Sprintf("unknown transcript: %s", id),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, transcript)
}

// handleDeleteTranscript removes a transcript and its segments
func (d *SpeechDaemon) handleDeleteTranscript(c *gin.Context) {
	id := c.Param("id")

	if err := d.store.DeleteTranscript(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": fmt.Sprintf("unknown transcript: %s", id),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"id":     id,
	})
}

// handleGetStats returns storage totals plus live queue counters
func (d *SpeechDaemon) handleGetStats(c *gin.Context) {
	stats, err := d.store.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	status := d.engine.Status()

	c.JSON(http.StatusOK, gin.H{
		"storage":        stats,
		"queue_depth":    status.QueueDepth,
		"active_jobs":    status.ActiveJobs,
		"jobs_processed": status.JobsProcessed,
		"jobs_failed":    status.JobsFailed,
		"uptime":         status.Uptime,
	})
}

// handleGetConfig returns the current configuration
func (d *SpeechDaemon) handleGetConfig(c *gin.Context) {
	// Marshal to YAML then unmarshal to JSON via map to ensure
	// field names match the YAML structure and JSON compatibility
	yamlData, err := yaml.Marshal(d.config)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to marshal config: %v", err),
		})
		return
	}

	// Unmarshal YAML to interface{} then convert to JSON-compatible map
	var yamlConfig interface{}
	if err := yaml.Unmarshal(yamlData, &yamlConfig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to unmarshal config: %v", err),
		})
		return
	}

	// Convert map[interface{}]interface{} to map[string]interface{} recursively
	configMap := convertYamlToJson(yamlConfig)

	c.JSON(http.StatusOK, configMap)
}

// convertYamlToJson converts YAML map[interface{}]interface{} to JSON-compatible map[string]interface{}
func convertYamlToJson(i interface{}) interface{} {
	switch x := i.(type) {
	case map[interface{}]interface{}:
		m2 := map[string]interface{}{}
		for k, v := range x {
			m2[k.(string)] = convertYamlToJson(v)
		}
		return m2
	case []interface{}:
		for i, v := range x {
			x[i] = convertYamlToJson(v)
		}
	}
	return i
}

// deepMerge recursively merges source map into destination map
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	// First copy all dst values
	for k, v := range dst {
		result[k] = v
	}

	// Then merge src values
	for k, v := range src {
		if srcMap, srcOk := v.(map[string]interface{}); srcOk {
			if dstMap, dstOk := result[k].(map[string]interface{}); dstOk {
				// Both are maps, merge recursively
				result[k] = deepMerge(dstMap, srcMap)
			} else {
				// Destination is not a map, replace with source
				result[k] = v
			}
		} else {
			// Source is not a map, replace destination
			result[k] = v
		}
	}

	return result
}

// handleSaveConfig saves the configuration to file
func (d *SpeechDaemon) handleSaveConfig(c *gin.Context) {
	var newConfig map[string]interface{}
	if err := c.ShouldBindJSON(&newConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Get current configuration and convert to map format
	yamlData, err := yaml.Marshal(d.config)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to marshal current config: %v", err),
		})
		return
	}

	var currentConfig interface{}
	if err := yaml.Unmarshal(yamlData, &currentConfig); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to unmarshal current config: %v", err),
		})
		return
	}

	// Convert to JSON-compatible format
	currentConfigMap := convertYamlToJson(currentConfig).(map[string]interface{})

	// Merge new configuration into current configuration
	mergedConfig := deepMerge(currentConfigMap, newConfig)

	// Convert merged config to YAML and save to file
	yamlData, err = yaml.Marshal(mergedConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to marshal config: %v", err),
		})
		return
	}

	configPath := d.configPath
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Write to file
	if err := os.WriteFile(configPath, yamlData, 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to write config file: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "saved",
		"path":   configPath,
	})
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// handleWebSocket streams engine events to WebSocket clients
func (d *SpeechDaemon) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("Event WebSocket client connected")

	events, unsubscribe := d.engine.Subscribe()
	defer unsubscribe()

	// Drain client frames so close and pong frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			log.Printf("Event WebSocket client disconnected")
			return

		case <-d.ctx.Done():
			return
		}
	}
}
