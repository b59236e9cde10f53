package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/cuttledoc/speechd/pkg/client"
	"github.com/cuttledoc/speechd/pkg/config"
	"github.com/cuttledoc/speechd/pkg/engine"
	"github.com/cuttledoc/speechd/pkg/speech"
	"github.com/cuttledoc/speechd/pkg/speech/apple"
	"github.com/cuttledoc/speechd/pkg/speech/mock"
	"github.com/cuttledoc/speechd/pkg/speech/remote"
	"github.com/cuttledoc/speechd/pkg/storage"
)

// SpeechDaemon represents the main daemon with Unix socket architecture
type SpeechDaemon struct {
	config     *config.Config
	configPath string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// Core components
	engine       *engine.SpeechEngine
	registry     *speech.Registry
	store        *storage.TranscriptStore
	socketClient *client.SocketClient
	webServer    *http.Server

	// Socket path
	socketPath string
}

// NewSpeechDaemon creates a new daemon instance
func NewSpeechDaemon(cfg *config.Config, configPath string) (*SpeechDaemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	socketPath := cfg.Daemon.UnixSocket
	if socketPath == "" {
		socketPath = "/tmp/speechd.sock"
	}

	daemon := &SpeechDaemon{
		config:       cfg,
		configPath:   configPath,
		ctx:          ctx,
		cancel:       cancel,
		socketPath:   socketPath,
		socketClient: client.NewSocketClient(socketPath),
	}

	// Register speech backends
	daemon.registry = registerBackends(cfg)

	// Open transcript storage
	store, err := storage.NewTranscriptStore(cfg.Storage.DatabasePath, cfg.Storage.MaxTranscripts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open transcript store: %w", err)
	}
	daemon.store = store

	// Create speech engine
	daemon.engine = engine.NewSpeechEngine(cfg, daemon.registry, store, socketPath)

	// Initialize web server
	if err := daemon.setupWebServer(); err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("failed to setup web server: %w", err)
	}

	return daemon, nil
}

// registerBackends builds the backend registry from configuration. The
// Apple backend is always registered so callers can query it even on
// platforms where it reports unavailable.
func registerBackends(cfg *config.Config) *speech.Registry {
	registry := speech.NewRegistry()

	registry.Register(apple.New(apple.Config{
		HelperPath: cfg.Apple.HelperPath,
	}))

	if cfg.Remote.Enabled {
		registry.Register(remote.New(remote.Config{
			URL:     cfg.Remote.URL,
			Model:   cfg.Remote.Model,
			Timeout: time.Duration(cfg.Remote.Timeout) * time.Second,
			Locales: cfg.Remote.Locales,
		}))
	}

	if cfg.Mock.Enabled {
		registry.Register(mock.New(cfg.Mock.Text, time.Duration(cfg.Mock.DelayMs)*time.Millisecond))
	}

	return registry
}

// Start starts the daemon
func (d *SpeechDaemon) Start() error {
	log.Printf("Starting speechd daemon...")

	// Start speech engine first
	if err := d.engine.Start(); err != nil {
		return fmt.Errorf("failed to start speech engine: %w", err)
	}

	// Wait a moment for socket to be ready
	time.Sleep(100 * time.Millisecond)

	// Test socket connection
	if !d.socketClient.IsConnected() {
		return fmt.Errorf("failed to connect to speech engine socket")
	}

	// Start web server
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		addr := fmt.Sprintf("%s:%d", d.config.Daemon.BindAddress, d.config.Daemon.Port)
		log.Printf("Starting web server on %s", addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Web server error: %v", err)
		}
	}()

	// Start transcript retention sweeper (if enabled)
	if d.config.Storage.MaxAgeDays > 0 {
		d.wg.Add(1)
		go d.retentionSweeper()
	}

	return nil
}

// Stop stops the daemon gracefully
func (d *SpeechDaemon) Stop() error {
	log.Printf("Stopping daemon...")

	d.cancel()

	// Shutdown web server
	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			log.Printf("Web server shutdown error: %v", err)
		}
	}

	// Stop speech engine
	if d.engine != nil {
		if err := d.engine.Stop(); err != nil {
			log.Printf("Speech engine shutdown error: %v", err)
		}
	}

	// Close transcript storage
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Printf("Transcript store close error: %v", err)
		}
	}

	// Wait for goroutines to finish
	d.wg.Wait()

	log.Printf("Daemon stopped")
	return nil
}

// setupWebServer initializes the web server and routes
func (d *SpeechDaemon) setupWebServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// API routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", d.handleHealth)
		api.GET("/status", d.handleGetStatus)
		api.GET("/backends", d.handleGetBackends)
		api.POST("/backends/switch", d.handleSwitchBackend)
		api.GET("/locales", d.handleGetLocales)
		api.POST("/authorize", d.handleAuthorize)
		api.POST("/transcribe", d.handleTranscribe)
		api.GET("/jobs", d.handleGetJobs)
		api.GET("/jobs/:id", d.handleGetJob)
		api.GET("/transcripts", d.handleGetTranscripts)
		api.GET("/transcripts/:id", d.handleGetTranscript)
		api.DELETE("/transcripts/:id", d.handleDeleteTranscript)
		api.GET("/stats", d.handleGetStats)
		api.GET("/config", d.handleGetConfig)
		api.PUT("/config", d.handleSaveConfig)

		// WebSocket endpoint for engine events
		api.GET("/ws", d.handleWebSocket)
	}

	addr := fmt.Sprintf("%s:%d", d.config.Daemon.BindAddress, d.config.Daemon.Port)
	d.webServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return nil
}

// retentionSweeper deletes transcripts older than the configured age
func (d *SpeechDaemon) retentionSweeper() {
	defer d.wg.Done()

	maxAge := time.Duration(d.config.Storage.MaxAgeDays) * 24 * time.Hour
	log.Printf("Starting transcript retention sweeper (max age %d days)", d.config.Storage.MaxAgeDays)

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-maxAge)
			deleted, err := d.store.DeleteOlderThan(cutoff)
			if err != nil {
				log.Printf("Retention sweep failed: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("Retention sweep deleted %d transcripts older than %s", deleted, cutoff.Format(time.RFC3339))
			}
		}
	}
}
