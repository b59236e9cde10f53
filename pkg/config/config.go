package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config represents the speechd configuration
type Config struct {
	Daemon struct {
		BindAddress     string `yaml:"bind_address"`
		Port            int    `yaml:"port"`
		UnixSocket      string `yaml:"unix_socket"`
		ShutdownTimeout int    `yaml:"shutdown_timeout"`
	} `yaml:"daemon"`

	Speech struct {
		DefaultBackend  string `yaml:"default_backend"`
		PreferredLocale string `yaml:"preferred_locale"`
		PreferOnDevice  bool   `yaml:"prefer_on_device"`
		JobTimeout      int    `yaml:"job_timeout"`
		QueueSize       int    `yaml:"queue_size"`
		HistoryLimit    int    `yaml:"history_limit"`
	} `yaml:"speech"`

	Apple struct {
		HelperPath string `yaml:"helper_path"`
	} `yaml:"apple"`

	Remote struct {
		Enabled bool     `yaml:"enabled"`
		URL     string   `yaml:"url"`
		Model   string   `yaml:"model"`
		Timeout int      `yaml:"timeout"`
		Locales []string `yaml:"locales"`
	} `yaml:"remote"`

	Mock struct {
		Enabled bool   `yaml:"enabled"`
		Text    string `yaml:"text"`
		DelayMs int    `yaml:"delay_ms"`
	} `yaml:"mock"`

	Audio struct {
		TargetSampleRate int `yaml:"target_sample_rate"`
		FFTSize          int `yaml:"fft_size"`
	} `yaml:"audio"`

	Storage struct {
		DatabasePath   string `yaml:"database_path"`
		MaxTranscripts int    `yaml:"max_transcripts"`
		MaxAgeDays     int    `yaml:"max_age_days"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Daemon.Port == 0 {
		config.Daemon.Port = 8580
	}
	if config.Daemon.BindAddress == "" {
		config.Daemon.BindAddress = "0.0.0.0"
	}
	if config.Daemon.UnixSocket == "" {
		config.Daemon.UnixSocket = "/tmp/speechd.sock"
	}
	if config.Daemon.ShutdownTimeout == 0 {
		config.Daemon.ShutdownTimeout = 10
	}
	if config.Speech.DefaultBackend == "" {
		config.Speech.DefaultBackend = "apple"
	}
	if config.Speech.PreferredLocale == "" {
		config.Speech.PreferredLocale = "en-US"
	}
	if config.Speech.JobTimeout == 0 {
		config.Speech.JobTimeout = 300
	}
	if config.Speech.QueueSize == 0 {
		config.Speech.QueueSize = 16
	}
	if config.Speech.HistoryLimit == 0 {
		config.Speech.HistoryLimit = 50
	}
	if config.Remote.URL == "" {
		config.Remote.URL = "http://127.0.0.1:8765"
	}
	if config.Remote.Model == "" {
		config.Remote.Model = "base"
	}
	if config.Remote.Timeout == 0 {
		config.Remote.Timeout = 120
	}
	if config.Mock.Text == "" {
		config.Mock.Text = "the quick brown fox jumps over the lazy dog"
	}
	if config.Audio.TargetSampleRate == 0 {
		config.Audio.TargetSampleRate = 16000
	}
	if config.Audio.FFTSize == 0 {
		config.Audio.FFTSize = 1024
	}
	if config.Storage.DatabasePath == "" {
		config.Storage.DatabasePath = "speechd.db"
	}
	if config.Storage.MaxTranscripts == 0 {
		config.Storage.MaxTranscripts = 10000
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = 100
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = 5
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = 30
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon port must be between 1 and 65535")
	}
	if c.Speech.DefaultBackend == "" {
		return fmt.Errorf("speech default_backend is required")
	}
	if c.Speech.QueueSize < 1 {
		return fmt.Errorf("speech queue_size must be at least 1")
	}
	if c.Speech.JobTimeout < 1 {
		return fmt.Errorf("speech job_timeout must be at least 1 second")
	}
	if c.Remote.Enabled && c.Remote.URL == "" {
		return fmt.Errorf("remote url is required when remote backend is enabled")
	}
	if c.Audio.FFTSize < 64 || c.Audio.FFTSize&(c.Audio.FFTSize-1) != 0 {
		return fmt.Errorf("audio fft_size must be a power of two, at least 64")
	}
	if c.Speech.PreferredLocale == "" {
		c.Speech.PreferredLocale = "en-US"
	}
	return nil
}

// GetBackendDisplayName returns a human-readable name for the configured default backend
func (c *Config) GetBackendDisplayName() string {
	switch c.Speech.DefaultBackend {
	case "apple":
		return "Apple Speech"
	case "remote":
		return "Remote ASR"
	case "mock":
		return "Mock Recognizer"
	case "":
		return "No Backend"
	default:
		return fmt.Sprintf("Backend %s", c.Speech.DefaultBackend)
	}
}
