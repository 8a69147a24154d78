package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/go-cuse-mixer/pkg/audio"
)

// Sink types understood by the sink package.
const (
	SinkDevice = "device"
	SinkWAV    = "wav"
	SinkOto    = "oto"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// LogFileConfig enables a rotating log file next to stderr logging.
type LogFileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MixerConfig tunes the mixer thread.
type MixerConfig struct {
	MaxEvents int `yaml:"max_events"`
}

// SinkConfig selects where mixed fragments go.
type SinkConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// IngestConfig configures the websocket stream ingestion server.
type IngestConfig struct {
	Listen        string        `yaml:"listen"`
	QueueBytes    int           `yaml:"queue_bytes"`
	HistorySize   int           `yaml:"history_size"`
	DefaultVolume float64       `yaml:"default_volume"`
	CloseTimeout  time.Duration `yaml:"close_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"` // zero keeps silent clients connected
}

// Config stores the application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file"`
	Audio    audio.Format  `yaml:"audio"`
	Mixer    MixerConfig   `yaml:"mixer"`
	Sink     SinkConfig    `yaml:"sink"`
	Ingest   IngestConfig  `yaml:"ingest"`
}

// LoadConfig loads the configuration from the given file path, fills in
// defaults and validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration data.
func Parse(data []byte) (*Config, error) {
	// keys missing from the document keep these values; zero is a valid
	// volume so it cannot be defaulted after decoding
	cfg := Config{Ingest: IngestConfig{DefaultVolume: 1.0}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFile.Enabled {
		if c.LogFile.Filename == "" {
			c.LogFile.Filename = "cuse-mixd.log"
		}
		if c.LogFile.MaxSizeMB == 0 {
			c.LogFile.MaxSizeMB = 10
		}
	}
	if c.Audio.Bits == 0 {
		c.Audio.Bits = audio.S16Bits
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 2
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 44100
	}
	if c.Audio.FragmentSize == 0 {
		c.Audio.FragmentSize = 4096
	}
	if c.Mixer.MaxEvents == 0 {
		c.Mixer.MaxEvents = 64
	}
	if c.Sink.Type == "" {
		c.Sink.Type = SinkDevice
	}
	if c.Sink.Type == SinkDevice && c.Sink.Path == "" {
		c.Sink.Path = "/dev/dsp"
	}
	if c.Ingest.Listen == "" {
		c.Ingest.Listen = "127.0.0.1:8750"
	}
	if c.Ingest.QueueBytes == 0 {
		c.Ingest.QueueBytes = 8 * c.Audio.FragmentSize
	}
	if c.Ingest.HistorySize == 0 {
		c.Ingest.HistorySize = 128
	}
	if c.Ingest.CloseTimeout == 0 {
		c.Ingest.CloseTimeout = 2 * time.Second
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("%w: audio: %w", ErrInvalidConfig, err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}

	if c.Mixer.MaxEvents < 1 {
		return fmt.Errorf("%w: mixer.max_events must be positive", ErrInvalidConfig)
	}

	switch c.Sink.Type {
	case SinkDevice, SinkWAV:
		if c.Sink.Path == "" {
			return fmt.Errorf("%w: sink.path is required for %s sinks", ErrInvalidConfig, c.Sink.Type)
		}
	case SinkOto:
	default:
		return fmt.Errorf("%w: unknown sink.type %q", ErrInvalidConfig, c.Sink.Type)
	}

	if c.Ingest.QueueBytes < c.Audio.FragmentSize {
		return fmt.Errorf("%w: ingest.queue_bytes must hold at least one fragment (%d)",
			ErrInvalidConfig, c.Audio.FragmentSize)
	}
	if c.Ingest.IdleTimeout < 0 {
		return fmt.Errorf("%w: ingest.idle_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Ingest.DefaultVolume < 0 {
		return fmt.Errorf("%w: ingest.default_volume must not be negative", ErrInvalidConfig)
	}

	return nil
}
