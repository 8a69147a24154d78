package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Raikerian/go-cuse-mixer/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 16, cfg.Audio.Bits)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 4096, cfg.Audio.FragmentSize)
	assert.Equal(t, 64, cfg.Mixer.MaxEvents)
	assert.Equal(t, config.SinkDevice, cfg.Sink.Type)
	assert.Equal(t, "/dev/dsp", cfg.Sink.Path)
	assert.Equal(t, 8*4096, cfg.Ingest.QueueBytes)
	assert.Equal(t, 1.0, cfg.Ingest.DefaultVolume)
	assert.Equal(t, 2*time.Second, cfg.Ingest.CloseTimeout)
}

func TestParse_DefaultVolume(t *testing.T) {
	tests := map[string]struct {
		doc  string
		want float64
	}{
		"absent":          {doc: "{}", want: 1},
		"section_without": {doc: "ingest: {listen: ':9000'}", want: 1},
		"muted":           {doc: "ingest: {default_volume: 0}", want: 0},
		"explicit":        {doc: "ingest: {default_volume: 0.3}", want: 0.3},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Ingest.DefaultVolume)
		})
	}
}

func TestParse_FullDocument(t *testing.T) {
	doc := `
log_level: debug
log_file:
  enabled: true
  filename: /tmp/mixd.log
audio:
  channels: 1
  sample_rate: 48000
  fragment_size: 1920
mixer:
  max_events: 8
sink:
  type: wav
  path: /tmp/out.wav
ingest:
  listen: ":9000"
  queue_bytes: 19200
  default_volume: 0.5
  close_timeout: 500ms
`
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogFile.Enabled)
	assert.Equal(t, 10, cfg.LogFile.MaxSizeMB)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 960, cfg.Audio.Frames())
	assert.Equal(t, 8, cfg.Mixer.MaxEvents)
	assert.Equal(t, config.SinkWAV, cfg.Sink.Type)
	assert.Equal(t, ":9000", cfg.Ingest.Listen)
	assert.Equal(t, 0.5, cfg.Ingest.DefaultVolume)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.CloseTimeout)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"partial_frame_fragment": "audio: {channels: 2, fragment_size: 4097}",
		"unsupported_bits":       "audio: {bits: 24}",
		"unknown_log_level":      "log_level: chatty",
		"unknown_sink":           "sink: {type: pulse}",
		"wav_without_path":       "sink: {type: wav}",
		"queue_below_fragment":   "ingest: {queue_bytes: 100}",
		"negative_volume":        "ingest: {default_volume: -1}",
		"negative_max_events":    "mixer: {max_events: -3}",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(doc))
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := config.Parse([]byte("audio: [not, a, map"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sink: {type: oto}\n"), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.SinkOto, cfg.Sink.Type)

	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
