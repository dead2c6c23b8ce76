package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err, "missing config file falls back to defaults")

	assert.Equal(t, 8, cfg.Storage.Keys)
	assert.Equal(t, "recording_%c.wav", cfg.Storage.FilePattern)
	assert.False(t, strings.HasPrefix(cfg.Storage.Directory, "~"), "storage directory expanded, got %s", cfg.Storage.Directory)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 2, cfg.Audio.Channels)
	assert.Equal(t, "pw-play", cfg.Playback.Player)
	assert.Equal(t, "MyMixer", cfg.Playback.MixerTarget)
	assert.Equal(t, 50, cfg.Panel.Brightness)
	assert.Equal(t, 100*time.Millisecond, cfg.Panel.ReadTimeout)
	assert.True(t, strings.HasSuffix(cfg.Control.Socket, "soundboard.sock"), "socket path %s", cfg.Control.Socket)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	content := `
storage:
  directory: /srv/samples
  keys: 15
audio:
  backend: portaudio
  sample_rate: 44100
  channels: 1
control:
  timeout: 2s
playback:
  mixer_target: StreamMix
remote:
  listen: 127.0.0.1:8090
`
	configFile := createTempConfig(t, content)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "/srv/samples", cfg.Storage.Directory)
	assert.Equal(t, 15, cfg.Storage.Keys)
	assert.Equal(t, "portaudio", cfg.Audio.Backend)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 2*time.Second, cfg.Control.Timeout)
	assert.Equal(t, "StreamMix", cfg.Playback.MixerTarget)
	assert.Equal(t, "127.0.0.1:8090", cfg.Remote.Listen)

	// Untouched keys keep their defaults
	assert.Equal(t, 1024, cfg.Audio.FramesPerBuffer)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("SOUNDBOARD_PLAYBACK_PLAYER", "/usr/local/bin/pw-play")
	t.Setenv("SOUNDBOARD_STORAGE_KEYS", "6")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/pw-play", cfg.Playback.Player)
	assert.Equal(t, 6, cfg.Storage.Keys)
}

func TestLoad_InvalidFile(t *testing.T) {
	configFile := createTempConfig(t, "storage: [unterminated")

	_, err := Load(configFile)
	assert.Error(t, err, "malformed YAML")
}

func TestSetValue(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "nested", "soundboard.yaml")

	require.NoError(t, SetValue(configFile, "playback.mixer_target", "Studio"))
	require.NoError(t, SetValue(configFile, "panel.brightness", "80"))

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "Studio", cfg.Playback.MixerTarget)
	assert.Equal(t, 80, cfg.Panel.Brightness)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	assert.Equal(t, filepath.Join(home, "Music"), expandPath("~/Music"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}

func TestMaxRecordingSamples(t *testing.T) {
	a := AudioConfig{SampleRate: 48000, Channels: 2, MaxRecordingSeconds: 10}
	assert.Equal(t, 960000, a.MaxRecordingSamples())

	a.MaxRecordingSeconds = 0
	assert.Zero(t, a.MaxRecordingSamples(), "zero seconds means unbounded")
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()

	configFile := filepath.Join(t.TempDir(), "soundboard-test.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}
