package config

import (
	"fmt"
	"strings"
)

var validBackends = map[string]bool{"": true, "auto": true, "pipewire": true, "portaudio": true}

var validDrivers = map[string]bool{"virtual": true}

// Validate checks the resolved configuration for values the runtime cannot work with
func (c *Config) Validate() error {
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Audio.validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}

	if c.Control.Socket == "" {
		return fmt.Errorf("control: 'socket' is required")
	}
	if c.Control.Timeout <= 0 {
		return fmt.Errorf("control: 'timeout' must be > 0, got: %s", c.Control.Timeout)
	}

	if c.Playback.Player == "" {
		return fmt.Errorf("playback: 'player' is required")
	}

	if !validDrivers[c.Panel.Driver] {
		return fmt.Errorf("panel: unknown driver '%s'", c.Panel.Driver)
	}
	if c.Panel.Brightness < 0 || c.Panel.Brightness > 100 {
		return fmt.Errorf("panel: 'brightness' must be between 0 and 100, got: %d", c.Panel.Brightness)
	}
	if c.Panel.ReadTimeout <= 0 {
		return fmt.Errorf("panel: 'read_timeout' must be > 0, got: %s", c.Panel.ReadTimeout)
	}

	return nil
}

func (s StorageConfig) validate() error {
	if s.Directory == "" {
		return fmt.Errorf("'directory' is required")
	}
	if s.Keys < 1 || s.Keys > MaxKeys {
		return fmt.Errorf("'keys' must be between 1 and %d, got: %d", MaxKeys, s.Keys)
	}
	if strings.Count(s.FilePattern, "%c") != 1 {
		return fmt.Errorf("'file_pattern' must contain exactly one %%c, got: %s", s.FilePattern)
	}
	if strings.ContainsRune(s.FilePattern, '/') {
		return fmt.Errorf("'file_pattern' must be a file name, got: %s", s.FilePattern)
	}
	return nil
}

func (a AudioConfig) validate() error {
	if !validBackends[strings.ToLower(a.Backend)] {
		return fmt.Errorf("unknown backend '%s' (expected pipewire, portaudio or auto)", a.Backend)
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("'sample_rate' must be > 0, got: %d", a.SampleRate)
	}
	if a.Channels <= 0 {
		return fmt.Errorf("'channels' must be > 0, got: %d", a.Channels)
	}
	if a.FramesPerBuffer <= 0 {
		return fmt.Errorf("'frames_per_buffer' must be > 0, got: %d", a.FramesPerBuffer)
	}
	if a.MaxRecordingSeconds < 0 {
		return fmt.Errorf("'max_recording_seconds' must be >= 0, got: %d", a.MaxRecordingSeconds)
	}
	return nil
}
