package audio

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/soundboard/internal/config"
)

// BackendType represents the type of capture backend
type BackendType string

const (
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// NewSource creates a capture source using the backend selected in the configuration
func NewSource(cfg config.AudioConfig) (Source, error) {
	switch determineBackend(cfg) {
	case BackendTypePipeWire:
		return NewPipeWireSource(cfg), nil
	case BackendTypePortAudio:
		return NewPortAudioSource(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %s", cfg.Backend)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg config.AudioConfig) BackendType {
	switch strings.ToLower(cfg.Backend) {
	case "", "auto", "pipewire":
		// PipeWire captures the sink monitor, which is what the panel is meant to sample
		return BackendTypePipeWire
	case "portaudio":
		return BackendTypePortAudio
	}
	return BackendType(cfg.Backend)
}

// GetAvailableBackends returns list of backends compiled into this binary
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePipeWire, BackendTypePortAudio}
}
