package service

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/audiolibrelab/soundboard/internal/capture"
	"github.com/audiolibrelab/soundboard/internal/config"
	"github.com/audiolibrelab/soundboard/internal/control"
	"github.com/audiolibrelab/soundboard/internal/storage"
)

// Service represents the operations exposed to remote front ends
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context, key int) (capture.Response, error)
	StartRecordingPath(ctx context.Context, path string) (capture.Response, error)
	StopRecording(ctx context.Context) (capture.Response, error)
	Status(ctx context.Context) (capture.Response, error)

	// Information operations
	ListKeys() []KeyInfo
	OpenRecording(key int) (afero.File, storage.SlotInfo, error)
	GetConfig() *config.Config
	GetLastError() string
}

// KeyInfo describes a key slot for display
type KeyInfo struct {
	storage.SlotInfo `yaml:",inline"`
	SizeHuman        string `json:"size_human,omitempty" yaml:"size_human,omitempty"`
	DurationHuman    string `json:"duration_human,omitempty" yaml:"duration_human,omitempty"`
	ModTimeHuman     string `json:"mod_time_human,omitempty" yaml:"mod_time_human,omitempty"`
}

// SoundboardService sends commands to the capture engine and reads key slots
type SoundboardService struct {
	cfg    *config.Config
	sender control.Sender
	store  *storage.Store

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service instance
func New(cfg *config.Config, sender control.Sender, store *storage.Store) Service {
	return &SoundboardService{
		cfg:    cfg,
		sender: sender,
		store:  store,
	}
}

// StartRecording records into the file bound to key
func (s *SoundboardService) StartRecording(ctx context.Context, key int) (capture.Response, error) {
	path, err := s.store.Path(key)
	if err != nil {
		return capture.Response{}, err
	}
	return s.StartRecordingPath(ctx, path)
}

// StartRecordingPath records into path
func (s *SoundboardService) StartRecordingPath(ctx context.Context, path string) (capture.Response, error) {
	slog.Debug("Service.StartRecording called", "path", path)
	return s.send(ctx, capture.Start(path))
}

// StopRecording stops the current recording
func (s *SoundboardService) StopRecording(ctx context.Context) (capture.Response, error) {
	return s.send(ctx, capture.Stop())
}

// Status returns the engine state
func (s *SoundboardService) Status(ctx context.Context) (capture.Response, error) {
	return s.send(ctx, capture.Status())
}

func (s *SoundboardService) send(ctx context.Context, cmd capture.Command) (capture.Response, error) {
	resp, err := s.sender.Send(ctx, cmd)
	switch {
	case err != nil:
		s.setLastError(fmt.Sprintf("%s failed: %v", cmd.Kind, err))
	case resp.IsError():
		s.setLastError(fmt.Sprintf("%s refused: %s", cmd.Kind, resp.Message))
	default:
		s.clearLastError()
	}
	return resp, err
}

// ListKeys returns every key slot with human readable details
func (s *SoundboardService) ListKeys() []KeyInfo {
	slots := s.store.List()
	keys := make([]KeyInfo, 0, len(slots))
	for _, slot := range slots {
		info := KeyInfo{SlotInfo: slot}
		if slot.Exists {
			info.SizeHuman = formatBytes(slot.Size)
			info.DurationHuman = slot.Duration.Round(10 * time.Millisecond).String()
			info.ModTimeHuman = slot.ModTime.Format("2006-01-02 15:04:05")
		}
		keys = append(keys, info)
	}
	return keys
}

// OpenRecording opens the file bound to key for reading
func (s *SoundboardService) OpenRecording(key int) (afero.File, storage.SlotInfo, error) {
	info, err := s.store.Info(key)
	if err != nil {
		return nil, info, err
	}
	if !info.Exists {
		return nil, info, fmt.Errorf("no recording on key %s: %w", info.Letter, fs.ErrNotExist)
	}
	f, err := s.store.Fs().Open(info.Path)
	if err != nil {
		return nil, info, fmt.Errorf("failed to open %s: %w", info.Path, err)
	}
	return f, info, nil
}

// GetConfig returns the current configuration
func (s *SoundboardService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message (thread-safe)
func (s *SoundboardService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *SoundboardService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *SoundboardService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
