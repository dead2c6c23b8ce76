package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/audiolibrelab/soundboard/internal/storage"
)

const (
	defaultReadTimeout = 100 * time.Millisecond
	shutdownTimeout    = 5 * time.Second
)

// Session runs one connected device until it fails, disconnects or ctx is cancelled
type Session struct {
	device      Device
	controller  *Controller
	changes     <-chan storage.Change
	readTimeout time.Duration
}

// NewSession creates a session. changes may be nil.
func NewSession(device Device, controller *Controller, changes <-chan storage.Change, readTimeout time.Duration) *Session {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Session{
		device:      device,
		controller:  controller,
		changes:     changes,
		readTimeout: readTimeout,
	}
}

// Run processes events in arrival order. Leaving the loop always stops an
// active recording and releases the device. A disconnect is not an error.
func (s *Session) Run(ctx context.Context) error {
	info := s.device.Info()
	logger := slog.With("device", info.ID)
	logger.Info("Panel session started", "name", info.Name, "keys", info.Keys, "dials", info.Dials)

	err := s.loop(ctx)
	if errors.Is(err, ErrDisconnected) {
		logger.Info("Panel disconnected")
		err = nil
	} else if err != nil {
		logger.Error("Panel session failed", "error", err)
	}

	err = multierr.Append(err, s.close())
	logger.Info("Panel session ended")
	return err
}

func (s *Session) loop(ctx context.Context) error {
	if err := s.controller.Start(); err != nil {
		return fmt.Errorf("failed to initialise panel: %w", err)
	}

	for ctx.Err() == nil {
		if err := s.drainChanges(); err != nil {
			return err
		}

		events, err := s.device.Read(ctx, s.readTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, ev := range events {
			if err := s.controller.HandleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) drainChanges() error {
	for {
		select {
		case change, ok := <-s.changes:
			if !ok {
				s.changes = nil
				return nil
			}
			if err := s.controller.HandleSlotChange(change.Key, change.Exists); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Session) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if shutdownErr := s.controller.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, ErrDisconnected) {
		err = multierr.Append(err, shutdownErr)
	}
	if closeErr := s.device.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close panel: %w", closeErr))
	}
	return err
}
