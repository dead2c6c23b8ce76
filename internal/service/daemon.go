package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/capture"
	"github.com/audiolibrelab/soundboard/internal/config"
	"github.com/audiolibrelab/soundboard/internal/control"
	"github.com/audiolibrelab/soundboard/internal/wavfile"
)

// ErrSourceEnded is returned when the audio source stops on its own
var ErrSourceEnded = errors.New("audio source ended unexpectedly")

// Task runs alongside the daemon until its context is cancelled
type Task func(ctx context.Context) error

// Daemon owns the capture engine, feeds it from an audio source and serves
// the control socket.
type Daemon struct {
	engine *capture.Engine
	source audio.Source
	server *control.Server
}

// NewDaemon wires an engine writing to fs. A nil fs means the OS filesystem.
func NewDaemon(cfg *config.Config, source audio.Source, fs afero.Fs) *Daemon {
	engine := capture.NewEngine(
		wavfile.NewWriter(fs),
		capture.WithMaxSamples(cfg.Audio.MaxRecordingSamples()),
	)
	return &Daemon{
		engine: engine,
		source: source,
		server: control.NewServer(cfg.Control.Socket, engine),
	}
}

// Engine returns the capture engine, for in-process senders
func (d *Daemon) Engine() *capture.Engine { return d.engine }

// SocketPath returns the control socket path
func (d *Daemon) SocketPath() string { return d.server.Path() }

// Run captures and serves until ctx is cancelled or any part fails. Extra
// tasks share the daemon's lifetime. A recording still in progress at exit
// is stopped and saved.
func (d *Daemon) Run(ctx context.Context, tasks ...Task) error {
	if err := d.server.Listen(); err != nil {
		return err
	}

	slog.Info("Soundboard daemon started", "socket", d.server.Path(), "backend", string(d.source.GetType()))

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(d.runSource)
	p.Go(d.server.Serve)
	for _, task := range tasks {
		p.Go(task)
	}

	err := p.Wait()
	err = multierr.Append(err, d.shutdown())
	slog.Info("Soundboard daemon stopped")
	return err
}

func (d *Daemon) runSource(ctx context.Context) error {
	err := d.source.Run(ctx, d.engine)
	if err != nil {
		return fmt.Errorf("audio capture failed: %w", err)
	}
	if ctx.Err() == nil {
		return ErrSourceEnded
	}
	return nil
}

func (d *Daemon) shutdown() error {
	state := d.engine.State()
	if !state.Recording {
		return nil
	}

	slog.Info("Saving recording in progress", "path", state.Path)
	if resp := d.engine.Handle(capture.Stop()); resp.IsError() {
		return fmt.Errorf("failed to stop recording %s: %s", state.Path, resp.Message)
	}
	return nil
}
