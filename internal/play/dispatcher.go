// Package play routes recorded samples to playback sinks.
package play

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/soundboard/internal/config"
	"github.com/audiolibrelab/soundboard/internal/wavfile"
)

// PitchEpsilon is the smallest pitch shift, in semitones, worth a pitched copy
const PitchEpsilon = 0.01

// Request describes one playback
type Request struct {
	Path      string
	Sink      Sink
	Volume    float64
	Semitones float64
}

// Dispatcher plays files on one or more sinks
type Dispatcher struct {
	backend     Backend
	fs          afero.Fs
	mixerTarget string
	tempDir     string

	tasks conc.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil fs means the OS filesystem.
func NewDispatcher(backend Backend, fs afero.Fs, cfg config.PlaybackConfig) *Dispatcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Dispatcher{
		backend:     backend,
		fs:          fs,
		mixerTarget: cfg.MixerTarget,
		tempDir:     tempDir,
	}
}

// Play blocks until every sink invocation has finished. It fails if any
// invocation failed; the others still play.
func (d *Dispatcher) Play(ctx context.Context, req Request) error {
	path := req.Path

	if math.Abs(req.Semitones) > PitchEpsilon {
		pitched, err := wavfile.PitchedCopy(d.fs, req.Path, req.Semitones, d.tempDir)
		if err != nil {
			slog.Warn("Pitch shift failed, playing original", "path", req.Path, "semitones", req.Semitones, "error", err)
		} else {
			path = pitched
			defer func() {
				if err := d.fs.Remove(pitched); err != nil {
					slog.Warn("Failed to remove pitched copy", "path", pitched, "error", err)
				}
			}()
		}
	}

	targets := req.Sink.Targets(d.mixerTarget)
	p := pool.New().WithErrors()
	for _, target := range targets {
		p.Go(func() error {
			if err := d.backend.Invoke(ctx, target, path, req.Volume); err != nil {
				return fmt.Errorf("sink %s: %w", targetName(target), err)
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return fmt.Errorf("playback of %s failed: %w", req.Path, err)
	}
	return nil
}

// Dispatch plays in the background; failures are logged. Wait joins every dispatched playback.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) {
	d.tasks.Go(func() {
		slog.Debug("Playback dispatched", "path", req.Path, "sink", req.Sink.String(), "volume", req.Volume, "semitones", req.Semitones)
		if err := d.Play(ctx, req); err != nil {
			slog.Error("Playback failed", "path", req.Path, "sink", req.Sink.String(), "error", err)
		}
	})
}

// Wait blocks until every dispatched playback has returned
func (d *Dispatcher) Wait() {
	d.tasks.Wait()
}

func targetName(target string) string {
	if target == "" {
		return "default"
	}
	return target
}
