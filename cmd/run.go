package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/control"
	"github.com/audiolibrelab/soundboard/internal/panel"
	"github.com/audiolibrelab/soundboard/internal/panel/virtual"
	"github.com/audiolibrelab/soundboard/internal/play"
	"github.com/audiolibrelab/soundboard/internal/service"
	"github.com/audiolibrelab/soundboard/internal/storage"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the connected panels",
	Long: `Open every panel the configured driver finds and run one session per panel.

By default the capture engine runs in this process. With --connect the panels
talk to a daemon started with 'soundboard serve' instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		connect, _ := cmd.Flags().GetBool("connect")

		driver, err := newDriver()
		if err != nil {
			return err
		}

		player := play.NewPlayer(cfg.Playback.Player)
		if err := player.Available(); err != nil {
			slog.Warn("Playback unavailable, recordings will not play", "error", err)
		}
		dispatcher := play.NewDispatcher(player, nil, cfg.Playback)
		defer dispatcher.Wait()

		store := storage.NewStore(nil, cfg.Storage)
		if err := store.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create recordings directory: %w", err)
		}

		ctx, stop := signalContext()
		defer stop()

		if connect {
			client := control.NewClient(cfg.Control.Socket, cfg.Control.Timeout)
			slog.Info("Using capture daemon", "socket", cfg.Control.Socket)
			return runPanels(ctx, driver, client, dispatcher, store)
		}

		source, err := audio.NewSource(cfg.Audio)
		if err != nil {
			return fmt.Errorf("failed to create audio source: %w", err)
		}
		daemon := service.NewDaemon(cfg, source, nil)
		local := control.NewLocal(daemon.Engine())

		// The daemon outlives the panels only until they are all gone
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		return daemon.Run(ctx,
			func(ctx context.Context) error {
				local.Run(ctx)
				return nil
			},
			func(ctx context.Context) error {
				defer cancel()
				return runPanels(ctx, driver, local, dispatcher, store)
			},
		)
	},
}

func init() {
	runCmd.Flags().Bool("connect", false, "use a running 'soundboard serve' daemon instead of an embedded engine")
}

// newDriver returns the panel driver named in the config
func newDriver() (panel.Driver, error) {
	switch cfg.Panel.Driver {
	case virtual.Name, "":
		// The terminal belongs to the virtual panel now
		f, err := tea.LogToFile(cfg.Panel.LogFile, "soundboard")
		if err != nil {
			return nil, fmt.Errorf("failed to open panel log: %w", err)
		}
		setupLogging(verboseLevel, f)
		return virtual.NewDriver(cfg.Storage.Keys, tea.WithAltScreen()), nil
	default:
		return nil, fmt.Errorf("unknown panel driver: %s", cfg.Panel.Driver)
	}
}

// runPanels runs one session per connected panel and returns when all have ended
func runPanels(ctx context.Context, driver panel.Driver, sender control.Sender, player panel.Player, store *storage.Store) error {
	devices, err := driver.List()
	if err != nil {
		return fmt.Errorf("failed to list panels: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no panel found")
	}

	p := pool.New().WithErrors()
	for _, info := range devices {
		p.Go(func() error {
			return runSession(ctx, driver, info, sender, player, store)
		})
	}
	return p.Wait()
}

func runSession(ctx context.Context, driver panel.Driver, info panel.DeviceInfo, sender control.Sender, player panel.Player, store *storage.Store) error {
	device, err := driver.Connect(info)
	if err != nil {
		return fmt.Errorf("failed to connect panel %s: %w", info.ID, err)
	}
	slog.Info("Panel connected", "id", info.ID, "name", info.Name, "keys", info.Keys)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var changes <-chan storage.Change
	watcher, err := storage.NewWatcher(store)
	if err != nil {
		slog.Warn("Recordings will not be watched", "panel", info.ID, "error", err)
	} else {
		changes = watcher.Changes()
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("Recordings watcher stopped", "panel", info.ID, "error", err)
			}
		}()
	}

	controller := panel.NewController(device, sender, player, store,
		panel.WithImages(panel.LoadImages(nil, cfg.Panel.Assets)),
		panel.WithCommandTimeout(cfg.Control.Timeout),
		panel.WithBrightness(cfg.Panel.Brightness),
	)

	err = panel.NewSession(device, controller, changes, cfg.Panel.ReadTimeout).Run(ctx)
	slog.Info("Panel session ended", "id", info.ID, "error", err)
	return err
}
