package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/control"
	"github.com/audiolibrelab/soundboard/internal/server"
	"github.com/audiolibrelab/soundboard/internal/service"
	"github.com/audiolibrelab/soundboard/internal/storage"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture engine as a daemon",
	Long: `Run the capture engine and serve Start/Stop/Status commands on the control
socket. Panels started with 'soundboard run --connect' and the 'record'
commands talk to this daemon.

With --listen (or remote.listen in the config) an HTTP remote is also served,
so recording can be controlled from a phone on the same network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = cfg.Remote.Listen
		}

		source, err := audio.NewSource(cfg.Audio)
		if err != nil {
			return fmt.Errorf("failed to create audio source: %w", err)
		}
		daemon := service.NewDaemon(cfg, source, nil)

		var tasks []service.Task
		if listen != "" {
			local := control.NewLocal(daemon.Engine())
			svc := service.New(cfg, local, storage.NewStore(nil, cfg.Storage))
			tasks = append(tasks,
				func(ctx context.Context) error {
					local.Run(ctx)
					return nil
				},
				server.New(svc, listen).Serve,
			)
		}

		ctx, stop := signalContext()
		defer stop()

		slog.Info("Soundboard daemon starting", "socket", cfg.Control.Socket, "remote", listen)
		return daemon.Run(ctx, tasks...)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "address for the HTTP remote, e.g. :8080 (overrides config)")
}
