package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/audiolibrelab/soundboard/internal/capture"
	"github.com/audiolibrelab/soundboard/internal/control"
	"github.com/audiolibrelab/soundboard/internal/storage"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Control the capture daemon",
	Long: `Send Start, Stop and Status commands to a running 'soundboard serve' daemon
over its control socket.`,
}

var recordStartCmd = &cobra.Command{
	Use:   "start [key]",
	Short: "Start recording into a key slot or a file",
	Long: `Start recording into the slot of key (a number from 0 or a letter from A),
or into an arbitrary file given with --path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if (len(args) == 1) == (path != "") {
			return fmt.Errorf("specify either a key or --path")
		}

		if path == "" {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			path, err = storage.NewStore(nil, cfg.Storage).Path(key)
			if err != nil {
				return err
			}
		}

		slog.Debug("Sending start", "path", path)
		return sendCommand(cmd.Context(), capture.Start(path))
	},
}

var recordStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd.Context(), capture.Stop())
	},
}

var recordStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the capture engine state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd.Context(), capture.Status())
	},
}

func init() {
	recordStartCmd.Flags().String("path", "", "record into this file instead of a key slot")

	recordCmd.AddCommand(recordStartCmd)
	recordCmd.AddCommand(recordStopCmd)
	recordCmd.AddCommand(recordStatusCmd)
}

// sendCommand prints the daemon's answer and fails when the command was refused
func sendCommand(ctx context.Context, c capture.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := control.NewClient(cfg.Control.Socket, cfg.Control.Timeout)
	resp, err := client.Send(ctx, c)
	if err != nil {
		return fmt.Errorf("%s failed: %w", c.Kind, err)
	}

	fmt.Println(resp.Message)
	if resp.IsError() {
		return fmt.Errorf("%s refused: %s", c.Kind, resp.Message)
	}
	return nil
}

// parseKey accepts a key index ("2") or its letter ("C", "c")
func parseKey(arg string) (int, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		return n, nil
	}
	letter := strings.ToUpper(arg)
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'Z' {
		return int(letter[0] - 'A'), nil
	}
	return 0, fmt.Errorf("invalid key %q: %w", arg, storage.ErrInvalidKey)
}
