package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/soundboard/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List the capture endpoints the configured audio backend can record from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := audio.NewSource(cfg.Audio)
		if err != nil {
			return err
		}

		sources, err := source.ListSources()
		if err != nil {
			return fmt.Errorf("failed to get %s sources: %w", source.GetType(), err)
		}

		fmt.Printf("Audio Sources (%s, %s)\n", source.GetType(), runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")
		fmt.Printf("%d found:\n", len(sources))
		for i, s := range sources {
			fmt.Printf("  %d. %s\n", i+1, s)
		}

		fmt.Printf("\nConfigure with audio.device, or set audio.capture_sink to record the default sink monitor.\n")
		return nil
	},
}
