package cmd

import (
	"fmt"
	"io/fs"

	"github.com/audiolibrelab/soundboard/internal/play"
	"github.com/audiolibrelab/soundboard/internal/storage"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [key]",
	Short: "Play the recording of a key",
	Long: `Play the recording of a key slot the way the panel would, on the default
sink, the mixer sink or both, with optional volume and pitch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		sinkName, _ := cmd.Flags().GetString("sink")
		sink, err := play.ParseSink(sinkName)
		if err != nil {
			return err
		}
		volume, _ := cmd.Flags().GetFloat64("volume")
		semitones, _ := cmd.Flags().GetFloat64("semitones")

		store := storage.NewStore(nil, cfg.Storage)
		path, err := store.Path(key)
		if err != nil {
			return err
		}
		if !store.Exists(key) {
			return fmt.Errorf("no recording on key %s: %w", storage.KeyLetter(key), fs.ErrNotExist)
		}

		player := play.NewPlayer(cfg.Playback.Player)
		if err := player.Available(); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Playing key %s on %s\n", storage.KeyLetter(key), sink)
		dispatcher := play.NewDispatcher(player, nil, cfg.Playback)
		if err := dispatcher.Play(ctx, play.Request{Path: path, Sink: sink, Volume: volume, Semitones: semitones}); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}

func init() {
	playCmd.Flags().String("sink", "default", "where to play: default, mixer or both")
	playCmd.Flags().Float64("volume", 1.0, "playback volume (0 to 1.5)")
	playCmd.Flags().Float64("semitones", 0, "pitch shift in semitones")
}
