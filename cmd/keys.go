package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/soundboard/internal/service"
	"github.com/audiolibrelab/soundboard/internal/storage"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show the key slots and their recordings",
	Long:  `Display the file bound to every key and, for recorded keys, its size, duration and modification time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		// Listing does not talk to the engine
		svc := service.New(cfg, nil, storage.NewStore(nil, cfg.Storage))
		keys := svc.ListKeys()

		switch output {
		case "yaml":
			out, err := yaml.Marshal(keys)
			if err != nil {
				return fmt.Errorf("error marshaling keys: %w", err)
			}
			fmt.Print(string(out))
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(keys)
		case "", "text":
			fmt.Printf("=== KEYS (%s) ===\n", cfg.Storage.Directory)
			for _, k := range keys {
				if !k.Exists {
					fmt.Printf("%2d %s  %-40s  (empty)\n", k.Key, k.Letter, k.Path)
					continue
				}
				fmt.Printf("%2d %s  %-40s  %9s  %8s  %s\n", k.Key, k.Letter, k.Path, k.SizeHuman, k.DurationHuman, k.ModTimeHuman)
			}
		default:
			return fmt.Errorf("unknown output format: %s (valid: text, yaml, json)", output)
		}
		return nil
	},
}

func init() {
	keysCmd.Flags().StringP("output", "o", "text", "output format: text, yaml or json")
}
