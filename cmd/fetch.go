package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/human4d/internal/assets"
	"github.com/andresmejia3/human4d/internal/config"
	"github.com/andresmejia3/human4d/internal/human4d"
	"github.com/andresmejia3/human4d/internal/utils"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [det_filename...]",
	Short: "Download detector weights into the cache directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if len(args) == 0 {
			args = []string{human4d.DefaultDetector}
		}

		files := make(map[string]string, len(args))
		for _, name := range args {
			files[name] = assets.DetectorURL(config.Config.Assets.BaseURL, name)
		}

		if err := assets.NewFetcher(cmd.Context(), os.Stderr).Fetch(cmd.Context(), config.Config.Cache.Dir, files); err != nil {
			utils.ShowError("Download failed", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ Weights ready in %s\n", config.Config.Cache.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
