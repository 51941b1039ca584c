package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/human4d/internal/config"
	"github.com/andresmejia3/human4d/internal/utils"
)

var (
	resetDB    bool
	resetCache bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Stored Runs, Cached Weights)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetCache {
			resetDB = DB != nil
			resetCache = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if err := requireDB(); err != nil {
				return err
			}
			if confirm(reader, "⚠️  Are you sure you want to DROP all stored runs?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetCache {
			dir := config.Config.Cache.Dir
			if confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all cached weights in %s?", dir)) {
				fmt.Println("🗑️  Clearing Cache...")
				removeDir(dir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "runs", false, "Drop stored runs from PostgreSQL")
	resetCmd.Flags().BoolVar(&resetCache, "cache", false, "Delete downloaded detector weights and checkpoints")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
