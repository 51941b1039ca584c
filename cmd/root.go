package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/human4d/internal/config"
	"github.com/andresmejia3/human4d/internal/store"
)

// Options holds the sample command's configuration
type Options struct {
	InputPath     string
	OutputPath    string
	DetFilename   string
	FP16          bool
	DetConfidence float64
	DetIoU        float64
	DetBatchSize  int
	HMRBatchSize  int
	MaxFrames     int
	Save          bool
}

var (
	// DB is the database connection shared by subcommands. Nil unless a URL is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL   string
	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "human4d",
	Short:   "Human body mesh estimation from video frames",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(cfgFile); err != nil {
			return err
		}

		// The flag wins over the config file and HUMAN4D_DATABASE_URL
		if dbURL == "" {
			dbURL = config.Config.Database.URL
		}
		if dbURL == "" {
			return nil
		}

		var err error
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (HUMAN4D_* environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for stored runs (default: database.url from config)")
}

// requireDB fails commands that only make sense with a database.
func requireDB() error {
	if DB == nil {
		return fmt.Errorf("no database configured: pass --db or set database.url")
	}
	return nil
}
