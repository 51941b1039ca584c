package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/human4d/internal/store"
	"github.com/andresmejia3/human4d/internal/utils"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List all stored runs in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRuns(cmd.Context())
	},
}

var exportOutput string

var runsExportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Write a stored run back out as JSON",
	Long:  "Rebuilds the mesh output of a stored run. The ID may be the short form shown by 'runs'.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runExport(cmd.Context(), args[0], exportOutput)
	},
}

func init() {
	runsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output JSON path (default stdout)")
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRuns(ctx context.Context) error {
	if err := requireDB(); err != nil {
		return err
	}
	runs, err := DB.ListRuns(ctx)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}
	printRuns(os.Stdout, runs)
	return nil
}

func runExport(ctx context.Context, prefix, output string) error {
	if err := requireDB(); err != nil {
		return err
	}
	runs, err := DB.ListRuns(ctx)
	if err != nil {
		utils.ShowError("Failed to list runs", err, nil)
		return err
	}
	id, err := resolveRunID(runs, prefix)
	if err != nil {
		return err
	}

	out, err := DB.LoadRun(ctx, id)
	if err != nil {
		utils.ShowError("Failed to load run", err, nil)
		return err
	}
	if output == "" {
		return encodeOutput(os.Stdout, out)
	}
	if err := writeOutput(output, out); err != nil {
		utils.ShowError("Failed to write output", err, nil)
		return err
	}
	fmt.Printf("Exported run %s to %s\n", shortID(id), output)
	return nil
}

// resolveRunID expands a full or shortened run ID to exactly one stored run.
func resolveRunID(runs []store.Run, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("empty run ID")
	}
	var matches []string
	for _, r := range runs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, prefix) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("run %q not found", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run ID %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPATH\tFRAMES\tSUBJECTS\tSIZE\tCREATED")
	fmt.Fprintln(w, "--\t----\t------\t--------\t----\t-------")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0fx%.0f\t%s\n", shortID(r.ID), r.Path, r.Frames, r.Subjects,
			r.Width, r.Height, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
