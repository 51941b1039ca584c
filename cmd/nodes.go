package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/human4d/internal/assets"
	"github.com/andresmejia3/human4d/internal/config"
	"github.com/andresmejia3/human4d/internal/human4d"
	"github.com/andresmejia3/human4d/internal/node"
	"github.com/andresmejia3/human4d/internal/worker"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the registered nodes and their input slots",
	Run: func(cmd *cobra.Command, args []string) {
		r, _ := newRegistry(cmd.Context(), &workerHandle{})
		printNodes(os.Stdout, r)
	},
}

func init() {
	rootCmd.AddCommand(nodesCmd)
}

// workerHandle remembers the last inference worker started, so crash logs can be shown.
type workerHandle struct {
	w *worker.PythonWorker
}

func (h *workerHandle) start(ctx context.Context) (human4d.Runtime, error) {
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Python: config.Config.Worker.Python,
		Script: config.Config.Worker.Script,
		Debug:  config.Config.Debug,
	})
	if err != nil {
		return nil, err
	}
	h.w = w
	return w, nil
}

// newRegistry wires both nodes to the configured cache, worker and body models.
func newRegistry(ctx context.Context, h *workerHandle) (*node.Registry, error) {
	cfg := config.Config
	loader := human4d.NewLoader(human4d.LoaderConfig{
		CacheDir:   cfg.Cache.Dir,
		BaseURL:    cfg.Assets.BaseURL,
		Checkpoint: cfg.HMR.Checkpoint,
		Device:     cfg.Device,
	}, assets.NewFetcher(ctx, os.Stderr), h.start)

	r := node.NewRegistry()
	if err := human4d.Register(r, loader, human4d.NewSampler(cfg.SMPL.Dir)); err != nil {
		return nil, err
	}
	return r, nil
}

func printNodes(out io.Writer, r *node.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	for _, class := range r.Classes() {
		n, _ := r.Node(class)
		fmt.Fprintf(w, "%s (%s)\tcategory: %s\treturns: %s\n", class, r.DisplayName(class), n.Category(), joinSlots(n.ReturnTypes()))
		decl := n.InputTypes()
		for _, in := range decl.Required {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", in.Name, in.Type, describeInput(in))
		}
		for _, in := range decl.Optional {
			fmt.Fprintf(w, "  %s\t%s\toptional\n", in.Name, in.Type)
		}
	}
	w.Flush()
}

func describeInput(in node.Input) string {
	var parts []string
	if in.Default != nil {
		parts = append(parts, fmt.Sprintf("default %v", in.Default))
	}
	if in.Range != nil {
		parts = append(parts, fmt.Sprintf("range [%v, %v] step %v", in.Range.Min, in.Range.Max, in.Range.Step))
	}
	return strings.Join(parts, ", ")
}

func joinSlots(slots []node.SlotType) string {
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
