package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresmejia3/human4d/internal/human4d"
	"github.com/andresmejia3/human4d/internal/logger"
	"github.com/andresmejia3/human4d/internal/types"
	"github.com/andresmejia3/human4d/internal/utils"
)

const megabyte = 1024 * 1024

var sampleOpts Options

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Estimate body meshes for every person in a video or image",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSample(cmd.Context(), sampleOpts)
	},
}

func init() {
	sampleCmd.Flags().StringVarP(&sampleOpts.InputPath, "input", "i", "", "Path to video or image")
	sampleCmd.Flags().StringVarP(&sampleOpts.OutputPath, "output", "o", "human4d_output.json", "Where to write the SMPL_MULTIPLE_SUBJECTS result")
	sampleCmd.Flags().StringVar(&sampleOpts.DetFilename, "det-filename", human4d.DefaultDetector, "Detector weights file (yolo, nas or rtdetr)")
	sampleCmd.Flags().BoolVar(&sampleOpts.FP16, "fp16", false, "Run the mesh regressor in half precision")
	sampleCmd.Flags().Float64VarP(&sampleOpts.DetConfidence, "conf", "c", 0.25, "Detection confidence threshold")
	sampleCmd.Flags().Float64Var(&sampleOpts.DetIoU, "iou", 0.7, "Detection NMS IoU threshold")
	sampleCmd.Flags().IntVar(&sampleOpts.DetBatchSize, "det-batch-size", 10, "Frames per detector call")
	sampleCmd.Flags().IntVar(&sampleOpts.HMRBatchSize, "hmr-batch-size", 8, "Crops per mesh-regression call")
	sampleCmd.Flags().IntVarP(&sampleOpts.MaxFrames, "max-frames", "n", 0, "Stop after this many video frames (0 = all)")
	sampleCmd.Flags().BoolVar(&sampleOpts.Save, "save", false, "Store the result in the database")

	sampleCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(sampleCmd)
}

// runSample decodes the input, loads the models and runs the sampler node through the registry.
func runSample(ctx context.Context, opts Options) error {
	if err := validateSampleFlags(&opts); err != nil {
		utils.ShowError("Invalid flags", err, nil)
		return err
	}
	if opts.Save {
		if err := requireDB(); err != nil {
			utils.ShowError("Cannot save run", err, nil)
			return err
		}
	}
	ctx = logger.WithFields(ctx, zap.String("input", opts.InputPath))
	log, _ := logger.GetZapLogger(ctx)

	// 1. Frames
	frames, err := decodeInput(ctx, opts.InputPath, opts.MaxFrames)
	if err != nil {
		utils.ShowError("Failed to decode input", err, nil)
		return err
	}
	batch, err := utils.FramesToBatch(frames)
	if err != nil {
		utils.ShowError("Failed to build frame batch", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "📼 Decoded %d frames (%dx%d)\n", batch.Frames, batch.Width, batch.Height)

	// 2. Models
	handle := &workerHandle{}
	reg, err := newRegistry(ctx, handle)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "🚀 Loading models...")
	loaded, err := reg.Invoke(ctx, human4d.LoaderClass, map[string]any{
		"det_filename": opts.DetFilename,
		"fp16":         opts.FP16,
	})
	if err != nil {
		utils.ShowError("Failed to load models", err, crashLogs(handle))
		return err
	}
	bundle := loaded[0].(*human4d.Bundle)
	defer bundle.Close()

	// 3. Sample
	fmt.Fprintln(os.Stderr, "🧍 Estimating meshes...")
	res, err := reg.Invoke(ctx, human4d.SamplerClass, map[string]any{
		"human4d_model":         bundle,
		"image":                 batch,
		"det_confidence_thresh": opts.DetConfidence,
		"det_iou_thresh":        opts.DetIoU,
		"det_batch_size":        opts.DetBatchSize,
		"hmr_batch_size":        opts.HMRBatchSize,
	})
	if err != nil {
		// Let the worker exit so its stderr is complete
		bundle.Close()
		utils.ShowError("Sampling failed", err, crashLogs(handle))
		return err
	}
	out := res[0].(*types.SMPLMultipleSubjects)

	// 4. Output
	if err := writeOutput(opts.OutputPath, out); err != nil {
		utils.ShowError("Failed to write output", err, nil)
		return err
	}

	if opts.Save {
		id, err := utils.GenerateInputID(opts.InputPath)
		if err != nil {
			utils.ShowError("Failed to generate input ID", err, nil)
			return err
		}
		if err := DB.SaveRun(ctx, id, opts.InputPath, out); err != nil {
			utils.ShowError("Failed to save run", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "💾 Stored run %s\n", id[:12])
	}

	log.Info("Sample complete",
		zap.Int("frames", len(out.Verts)),
		zap.Int("subjects", countSubjects(out)))
	fmt.Fprintf(os.Stderr, "🏁 Done. Wrote %s\n", opts.OutputPath)
	return nil
}

func validateSampleFlags(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a video or image file")
	}
	if opts.DetFilename == "" {
		return fmt.Errorf("detector filename must not be empty")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("output path must not be empty")
	}
	if opts.MaxFrames < 0 {
		return fmt.Errorf("max-frames must be >= 0, got %d", opts.MaxFrames)
	}
	// Node input ranges are enforced by the registry
	return nil
}

// isImage reports whether path is decoded as a single still frame.
func isImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// decodeInput returns the RGB frames of an image or video.
func decodeInput(ctx context.Context, path string, maxFrames int) ([]types.Frame, error) {
	if isImage(path) {
		f, err := utils.LoadImageFrame(path)
		if err != nil {
			return nil, err
		}
		return []types.Frame{f}, nil
	}
	return decodeVideo(ctx, path, maxFrames)
}

func decodeVideo(ctx context.Context, path string, maxFrames int) ([]types.Frame, error) {
	width, height, err := utils.GetVideoDimensions(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to determine video dimensions: %w", err)
	}
	total := utils.GetTotalFrames(ctx, path)
	if maxFrames > 0 && (total <= 0 || maxFrames < total) {
		total = maxFrames
	}

	decoder := utils.NewFFmpegRawDecoder(ctx, path, maxFrames)
	var stderrBuf bytes.Buffer
	decoder.Stderr = &stderrBuf

	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := decoder.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	var barTotal int64 = int64(total)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("🎞️  Decoding"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	frames, readErr := readRawFrames(bufio.NewReaderSize(decoderOut, megabyte), width, height, func() { bar.Add(1) })
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if err := decoder.Wait(); err != nil {
		if stderrBuf.Len() > 0 {
			fmt.Fprintf(os.Stderr, "\nFFmpeg Logs:\n%s\n", stderrBuf.String())
		}
		return nil, fmt.Errorf("ffmpeg execution failed: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames decoded from %s", path)
	}
	return frames, nil
}

// readRawFrames splits a raw rgb24 stream into frames until EOF.
// A trailing partial frame is an error.
func readRawFrames(r io.Reader, width, height int, onFrame func()) ([]types.Frame, error) {
	frameSize := width * height * 3
	var frames []types.Frame
	for {
		buf := make([]byte, frameSize)
		n, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("truncated frame %d (%d of %d bytes): %w", len(frames), n, frameSize, err)
		}
		frames = append(frames, types.Frame{Width: width, Height: height, Pix: buf})
		if onFrame != nil {
			onFrame()
		}
	}
}

func writeOutput(path string, out *types.SMPLMultipleSubjects) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeOutput(f, out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// encodeOutput writes out as one JSON document.
func encodeOutput(dst io.Writer, out *types.SMPLMultipleSubjects) error {
	w := bufio.NewWriter(dst)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return err
	}
	return w.Flush()
}

func countSubjects(out *types.SMPLMultipleSubjects) int {
	n := 0
	for _, stack := range out.Verts {
		n += len(stack)
	}
	return n
}

func crashLogs(h *workerHandle) *utils.SafeCommand {
	if h.w == nil {
		return nil
	}
	return h.w.Cmd
}
