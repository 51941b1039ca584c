package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresmejia3/human4d/internal/types"
	"github.com/andresmejia3/human4d/internal/worker"
)

// PersonClass is the COCO class id the sampler restricts detection to.
const PersonClass = 0

// Family is the detector implementation a weights file belongs to.
type Family string

const (
	FamilyYOLO   Family = "yolo"
	FamilyNAS    Family = "nas"
	FamilyRTDETR Family = "rtdetr"
)

// FamilyFor picks the detector family by filename substring.
// "nas" wins over "rtdetr"; anything else is YOLO.
func FamilyFor(filename string) Family {
	switch {
	case strings.Contains(filename, "nas"):
		return FamilyNAS
	case strings.Contains(filename, "rtdetr"):
		return FamilyRTDETR
	default:
		return FamilyYOLO
	}
}

// Options are forwarded to the detector's predict call.
type Options struct {
	Conf    float64
	IoU     float64
	Classes []int
}

// Detector finds bounding boxes in a batch of frames.
type Detector interface {
	Predict(ctx context.Context, frames []types.Frame, opts Options) ([][]types.Box, error)
}

// Boxes runs det over frames in sub-batches of batchSize and returns
// exactly one (possibly empty) box set per frame, in frame order.
func Boxes(ctx context.Context, det Detector, frames []types.Frame, batchSize int, opts Options) ([][]types.Box, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("detection batch size must be >= 1, got %d", batchSize)
	}
	out := make([][]types.Box, 0, len(frames))
	for start := 0; start < len(frames); start += batchSize {
		end := min(start+batchSize, len(frames))
		res, err := det.Predict(ctx, frames[start:end], opts)
		if err != nil {
			return nil, err
		}
		if len(res) != end-start {
			return nil, fmt.Errorf("detector returned %d results for %d frames", len(res), end-start)
		}
		out = append(out, res...)
	}
	return out, nil
}

// DetectClient is the part of the inference worker the detector needs.
type DetectClient interface {
	Detect(ctx context.Context, req worker.DetectRequest) ([][]types.Box, error)
}

// WorkerDetector is a detector living in the Python inference worker.
type WorkerDetector struct {
	client DetectClient
	family Family
}

// NewWorkerDetector wraps a worker whose detector has already been loaded.
func NewWorkerDetector(client DetectClient, family Family) *WorkerDetector {
	return &WorkerDetector{client: client, family: family}
}

// Family reports which implementation the worker loaded.
func (d *WorkerDetector) Family() Family {
	return d.family
}

func (d *WorkerDetector) Predict(ctx context.Context, frames []types.Frame, opts Options) ([][]types.Box, error) {
	boxes, err := d.client.Detect(ctx, worker.DetectRequest{
		Frames:  frames,
		Conf:    opts.Conf,
		IoU:     opts.IoU,
		Classes: opts.Classes,
	})
	if err != nil {
		return nil, fmt.Errorf("%s detector: %w", d.family, err)
	}
	return boxes, nil
}
