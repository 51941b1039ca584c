package human4d

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/andresmejia3/human4d/internal/bodymodel"
	"github.com/andresmejia3/human4d/internal/detector"
	"github.com/andresmejia3/human4d/internal/hmr"
	"github.com/andresmejia3/human4d/internal/logger"
	"github.com/andresmejia3/human4d/internal/node"
	"github.com/andresmejia3/human4d/internal/types"
)

// ErrRefinerNotImplemented is returned when a ScoreHMR refiner is wired in.
var ErrRefinerNotImplemented = errors.New("scorehmr refiner is not implemented")

// Params are the sampler's tuning inputs.
type Params struct {
	DetConfidence float64
	DetIoU        float64
	DetBatchSize  int
	HMRBatchSize  int
}

// DefaultParams mirrors the node's input defaults.
func DefaultParams() Params {
	return Params{DetConfidence: 0.25, DetIoU: 0.7, DetBatchSize: 10, HMRBatchSize: 8}
}

// Sampler is the Human4D_Img2SMPL node.
type Sampler struct {
	smplDir string
}

// NewSampler returns a sampler that references body models in smplDir.
func NewSampler(smplDir string) *Sampler {
	return &Sampler{smplDir: smplDir}
}

func (s *Sampler) InputTypes() node.InputTypes {
	return node.InputTypes{
		Required: []node.Input{
			{Name: "human4d_model", Type: node.Human4DModel},
			{Name: "image", Type: node.Image},
			{Name: "det_confidence_thresh", Type: node.Float, Default: 0.25, Range: &node.Range{Min: 0.1, Max: 1, Step: 0.05}},
			{Name: "det_iou_thresh", Type: node.Float, Default: 0.7, Range: &node.Range{Min: 0.1, Max: 1, Step: 0.05}},
			{Name: "det_batch_size", Type: node.Int, Default: 10, Range: &node.Range{Min: 1, Max: 20, Step: 1}},
			{Name: "hmr_batch_size", Type: node.Int, Default: 8, Range: &node.Range{Min: 1, Max: 20, Step: 1}},
		},
		Optional: []node.Input{
			{Name: "opt_scorehmr_refiner", Type: node.ScoreHMRModel},
		},
	}
}

func (s *Sampler) ReturnTypes() []node.SlotType {
	return []node.SlotType{node.SMPLMultipleSubjects}
}

func (s *Sampler) Category() string { return Category }

func (s *Sampler) Call(ctx context.Context, in node.Inputs) ([]any, error) {
	if in.Has("opt_scorehmr_refiner") {
		return nil, ErrRefinerNotImplemented
	}

	b, err := node.Value[*Bundle](in, "human4d_model")
	if err != nil {
		return nil, err
	}
	img, err := node.Value[*types.ImageBatch](in, "image")
	if err != nil {
		return nil, err
	}

	var p Params
	if p.DetConfidence, err = in.Float("det_confidence_thresh"); err != nil {
		return nil, err
	}
	if p.DetIoU, err = in.Float("det_iou_thresh"); err != nil {
		return nil, err
	}
	if p.DetBatchSize, err = in.Int("det_batch_size"); err != nil {
		return nil, err
	}
	if p.HMRBatchSize, err = in.Int("hmr_batch_size"); err != nil {
		return nil, err
	}

	out, err := s.Sample(ctx, b, img, p)
	if err != nil {
		return nil, err
	}
	return []any{out}, nil
}

// Sample detects people in every frame and regresses one mesh per person.
func (s *Sampler) Sample(ctx context.Context, b *Bundle, img *types.ImageBatch, p Params) (*types.SMPLMultipleSubjects, error) {
	if b == nil {
		return nil, fmt.Errorf("no model bundle")
	}
	if img == nil {
		return nil, fmt.Errorf("no image batch")
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	log, _ := logger.GetZapLogger(ctx)

	ref, err := bodymodel.Lookup(s.smplDir, bodymodel.Neutral)
	if err != nil {
		return nil, err
	}

	frames := img.Uint8Frames()
	boxes, err := detector.Boxes(ctx, b.Detector(), frames, p.DetBatchSize, detector.Options{
		Conf:    p.DetConfidence,
		IoU:     p.DetIoU,
		Classes: []int{detector.PersonClass},
	})
	if err != nil {
		return nil, err
	}

	out := &types.SMPLMultipleSubjects{
		BodyModel: ref,
		Verts:     make([]types.VertexStack, 0, len(frames)),
		Meta: types.Metadata{
			NormalizedToVertices: true,
			Cam:                  make([]types.CamStack, 0, len(frames)),
		},
	}

	for i, frame := range frames {
		res, err := s.sampleFrame(ctx, b, frame, boxes[i], p.HMRBatchSize)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		out.Verts = append(out.Verts, res.verts)
		out.Meta.Cam = append(out.Meta.Cam, res.cams)
		out.Meta.FrameWidth = res.width
		out.Meta.FrameHeight = res.height
		out.Meta.FocalLength = res.focal

		log.Debug("Frame sampled", zap.Int("frame", i), zap.Int("subjects", len(res.verts)))
	}
	return out, nil
}

type frameResult struct {
	verts         types.VertexStack
	cams          types.CamStack
	width, height float32
	focal         float32
}

// sampleFrame runs mesh regression over the crops of one frame in sub-batches.
func (s *Sampler) sampleFrame(ctx context.Context, b *Bundle, frame types.Frame, boxes []types.Box, batchSize int) (frameResult, error) {
	if batchSize < 1 {
		return frameResult{}, fmt.Errorf("regression batch size must be >= 1, got %d", batchSize)
	}
	cfg := b.Config()

	// Values a frame without people reports
	res := frameResult{
		verts:  types.VertexStack{},
		cams:   types.CamStack{},
		width:  float32(frame.Width),
		height: float32(frame.Height),
		focal:  float32(cfg.ScaledFocalLength(float64(frame.Width), float64(frame.Height))),
	}

	ds := hmr.NewDataset(cfg, frame, boxes)
	for start := 0; start < ds.Len(); start += batchSize {
		batch := ds.Batch(start, min(start+batchSize, ds.Len()))
		if b.FP16() {
			batch = batch.ToHalf()
		}

		pred, err := b.Regressor().Forward(ctx, batch)
		if err != nil {
			return frameResult{}, err
		}
		if len(pred.PredCam) != batch.Len() || len(pred.PredVertices) != batch.Len() {
			return frameResult{}, fmt.Errorf("regressor returned %d cameras and %d meshes for %d crops",
				len(pred.PredCam), len(pred.PredVertices), batch.Len())
		}

		focal := cfg.BatchFocalLength(batch)
		camT, err := hmr.CamCropToFull(pred.PredCam, batch.BoxCenter, batch.BoxSize, batch.ImgSize, focal)
		if err != nil {
			return frameResult{}, err
		}

		for n := range pred.PredVertices {
			res.verts = append(res.verts, pred.PredVertices[n])
			res.cams = append(res.cams, camT[n])
		}
		res.width, res.height = batch.ImgSize[0][0], batch.ImgSize[0][1]
		res.focal = focal
	}

	if _, _, err := meshShape(res.verts); err != nil {
		return frameResult{}, err
	}
	return res, nil
}

// meshShape reports (subjects, vertices) for a vertex stack. Stacks must not be ragged.
func meshShape(stack types.VertexStack) (int, int, error) {
	if len(stack) == 0 {
		return 0, 0, nil
	}
	v := len(stack[0])
	for i, m := range stack {
		if len(m) != v {
			return 0, 0, fmt.Errorf("subject %d has %d vertices, expected %d", i, len(m), v)
		}
	}
	return len(stack), v, nil
}
