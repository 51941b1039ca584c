package hmr

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/andresmejia3/human4d/internal/worker"
)

// Output is what the regression model predicts for a batch.
type Output struct {
	// PredCam is the weak-perspective camera (s, tx, ty) in crop space.
	PredCam []mgl32.Vec3
	// PredVertices holds one mesh per crop.
	PredVertices [][]mgl32.Vec3
}

// Regressor predicts body meshes from person crops.
type Regressor interface {
	Forward(ctx context.Context, batch *Batch) (*Output, error)
}

// RegressClient is the part of the inference worker the regressor needs.
type RegressClient interface {
	Regress(ctx context.Context, req worker.RegressRequest) (*worker.RegressResponse, error)
}

// WorkerRegressor is a mesh-regression model living in the Python inference worker.
type WorkerRegressor struct {
	client RegressClient
}

func NewWorkerRegressor(client RegressClient) *WorkerRegressor {
	return &WorkerRegressor{client: client}
}

func (r *WorkerRegressor) Forward(ctx context.Context, batch *Batch) (*Output, error) {
	resp, err := r.client.Regress(ctx, worker.RegressRequest{
		Shape:  batch.Shape(),
		Images: batch.Img,
		Half:   batch.FP16,
	})
	if err != nil {
		return nil, fmt.Errorf("mesh regression: %w", err)
	}
	return &Output{PredCam: resp.PredCam, PredVertices: resp.PredVertices}, nil
}
