package hmr

import (
	"fmt"

	"github.com/andresmejia3/human4d/internal/worker"
)

// ModelConfig holds the regression model settings the crop pipeline and
// camera conversion depend on.
type ModelConfig struct {
	FocalLength float64
	ImageSize   int
	// BBoxShape is the (width, height) aspect the model was trained on.
	BBoxShape [2]float64
	Mean      [3]float32
	Std       [3]float32
}

// DefaultModelConfig matches the HMR 2.0 release checkpoint.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		FocalLength: 5000,
		ImageSize:   256,
		BBoxShape:   [2]float64{192, 256},
		Mean:        [3]float32{255 * 0.485, 255 * 0.456, 255 * 0.406},
		Std:         [3]float32{255 * 0.229, 255 * 0.224, 255 * 0.225},
	}
}

// ConfigFromInfo overlays what the worker reported on the defaults.
// Mean and std arrive in [0,1] units and are scaled to pixel units.
func ConfigFromInfo(info worker.ModelInfo) (ModelConfig, error) {
	cfg := DefaultModelConfig()
	if info.FocalLength > 0 {
		cfg.FocalLength = info.FocalLength
	}
	if info.ImageSize > 0 {
		cfg.ImageSize = info.ImageSize
	}
	if len(info.BBoxShape) == 2 {
		cfg.BBoxShape = [2]float64{float64(info.BBoxShape[0]), float64(info.BBoxShape[1])}
	} else if len(info.BBoxShape) != 0 {
		return cfg, fmt.Errorf("bbox shape must have 2 entries, got %d", len(info.BBoxShape))
	}
	if len(info.ImageMean) == 3 && len(info.ImageStd) == 3 {
		for c := 0; c < 3; c++ {
			if info.ImageStd[c] <= 0 {
				return cfg, fmt.Errorf("image std[%d] must be positive", c)
			}
			cfg.Mean[c] = float32(255 * info.ImageMean[c])
			cfg.Std[c] = float32(255 * info.ImageStd[c])
		}
	}
	return cfg, nil
}

// ScaledFocalLength converts the crop-space focal length to the full image:
// FOCAL_LENGTH / IMAGE_SIZE * max(width, height).
func (c ModelConfig) ScaledFocalLength(width, height float64) float64 {
	return c.FocalLength / float64(c.ImageSize) * max(width, height)
}
