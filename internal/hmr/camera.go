package hmr

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// CamCropToFull converts weak-perspective crop cameras (s, tx, ty) into
// translations in the full image's camera frame.
func CamCropToFull(predCam []mgl32.Vec3, boxCenter [][2]float32, boxSize []float32, imgSize [][2]float32, focalLength float32) ([]mgl32.Vec3, error) {
	n := len(predCam)
	if len(boxCenter) != n || len(boxSize) != n || len(imgSize) != n {
		return nil, fmt.Errorf("camera inputs disagree on batch size: cam=%d center=%d size=%d img=%d",
			n, len(boxCenter), len(boxSize), len(imgSize))
	}

	out := make([]mgl32.Vec3, n)
	for i, cam := range predCam {
		w2, h2 := imgSize[i][0]/2, imgSize[i][1]/2
		cx, cy := boxCenter[i][0], boxCenter[i][1]
		bs := boxSize[i]*cam[0] + 1e-9
		tz := 2 * focalLength / bs
		tx := 2*(cx-w2)/bs + cam[1]
		ty := 2*(cy-h2)/bs + cam[2]
		out[i] = mgl32.Vec3{tx, ty, tz}
	}
	return out, nil
}

// maxImgSize is the largest width or height in the batch.
func maxImgSize(imgSize [][2]float32) float32 {
	var m float32
	for _, s := range imgSize {
		m = max(m, s[0], s[1])
	}
	return m
}

// BatchFocalLength scales the model focal length by the batch's largest image side.
func (c ModelConfig) BatchFocalLength(b *Batch) float32 {
	return float32(c.FocalLength) / float32(c.ImageSize) * maxImgSize(b.ImgSize)
}
