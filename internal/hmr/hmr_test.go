package hmr

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/human4d/internal/types"
	"github.com/andresmejia3/human4d/internal/worker"
)

func uniformFrame(w, h int, v uint8) types.Frame {
	pix := make([]uint8, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return types.Frame{Width: w, Height: h, Pix: pix}
}

func TestCamCropToFull(t *testing.T) {
	cams, err := CamCropToFull(
		[]mgl32.Vec3{{1, 0.1, -0.2}},
		[][2]float32{{60, 40}},
		[]float32{100},
		[][2]float32{{200, 100}},
		1000,
	)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.InDelta(t, -0.7, cams[0][0], 1e-5)
	assert.InDelta(t, -0.4, cams[0][1], 1e-5)
	assert.InDelta(t, 20, cams[0][2], 1e-4)
}

func TestCamCropToFull_LengthMismatch(t *testing.T) {
	_, err := CamCropToFull(make([]mgl32.Vec3, 2), make([][2]float32, 1), make([]float32, 2), make([][2]float32, 2), 1)
	assert.Error(t, err)
}

func TestScaledFocalLength(t *testing.T) {
	cfg := DefaultModelConfig()
	assert.InDelta(t, 5000.0/256*1920, cfg.ScaledFocalLength(1920, 1080), 1e-9)
	assert.InDelta(t, 5000.0/256*1080, cfg.ScaledFocalLength(720, 1080), 1e-9)

	b := &Batch{ImgSize: [][2]float32{{640, 480}, {640, 480}}}
	assert.InDelta(t, 5000.0/256*640, cfg.BatchFocalLength(b), 1e-3)
}

func TestExpandToAspectRatio(t *testing.T) {
	target := [2]float64{192, 256}

	w, h := ExpandToAspectRatio(100, 100, target)
	assert.Equal(t, 100.0, w)
	assert.InDelta(t, 133.333, h, 1e-3)

	w, h = ExpandToAspectRatio(100, 200, target)
	assert.Equal(t, 150.0, w)
	assert.Equal(t, 200.0, h)
}

func TestDataset_Geometry(t *testing.T) {
	cfg := DefaultModelConfig()
	frame := uniformFrame(100, 80, 255)
	ds := NewDataset(cfg, frame, []types.Box{{X1: 20, Y1: 10, X2: 60, Y2: 90}})
	require.Equal(t, 1, ds.Len())

	it := ds.Item(0)
	assert.Equal(t, [2]float32{40, 50}, it.BoxCenter)
	assert.Equal(t, float32(200), it.BoxSize)
	assert.Equal(t, [2]float32{100, 80}, it.ImgSize)
	require.Len(t, it.Img, 3*256*256)

	// Corner falls outside the frame: constant zero border, normalised
	assert.InDelta(t, -cfg.Mean[0]/cfg.Std[0], it.Img[0], 1e-5)
	// Patch centre samples the white frame
	centre := 128*256 + 128
	for c := 0; c < 3; c++ {
		assert.InDelta(t, (255-cfg.Mean[c])/cfg.Std[c], it.Img[c*256*256+centre], 1e-4)
	}
}

func TestDataset_BlurredCropKeepsUniformValues(t *testing.T) {
	cfg := DefaultModelConfig()
	frame := uniformFrame(1200, 1000, 128)
	ds := NewDataset(cfg, frame, []types.Box{{X1: 100, Y1: 100, X2: 400, Y2: 500}})

	require.Greater(t, ds.BoxSize(0)/float64(cfg.ImageSize)/2, 1.1)

	it := ds.Item(0)
	centre := 128*256 + 128
	assert.InDelta(t, (128-cfg.Mean[1])/cfg.Std[1], it.Img[256*256+centre], 1e-4)
}

func TestDataset_Batch(t *testing.T) {
	cfg := DefaultModelConfig()
	frame := uniformFrame(64, 64, 10)
	boxes := []types.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},
		{X1: 10, Y1: 10, X2: 30, Y2: 40},
		{X1: 5, Y1: 5, X2: 20, Y2: 20},
	}
	ds := NewDataset(cfg, frame, boxes)

	b := ds.Batch(1, 3)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, [4]int{2, 3, 256, 256}, b.Shape())
	assert.Equal(t, []int{1, 2}, b.PersonID)
	assert.Len(t, b.Img, 2*3*256*256)
}

func TestBatch_ToHalf(t *testing.T) {
	b := &Batch{Size: 1}
	b.Append(Item{
		Img:       []float32{0.1, -2.1179, 2.64},
		PersonID:  0,
		BoxCenter: [2]float32{1234.56, 10.1},
		BoxSize:   777.7,
		ImgSize:   [2]float32{1920, 1080},
	})

	h := b.ToHalf()
	assert.True(t, h.FP16)
	assert.False(t, b.FP16)
	require.Len(t, h.Img, 3)
	for i, v := range h.Img {
		assert.False(t, math.IsInf(float64(v), 0) || math.IsNaN(float64(v)))
		assert.InDelta(t, b.Img[i], v, 1e-2)
	}
	assert.InDelta(t, 1234.56, h.BoxCenter[0][0], 1)
	assert.Equal(t, [2]float32{1920, 1080}, h.ImgSize[0])
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(1.5)
	require.Len(t, k, 13)

	var sum float32
	for i, w := range k {
		sum += w
		assert.InDelta(t, w, k[len(k)-1-i], 1e-7)
	}
	assert.InDelta(t, 1, sum, 1e-5)
	assert.Greater(t, k[6], k[5])

	assert.Len(t, gaussianKernel(0.05), 1)
	assert.Equal(t, 8, blurMargin(1.75))
}

func TestGaussianBlurRegion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 21, 21))
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}
	src.Pix[src.PixOffset(10, 10)] = 255

	out := gaussianBlurRegion(src, image.Rect(5, 5, 16, 16), 1.5)
	assert.Equal(t, image.Rect(5, 5, 16, 16), out.Rect)

	peak := out.at(10, 10, 0)
	neighbour := out.at(11, 10, 0)
	assert.Less(t, peak, float32(255))
	assert.Greater(t, peak, float32(0))
	assert.Less(t, neighbour, peak)
	// Float output keeps tails that would round to zero in 8 bits
	assert.Greater(t, out.at(15, 10, 0), float32(0))
	assert.Less(t, out.at(15, 10, 0), float32(0.5))
	assert.Equal(t, float32(0), out.at(4, 4, 0))
}

func TestWarpBilinear(t *testing.T) {
	src := &floatImage{Rect: image.Rect(0, 0, 2, 1), Pix: []float32{0, 0, 0, 100, 100, 100}}
	mean := [3]float32{0, 0, 0}
	std := [3]float32{1, 1, 1}

	// Identity scale, shifted by a quarter pixel
	out := warpBilinear(src, 2, 1, -0.25, 0, mean, std)
	require.Len(t, out, 3*4)
	assert.InDelta(t, 25, out[0], 1e-4)
	// Right tap falls outside src and reads zero
	assert.InDelta(t, 75, out[1], 1e-4)
	// Second row is outside src
	assert.InDelta(t, 0, out[2], 1e-4)
}

// columnFrame is black except for one white column at x.
func columnFrame(w, h, x int) types.Frame {
	f := uniformFrame(w, h, 0)
	for y := 0; y < h; y++ {
		off := (y*w + x) * 3
		f.Pix[off], f.Pix[off+1], f.Pix[off+2] = 255, 255, 255
	}
	return f
}

func TestDataset_CropCentresOnPixel(t *testing.T) {
	cfg := DefaultModelConfig()
	cfg.Mean = [3]float32{0, 0, 0}
	cfg.Std = [3]float32{1, 1, 1}

	tests := []struct {
		name  string
		frame types.Frame
		box   types.Box
		size  float64
	}{
		// 2.5 * 32 high, narrow enough to stay 80 after aspect expansion
		{"upsampled", columnFrame(80, 80, 40), types.Box{X1: 32, Y1: 24, X2: 48, Y2: 56}, 80},
		// Large enough to go through the anti-alias path
		{"blurred", columnFrame(1400, 1400, 700), types.Box{X1: 620, Y1: 444, X2: 780, Y2: 956}, 1280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := NewDataset(cfg, tt.frame, []types.Box{tt.box})
			require.InDelta(t, tt.size, ds.BoxSize(0), 1e-9)

			it := ds.Item(0)
			row := 128 * 256
			left, centre, right := it.Img[row+127], it.Img[row+128], it.Img[row+129]
			// The box centre column lands exactly on patch column 128
			assert.InDelta(t, left, right, 1)
			assert.Greater(t, centre, left)
		})
	}
}

func TestConfigFromInfo(t *testing.T) {
	cfg, err := ConfigFromInfo(worker.ModelInfo{
		FocalLength: 4000,
		ImageSize:   224,
		BBoxShape:   []int{160, 224},
		ImageMean:   []float64{0.5, 0.5, 0.5},
		ImageStd:    []float64{0.25, 0.25, 0.25},
	})
	require.NoError(t, err)
	assert.Equal(t, 4000.0, cfg.FocalLength)
	assert.Equal(t, 224, cfg.ImageSize)
	assert.Equal(t, [2]float64{160, 224}, cfg.BBoxShape)
	assert.InDelta(t, 127.5, cfg.Mean[0], 1e-4)

	_, err = ConfigFromInfo(worker.ModelInfo{BBoxShape: []int{1}})
	assert.Error(t, err)

	cfg, err = ConfigFromInfo(worker.ModelInfo{})
	require.NoError(t, err)
	assert.Equal(t, DefaultModelConfig(), cfg)
}

type fakeRegressClient struct {
	got worker.RegressRequest
}

func (f *fakeRegressClient) Regress(_ context.Context, req worker.RegressRequest) (*worker.RegressResponse, error) {
	f.got = req
	return &worker.RegressResponse{
		PredCam:      make([]mgl32.Vec3, req.Shape[0]),
		PredVertices: make([][]mgl32.Vec3, req.Shape[0]),
	}, nil
}

func TestWorkerRegressor_Forward(t *testing.T) {
	client := &fakeRegressClient{}
	r := NewWorkerRegressor(client)

	b := &Batch{Size: 1}
	b.Append(Item{Img: []float32{1, 2, 3}})
	b = b.ToHalf()

	out, err := r.Forward(context.Background(), b)
	require.NoError(t, err)
	assert.Len(t, out.PredCam, 1)
	assert.True(t, client.got.Half)
	assert.Equal(t, [4]int{1, 3, 1, 1}, client.got.Shape)
}
