package hmr

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/andresmejia3/human4d/internal/types"
)

// rescaleFactor pads each detection before cropping.
const rescaleFactor = 2.5

// Item is one person crop ready for the regression model.
type Item struct {
	// Img is the normalised patch in CHW layout, 3 x ImageSize x ImageSize.
	Img       []float32
	PersonID  int
	BoxCenter [2]float32
	BoxSize   float32
	// ImgSize is the full frame as (width, height).
	ImgSize [2]float32
}

// Dataset turns one frame and its detections into model crops.
type Dataset struct {
	cfg     ModelConfig
	frame   *image.RGBA
	centers [][2]float64
	scales  [][2]float64
}

// NewDataset prepares crops for every box in frame. Boxes are xyxy pixels.
func NewDataset(cfg ModelConfig, frame types.Frame, boxes []types.Box) *Dataset {
	d := &Dataset{
		cfg:     cfg,
		frame:   frameToRGBA(frame),
		centers: make([][2]float64, len(boxes)),
		scales:  make([][2]float64, len(boxes)),
	}
	for i, b := range boxes {
		x1, y1, x2, y2 := float64(b.X1), float64(b.Y1), float64(b.X2), float64(b.Y2)
		d.centers[i] = [2]float64{(x1 + x2) / 2, (y1 + y2) / 2}
		d.scales[i] = [2]float64{rescaleFactor * (x2 - x1) / 200, rescaleFactor * (y2 - y1) / 200}
	}
	return d
}

// Len is the number of detected persons.
func (d *Dataset) Len() int {
	return len(d.centers)
}

// ExpandToAspectRatio grows (w, h) along one axis until it matches target's aspect.
func ExpandToAspectRatio(w, h float64, target [2]float64) (float64, float64) {
	wt, ht := target[0], target[1]
	if h/w < ht/wt {
		return w, math.Max(w*ht/wt, h)
	}
	return math.Max(h*wt/ht, w), h
}

// BoxSize is the side of the square source region cropped for person i.
func (d *Dataset) BoxSize(i int) float64 {
	w, h := ExpandToAspectRatio(d.scales[i][0]*200, d.scales[i][1]*200, d.cfg.BBoxShape)
	return math.Max(w, h)
}

// Item builds the crop for person i.
func (d *Dataset) Item(i int) Item {
	size := d.cfg.ImageSize
	center := d.centers[i]
	boxSize := d.BoxSize(i)

	var img []float32
	if boxSize > 0 {
		// Source pixel p lands on patch pixel s*(p-center)+size/2, pixel centres at integers.
		s := float64(size) / boxSize
		tx := float64(size)/2 - s*center[0]
		ty := float64(size)/2 - s*center[1]

		// Anti-alias before strong down-sampling
		factor := boxSize / float64(size) / 2
		if factor > 1.1 {
			sigma := (factor - 1) / 2
			footprint := image.Rect(
				int(math.Floor(center[0]-boxSize/2)), int(math.Floor(center[1]-boxSize/2)),
				int(math.Ceil(center[0]+boxSize/2))+1, int(math.Ceil(center[1]+boxSize/2))+1,
			)
			blurred := gaussianBlurRegion(d.frame, footprint.Inset(-blurMargin(sigma)), sigma)
			img = warpBilinear(blurred, size, s, tx, ty, d.cfg.Mean, d.cfg.Std)
		} else {
			// draw samples at pixel centres offset by half a pixel on both sides
			patch := image.NewRGBA(image.Rect(0, 0, size, size))
			s2d := f64.Aff3{
				s, 0, tx + 0.5 - 0.5*s,
				0, s, ty + 0.5 - 0.5*s,
			}
			draw.BiLinear.Transform(patch, s2d, d.frame, d.frame.Bounds(), draw.Src, nil)
			img = normalizePatch(patch, d.cfg.Mean, d.cfg.Std)
		}
	} else {
		img = normalizePatch(image.NewRGBA(image.Rect(0, 0, size, size)), d.cfg.Mean, d.cfg.Std)
	}

	bounds := d.frame.Bounds()
	return Item{
		Img:       img,
		PersonID:  i,
		BoxCenter: [2]float32{float32(center[0]), float32(center[1])},
		BoxSize:   float32(boxSize),
		ImgSize:   [2]float32{float32(bounds.Dx()), float32(bounds.Dy())},
	}
}

// Batch stacks items [start, end).
func (d *Dataset) Batch(start, end int) *Batch {
	b := &Batch{Size: d.cfg.ImageSize}
	for i := start; i < end; i++ {
		b.Append(d.Item(i))
	}
	return b
}

// normalizePatch converts an RGBA patch into CHW floats, (v - mean) / std per channel.
// Pixels left unpainted by the warp stay 0 before normalisation (constant border).
func normalizePatch(patch *image.RGBA, mean, std [3]float32) []float32 {
	w, h := patch.Rect.Dx(), patch.Rect.Dy()
	planeSize := w * h
	out := make([]float32, 3*planeSize)
	for y := 0; y < h; y++ {
		row := y * patch.Stride
		for x := 0; x < w; x++ {
			off := row + x*4
			p := y*w + x
			for c := 0; c < 3; c++ {
				out[c*planeSize+p] = (float32(patch.Pix[off+c]) - mean[c]) / std[c]
			}
		}
	}
	return out
}

func frameToRGBA(frame types.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for p := 0; p < frame.Width*frame.Height; p++ {
		img.Pix[p*4] = frame.Pix[p*3]
		img.Pix[p*4+1] = frame.Pix[p*3+1]
		img.Pix[p*4+2] = frame.Pix[p*3+2]
		img.Pix[p*4+3] = 255
	}
	return img
}
