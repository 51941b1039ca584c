package hmr

import (
	"github.com/x448/float16"
)

// Batch is a stack of crops fed to the regressor in one forward pass.
type Batch struct {
	// Size is the crop side in pixels.
	Size      int
	Img       []float32
	PersonID  []int
	BoxCenter [][2]float32
	BoxSize   []float32
	ImgSize   [][2]float32
	// FP16 marks a batch whose values have been rounded to half precision.
	FP16 bool
}

// Len is the number of crops in the batch.
func (b *Batch) Len() int {
	return len(b.PersonID)
}

// Shape is the NCHW shape of Img.
func (b *Batch) Shape() [4]int {
	return [4]int{b.Len(), 3, b.Size, b.Size}
}

// Append adds one item to the batch.
func (b *Batch) Append(it Item) {
	b.Img = append(b.Img, it.Img...)
	b.PersonID = append(b.PersonID, it.PersonID)
	b.BoxCenter = append(b.BoxCenter, it.BoxCenter)
	b.BoxSize = append(b.BoxSize, it.BoxSize)
	b.ImgSize = append(b.ImgSize, it.ImgSize)
}

// ToHalf returns a copy with every floating-point field rounded to float16,
// the way a half-precision model sees its inputs.
func (b *Batch) ToHalf() *Batch {
	out := &Batch{
		Size:      b.Size,
		Img:       make([]float32, len(b.Img)),
		PersonID:  append([]int(nil), b.PersonID...),
		BoxCenter: make([][2]float32, len(b.BoxCenter)),
		BoxSize:   make([]float32, len(b.BoxSize)),
		ImgSize:   make([][2]float32, len(b.ImgSize)),
		FP16:      true,
	}
	for i, v := range b.Img {
		out.Img[i] = roundHalf(v)
	}
	for i := range b.BoxCenter {
		out.BoxCenter[i] = [2]float32{roundHalf(b.BoxCenter[i][0]), roundHalf(b.BoxCenter[i][1])}
		out.BoxSize[i] = roundHalf(b.BoxSize[i])
		out.ImgSize[i] = [2]float32{roundHalf(b.ImgSize[i][0]), roundHalf(b.ImgSize[i][1])}
	}
	return out
}

func roundHalf(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}
