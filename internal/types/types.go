package types

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ImageBatch is the host's IMAGE slot: F frames of H x W x C float values in [0,1].
// All frames share one width and height.
type ImageBatch struct {
	Frames   int
	Height   int
	Width    int
	Channels int
	Data     []float32
}

// NewImageBatch allocates a zeroed batch.
func NewImageBatch(frames, height, width, channels int) *ImageBatch {
	return &ImageBatch{
		Frames:   frames,
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]float32, frames*height*width*channels),
	}
}

// Validate checks that the declared shape matches the backing slice.
func (b *ImageBatch) Validate() error {
	if b.Channels < 3 {
		return fmt.Errorf("image batch needs at least 3 channels, got %d", b.Channels)
	}
	if want := b.Frames * b.Height * b.Width * b.Channels; len(b.Data) != want {
		return fmt.Errorf("image batch shape (%d,%d,%d,%d) needs %d values, got %d",
			b.Frames, b.Height, b.Width, b.Channels, want, len(b.Data))
	}
	return nil
}

// Uint8Frames scales the batch by 255 and truncates to 8-bit RGB frames.
// Values outside [0,1] are clamped. Extra channels (alpha) are dropped.
func (b *ImageBatch) Uint8Frames() []Frame {
	frames := make([]Frame, b.Frames)
	plane := b.Height * b.Width
	for f := 0; f < b.Frames; f++ {
		pix := make([]uint8, plane*3)
		src := b.Data[f*plane*b.Channels : (f+1)*plane*b.Channels]
		for p := 0; p < plane; p++ {
			for c := 0; c < 3; c++ {
				pix[p*3+c] = toUint8(src[p*b.Channels+c])
			}
		}
		frames[f] = Frame{Width: b.Width, Height: b.Height, Pix: pix}
	}
	return frames
}

// toUint8 truncates v*255 toward zero.
func toUint8(v float32) uint8 {
	v *= 255
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// Frame is one 8-bit RGB frame stored row-major as H x W x 3.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// Box is a detection in xyxy pixel coordinates.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// VertexStack holds one frame's meshes, one vertex slice per subject.
type VertexStack [][]mgl32.Vec3

// CamStack holds one frame's full-image camera translations, one per subject.
type CamStack []mgl32.Vec3

// BodyModelRef identifies the parametric body model the vertices belong to.
type BodyModelRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Metadata travels with the vertex stacks to downstream nodes.
type Metadata struct {
	NormalizedToVertices bool       `json:"normalized_to_vertices"`
	Cam                  []CamStack `json:"cam"`
	FrameWidth           float32    `json:"frame_width"`
	FrameHeight          float32    `json:"frame_height"`
	FocalLength          float32    `json:"focal_length"`
}

// SMPLMultipleSubjects is the sampler's output slot.
type SMPLMultipleSubjects struct {
	BodyModel BodyModelRef  `json:"body_model"`
	Verts     []VertexStack `json:"verts"`
	Meta      Metadata      `json:"meta"`
}

