package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"

	"github.com/andresmejia3/human4d/internal/types"
)

// Op selects the worker routine a request is dispatched to.
type Op byte

const (
	OpLoad    Op = 1
	OpDetect  Op = 2
	OpRegress Op = 3
)

const (
	statusOK    = 0
	statusError = 1
)

// LoadRequest asks the worker to place both models on a device.
type LoadRequest struct {
	DetectorFamily string `json:"detector_family"`
	DetectorPath   string `json:"detector_path"`
	Checkpoint     string `json:"checkpoint"`
	Device         string `json:"device"`
	FP16           bool   `json:"fp16"`
}

// ModelInfo is the subset of the regression model's configuration the Go side needs.
type ModelInfo struct {
	FocalLength float64   `json:"focal_length"`
	ImageSize   int       `json:"image_size"`
	BBoxShape   []int     `json:"bbox_shape"`
	ImageMean   []float64 `json:"image_mean"`
	ImageStd    []float64 `json:"image_std"`
}

// LoadResponse reports where the models ended up.
type LoadResponse struct {
	Device string    `json:"device"`
	Model  ModelInfo `json:"model"`
}

// DetectRequest runs the detector over frames of one size.
type DetectRequest struct {
	Frames  []types.Frame
	Conf    float64
	IoU     float64
	Classes []int
}

type detectHeader struct {
	Count   int     `json:"count"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	Conf    float64 `json:"conf"`
	IoU     float64 `json:"iou"`
	Classes []int   `json:"classes"`
}

type detectReply struct {
	Counts []int `json:"counts"`
}

// RegressRequest carries a normalised NCHW crop batch.
type RegressRequest struct {
	Shape  [4]int
	Images []float32
	Half   bool
}

type regressHeader struct {
	Shape [4]int `json:"shape"`
	DType string `json:"dtype"`
}

type regressReply struct {
	Batch    int `json:"batch"`
	NumVerts int `json:"num_verts"`
}

// RegressResponse holds the raw model outputs for one crop batch.
type RegressResponse struct {
	PredCam      []mgl32.Vec3
	PredVertices [][]mgl32.Vec3
}

// LoadModels loads the detector and the mesh-regression checkpoint.
func (w *PythonWorker) LoadModels(ctx context.Context, req LoadRequest) (*LoadResponse, error) {
	var resp LoadResponse
	if _, err := w.call(ctx, OpLoad, req, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Detect returns one box set per frame, in frame order.
func (w *PythonWorker) Detect(ctx context.Context, req DetectRequest) ([][]types.Box, error) {
	if len(req.Frames) == 0 {
		return nil, nil
	}
	width, height := req.Frames[0].Width, req.Frames[0].Height
	payload := make([]byte, 0, len(req.Frames)*width*height*3)
	for i, f := range req.Frames {
		if f.Width != width || f.Height != height {
			return nil, fmt.Errorf("frame %d is %dx%d, expected %dx%d", i, f.Width, f.Height, width, height)
		}
		payload = append(payload, f.Pix...)
	}

	hdr := detectHeader{
		Count:   len(req.Frames),
		Width:   width,
		Height:  height,
		Conf:    req.Conf,
		IoU:     req.IoU,
		Classes: req.Classes,
	}
	var reply detectReply
	body, err := w.call(ctx, OpDetect, hdr, payload, &reply)
	if err != nil {
		return nil, err
	}
	if len(reply.Counts) != len(req.Frames) {
		return nil, fmt.Errorf("worker returned boxes for %d frames, sent %d", len(reply.Counts), len(req.Frames))
	}

	r := bytes.NewReader(body)
	out := make([][]types.Box, len(reply.Counts))
	for i, n := range reply.Counts {
		coords := make([]float32, n*4)
		if err := binary.Read(r, binary.BigEndian, coords); err != nil {
			return nil, fmt.Errorf("failed to read boxes for frame %d: %w", i, err)
		}
		boxes := make([]types.Box, n)
		for j := range boxes {
			boxes[j] = types.Box{X1: coords[j*4], Y1: coords[j*4+1], X2: coords[j*4+2], Y2: coords[j*4+3]}
		}
		out[i] = boxes
	}
	return out, nil
}

// Regress runs the mesh-regression model over one crop batch.
// Half batches travel as float16 and are fed to the model as such.
func (w *PythonWorker) Regress(ctx context.Context, req RegressRequest) (*RegressResponse, error) {
	n := req.Shape[0] * req.Shape[1] * req.Shape[2] * req.Shape[3]
	if n != len(req.Images) {
		return nil, fmt.Errorf("crop shape %v needs %d values, got %d", req.Shape, n, len(req.Images))
	}

	hdr := regressHeader{Shape: req.Shape, DType: "float32"}
	var payload bytes.Buffer
	if req.Half {
		hdr.DType = "float16"
		payload.Grow(n * 2)
		bits := make([]uint16, n)
		for i, v := range req.Images {
			bits[i] = float16.Fromfloat32(v).Bits()
		}
		if err := binary.Write(&payload, binary.BigEndian, bits); err != nil {
			return nil, fmt.Errorf("failed to encode crops: %w", err)
		}
	} else {
		payload.Grow(n * 4)
		if err := binary.Write(&payload, binary.BigEndian, req.Images); err != nil {
			return nil, fmt.Errorf("failed to encode crops: %w", err)
		}
	}

	var reply regressReply
	body, err := w.call(ctx, OpRegress, hdr, payload.Bytes(), &reply)
	if err != nil {
		return nil, err
	}
	if reply.Batch != req.Shape[0] {
		return nil, fmt.Errorf("worker returned %d meshes for %d crops", reply.Batch, req.Shape[0])
	}

	r := bytes.NewReader(body)
	cams := make([]mgl32.Vec3, reply.Batch)
	if err := binary.Read(r, binary.BigEndian, cams); err != nil {
		return nil, fmt.Errorf("failed to read pred_cam: %w", err)
	}
	verts := make([][]mgl32.Vec3, reply.Batch)
	for i := range verts {
		verts[i] = make([]mgl32.Vec3, reply.NumVerts)
		if err := binary.Read(r, binary.BigEndian, verts[i]); err != nil {
			return nil, fmt.Errorf("failed to read pred_vertices[%d]: %w", i, err)
		}
	}
	return &RegressResponse{PredCam: cams, PredVertices: verts}, nil
}

// call frames a request as [Op][HeaderLen][Header JSON][Payload] and decodes
// the reply [Status] followed by either [HeaderLen][Header JSON][Payload] or [MsgLen][Msg].
func (w *PythonWorker) call(ctx context.Context, op Op, header any, payload []byte, reply any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	req := make([]byte, 0, 5+len(hdr)+len(payload))
	req = append(req, byte(op))
	req = binary.BigEndian.AppendUint32(req, uint32(len(hdr)))
	req = append(req, hdr...)
	req = append(req, payload...)

	resp, err := w.Communicate(req)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty response from worker %d", w.ID)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("truncated response from worker %d: %w", w.ID, err)
	}
	section := make([]byte, n)
	if _, err := io.ReadFull(r, section); err != nil {
		return nil, fmt.Errorf("truncated response from worker %d: %w", w.ID, err)
	}

	switch status {
	case statusOK:
	case statusError:
		return nil, fmt.Errorf("python worker error: %s", section)
	default:
		return nil, fmt.Errorf("unknown status %d from worker %d", status, w.ID)
	}

	if reply != nil && len(section) > 0 {
		if err := json.Unmarshal(section, reply); err != nil {
			return nil, fmt.Errorf("malformed reply header: %w", err)
		}
	}
	return resp[len(resp)-r.Len():], nil
}
