package human4d

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/andresmejia3/human4d/internal/assets"
	"github.com/andresmejia3/human4d/internal/detector"
	"github.com/andresmejia3/human4d/internal/device"
	"github.com/andresmejia3/human4d/internal/hmr"
	"github.com/andresmejia3/human4d/internal/logger"
	"github.com/andresmejia3/human4d/internal/node"
	"github.com/andresmejia3/human4d/internal/worker"
)

// DefaultDetector is the detector weights file the loader uses unless told otherwise.
const DefaultDetector = "rtdetr-x.pt"

// Runtime is the process the models are loaded into.
type Runtime interface {
	detector.DetectClient
	hmr.RegressClient
	LoadModels(ctx context.Context, req worker.LoadRequest) (*worker.LoadResponse, error)
	Close() error
}

// StartFunc launches a fresh runtime.
type StartFunc func(ctx context.Context) (Runtime, error)

// Fetcher makes sure named files exist in a directory.
type Fetcher interface {
	Fetch(ctx context.Context, dir string, files map[string]string) error
}

// LoaderConfig locates weights and picks the device.
type LoaderConfig struct {
	CacheDir   string
	BaseURL    string
	Checkpoint string
	Device     string
}

// Loader is the Humans4DLoader node.
type Loader struct {
	cfg   LoaderConfig
	fetch Fetcher
	start StartFunc
}

func NewLoader(cfg LoaderConfig, fetch Fetcher, start StartFunc) *Loader {
	return &Loader{cfg: cfg, fetch: fetch, start: start}
}

func (l *Loader) InputTypes() node.InputTypes {
	return node.InputTypes{
		Required: []node.Input{
			{Name: "det_filename", Type: node.String, Default: DefaultDetector},
			{Name: "fp16", Type: node.Boolean, Default: false},
		},
	}
}

func (l *Loader) ReturnTypes() []node.SlotType {
	return []node.SlotType{node.Human4DModel}
}

func (l *Loader) Category() string { return Category }

func (l *Loader) Call(ctx context.Context, in node.Inputs) ([]any, error) {
	name, err := in.String("det_filename")
	if err != nil {
		return nil, err
	}
	fp16, err := in.Bool("fp16")
	if err != nil {
		return nil, err
	}
	b, err := l.Load(ctx, name, fp16)
	if err != nil {
		return nil, err
	}
	return []any{b}, nil
}

// Load fetches the detector weights if needed and loads both models.
func (l *Loader) Load(ctx context.Context, detFilename string, fp16 bool) (*Bundle, error) {
	log, _ := logger.GetZapLogger(ctx)

	if err := l.fetch.Fetch(ctx, l.cfg.CacheDir, map[string]string{
		detFilename: assets.DetectorURL(l.cfg.BaseURL, detFilename),
	}); err != nil {
		return nil, err
	}

	family := detector.FamilyFor(detFilename)
	dev, err := device.Parse(l.cfg.Device)
	if err != nil {
		return nil, err
	}

	rt, err := l.start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start inference worker: %w", err)
	}

	resp, err := rt.LoadModels(ctx, worker.LoadRequest{
		DetectorFamily: string(family),
		DetectorPath:   filepath.Join(l.cfg.CacheDir, detFilename),
		Checkpoint:     l.cfg.Checkpoint,
		Device:         dev.String(),
		FP16:           fp16,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	cfg, err := hmr.ConfigFromInfo(resp.Model)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if used, err := device.Parse(resp.Device); err == nil && resp.Device != "" {
		dev = used
	}

	log.Info("Models loaded",
		zap.String("detector", detFilename),
		zap.String("family", string(family)),
		zap.String("device", dev.String()),
		zap.Bool("fp16", fp16))

	return NewBundle(
		detector.NewWorkerDetector(rt, family),
		hmr.NewWorkerRegressor(rt),
		cfg, dev, fp16, rt,
	), nil
}
