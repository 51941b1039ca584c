package human4d

import (
	"io"

	"github.com/andresmejia3/human4d/internal/detector"
	"github.com/andresmejia3/human4d/internal/device"
	"github.com/andresmejia3/human4d/internal/hmr"
)

// Bundle is the HUMAN4D_MODEL value: a loaded detector and mesh regressor
// plus the settings the sampler needs. It is not modified after loading.
type Bundle struct {
	detector  detector.Detector
	regressor hmr.Regressor
	cfg       hmr.ModelConfig
	dev       device.Device
	fp16      bool
	closer    io.Closer
}

// NewBundle assembles a bundle. closer may be nil.
func NewBundle(det detector.Detector, reg hmr.Regressor, cfg hmr.ModelConfig, dev device.Device, fp16 bool, closer io.Closer) *Bundle {
	return &Bundle{
		detector:  det,
		regressor: reg,
		cfg:       cfg,
		dev:       dev,
		fp16:      fp16,
		closer:    closer,
	}
}

func (b *Bundle) Detector() detector.Detector { return b.detector }

func (b *Bundle) Regressor() hmr.Regressor { return b.regressor }

func (b *Bundle) Config() hmr.ModelConfig { return b.cfg }

// Device is where the worker placed the models.
func (b *Bundle) Device() device.Device { return b.dev }

// FP16 reports whether the regressor runs in half precision.
func (b *Bundle) FP16() bool { return b.fp16 }

// Close releases the inference process behind the bundle.
func (b *Bundle) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}
