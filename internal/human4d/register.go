package human4d

import "github.com/andresmejia3/human4d/internal/node"

// Category groups both nodes in the host's menu.
const Category = "MotionDiff"

const (
	LoaderClass  = "Humans4DLoader"
	SamplerClass = "Human4D_Img2SMPL"
)

// Register adds the loader and sampler nodes to r.
func Register(r *node.Registry, l *Loader, s *Sampler) error {
	if err := r.Register(LoaderClass, "Human4D Loader", l); err != nil {
		return err
	}
	return r.Register(SamplerClass, "Human4D Image2SMPL", s)
}
