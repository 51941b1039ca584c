package bodymodel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/human4d/internal/types"
)

// Neutral is the gender-neutral SMPL model the sampler's vertices belong to.
const Neutral = "SMPL_NEUTRAL.pkl"

// ErrModelNotFound is returned when a named body model is not on disk.
var ErrModelNotFound = errors.New("body model not found")

// modelExts are the file types body models ship as.
var modelExts = map[string]bool{".pkl": true, ".npz": true}

// Models scans dir for body model files, keyed by file name.
// A missing directory yields an empty map.
func Models(dir string) (map[string]types.BodyModelRef, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]types.BodyModelRef{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read body model dir: %w", err)
	}

	models := make(map[string]types.BodyModelRef)
	for _, e := range entries {
		if e.IsDir() || !modelExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		models[e.Name()] = types.BodyModelRef{Name: e.Name(), Path: filepath.Join(dir, e.Name())}
	}
	return models, nil
}

// Lookup returns the reference for one model file in dir. When it is missing
// the error lists the models that are there.
func Lookup(dir, name string) (types.BodyModelRef, error) {
	models, err := Models(dir)
	if err != nil {
		return types.BodyModelRef{}, err
	}
	if ref, ok := models[name]; ok {
		return ref, nil
	}

	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	sort.Strings(names)
	available := "none"
	if len(names) > 0 {
		available = strings.Join(names, ", ")
	}
	return types.BodyModelRef{}, fmt.Errorf("%w: %s (available: %s)", ErrModelNotFound, filepath.Join(dir, name), available)
}
