package device

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	Auto = "auto"
	CPU  = "cpu"
	CUDA = "cuda"
	MPS  = "mps"
)

// Device is a compute placement for the inference worker.
// Index is -1 unless a CUDA ordinal was given.
type Device struct {
	Type  string
	Index int
}

// Parse reads a device preference such as "auto", "cpu", "cuda", "cuda:1" or "mps".
func Parse(pref string) (Device, error) {
	s := strings.ToLower(strings.TrimSpace(pref))
	if s == "" {
		return Device{Type: Auto, Index: -1}, nil
	}

	kind, ordinal, hasOrdinal := strings.Cut(s, ":")
	switch kind {
	case Auto, CPU, MPS:
		if hasOrdinal {
			return Device{}, fmt.Errorf("device %q does not take an index", kind)
		}
		return Device{Type: kind, Index: -1}, nil
	case CUDA:
		if !hasOrdinal {
			return Device{Type: CUDA, Index: -1}, nil
		}
		idx, err := strconv.Atoi(ordinal)
		if err != nil || idx < 0 {
			return Device{}, fmt.Errorf("invalid cuda index %q", ordinal)
		}
		return Device{Type: CUDA, Index: idx}, nil
	}
	return Device{}, fmt.Errorf("unknown device %q", pref)
}

// String is the torch device string, e.g. "cuda:0".
func (d Device) String() string {
	if d.Type == "" {
		return Auto
	}
	if d.Index >= 0 {
		return fmt.Sprintf("%s:%d", d.Type, d.Index)
	}
	return d.Type
}
