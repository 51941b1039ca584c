package node

import (
	"context"
	"fmt"
)

// SlotType names the kind of value flowing through a node input or output.
type SlotType string

const (
	String               SlotType = "STRING"
	Float                SlotType = "FLOAT"
	Int                  SlotType = "INT"
	Boolean              SlotType = "BOOLEAN"
	Image                SlotType = "IMAGE"
	Human4DModel         SlotType = "HUMAN4D_MODEL"
	ScoreHMRModel        SlotType = "SCORE_HMR_MODEL"
	SMPLMultipleSubjects SlotType = "SMPL_MULTIPLE_SUBJECTS"
)

// Range bounds a numeric input.
type Range struct {
	Min, Max, Step float64
}

// Input declares one node input.
type Input struct {
	Name    string
	Type    SlotType
	Default any
	Range   *Range
}

// InputTypes is a node's declared inputs, in display order.
type InputTypes struct {
	Required []Input
	Optional []Input
}

// Node is a unit of work the host can call.
type Node interface {
	InputTypes() InputTypes
	ReturnTypes() []SlotType
	Category() string
	Call(ctx context.Context, in Inputs) ([]any, error)
}

// Inputs are validated arguments keyed by input name.
type Inputs map[string]any

// Has reports whether name was supplied.
func (in Inputs) Has(name string) bool {
	v, ok := in[name]
	return ok && v != nil
}

func (in Inputs) String(name string) (string, error) {
	return get[string](in, name)
}

func (in Inputs) Float(name string) (float64, error) {
	return get[float64](in, name)
}

func (in Inputs) Int(name string) (int, error) {
	return get[int](in, name)
}

func (in Inputs) Bool(name string) (bool, error) {
	return get[bool](in, name)
}

// Value returns name as T, for host-specific slot types.
func Value[T any](in Inputs, name string) (T, error) {
	return get[T](in, name)
}

func get[T any](in Inputs, name string) (T, error) {
	var zero T
	raw, ok := in[name]
	if !ok {
		return zero, fmt.Errorf("missing input %q", name)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("input %q: expected %T, got %T", name, zero, raw)
	}
	return v, nil
}
