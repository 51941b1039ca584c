package node

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/andresmejia3/human4d/internal/types"
)

type entry struct {
	display string
	node    Node
}

// Registry maps node class names to instances and display names.
type Registry struct {
	nodes map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]entry)}
}

// Register adds a node under class. Registering a class twice is an error.
func (r *Registry) Register(class, display string, n Node) error {
	if _, ok := r.nodes[class]; ok {
		return fmt.Errorf("node %q already registered", class)
	}
	r.nodes[class] = entry{display: display, node: n}
	return nil
}

// Classes lists registered class names, sorted.
func (r *Registry) Classes() []string {
	out := make([]string, 0, len(r.nodes))
	for class := range r.nodes {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Node returns the node registered under class.
func (r *Registry) Node(class string) (Node, bool) {
	e, ok := r.nodes[class]
	return e.node, ok
}

// DisplayName returns the human-facing name for class.
func (r *Registry) DisplayName(class string) string {
	if e, ok := r.nodes[class]; ok {
		return e.display
	}
	return class
}

// Invoke validates raw against the node's declared inputs and calls it.
func (r *Registry) Invoke(ctx context.Context, class string, raw map[string]any) ([]any, error) {
	e, ok := r.nodes[class]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", class)
	}

	in, err := validate(e.node.InputTypes(), raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", class, err)
	}

	out, err := e.node.Call(ctx, in)
	if err != nil {
		return nil, err
	}
	if want := len(e.node.ReturnTypes()); len(out) != want {
		return nil, fmt.Errorf("%s: returned %d values, declared %d", class, len(out), want)
	}
	return out, nil
}

// validate fills defaults, type-checks and range-checks inputs. Undeclared
// keys and nil optionals are dropped.
func validate(decl InputTypes, raw map[string]any) (Inputs, error) {
	in := make(Inputs, len(decl.Required)+len(decl.Optional))

	for _, slot := range decl.Required {
		v, ok := raw[slot.Name]
		if !ok || v == nil {
			if slot.Default == nil {
				return nil, fmt.Errorf("required input %q missing", slot.Name)
			}
			v = slot.Default
		}
		cv, err := coerce(slot, v)
		if err != nil {
			return nil, err
		}
		in[slot.Name] = cv
	}

	for _, slot := range decl.Optional {
		v, ok := raw[slot.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := coerce(slot, v)
		if err != nil {
			return nil, err
		}
		in[slot.Name] = cv
	}
	return in, nil
}

// coerce converts v to the Go type of the slot and checks its range.
func coerce(slot Input, v any) (any, error) {
	switch slot.Type {
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(slot, v)
		}
		return s, nil
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(slot, v)
		}
		return b, nil
	case Float:
		f, ok := toFloat(v)
		if !ok {
			return nil, typeError(slot, v)
		}
		if err := checkRange(slot, f); err != nil {
			return nil, err
		}
		return f, nil
	case Int:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, typeError(slot, v)
		}
		if err := checkRange(slot, f); err != nil {
			return nil, err
		}
		return int(f), nil
	case Image:
		img, ok := v.(*types.ImageBatch)
		if !ok || img == nil {
			return nil, typeError(slot, v)
		}
		return img, nil
	}
	// Host-specific slot types are opaque here; the node asserts them.
	return v, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func checkRange(slot Input, f float64) error {
	if math.IsNaN(f) {
		return fmt.Errorf("input %q is NaN", slot.Name)
	}
	if slot.Range == nil {
		return nil
	}
	if f < slot.Range.Min || f > slot.Range.Max {
		return fmt.Errorf("input %q = %v outside [%v, %v]", slot.Name, f, slot.Range.Min, slot.Range.Max)
	}
	return nil
}

func typeError(slot Input, v any) error {
	return fmt.Errorf("input %q: expected %s, got %T", slot.Name, slot.Type, v)
}
