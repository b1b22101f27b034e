// Package split decomposes a constructed model into a shared body
// (representation) and a personalized head (classifier) and provides uniform
// parameter access to both halves.
package split

import (
	"errors"
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
)

var ErrEmptyBody = errors.New("split produced an empty body")
var ErrEmptyHead = errors.New("split produced an empty head")

// ShapeMismatchError reports a state merge where an incoming tensor
// disagrees with the existing parameter shape.
type ShapeMismatchError struct {
	Name     string
	Got      []int
	Expected []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for parameter %s: got %v, expected %v", e.Name, e.Got, e.Expected)
}

// Splitter produces the body and head of a constructed model. Each concrete
// architecture supplies its own splitting rule; the rule must partition all
// of the model's parameters with no overlap.
type Splitter interface {
	Split(model *nn.Sequential) (body *nn.Sequential, head *nn.Sequential, err error)
}

// FinalLinearSplitter splits at the last linear layer: everything before it
// is the body, the last linear layer (and anything after) is the head.
type FinalLinearSplitter struct{}

func (FinalLinearSplitter) Split(model *nn.Sequential) (*nn.Sequential, *nn.Sequential, error) {
	layers := model.Layers()

	last := -1
	for i, layer := range layers {
		if _, ok := layer.(*nn.Linear); ok {
			last = i
		}
	}
	if last <= 0 {
		return nil, nil, fmt.Errorf("model has no layer boundary to split at")
	}

	body := nn.NewSequential(layers[:last]...)
	head := nn.NewSequential(layers[last:]...)
	return body, head, nil
}

// ModelSplit wraps a model decomposed into body and head.
type ModelSplit struct {
	body *nn.Sequential
	head *nn.Sequential
}

// New splits the model and validates that body and head partition its
// parameters: their union must cover every parameter and they must share
// none.
func New(model *nn.Sequential, splitter Splitter) (*ModelSplit, error) {
	body, head, err := splitter.Split(model)
	if err != nil {
		return nil, err
	}
	if len(body.Params()) == 0 {
		return nil, ErrEmptyBody
	}
	if len(head.Params()) == 0 {
		return nil, ErrEmptyHead
	}

	seen := make(map[string]bool)
	for _, p := range append(body.Params(), head.Params()...) {
		if seen[p.Name] {
			return nil, fmt.Errorf("parameter %s assigned to both body and head", p.Name)
		}
		seen[p.Name] = true
	}
	for _, p := range model.Params() {
		if !seen[p.Name] {
			return nil, fmt.Errorf("parameter %s assigned to neither body nor head", p.Name)
		}
		delete(seen, p.Name)
	}
	if len(seen) != 0 {
		return nil, fmt.Errorf("split introduced parameters not present in the model")
	}

	return &ModelSplit{body: body, head: head}, nil
}

// Body returns the live body sub-module.
func (m *ModelSplit) Body() *nn.Sequential {
	return m.body
}

// Head returns the live head sub-module.
func (m *ModelSplit) Head() *nn.Sequential {
	return m.head
}

// Forward computes head(body(x)).
func (m *ModelSplit) Forward(x *nn.Tensor) *nn.Tensor {
	return m.head.Forward(m.body.Forward(x))
}

// Backward propagates the output gradient through head then body.
func (m *ModelSplit) Backward(grad *nn.Tensor) *nn.Tensor {
	return m.body.Backward(m.head.Backward(grad))
}

// Params returns body parameters followed by head parameters, in structural
// order.
func (m *ModelSplit) Params() []*nn.Param {
	return append(append([]*nn.Param{}, m.body.Params()...), m.head.Params()...)
}

// ParameterNames returns the names of all parameters, body first, in the
// same order as GetParameters.
func (m *ModelSplit) ParameterNames() []string {
	names := []string{}
	for _, p := range m.Params() {
		names = append(names, p.Name)
	}
	return names
}

// GetParameters returns copies of all parameter tensors, body first, in
// structural order. Consumers rely on positional alignment with
// ParameterNames.
func (m *ModelSplit) GetParameters() []*nn.Tensor {
	tensors := []*nn.Tensor{}
	for _, p := range m.Params() {
		tensors = append(tensors, p.Value.Clone())
	}
	return tensors
}

// SetParameters merges the given state into the full model by name. Keys
// unknown to the model are ignored; keys that match must agree on shape or
// the merge fails with a ShapeMismatchError.
func (m *ModelSplit) SetParameters(state map[string]*nn.Tensor) error {
	params := make(map[string]*nn.Param)
	for _, p := range m.Params() {
		params[p.Name] = p
	}

	for name, value := range state {
		p, ok := params[name]
		if !ok {
			continue
		}
		if !p.Value.SameShape(value) {
			return &ShapeMismatchError{Name: name, Got: value.Shape, Expected: p.Value.Shape}
		}
	}
	for name, value := range state {
		if p, ok := params[name]; ok {
			copy(p.Value.Data, value.Data)
		}
	}

	return nil
}

// LoadBodyState replaces all body parameters from the given state. The keys
// must match the body's parameter names exactly.
func (m *ModelSplit) LoadBodyState(state map[string]*nn.Tensor) error {
	return loadStrict(m.body, state, "body")
}

// LoadHeadState replaces all head parameters from the given state. The keys
// must match the head's parameter names exactly.
func (m *ModelSplit) LoadHeadState(state map[string]*nn.Tensor) error {
	return loadStrict(m.head, state, "head")
}

func loadStrict(module *nn.Sequential, state map[string]*nn.Tensor, which string) error {
	params := module.Params()
	if len(state) != len(params) {
		return fmt.Errorf("%s state has %d entries, expected %d", which, len(state), len(params))
	}

	for _, p := range params {
		value, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("%s state is missing parameter %s", which, p.Name)
		}
		if !p.Value.SameShape(value) {
			return &ShapeMismatchError{Name: p.Name, Got: value.Shape, Expected: p.Value.Shape}
		}
	}
	for _, p := range params {
		copy(p.Value.Data, state[p.Name].Data)
	}

	return nil
}

// StateDict returns a copy of the full model state, body and head.
func (m *ModelSplit) StateDict() map[string]*nn.Tensor {
	state := m.body.StateDict()
	for name, value := range m.head.StateDict() {
		state[name] = value
	}
	return state
}

// EnableBody enables gradient accumulation for the body parameters.
func (m *ModelSplit) EnableBody() {
	m.body.SetRequiresGrad(true)
}

// DisableBody disables gradient accumulation for the body parameters.
func (m *ModelSplit) DisableBody() {
	m.body.SetRequiresGrad(false)
}

// EnableHead enables gradient accumulation for the head parameters.
func (m *ModelSplit) EnableHead() {
	m.head.SetRequiresGrad(true)
}

// DisableHead disables gradient accumulation for the head parameters.
func (m *ModelSplit) DisableHead() {
	m.head.SetRequiresGrad(false)
}
