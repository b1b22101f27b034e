package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a named model parameter. Gradients are accumulated into Grad only
// while RequiresGrad is set; the flag gates optimization eligibility, not
// the forward pass.
type Param struct {
	Name         string
	Value        *Tensor
	Grad         []float64
	RequiresGrad bool
}

func newParam(name string, value *Tensor) *Param {
	return &Param{
		Name:         name,
		Value:        value,
		Grad:         make([]float64, value.NumElems()),
		RequiresGrad: true,
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Module is a network component with an explicit backward pass. Backward
// consumes the gradient of the loss with respect to the module output,
// accumulates parameter gradients for parameters with RequiresGrad set, and
// returns the gradient with respect to the module input.
type Module interface {
	Forward(x *Tensor) *Tensor
	Backward(grad *Tensor) *Tensor
	Params() []*Param
}

// Linear is a fully connected layer computing y = x*W^T + b for a batch of
// row vectors x.
type Linear struct {
	W *Param // [out, in]
	B *Param // [1, out]

	lastInput *Tensor
}

// NewLinear creates a linear layer with Kaiming-uniform initialized weights.
// Parameters are named "<name>.weight" and "<name>.bias".
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	w := NewTensor(out, in)
	bound := math.Sqrt(1.0 / float64(in))
	for i := range w.Data {
		w.Data[i] = (2*rng.Float64() - 1) * bound
	}

	b := NewTensor(1, out)
	for i := range b.Data {
		b.Data[i] = (2*rng.Float64() - 1) * bound
	}

	return &Linear{
		W: newParam(name+".weight", w),
		B: newParam(name+".bias", b),
	}
}

func (l *Linear) Forward(x *Tensor) *Tensor {
	batch := x.Shape[0]
	out := l.W.Value.Shape[0]

	y := NewTensor(batch, out)
	y.Matrix().Mul(x.Matrix(), l.W.Value.Matrix().T())

	for r := 0; r < batch; r++ {
		row := y.Data[r*out : (r+1)*out]
		for c := 0; c < out; c++ {
			row[c] += l.B.Value.Data[c]
		}
	}

	l.lastInput = x
	return y
}

func (l *Linear) Backward(grad *Tensor) *Tensor {
	batch := grad.Shape[0]
	out := l.W.Value.Shape[0]
	in := l.W.Value.Shape[1]

	if l.W.RequiresGrad {
		var dW mat.Dense
		dW.Mul(grad.Matrix().T(), l.lastInput.Matrix())
		raw := dW.RawMatrix()
		for i := 0; i < out*in; i++ {
			l.W.Grad[i] += raw.Data[i]
		}
	}
	if l.B.RequiresGrad {
		for r := 0; r < batch; r++ {
			row := grad.Data[r*out : (r+1)*out]
			for c := 0; c < out; c++ {
				l.B.Grad[c] += row[c]
			}
		}
	}

	dx := NewTensor(batch, in)
	dx.Matrix().Mul(grad.Matrix(), l.W.Value.Matrix())
	return dx
}

func (l *Linear) Params() []*Param {
	return []*Param{l.W, l.B}
}

// ReLU applies max(0, x) element-wise.
type ReLU struct {
	mask []bool
}

func NewReLU() *ReLU {
	return &ReLU{}
}

func (r *ReLU) Forward(x *Tensor) *Tensor {
	y := x.Clone()
	r.mask = make([]bool, len(y.Data))
	for i, v := range y.Data {
		if v > 0 {
			r.mask[i] = true
		} else {
			y.Data[i] = 0
		}
	}
	return y
}

func (r *ReLU) Backward(grad *Tensor) *Tensor {
	dx := grad.Clone()
	for i := range dx.Data {
		if !r.mask[i] {
			dx.Data[i] = 0
		}
	}
	return dx
}

func (r *ReLU) Params() []*Param {
	return nil
}

// Sequential chains modules; Backward runs them in reverse.
type Sequential struct {
	layers []Module
}

func NewSequential(layers ...Module) *Sequential {
	return &Sequential{layers: layers}
}

func (s *Sequential) Forward(x *Tensor) *Tensor {
	for _, layer := range s.layers {
		x = layer.Forward(x)
	}
	return x
}

func (s *Sequential) Backward(grad *Tensor) *Tensor {
	for i := len(s.layers) - 1; i >= 0; i-- {
		grad = s.layers[i].Backward(grad)
	}
	return grad
}

func (s *Sequential) Params() []*Param {
	params := []*Param{}
	for _, layer := range s.layers {
		params = append(params, layer.Params()...)
	}
	return params
}

// Layers returns the chained modules in order.
func (s *Sequential) Layers() []Module {
	return s.layers
}

// SetRequiresGrad toggles gradient accumulation for every parameter.
func (s *Sequential) SetRequiresGrad(enabled bool) {
	for _, p := range s.Params() {
		p.RequiresGrad = enabled
	}
}

// StateDict returns a copy of all parameter values keyed by name.
func (s *Sequential) StateDict() map[string]*Tensor {
	state := make(map[string]*Tensor)
	for _, p := range s.Params() {
		state[p.Name] = p.Value.Clone()
	}
	return state
}
