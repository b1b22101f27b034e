// Package nn implements the small dense-network stack used by the
// simulator: tensors, layers with explicit backpropagation, a cross-entropy
// loss and an SGD optimizer with momentum. Matrix products run on gonum.
package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major array of float64 values.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor allocates a zeroed tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return &Tensor{
		Shape: append([]int{}, shape...),
		Data:  make([]float64, n),
	}
}

// NewTensorFrom wraps data in a tensor with the given shape. The slice is
// used as backing storage, not copied.
func NewTensorFrom(data []float64, shape ...int) (*Tensor, error) {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	if n != len(data) {
		return nil, fmt.Errorf("tensor shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{
		Shape: append([]int{}, shape...),
		Data:  data,
	}, nil
}

// NumElems returns the number of elements.
func (t *Tensor) NumElems() int {
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.Shape...)
	copy(c.Data, t.Data)
	return c
}

// SameShape reports whether both tensors have identical shapes.
func (t *Tensor) SameShape(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i, dim := range t.Shape {
		if dim != other.Shape[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both tensors have the same shape and values.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.SameShape(other) {
		return false
	}
	for i, v := range t.Data {
		if v != other.Data[i] {
			return false
		}
	}
	return true
}

// Matrix views a 2D tensor as a gonum matrix sharing the same backing slice.
func (t *Tensor) Matrix() *mat.Dense {
	if len(t.Shape) != 2 {
		panic(fmt.Sprintf("tensor with shape %v is not a matrix", t.Shape))
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Data)
}
