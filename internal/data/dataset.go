// Package data provides the in-memory datasets, minibatch loaders and
// client partitioners used by the simulation.
package data

import (
	"fmt"
	"math/rand"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
)

// Dataset is a labelled set of feature vectors.
type Dataset struct {
	Features [][]float64
	Labels   []int
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Subset returns a dataset view over the given example indices.
func (d *Dataset) Subset(indices []int) *Dataset {
	sub := &Dataset{}
	for _, i := range indices {
		sub.Features = append(sub.Features, d.Features[i])
		sub.Labels = append(sub.Labels, d.Labels[i])
	}
	return sub
}

// Split divides the dataset into a train and test part, with trainFraction
// of the examples going to the train part.
func (d *Dataset) Split(trainFraction float64) (*Dataset, *Dataset) {
	cut := int(float64(d.Len()) * trainFraction)
	train := &Dataset{Features: d.Features[:cut], Labels: d.Labels[:cut]}
	test := &Dataset{Features: d.Features[cut:], Labels: d.Labels[cut:]}
	return train, test
}

// Batch is one minibatch of inputs and labels.
type Batch struct {
	X *nn.Tensor // [batch, features]
	Y []int
}

// Loader iterates a dataset in minibatches. With shuffling enabled the
// example order is re-drawn from the seeded source on every Batches call,
// so iteration order is deterministic for a fixed seed.
type Loader struct {
	dataset   *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader over the dataset.
func NewLoader(dataset *Dataset, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Loader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// NumExamples returns the total example count of the underlying dataset.
func (l *Loader) NumExamples() int {
	return l.dataset.Len()
}

// Batches materializes one epoch of minibatches.
func (l *Loader) Batches() []Batch {
	n := l.dataset.Len()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(n, func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	batches := []Batch{}
	for start := 0; start < n; start += l.batchSize {
		end := start + l.batchSize
		if end > n {
			end = n
		}

		features := len(l.dataset.Features[indices[start]])
		x := nn.NewTensor(end-start, features)
		y := make([]int, end-start)
		for row, idx := range indices[start:end] {
			copy(x.Data[row*features:(row+1)*features], l.dataset.Features[idx])
			y[row] = l.dataset.Labels[idx]
		}

		batches = append(batches, Batch{X: x, Y: y})
	}

	return batches
}
