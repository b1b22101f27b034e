package nn

import (
	"fmt"
	"math/rand"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
)

// ModelDims describes the shape of a classifier network.
type ModelDims struct {
	InputDim   int
	HiddenDim  int
	NumClasses int
}

// NewTwoLayerMLP builds fc1 -> relu -> fc2. The final linear layer is the
// personalized head under the final-layer split rule.
func NewTwoLayerMLP(dims ModelDims, rng *rand.Rand) *Sequential {
	return NewSequential(
		NewLinear("fc1", dims.InputDim, dims.HiddenDim, rng),
		NewReLU(),
		NewLinear("fc2", dims.HiddenDim, dims.NumClasses, rng),
	)
}

// NewThreeLayerMLP builds fc1 -> relu -> fc2 -> relu -> fc3.
func NewThreeLayerMLP(dims ModelDims, rng *rand.Rand) *Sequential {
	return NewSequential(
		NewLinear("fc1", dims.InputDim, dims.HiddenDim, rng),
		NewReLU(),
		NewLinear("fc2", dims.HiddenDim, dims.HiddenDim, rng),
		NewReLU(),
		NewLinear("fc3", dims.HiddenDim, dims.NumClasses, rng),
	)
}

// NewModel constructs the architecture registered under the given name.
func NewModel(name string, dims ModelDims, rng *rand.Rand) (*Sequential, error) {
	switch name {
	case common.MODEL_MLP_TWO_LAYER:
		return NewTwoLayerMLP(dims, rng), nil
	case common.MODEL_MLP_THREE_LAYER:
		return NewThreeLayerMLP(dims, rng), nil
	default:
		return nil, fmt.Errorf("unknown model architecture: %s", name)
	}
}
