package sim

import (
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/manager"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/split"
)

// Client wraps one simulated participant: its model manager plus the glue
// that translates between the server's positional parameter vectors and the
// model's named state.
type Client struct {
	Id      int
	Manager *manager.ModelManager
}

// FitResult carries one client's local training outcome back to the server.
type FitResult struct {
	ClientId    int
	Parameters  []*nn.Tensor
	NumExamples int
	Metrics     manager.Metrics
}

// EvalResult carries one client's evaluation outcome.
type EvalResult struct {
	ClientId    int
	NumExamples int
	Metrics     manager.Metrics
}

// Fit applies the global parameters and runs one round of local training.
func (c *Client) Fit(global []*nn.Tensor) (*FitResult, error) {
	if err := applyParameters(c.Manager.Model(), global); err != nil {
		return nil, fmt.Errorf("client %d: %w", c.Id, err)
	}

	metrics, err := c.Manager.Train()
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", c.Id, err)
	}

	return &FitResult{
		ClientId:    c.Id,
		Parameters:  c.Manager.Model().GetParameters(),
		NumExamples: c.Manager.TrainDatasetSize(),
		Metrics:     metrics,
	}, nil
}

// Evaluate applies the global parameters and measures personalized accuracy.
func (c *Client) Evaluate(global []*nn.Tensor) (*EvalResult, error) {
	if err := applyParameters(c.Manager.Model(), global); err != nil {
		return nil, fmt.Errorf("client %d: %w", c.Id, err)
	}

	metrics, err := c.Manager.Test()
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", c.Id, err)
	}

	return &EvalResult{
		ClientId:    c.Id,
		NumExamples: c.Manager.TestDatasetSize(),
		Metrics:     metrics,
	}, nil
}

// applyParameters zips the positional global vector with the model's
// parameter names and merges it into the model.
func applyParameters(model *split.ModelSplit, global []*nn.Tensor) error {
	names := model.ParameterNames()
	if len(names) != len(global) {
		return fmt.Errorf("received %d parameter tensors, model has %d", len(global), len(names))
	}

	state := make(map[string]*nn.Tensor, len(global))
	for i, name := range names {
		state[name] = global[i]
	}
	return model.SetParameters(state)
}
