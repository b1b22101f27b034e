package sim

import (
	"fmt"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
)

// Strategy combines client updates into the next global parameter vector.
type Strategy interface {
	Aggregate(results []*FitResult) ([]*nn.Tensor, error)
}

// FedAvg averages client parameter vectors weighted by their training
// example counts. Head tensors participate in the average too; FedRep
// clients overwrite them with their persisted personal head at the start of
// the next local round.
type FedAvg struct{}

func (FedAvg) Aggregate(results []*FitResult) ([]*nn.Tensor, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("nothing to aggregate")
	}

	totalExamples := 0
	for _, result := range results {
		totalExamples += result.NumExamples
	}
	if totalExamples == 0 {
		return nil, fmt.Errorf("aggregation weights sum to zero")
	}

	first := results[0].Parameters
	aggregated := make([]*nn.Tensor, len(first))
	for i, tensor := range first {
		aggregated[i] = nn.NewTensor(tensor.Shape...)
	}

	for _, result := range results {
		if len(result.Parameters) != len(aggregated) {
			return nil, fmt.Errorf("client %d sent %d tensors, expected %d",
				result.ClientId, len(result.Parameters), len(aggregated))
		}
		weight := float64(result.NumExamples) / float64(totalExamples)
		for i, tensor := range result.Parameters {
			if !tensor.SameShape(aggregated[i]) {
				return nil, fmt.Errorf("client %d sent tensor %d with shape %v, expected %v",
					result.ClientId, i, tensor.Shape, aggregated[i].Shape)
			}
			for j, v := range tensor.Data {
				aggregated[i].Data[j] += weight * v
			}
		}
	}

	return aggregated, nil
}
