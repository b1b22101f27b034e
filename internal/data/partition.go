package data

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
)

// PartitionIID shuffles the dataset and deals examples to clients in equal
// contiguous chunks.
func PartitionIID(dataset *Dataset, numClients int, seed int64) ([]*Dataset, error) {
	if numClients <= 0 {
		return nil, fmt.Errorf("number of clients must be positive, got %d", numClients)
	}
	if dataset.Len() < numClients {
		return nil, fmt.Errorf("dataset with %d examples cannot be split across %d clients", dataset.Len(), numClients)
	}

	rng := rand.New(rand.NewSource(seed))
	indices := rng.Perm(dataset.Len())

	perClient := dataset.Len() / numClients
	partitions := make([]*Dataset, numClients)
	for c := 0; c < numClients; c++ {
		partitions[c] = dataset.Subset(indices[c*perClient : (c+1)*perClient])
	}

	return partitions, nil
}

// PartitionLabelShards produces a pathological non-IID split: examples are
// sorted by label, cut into numClients*shardsPerClient shards, and each
// client draws shardsPerClient shards at random. Clients end up with
// examples from only a few classes.
func PartitionLabelShards(dataset *Dataset, numClients int, shardsPerClient int, seed int64) ([]*Dataset, error) {
	if numClients <= 0 || shardsPerClient <= 0 {
		return nil, fmt.Errorf("invalid partition: %d clients, %d shards per client", numClients, shardsPerClient)
	}

	numShards := numClients * shardsPerClient
	if dataset.Len() < numShards {
		return nil, fmt.Errorf("dataset with %d examples cannot fill %d shards", dataset.Len(), numShards)
	}

	byLabel := make([]int, dataset.Len())
	for i := range byLabel {
		byLabel[i] = i
	}
	sort.SliceStable(byLabel, func(i, j int) bool {
		return dataset.Labels[byLabel[i]] < dataset.Labels[byLabel[j]]
	})

	rng := rand.New(rand.NewSource(seed))
	shardOrder := rng.Perm(numShards)

	shardSize := dataset.Len() / numShards
	partitions := make([]*Dataset, numClients)
	for c := 0; c < numClients; c++ {
		indices := []int{}
		for s := 0; s < shardsPerClient; s++ {
			shard := shardOrder[c*shardsPerClient+s]
			indices = append(indices, byLabel[shard*shardSize:(shard+1)*shardSize]...)
		}
		partitions[c] = dataset.Subset(indices)
	}

	return partitions, nil
}

// Partition dispatches to the partition scheme registered under the given
// name.
func Partition(scheme string, dataset *Dataset, numClients int, shardsPerClient int, seed int64) ([]*Dataset, error) {
	switch scheme {
	case common.PARTITION_IID:
		return PartitionIID(dataset, numClients, seed)
	case common.PARTITION_LABEL_SHARDS:
		return PartitionLabelShards(dataset, numClients, shardsPerClient, seed)
	default:
		return nil, fmt.Errorf("unknown partition scheme: %s", scheme)
	}
}

// MakeClassification generates a synthetic classification dataset of
// Gaussian blobs, one blob center per class.
func MakeClassification(numExamples int, numFeatures int, numClasses int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float64, numClasses)
	for c := range centers {
		centers[c] = make([]float64, numFeatures)
		for f := range centers[c] {
			centers[c][f] = rng.NormFloat64() * 2.0
		}
	}

	dataset := &Dataset{}
	for i := 0; i < numExamples; i++ {
		label := rng.Intn(numClasses)
		features := make([]float64, numFeatures)
		for f := range features {
			features[f] = centers[label][f] + rng.NormFloat64()*0.5
		}
		dataset.Features = append(dataset.Features, features)
		dataset.Labels = append(dataset.Labels, label)
	}

	return dataset
}
