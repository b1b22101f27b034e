package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
)

func TestLoaderBatchSizes(t *testing.T) {
	dataset := MakeClassification(10, 3, 2, 1)

	loader, err := NewLoader(dataset, 4, false, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, loader.NumExamples())

	batches := loader.Batches()
	require.Len(t, batches, 3)
	assert.Equal(t, []int{4, 3}, batches[0].X.Shape)
	assert.Equal(t, []int{4, 3}, batches[1].X.Shape)
	assert.Equal(t, []int{2, 3}, batches[2].X.Shape)
	assert.Len(t, batches[2].Y, 2)
}

func TestLoaderWithoutShuffleKeepsOrder(t *testing.T) {
	dataset := &Dataset{
		Features: [][]float64{{0}, {1}, {2}, {3}},
		Labels:   []int{0, 1, 2, 3},
	}

	loader, err := NewLoader(dataset, 2, false, 1)
	require.NoError(t, err)

	batches := loader.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []int{0, 1}, batches[0].Y)
	assert.Equal(t, []int{2, 3}, batches[1].Y)
}

func TestLoaderShuffleIsSeeded(t *testing.T) {
	dataset := MakeClassification(64, 2, 2, 1)

	a, err := NewLoader(dataset, 8, true, 7)
	require.NoError(t, err)
	b, err := NewLoader(dataset, 8, true, 7)
	require.NoError(t, err)

	batchesA := a.Batches()
	batchesB := b.Batches()
	require.Equal(t, len(batchesA), len(batchesB))
	for i := range batchesA {
		assert.Equal(t, batchesA[i].Y, batchesB[i].Y)
	}

	// A second epoch draws a fresh order from the same source.
	second := a.Batches()
	same := true
	for i := range batchesA {
		for j := range batchesA[i].Y {
			if batchesA[i].Y[j] != second[i].Y[j] {
				same = false
			}
		}
	}
	assert.False(t, same, "epochs should be reshuffled")
}

func TestLoaderRejectsBadBatchSize(t *testing.T) {
	_, err := NewLoader(&Dataset{}, 0, false, 1)
	assert.Error(t, err)
}

func TestDatasetSplit(t *testing.T) {
	dataset := MakeClassification(100, 2, 2, 1)

	train, test := dataset.Split(0.8)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, test.Len())
}

func TestPartitionIID(t *testing.T) {
	dataset := MakeClassification(100, 2, 4, 1)

	partitions, err := PartitionIID(dataset, 4, 42)
	require.NoError(t, err)
	require.Len(t, partitions, 4)
	for _, p := range partitions {
		assert.Equal(t, 25, p.Len())
	}

	// Every client should see most classes.
	for _, p := range partitions {
		classes := map[int]bool{}
		for _, label := range p.Labels {
			classes[label] = true
		}
		assert.GreaterOrEqual(t, len(classes), 3)
	}
}

func TestPartitionIIDErrors(t *testing.T) {
	dataset := MakeClassification(3, 2, 2, 1)

	_, err := PartitionIID(dataset, 0, 1)
	assert.Error(t, err)
	_, err = PartitionIID(dataset, 4, 1)
	assert.Error(t, err)
}

func TestPartitionLabelShardsConcentratesClasses(t *testing.T) {
	dataset := MakeClassification(400, 2, 10, 1)

	partitions, err := PartitionLabelShards(dataset, 10, 2, 42)
	require.NoError(t, err)
	require.Len(t, partitions, 10)

	for _, p := range partitions {
		assert.Equal(t, 40, p.Len())
		classes := map[int]bool{}
		for _, label := range p.Labels {
			classes[label] = true
		}
		// Two shards cover at most a handful of adjacent classes.
		assert.LessOrEqual(t, len(classes), 4)
	}
}

func TestPartitionDispatch(t *testing.T) {
	dataset := MakeClassification(40, 2, 2, 1)

	partitions, err := Partition(common.PARTITION_IID, dataset, 4, 2, 1)
	require.NoError(t, err)
	assert.Len(t, partitions, 4)

	partitions, err = Partition(common.PARTITION_LABEL_SHARDS, dataset, 4, 2, 1)
	require.NoError(t, err)
	assert.Len(t, partitions, 4)

	_, err = Partition("dirichlet", dataset, 4, 2, 1)
	assert.Error(t, err)
}

func TestMakeClassificationIsDeterministic(t *testing.T) {
	a := MakeClassification(20, 3, 2, 5)
	b := MakeClassification(20, 3, 2, 5)

	require.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Features, b.Features)

	for _, label := range a.Labels {
		assert.GreaterOrEqual(t, label, 0)
		assert.Less(t, label, 2)
	}
}
