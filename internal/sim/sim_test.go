package sim

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/history"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
)

func tensorOf(t *testing.T, data []float64) *nn.Tensor {
	t.Helper()
	tensor, err := nn.NewTensorFrom(data, 1, len(data))
	require.NoError(t, err)
	return tensor
}

func TestFedAvgWeightsByExampleCount(t *testing.T) {
	results := []*FitResult{
		{ClientId: 0, NumExamples: 1, Parameters: []*nn.Tensor{tensorOf(t, []float64{1, 1})}},
		{ClientId: 1, NumExamples: 3, Parameters: []*nn.Tensor{tensorOf(t, []float64{5, 5})}},
	}

	aggregated, err := FedAvg{}.Aggregate(results)
	require.NoError(t, err)
	require.Len(t, aggregated, 1)
	assert.InDelta(t, 4.0, aggregated[0].Data[0], 1e-12)
	assert.InDelta(t, 4.0, aggregated[0].Data[1], 1e-12)
}

func TestFedAvgRejectsMismatches(t *testing.T) {
	_, err := FedAvg{}.Aggregate(nil)
	assert.Error(t, err)

	_, err = FedAvg{}.Aggregate([]*FitResult{
		{NumExamples: 0, Parameters: []*nn.Tensor{tensorOf(t, []float64{1})}},
	})
	assert.Error(t, err)

	_, err = FedAvg{}.Aggregate([]*FitResult{
		{NumExamples: 1, Parameters: []*nn.Tensor{tensorOf(t, []float64{1})}},
		{NumExamples: 1, Parameters: []*nn.Tensor{}},
	})
	assert.Error(t, err)

	_, err = FedAvg{}.Aggregate([]*FitResult{
		{NumExamples: 1, Parameters: []*nn.Tensor{tensorOf(t, []float64{1})}},
		{NumExamples: 1, Parameters: []*nn.Tensor{tensorOf(t, []float64{1, 2})}},
	})
	assert.Error(t, err)
}

func TestApplyParametersRejectsWrongCount(t *testing.T) {
	model, err := newSplitModel(common.MODEL_MLP_TWO_LAYER,
		nn.ModelDims{InputDim: 2, HiddenDim: 3, NumClasses: 2}, 1)
	require.NoError(t, err)

	err = applyParameters(model, []*nn.Tensor{tensorOf(t, []float64{1})})
	assert.Error(t, err)
}

func TestForecastRecoversLogCurve(t *testing.T) {
	values := make([]float64, 5)
	for i := range values {
		values[i] = 0.1 + 0.2*math.Log(float64(i+1)+1)
	}

	forecast, err := NewForecast(values)
	require.NoError(t, err)

	assert.InDelta(t, 0.1+0.2*math.Log(11), forecast.PredictValue(10), 1e-9)

	round, err := forecast.PredictRoundFor(0.1 + 0.2*math.Log(11))
	require.NoError(t, err)
	assert.Equal(t, 10, round)
}

func TestForecastErrors(t *testing.T) {
	_, err := NewForecast([]float64{0.5})
	assert.Error(t, err)

	forecast, err := NewForecast([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	_, err = forecast.PredictRoundFor(0.9)
	assert.Error(t, err)
}

func TestMovingAverage(t *testing.T) {
	assert.Nil(t, movingAverage([]float64{1, 2}, 3))
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, movingAverage([]float64{1, 2, 3, 4}, 2))
}

func TestHistoryConvergence(t *testing.T) {
	flat := &History{}
	rising := &History{}
	for i := 0; i < 10; i++ {
		flat.Rounds = append(flat.Rounds, RoundMetrics{Round: i + 1, EvalAccuracy: 0.8})
		rising.Rounds = append(rising.Rounds, RoundMetrics{Round: i + 1, EvalAccuracy: float64(i) * 0.3})
	}

	assert.True(t, flat.HasConverged(0.1, 5, 3))
	assert.False(t, rising.HasConverged(0.1, 5, 3))

	short := &History{Rounds: flat.Rounds[:4]}
	assert.False(t, short.HasConverged(0.1, 5, 3))
}

func TestHistoryWriteCsv(t *testing.T) {
	h := &History{Rounds: []RoundMetrics{
		{Round: 1, TrainLoss: 1.2, EvalAccuracy: 0.5, CumulativeCost: 0.1},
		{Round: 2, TrainLoss: 0.9, EvalAccuracy: 0.6, CumulativeCost: 0.2},
	}}

	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, h.WriteCsv(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "round,train_loss,train_accuracy,eval_loss,eval_accuracy,cumulative_cost")
	assert.Contains(t, string(raw), "2,0.9000")
}

func smallConfig(t *testing.T) *config.ExperimentConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.NumClients = 4
	cfg.NumRounds = 3
	cfg.ClientFraction = 0.5
	cfg.BatchSize = 16
	cfg.StateDir = filepath.Join(dir, "states")
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.HistoryDb = filepath.Join(dir, "history.db")
	cfg.Model = config.ModelConfig{Name: common.MODEL_MLP_TWO_LAYER, InputDim: 4, HiddenDim: 8, NumClasses: 2}
	cfg.Dataset.NumExamples = 200
	cfg.Dataset.NumFeatures = 4

	localEpochs, repEpochs, finetuneEpochs := 1, 1, 1
	cfg.NumLocalEpochs = &localEpochs
	cfg.NumRepEpochs = &repEpochs
	cfg.NumFinetuneEpochs = &finetuneEpochs
	return cfg
}

func TestSimulationRunEndToEnd(t *testing.T) {
	cfg := smallConfig(t)

	eventBus := events.NewEventBus()
	completed := make(chan events.Event, cfg.NumRounds)
	eventBus.Subscribe(common.ROUND_COMPLETED_EVENT_TYPE, completed)
	finished := make(chan events.Event, 1)
	eventBus.Subscribe(common.RUN_FINISHED_EVENT_TYPE, finished)

	simulation, err := New(cfg, hclog.NewNullLogger(), eventBus)
	require.NoError(t, err)

	result, err := simulation.Run()
	require.NoError(t, err)
	require.Len(t, result.Rounds, cfg.NumRounds)

	for i, round := range result.Rounds {
		assert.Equal(t, i+1, round.Round)
		assert.GreaterOrEqual(t, round.EvalAccuracy, 0.0)
		assert.LessOrEqual(t, round.EvalAccuracy, 1.0)
		if i > 0 {
			assert.Greater(t, round.CumulativeCost, result.Rounds[i-1].CumulativeCost)
		}
	}

	// Every client trained with head persistence at least once.
	stateDirs, err := os.ReadDir(cfg.StateDir)
	require.NoError(t, err)
	require.Len(t, stateDirs, 1)

	// Results land in the configured directory under the run id.
	resultsFile := filepath.Join(cfg.ResultsDir, fmt.Sprintf("results_%s.csv", simulation.RunId()))
	_, err = os.Stat(resultsFile)
	assert.NoError(t, err)

	// Rounds were persisted to the history database.
	store, err := history.Open(cfg.HistoryDb)
	require.NoError(t, err)
	defer store.Close()
	records, err := store.RunRounds(simulation.RunId())
	require.NoError(t, err)
	assert.Len(t, records, cfg.NumRounds)

	assert.Len(t, completed, cfg.NumRounds)
	assert.Len(t, finished, 1)
}

func TestSimulationFedAvgSkipsStateDir(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Algorithm = common.ALGORITHM_FEDAVG
	cfg.NumRounds = 1

	simulation, err := New(cfg, hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	_, err = simulation.Run()
	require.NoError(t, err)

	_, err = os.Stat(cfg.StateDir)
	assert.True(t, os.IsNotExist(err))
}

func TestSimulationStopHaltsRun(t *testing.T) {
	cfg := smallConfig(t)
	cfg.NumRounds = 50

	simulation, err := New(cfg, hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	simulation.Stop()
	result, err := simulation.Run()
	require.NoError(t, err)
	assert.Empty(t, result.Rounds)
}

func TestSampleClientsRespectsFraction(t *testing.T) {
	cfg := smallConfig(t)
	cfg.ClientFraction = 0.5

	simulation, err := New(cfg, hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	sampled := simulation.sampleClients()
	assert.Len(t, sampled, 2)

	seen := map[int]bool{}
	for _, client := range sampled {
		assert.False(t, seen[client.Id], "client %d sampled twice", client.Id)
		seen[client.Id] = true
	}
}

func TestSampleClientsAtLeastOne(t *testing.T) {
	cfg := smallConfig(t)
	cfg.ClientFraction = 0.01

	simulation, err := New(cfg, hclog.NewNullLogger(), nil)
	require.NoError(t, err)

	assert.Len(t, simulation.sampleClients(), 1)
}

func TestSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig(t)
	cfg.NumClients = 0

	_, err := New(cfg, hclog.NewNullLogger(), nil)
	assert.Error(t, err)

	cfg = smallConfig(t)
	cfg.Model.Name = "resnet"
	_, err = New(cfg, hclog.NewNullLogger(), nil)
	assert.Error(t, err)
}
