// Package sim drives federated rounds over an in-process pool of simulated
// clients: sampling participants, dispatching fit and evaluate calls,
// aggregating body updates and recording history.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/history"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/manager"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/split"
)

// Simulation owns one federated run: the client pool, the aggregation
// strategy and the run history.
type Simulation struct {
	cfg      *config.ExperimentConfig
	logger   hclog.Logger
	eventBus *events.EventBus
	store    *history.Store

	runId         string
	clients       []*Client
	strategy      Strategy
	initialParams []*nn.Tensor
	numParameters int
	rng           *rand.Rand

	mu      sync.Mutex
	history *History
	stopped bool
}

// New builds a simulation from an experiment configuration: synthesizes and
// partitions the dataset, constructs one model manager per client, and
// prepares the run state directory.
func New(cfg *config.ExperimentConfig, logger hclog.Logger, eventBus *events.EventBus) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:      cfg,
		logger:   logger,
		eventBus: eventBus,
		runId:    uuid.New().String(),
		strategy: FedAvg{},
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		history:  &History{},
	}

	dims := nn.ModelDims{
		InputDim:   cfg.Model.InputDim,
		HiddenDim:  cfg.Model.HiddenDim,
		NumClasses: cfg.Model.NumClasses,
	}

	template, err := newSplitModel(cfg.Model.Name, dims, cfg.Seed)
	if err != nil {
		return nil, err
	}
	s.initialParams = template.GetParameters()
	for _, tensor := range s.initialParams {
		s.numParameters += tensor.NumElems()
	}

	dataset := data.MakeClassification(cfg.Dataset.NumExamples, cfg.Dataset.NumFeatures, cfg.Model.NumClasses, cfg.Seed)
	partitions, err := data.Partition(cfg.Dataset.Partition, dataset, cfg.NumClients, cfg.Dataset.ShardsPerClient, cfg.Seed)
	if err != nil {
		return nil, err
	}

	stateDir := ""
	if cfg.Algorithm == common.ALGORITHM_FEDREP {
		stateDir, err = common.ClientStateDir(cfg.StateDir)
		if err != nil {
			return nil, err
		}
	}

	for id := 0; id < cfg.NumClients; id++ {
		trainSet, testSet := partitions[id].Split(cfg.Dataset.TrainFraction)

		trainLoader, err := data.NewLoader(trainSet, cfg.BatchSize, true, cfg.Seed+int64(id))
		if err != nil {
			return nil, err
		}
		testLoader, err := data.NewLoader(testSet, cfg.BatchSize, false, cfg.Seed+int64(id))
		if err != nil {
			return nil, err
		}

		model, err := newSplitModel(cfg.Model.Name, dims, cfg.Seed+int64(id)+1)
		if err != nil {
			return nil, err
		}

		statePath := ""
		if stateDir != "" {
			statePath = common.ClientStatePath(stateDir, id)
		}

		mgr := manager.New(model, manager.Options{
			ClientId:       id,
			TrainLoader:    trainLoader,
			TestLoader:     testLoader,
			LearningRate:   cfg.LearningRate,
			StatePath:      statePath,
			LocalEpochs:    cfg.LocalEpochs(),
			RepEpochs:      cfg.RepEpochs(),
			FinetuneEpochs: cfg.FinetuneEpochs(),
			Logger:         logger.Named(fmt.Sprintf("client-%d", id)),
		})

		s.clients = append(s.clients, &Client{Id: id, Manager: mgr})
	}

	if cfg.HistoryDb != "" {
		s.store, err = history.Open(cfg.HistoryDb)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func newSplitModel(name string, dims nn.ModelDims, seed int64) (*split.ModelSplit, error) {
	model, err := nn.NewModel(name, dims, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	return split.New(model, split.FinalLinearSplitter{})
}

// RunId returns the unique identifier of this run.
func (s *Simulation) RunId() string {
	return s.runId
}

// Run executes the configured number of federated rounds and returns the
// accumulated history. A failing client aborts the run.
func (s *Simulation) Run() (*History, error) {
	if s.store != nil {
		defer s.store.Close()
	}

	s.logger.Info("starting run", "runId", s.runId, "algorithm", s.cfg.Algorithm,
		"clients", len(s.clients), "rounds", s.cfg.NumRounds)

	global := s.initialParams
	cumulativeCost := 0.0

	for round := 1; round <= s.cfg.NumRounds; round++ {
		if s.isStopped() {
			s.logger.Info("run stopped", "runId", s.runId, "round", round)
			break
		}

		participants := s.sampleClients()

		fitResults := []*FitResult{}
		trainLosses, trainAccuracies, trainWeights := []float64{}, []float64{}, []int{}
		for _, client := range participants {
			result, err := client.Fit(global)
			if err != nil {
				return s.snapshotHistory(), fmt.Errorf("round %d: %w", round, err)
			}
			fitResults = append(fitResults, result)
			trainLosses = append(trainLosses, result.Metrics.Loss)
			trainAccuracies = append(trainAccuracies, result.Metrics.Accuracy)
			trainWeights = append(trainWeights, result.NumExamples)
		}

		aggregated, err := s.strategy.Aggregate(fitResults)
		if err != nil {
			return s.snapshotHistory(), fmt.Errorf("round %d: %w", round, err)
		}
		global = aggregated

		evalLosses, evalAccuracies, evalWeights := []float64{}, []float64{}, []int{}
		for _, client := range s.clients {
			result, err := client.Evaluate(global)
			if err != nil {
				return s.snapshotHistory(), fmt.Errorf("round %d: %w", round, err)
			}
			evalLosses = append(evalLosses, result.Metrics.Loss)
			evalAccuracies = append(evalAccuracies, result.Metrics.Accuracy)
			evalWeights = append(evalWeights, result.NumExamples)
		}

		// Each participant downloads and uploads the full parameter vector.
		roundCostMb := float64(2*len(participants)*s.numParameters*common.BYTES_PER_PARAMETER) / (1024 * 1024)
		cumulativeCost += roundCostMb

		metrics := RoundMetrics{
			Round:          round,
			TrainLoss:      common.WeightedAverageFloat64(trainLosses, trainWeights),
			TrainAccuracy:  common.WeightedAverageFloat64(trainAccuracies, trainWeights),
			EvalLoss:       common.WeightedAverageFloat64(evalLosses, evalWeights),
			EvalAccuracy:   common.WeightedAverageFloat64(evalAccuracies, evalWeights),
			CumulativeCost: cumulativeCost,
		}
		s.appendRound(metrics)

		s.logger.Info("finished global round", "runId", s.runId, "round", round,
			"evalLoss", fmt.Sprintf("%.4f", metrics.EvalLoss),
			"evalAccuracy", fmt.Sprintf("%.4f", metrics.EvalAccuracy),
			"costMb", fmt.Sprintf("%.2f", cumulativeCost))

		if s.store != nil {
			record := history.RoundRecord{
				RunId:          s.runId,
				Round:          round,
				TrainLoss:      metrics.TrainLoss,
				TrainAccuracy:  metrics.TrainAccuracy,
				EvalLoss:       metrics.EvalLoss,
				EvalAccuracy:   metrics.EvalAccuracy,
				CumulativeCost: cumulativeCost,
			}
			if err := s.store.RecordRound(record); err != nil {
				s.logger.Error("failed to record round", "runId", s.runId, "error", err)
			}
		}

		if s.eventBus != nil {
			s.eventBus.Publish(events.Event{
				Type: common.ROUND_COMPLETED_EVENT_TYPE,
				Data: events.RoundCompletedEvent{
					RunId:    s.runId,
					Round:    round,
					Loss:     metrics.EvalLoss,
					Accuracy: metrics.EvalAccuracy,
				},
			})
		}

		if s.snapshotHistory().HasConverged(0.1, 5, 3) {
			s.logger.Info("accuracy has converged", "runId", s.runId, "round", round)
		}
		s.logForecast(round, metrics.EvalAccuracy)
	}

	final := s.snapshotHistory()
	if len(final.Rounds) > 0 {
		resultsFile := filepath.Join(s.cfg.ResultsDir, fmt.Sprintf("results_%s.csv", s.runId))
		if err := final.WriteCsv(resultsFile); err != nil {
			s.logger.Error("failed to write results", "runId", s.runId, "error", err)
		}
	}

	if s.eventBus != nil {
		s.eventBus.Publish(events.Event{
			Type: common.RUN_FINISHED_EVENT_TYPE,
			Data: events.RunFinishedEvent{RunId: s.runId, ExitMessage: "completed"},
		})
	}
	s.logger.Info("run finished", "runId", s.runId, "rounds", len(final.Rounds))

	return final, nil
}

func (s *Simulation) logForecast(round int, accuracy float64) {
	if round < 3 || s.cfg.TargetAccuracy <= 0 || accuracy >= s.cfg.TargetAccuracy {
		return
	}

	forecast, err := NewForecast(s.snapshotHistory().Accuracies())
	if err != nil {
		return
	}
	predicted, err := forecast.PredictRoundFor(s.cfg.TargetAccuracy)
	if err != nil || predicted <= round {
		return
	}
	s.logger.Debug("forecast", "runId", s.runId,
		"targetAccuracy", s.cfg.TargetAccuracy, "predictedRound", predicted)
}

// sampleClients draws the configured fraction of clients for one round,
// at least one.
func (s *Simulation) sampleClients() []*Client {
	count := int(math.Ceil(s.cfg.ClientFraction * float64(len(s.clients))))
	if count < 1 {
		count = 1
	}

	indices := s.rng.Perm(len(s.clients))[:count]
	sort.Ints(indices)

	sampled := make([]*Client, count)
	for i, idx := range indices {
		sampled[i] = s.clients[idx]
	}
	return sampled
}

// Stop requests the run to halt after the current round.
func (s *Simulation) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Simulation) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Simulation) appendRound(metrics RoundMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Rounds = append(s.history.Rounds, metrics)
}

func (s *Simulation) snapshotHistory() *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := &History{Rounds: append([]RoundMetrics{}, s.history.Rounds...)}
	return snapshot
}

// Progress returns the number of completed rounds and the latest round
// metrics. ok is false before the first round completes.
func (s *Simulation) Progress() (int, RoundMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history.Rounds) == 0 {
		return 0, RoundMetrics{}, false
	}
	latest := s.history.Rounds[len(s.history.Rounds)-1]
	return len(s.history.Rounds), latest, true
}
