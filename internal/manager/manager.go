// Package manager runs the two-phase local training procedure and the
// finetune-then-evaluate procedure for a single client within one round.
package manager

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/data"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/split"
)

// ErrEmptyDataset is returned when a train or test loader holds no
// examples. Metric denominators would otherwise be zero, which would
// silently skew weighted aggregation.
var ErrEmptyDataset = errors.New("dataset is empty")

// ErrNoEpochs is returned when a round is configured with neither head nor
// representation epochs. Zero minibatches would leave the accuracy 0/0.
var ErrNoEpochs = errors.New("no training epochs configured")

// Metrics aggregates the result of one Train or Test call.
type Metrics struct {
	Loss     float64
	Accuracy float64
}

// Options configures a ModelManager.
type Options struct {
	ClientId     int
	TrainLoader  *data.Loader
	TestLoader   *data.Loader
	LearningRate float64

	// StatePath is the per-client head snapshot location. Empty disables
	// head persistence (plain FedAvg behavior).
	StatePath string

	LocalEpochs    int
	RepEpochs      int
	FinetuneEpochs int

	Logger hclog.Logger
}

// ModelManager owns one client's split model and data loaders. Instances
// are not safe for concurrent use; the orchestrator dispatches at most one
// Train or Test call at a time per client.
type ModelManager struct {
	clientId     int
	model        *split.ModelSplit
	trainLoader  *data.Loader
	testLoader   *data.Loader
	learningRate float64
	statePath    string

	localEpochs    int
	repEpochs      int
	finetuneEpochs int

	logger hclog.Logger
}

// New creates a manager for the given split model.
func New(model *split.ModelSplit, opts Options) *ModelManager {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &ModelManager{
		clientId:       opts.ClientId,
		model:          model,
		trainLoader:    opts.TrainLoader,
		testLoader:     opts.TestLoader,
		learningRate:   opts.LearningRate,
		statePath:      opts.StatePath,
		localEpochs:    opts.LocalEpochs,
		repEpochs:      opts.RepEpochs,
		finetuneEpochs: opts.FinetuneEpochs,
		logger:         logger,
	}
}

// Model returns the managed split model.
func (m *ModelManager) Model() *split.ModelSplit {
	return m.model
}

// Train runs one round of local training: the head phase (body frozen) for
// the configured local epochs, then the representation phase (head frozen)
// for the configured representation epochs. A persisted head snapshot, if
// present, is loaded before training; the head is persisted again after
// both phases. A single optimizer instance spans both phases, so momentum
// buffers carry across the freeze toggle.
func (m *ModelManager) Train() (Metrics, error) {
	if m.trainLoader.NumExamples() == 0 {
		return Metrics{}, fmt.Errorf("train: %w", ErrEmptyDataset)
	}
	if m.localEpochs+m.repEpochs <= 0 {
		return Metrics{}, fmt.Errorf("train: %w", ErrNoEpochs)
	}

	if err := m.loadHeadIfPresent(); err != nil {
		return Metrics{}, err
	}

	optimizer := nn.NewSGD(m.model.Params(), m.learningRate, common.DEFAULT_SGD_MOMENTUM)

	correct, total := 0, 0
	lastLoss := 0.0

	for epoch := 0; epoch < m.localEpochs+m.repEpochs; epoch++ {
		if epoch < m.localEpochs {
			m.model.DisableBody()
			m.model.EnableHead()
		} else {
			m.model.EnableBody()
			m.model.DisableHead()
		}

		for _, batch := range m.trainLoader.Batches() {
			logits := m.model.Forward(batch.X)
			loss, grad := nn.CrossEntropy(logits, batch.Y)

			optimizer.ZeroGrad()
			m.model.Backward(grad)
			optimizer.Step()

			lastLoss = loss
			total += len(batch.Y)
			correct += nn.CountCorrect(logits, batch.Y)
		}
	}

	m.model.EnableBody()
	m.model.EnableHead()

	if m.statePath != "" {
		if err := SaveState(m.statePath, m.model.Head().StateDict()); err != nil {
			return Metrics{}, fmt.Errorf("persisting head state for client %d: %w", m.clientId, err)
		}
	}

	metrics := Metrics{Loss: lastLoss, Accuracy: float64(correct) / float64(total)}
	m.logger.Debug("local training finished", "client", m.clientId, "loss", metrics.Loss, "accuracy", metrics.Accuracy)
	return metrics, nil
}

// Test evaluates the model on the test loader. If finetuning epochs are
// configured, the full model is first adapted on the training loader with
// plain SGD, so a freshly received body is personalized before measuring.
// With zero finetuning epochs no parameter is mutated.
func (m *ModelManager) Test() (Metrics, error) {
	if m.testLoader.NumExamples() == 0 {
		return Metrics{}, fmt.Errorf("test: %w", ErrEmptyDataset)
	}

	if err := m.loadHeadIfPresent(); err != nil {
		return Metrics{}, err
	}

	if m.finetuneEpochs > 0 {
		optimizer := nn.NewSGD(m.model.Params(), m.learningRate, 0)
		for epoch := 0; epoch < m.finetuneEpochs; epoch++ {
			for _, batch := range m.trainLoader.Batches() {
				logits := m.model.Forward(batch.X)
				_, grad := nn.CrossEntropy(logits, batch.Y)

				optimizer.ZeroGrad()
				m.model.Backward(grad)
				optimizer.Step()
			}
		}
	}

	correct, total := 0, 0
	lossSum := 0.0

	for _, batch := range m.testLoader.Batches() {
		logits := m.model.Forward(batch.X)
		lossSum += nn.CrossEntropyLoss(logits, batch.Y)
		total += len(batch.Y)
		correct += nn.CountCorrect(logits, batch.Y)
	}

	return Metrics{
		Loss:     lossSum / float64(m.testLoader.NumExamples()),
		Accuracy: float64(correct) / float64(total),
	}, nil
}

// loadHeadIfPresent restores the persisted head snapshot. A missing file
// means first participation and is skipped silently.
func (m *ModelManager) loadHeadIfPresent() error {
	if m.statePath == "" || !StateFileExists(m.statePath) {
		return nil
	}

	state, err := LoadState(m.statePath)
	if err != nil {
		return fmt.Errorf("loading head state for client %d: %w", m.clientId, err)
	}
	if err := m.model.LoadHeadState(state); err != nil {
		return fmt.Errorf("applying head state for client %d: %w", m.clientId, err)
	}
	return nil
}

// TrainDatasetSize returns the training example count.
func (m *ModelManager) TrainDatasetSize() int {
	return m.trainLoader.NumExamples()
}

// TestDatasetSize returns the test example count.
func (m *ModelManager) TestDatasetSize() int {
	return m.testLoader.NumExamples()
}

// TotalDatasetSize returns the combined example count.
func (m *ModelManager) TotalDatasetSize() int {
	return m.trainLoader.NumExamples() + m.testLoader.NumExamples()
}
