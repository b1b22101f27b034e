// Package config loads and validates experiment configuration from YAML
// files. Optional training fields fall back to named defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
)

// ModelConfig describes the network architecture to train.
type ModelConfig struct {
	Name       string `yaml:"name"`
	InputDim   int    `yaml:"input_dim"`
	HiddenDim  int    `yaml:"hidden_dim"`
	NumClasses int    `yaml:"num_classes"`
}

// DatasetConfig describes the synthetic dataset and its client partition.
type DatasetConfig struct {
	Partition       string  `yaml:"partition"`
	NumExamples     int     `yaml:"num_examples"`
	NumFeatures     int     `yaml:"num_features"`
	ShardsPerClient int     `yaml:"shards_per_client"`
	TrainFraction   float64 `yaml:"train_fraction"`
}

// ExperimentConfig is the full configuration of one simulation run. The
// epoch counts are optional; absent fields resolve to the defaults in
// the common package.
type ExperimentConfig struct {
	Algorithm      string  `yaml:"algorithm"`
	NumClients     int     `yaml:"num_clients"`
	NumRounds      int     `yaml:"num_rounds"`
	ClientFraction float64 `yaml:"client_fraction"`
	BatchSize      int     `yaml:"batch_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	Seed           int64   `yaml:"seed"`

	NumLocalEpochs    *int `yaml:"num_local_epochs"`
	NumRepEpochs      *int `yaml:"num_rep_epochs"`
	NumFinetuneEpochs *int `yaml:"num_finetune_epochs"`

	TargetAccuracy float64 `yaml:"target_accuracy"`

	StateDir   string `yaml:"state_dir"`
	ResultsDir string `yaml:"results_dir"`
	HistoryDb  string `yaml:"history_db"`

	Model   ModelConfig   `yaml:"model"`
	Dataset DatasetConfig `yaml:"dataset"`
}

// Default returns a runnable baseline configuration.
func Default() *ExperimentConfig {
	return &ExperimentConfig{
		Algorithm:      common.ALGORITHM_FEDREP,
		NumClients:     10,
		NumRounds:      20,
		ClientFraction: 0.5,
		BatchSize:      32,
		LearningRate:   0.05,
		Seed:           42,
		TargetAccuracy: 0.95,
		StateDir:       "client_states",
		ResultsDir:     "results",
		Model: ModelConfig{
			Name:       common.MODEL_MLP_TWO_LAYER,
			InputDim:   16,
			HiddenDim:  32,
			NumClasses: 4,
		},
		Dataset: DatasetConfig{
			Partition:       common.PARTITION_IID,
			NumExamples:     4000,
			NumFeatures:     16,
			ShardsPerClient: 2,
			TrainFraction:   0.8,
		},
	}
}

// Load reads an experiment configuration from a YAML file, layered over the
// defaults.
func Load(path string) (*ExperimentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the simulation cannot run.
func (c *ExperimentConfig) Validate() error {
	if c.Algorithm != common.ALGORITHM_FEDREP && c.Algorithm != common.ALGORITHM_FEDAVG {
		return fmt.Errorf("unknown algorithm: %s", c.Algorithm)
	}
	if c.NumClients <= 0 {
		return fmt.Errorf("num_clients must be positive, got %d", c.NumClients)
	}
	if c.NumRounds <= 0 {
		return fmt.Errorf("num_rounds must be positive, got %d", c.NumRounds)
	}
	if c.ClientFraction <= 0 || c.ClientFraction > 1 {
		return fmt.Errorf("client_fraction must be in (0, 1], got %f", c.ClientFraction)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", c.LearningRate)
	}
	if c.Dataset.TrainFraction <= 0 || c.Dataset.TrainFraction >= 1 {
		return fmt.Errorf("train_fraction must be in (0, 1), got %f", c.Dataset.TrainFraction)
	}
	if c.NumLocalEpochs != nil && *c.NumLocalEpochs < 0 {
		return fmt.Errorf("num_local_epochs must not be negative, got %d", *c.NumLocalEpochs)
	}
	if c.NumRepEpochs != nil && *c.NumRepEpochs < 0 {
		return fmt.Errorf("num_rep_epochs must not be negative, got %d", *c.NumRepEpochs)
	}
	if c.NumFinetuneEpochs != nil && *c.NumFinetuneEpochs < 0 {
		return fmt.Errorf("num_finetune_epochs must not be negative, got %d", *c.NumFinetuneEpochs)
	}
	return nil
}

// LocalEpochs resolves the head-phase epoch count.
func (c *ExperimentConfig) LocalEpochs() int {
	if c.NumLocalEpochs != nil {
		return *c.NumLocalEpochs
	}
	return common.DEFAULT_LOCAL_TRAIN_EPOCHS
}

// RepEpochs resolves the representation-phase epoch count.
func (c *ExperimentConfig) RepEpochs() int {
	if c.NumRepEpochs != nil {
		return *c.NumRepEpochs
	}
	return common.DEFAULT_REPRESENTATION_EPOCHS
}

// FinetuneEpochs resolves the pre-evaluation finetuning epoch count.
func (c *ExperimentConfig) FinetuneEpochs() int {
	if c.NumFinetuneEpochs != nil {
		return *c.NumFinetuneEpochs
	}
	return common.DEFAULT_FINETUNE_EPOCHS
}
