package sim

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
)

// RoundMetrics aggregates one communication round.
type RoundMetrics struct {
	Round          int
	TrainLoss      float64
	TrainAccuracy  float64
	EvalLoss       float64
	EvalAccuracy   float64
	CumulativeCost float64
}

// History accumulates per-round metrics for one run.
type History struct {
	Rounds []RoundMetrics
}

// Accuracies returns the evaluation accuracy curve.
func (h *History) Accuracies() []float64 {
	accuracies := make([]float64, len(h.Rounds))
	for i, round := range h.Rounds {
		accuracies[i] = round.EvalAccuracy
	}
	return accuracies
}

// Losses returns the evaluation loss curve.
func (h *History) Losses() []float64 {
	losses := make([]float64, len(h.Rounds))
	for i, round := range h.Rounds {
		losses[i] = round.EvalLoss
	}
	return losses
}

// HasConverged reports whether the moving-averaged accuracy curve has
// improved by less than threshold for the last patience windows.
func (h *History) HasConverged(threshold float64, patience int, windowSize int) bool {
	averages := movingAverage(h.Accuracies(), windowSize)
	if len(averages) < patience+1 {
		return false
	}

	for i := len(averages) - patience; i < len(averages); i++ {
		improvement := averages[i] - averages[i-1]
		if math.Abs(improvement) > threshold {
			return false
		}
	}
	return true
}

func movingAverage(values []float64, windowSize int) []float64 {
	if len(values) < windowSize {
		return nil
	}
	averages := make([]float64, len(values)-windowSize+1)
	for i := range averages {
		averages[i] = common.CalculateAverageFloat64(values[i : i+windowSize])
	}
	return averages
}

// WriteCsv writes the full history as one CSV record per round.
func (h *History) WriteCsv(fileName string) error {
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"round", "train_loss", "train_accuracy", "eval_loss", "eval_accuracy", "cumulative_cost"}); err != nil {
		return err
	}
	for _, round := range h.Rounds {
		record := []string{
			fmt.Sprintf("%d", round.Round),
			fmt.Sprintf("%.4f", round.TrainLoss),
			fmt.Sprintf("%.4f", round.TrainAccuracy),
			fmt.Sprintf("%.4f", round.EvalLoss),
			fmt.Sprintf("%.4f", round.EvalAccuracy),
			fmt.Sprintf("%.2f", round.CumulativeCost),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}
