package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ClientStateDir creates a run-specific directory for client state files,
// named after the run start time, and returns its path.
func ClientStateDir(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating client state dir: %w", err)
	}
	return dir, nil
}

// ClientStatePath returns the state file path for one client inside a run
// state directory.
func ClientStatePath(stateDir string, clientId int) string {
	return filepath.Join(stateDir, fmt.Sprintf("client_%d_state.bin", clientId))
}

func CalculateAverageFloat64(numbers []float64) float64 {
	if len(numbers) == 0 {
		return 0
	}

	var sum float64
	for _, number := range numbers {
		sum += number
	}

	return sum / float64(len(numbers))
}

// WeightedAverageFloat64 averages values weighted by the matching entry in
// weights. Returns 0 when the total weight is 0.
func WeightedAverageFloat64(values []float64, weights []int) float64 {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0
	}

	var sum float64
	for i, v := range values {
		sum += v * float64(weights[i])
	}

	return sum / float64(total)
}
