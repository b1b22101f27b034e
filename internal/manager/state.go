package manager

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/nn"
)

// SaveState writes a parameter snapshot to path, creating parent
// directories as needed. The file is overwritten on every call.
func SaveState(path string, state map[string]*nn.Tensor) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating state file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(state); err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return nil
}

// LoadState reads a parameter snapshot from path.
func LoadState(path string) (map[string]*nn.Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening state file: %w", err)
	}
	defer file.Close()

	state := map[string]*nn.Tensor{}
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return state, nil
}

// StateFileExists reports whether a persisted snapshot exists at path.
func StateFileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
