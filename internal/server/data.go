package server

import (
	"encoding/json"
	"io"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(i)
}

// StartRunRequest starts a simulation run. ConfigPath points at a YAML
// experiment config; when empty the default configuration is used. Non-zero
// override fields replace the loaded values.
type StartRunRequest struct {
	ConfigPath     string  `json:"configPath"`
	Algorithm      string  `json:"algorithm"`
	NumClients     int     `json:"numClients"`
	NumRounds      int     `json:"numRounds"`
	ClientFraction float64 `json:"clientFraction"`
	BatchSize      int     `json:"batchSize"`
	LearningRate   float64 `json:"learningRate"`
	Seed           int64   `json:"seed"`
}

// RunStatusResponse reports the progress of one run.
type RunStatusResponse struct {
	RunId          string  `json:"runId"`
	Finished       bool    `json:"finished"`
	CompletedRound int     `json:"completedRound"`
	EvalLoss       float64 `json:"evalLoss"`
	EvalAccuracy   float64 `json:"evalAccuracy"`
	Error          string  `json:"error,omitempty"`
}
