package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/sim"
)

type run struct {
	simulation *sim.Simulation
	done       chan struct{}

	mu  sync.Mutex
	err error
}

// Handler exposes the HTTP API for starting, inspecting and stopping
// simulation runs.
type Handler struct {
	logger   hclog.Logger
	eventBus *events.EventBus

	mu   sync.Mutex
	runs map[string]*run
}

func NewHandler(logger hclog.Logger, eventBus *events.EventBus) *Handler {
	return &Handler{
		logger:   logger,
		eventBus: eventBus,
		runs:     map[string]*run{},
	}
}

func (handler *Handler) StartRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	request := &StartRunRequest{}
	if err := fromJSON(request, r.Body); err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("invalid request body", rw)
		return
	}

	cfg, err := buildConfig(request)
	if err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		toJSON(err.Error(), rw)
		return
	}

	simulation, err := sim.New(cfg, handler.logger, handler.eventBus)
	if err != nil {
		handler.logger.Error("error starting run", "error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	runId := simulation.RunId()
	entry := &run{simulation: simulation, done: make(chan struct{})}

	handler.mu.Lock()
	handler.runs[runId] = entry
	handler.mu.Unlock()

	handler.logger.Info(fmt.Sprintf("Starting run %s with algorithm %s and %d clients",
		runId, cfg.Algorithm, cfg.NumClients))

	go func() {
		_, err := simulation.Run()
		entry.mu.Lock()
		entry.err = err
		entry.mu.Unlock()
		close(entry.done)
	}()

	rw.WriteHeader(http.StatusOK)
	toJSON(runId, rw)
}

func (handler *Handler) RunStatus(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	handler.mu.Lock()
	entry := handler.runs[runId]
	handler.mu.Unlock()

	if entry == nil {
		rw.WriteHeader(http.StatusNotFound)
		toJSON("no run with the given ID", rw)
		return
	}

	response := RunStatusResponse{RunId: runId}
	select {
	case <-entry.done:
		response.Finished = true
	default:
	}

	if round, latest, ok := entry.simulation.Progress(); ok {
		response.CompletedRound = round
		response.EvalLoss = latest.EvalLoss
		response.EvalAccuracy = latest.EvalAccuracy
	}

	entry.mu.Lock()
	if entry.err != nil {
		response.Error = entry.err.Error()
	}
	entry.mu.Unlock()

	rw.WriteHeader(http.StatusOK)
	toJSON(response, rw)
}

func (handler *Handler) StopRun(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Add("Content-Type", "application/json")

	runId := getURLParameter(r, "runId")

	handler.logger.Info(fmt.Sprintf("Stopping run with ID: %s", runId))

	handler.mu.Lock()
	entry := handler.runs[runId]
	handler.mu.Unlock()

	if entry == nil {
		rw.WriteHeader(http.StatusBadRequest)
		toJSON("no run with the given ID", rw)
		return
	}

	entry.simulation.Stop()
	rw.WriteHeader(http.StatusOK)
}

// ActiveRuns returns the simulations that have not finished yet, keyed by
// run ID.
func (handler *Handler) ActiveRuns() map[string]*sim.Simulation {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	active := map[string]*sim.Simulation{}
	for runId, entry := range handler.runs {
		select {
		case <-entry.done:
		default:
			active[runId] = entry.simulation
		}
	}
	return active
}

func buildConfig(request *StartRunRequest) (*config.ExperimentConfig, error) {
	cfg := config.Default()
	if request.ConfigPath != "" {
		loaded, err := config.Load(request.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if request.Algorithm != "" {
		cfg.Algorithm = request.Algorithm
	}
	if request.NumClients != 0 {
		cfg.NumClients = request.NumClients
	}
	if request.NumRounds != 0 {
		cfg.NumRounds = request.NumRounds
	}
	if request.ClientFraction != 0 {
		cfg.ClientFraction = request.ClientFraction
	}
	if request.BatchSize != 0 {
		cfg.BatchSize = request.BatchSize
	}
	if request.LearningRate != 0 {
		cfg.LearningRate = request.LearningRate
	}
	if request.Seed != 0 {
		cfg.Seed = request.Seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getURLParameter(r *http.Request, parameter string) string {
	vars := mux.Vars(r)
	id := vars[parameter]
	return id
}
