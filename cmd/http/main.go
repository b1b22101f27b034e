package main

import (
	"io"
	"os"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/server"
)

func main() {
	_ = os.Mkdir("log", 0777)
	logFile, err := os.OpenFile("log/run.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			panic(err)
		}
	}()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fedrep-sim",
		Level:  hclog.LevelFromString("DEBUG"),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	eventBus := events.NewEventBus()

	handler := server.NewHandler(logger, eventBus)

	reporter := server.NewStatusReporter(logger, handler, eventBus)
	reporter.Start()
	defer reporter.Stop()

	defaultRouter := mux.NewRouter()
	defaultRouter.HandleFunc("/runs/start", handler.StartRun).Methods("POST")
	defaultRouter.HandleFunc("/runs/{runId}", handler.RunStatus).Methods("GET")
	defaultRouter.HandleFunc("/runs/stop/{runId}", handler.StopRun).Methods("POST")

	server.StartHttpServer(logger, defaultRouter)
}
