package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/config"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/events"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/sim"
)

func main() {
	configPath := flag.String("config", "", "path to the experiment config YAML file")
	logLevel := flag.String("log-level", "INFO", "log level")
	flag.Parse()

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
		Level:  hclog.LevelFromString(*logLevel),
		Output: io.MultiWriter(os.Stdout, logFile),
	})

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Error("Error loading config", "error", err)
			os.Exit(1)
		}
	}

	eventBus := events.NewEventBus()

	simulation, err := sim.New(cfg, logger, eventBus)
	if err != nil {
		logger.Error("Error creating simulation", "error", err)
		os.Exit(1)
	}

	history, err := simulation.Run()
	if err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}

	if len(history.Rounds) > 0 {
		final := history.Rounds[len(history.Rounds)-1]
		fmt.Printf("Final round %d: loss=%.4f accuracy=%.4f cost=%.2fMB\n",
			final.Round, final.EvalLoss, final.EvalAccuracy, final.CumulativeCost)
	}
}
