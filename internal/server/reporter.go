package server

import (
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/fedrep-simulator/internal/events"
)

// StatusReporter periodically logs the progress of all active runs and logs
// run-finished events from the bus.
type StatusReporter struct {
	logger        hclog.Logger
	handler       *Handler
	cronScheduler *cron.Cron
	runEvents     chan events.Event
	done          chan struct{}
}

func NewStatusReporter(logger hclog.Logger, handler *Handler, eventBus *events.EventBus) *StatusReporter {
	reporter := &StatusReporter{
		logger:        logger,
		handler:       handler,
		cronScheduler: cron.New(cron.WithSeconds()),
		runEvents:     make(chan events.Event, 16),
		done:          make(chan struct{}),
	}

	eventBus.Subscribe(common.RUN_FINISHED_EVENT_TYPE, reporter.runEvents)

	return reporter
}

func (reporter *StatusReporter) Start() {
	reporter.cronScheduler.AddFunc("@every 30s", reporter.reportStatus)

	reporter.cronScheduler.Start()
	go reporter.consumeEvents()
}

func (reporter *StatusReporter) Stop() {
	reporter.cronScheduler.Stop()
	close(reporter.done)
}

func (reporter *StatusReporter) reportStatus() {
	for runId, simulation := range reporter.handler.ActiveRuns() {
		round, latest, ok := simulation.Progress()
		if !ok {
			reporter.logger.Info("run in progress", "runId", runId, "completedRounds", 0)
			continue
		}
		reporter.logger.Info("run in progress", "runId", runId, "completedRounds", round,
			"evalAccuracy", latest.EvalAccuracy)
	}
}

func (reporter *StatusReporter) consumeEvents() {
	for {
		select {
		case event := <-reporter.runEvents:
			if data, ok := event.Data.(events.RunFinishedEvent); ok {
				reporter.logger.Info("run finished", "runId", data.RunId,
					"exitMessage", data.ExitMessage, "finishedAt", event.Timestamp)
			}
		case <-reporter.done:
			return
		}
	}
}
