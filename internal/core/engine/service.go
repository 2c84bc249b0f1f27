package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/escalation"
	"github.com/pulseguard/pulseguard/internal/core/incidents"
	"github.com/pulseguard/pulseguard/internal/core/notify"
	"github.com/pulseguard/pulseguard/internal/core/rules"
	"github.com/pulseguard/pulseguard/internal/core/sampler"
)

// Config contains the coordinator's scheduling intervals.
type Config struct {
	EscalationEnabled  bool
	EscalationInterval time.Duration
	ResolutionInterval time.Duration
	CleanupInterval    time.Duration
}

// Service wires the pipeline together: every snapshot flows through rule
// evaluation into the alert lifecycle manager, while the escalation
// checker, incident resolution checker, and alert cleanup run on their
// own schedules.
type Service struct {
	config     Config
	logger     *logrus.Logger
	sampler    *sampler.Service
	rules      *rules.Engine
	alerts     *alerts.Manager
	dispatcher *notify.Dispatcher
	escalation *escalation.Checker
	incidents  *incidents.Manager

	cron *cron.Cron
}

// New creates the coordinator and hooks rule evaluation into the
// sampling loop.
func New(config Config, samplerSvc *sampler.Service, ruleEngine *rules.Engine, alertMgr *alerts.Manager, dispatcher *notify.Dispatcher, checker *escalation.Checker, incidentMgr *incidents.Manager, logger *logrus.Logger) *Service {
	if config.EscalationInterval <= 0 {
		config.EscalationInterval = 60 * time.Second
	}
	if config.ResolutionInterval <= 0 {
		config.ResolutionInterval = 30 * time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}

	s := &Service{
		config:     config,
		logger:     logger,
		sampler:    samplerSvc,
		rules:      ruleEngine,
		alerts:     alertMgr,
		dispatcher: dispatcher,
		escalation: checker,
		incidents:  incidentMgr,
	}

	samplerSvc.OnSnapshot(s.handleSnapshot)
	return s
}

// handleSnapshot runs one evaluation pass. Triggers and clears both go
// through the lifecycle manager, which owns dedup and resolution.
func (s *Service) handleSnapshot(snap *sampler.Snapshot) {
	result := s.rules.Evaluate(snap)

	for _, trigger := range result.Triggers {
		s.alerts.Process(trigger)
	}
	for _, clear := range result.Clears {
		s.alerts.Clear(clear.RuleID, clear.Value)
	}
}

// Start launches the sampler, the dispatcher, and the cron schedule.
func (s *Service) Start(ctx context.Context) error {
	if err := s.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification dispatcher: %w", err)
	}
	if err := s.sampler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sampler: %w", err)
	}

	cronLog := &cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLog),
		cron.Recover(cronLog),
	))

	if s.config.EscalationEnabled {
		if _, err := s.cron.AddFunc(every(s.config.EscalationInterval), s.escalation.Check); err != nil {
			return fmt.Errorf("failed to schedule escalation checker: %w", err)
		}
	}
	if _, err := s.cron.AddFunc(every(s.config.ResolutionInterval), s.incidents.CheckResolution); err != nil {
		return fmt.Errorf("failed to schedule resolution checker: %w", err)
	}
	if _, err := s.cron.AddFunc(every(s.config.CleanupInterval), s.alerts.Cleanup); err != nil {
		return fmt.Errorf("failed to schedule alert cleanup: %w", err)
	}

	s.cron.Start()

	s.logger.WithFields(logrus.Fields{
		"escalation_interval": s.config.EscalationInterval.String(),
		"resolution_interval": s.config.ResolutionInterval.String(),
	}).Info("Engine started")
	return nil
}

// Stop halts scheduling and waits for in-flight work: running cron jobs,
// the sampling loop, queued deliveries, and playbook executions.
func (s *Service) Stop() {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}

	s.sampler.Stop()
	s.dispatcher.Stop()
	s.incidents.Stop()

	s.logger.Info("Engine stopped")
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// cronLogger adapts logrus to the cron logger interface.
type cronLogger struct {
	logger *logrus.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.WithField("details", keysAndValues).Debug(msg)
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.WithError(err).WithField("details", keysAndValues).Error(msg)
}
