package incidents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/metrics"
)

// Publisher broadcasts incident lifecycle events to connected clients.
type Publisher interface {
	Publish(event string, payload interface{})
}

// ManagerConfig contains configuration for the incident manager.
type ManagerConfig struct {
	Enabled             bool
	ExecutionTimeout    time.Duration
	HealthyResolveAfter time.Duration
	IdleResolveAfter    time.Duration
}

// Manager owns the incident table and drives automated response: opening
// incidents for critical alerts, matching playbooks, and sequencing
// rate-limited action execution.
type Manager struct {
	config    ManagerConfig
	logger    *logrus.Logger
	store     Store
	collector metrics.Collector
	executor  Executor
	limiter   *ActionLimiter
	health    metrics.HealthChecker
	publisher Publisher

	playbooks []Playbook
	actions   map[string]ResponseAction

	mu              sync.RWMutex
	incidents       map[string]*Incident
	alertToIncident map[string]string

	wg sync.WaitGroup
}

// NewManager creates the incident manager. Invalid actions are dropped
// with a warning and never referenced at execution time.
func NewManager(config ManagerConfig, playbooks []Playbook, actions []ResponseAction, store Store, executor Executor, collector metrics.Collector, logger *logrus.Logger) *Manager {
	if config.ExecutionTimeout <= 0 {
		config.ExecutionTimeout = 60 * time.Second
	}
	if config.HealthyResolveAfter <= 0 {
		config.HealthyResolveAfter = 5 * time.Minute
	}
	if config.IdleResolveAfter <= 0 {
		config.IdleResolveAfter = 10 * time.Minute
	}
	if collector == nil {
		collector = metrics.Noop{}
	}

	actionMap := make(map[string]ResponseAction, len(actions))
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			logger.WithError(err).Warn("Dropping invalid response action")
			continue
		}
		actionMap[a.ID] = a
	}

	return &Manager{
		config:          config,
		logger:          logger,
		store:           store,
		collector:       collector,
		executor:        executor,
		limiter:         NewActionLimiter(),
		playbooks:       playbooks,
		actions:         actionMap,
		incidents:       make(map[string]*Incident),
		alertToIncident: make(map[string]string),
	}
}

// SetHealthChecker wires the health aggregate used by auto-resolution.
func (m *Manager) SetHealthChecker(h metrics.HealthChecker) { m.health = h }

// SetPublisher wires the event broadcaster.
func (m *Manager) SetPublisher(p Publisher) { m.publisher = p }

// Stop waits for in-flight playbook executions to finish.
func (m *Manager) Stop() {
	m.wg.Wait()
}

// HandleAlert is called by the alert lifecycle manager for every high or
// critical alert. Only critical alerts open incidents on this path.
func (m *Manager) HandleAlert(alert *alerts.Alert) {
	if !m.config.Enabled {
		return
	}
	if alert.Severity != alerts.SeverityCritical {
		return
	}
	m.openIncident(alert, fmt.Sprintf("critical alert: %s", alert.Title))
}

// RequestIncident is called by the escalation checker when a rule with
// create_incident fires.
func (m *Manager) RequestIncident(alert *alerts.Alert, reason string) {
	if !m.config.Enabled {
		return
	}
	m.openIncident(alert, reason)
}

// HandleAlertResolved records the resolution of a contributing alert on
// the incident timeline. The incident itself stays open until the
// resolution checker's heuristic clears it.
func (m *Manager) HandleAlertResolved(alert *alerts.Alert) {
	if !m.config.Enabled {
		return
	}

	m.mu.Lock()
	id, ok := m.alertToIncident[alert.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	incident := m.incidents[id]
	if incident == nil || !incident.active() {
		m.mu.Unlock()
		return
	}
	incident.appendTimeline("alert_resolved", fmt.Sprintf("contributing alert %s resolved", alert.ID))
	snapshot := incident.clone()
	m.mu.Unlock()

	m.persistIncident(snapshot)
}

// openIncident enforces at most one active incident per alert chain: a
// repeated request for an alert already covered by an open incident only
// appends a timeline entry.
func (m *Manager) openIncident(alert *alerts.Alert, reason string) {
	m.mu.Lock()
	if id, ok := m.alertToIncident[alert.ID]; ok {
		if existing := m.incidents[id]; existing != nil && existing.active() {
			existing.appendTimeline("incident_request", reason)
			if alert.Severity.Rank() > existing.Severity.Rank() {
				existing.Severity = alert.Severity
			}
			snapshot := existing.clone()
			m.mu.Unlock()
			m.persistIncident(snapshot)
			return
		}
	}

	incident := newIncident(alert, reason)
	m.incidents[incident.ID] = incident
	m.alertToIncident[alert.ID] = incident.ID
	snapshot := incident.clone()
	m.mu.Unlock()

	m.persistIncident(snapshot)
	m.collector.RecordIncidentOpened(string(alert.Severity))

	m.logger.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"alert_id":    alert.ID,
		"severity":    alert.Severity,
	}).Warn("Incident opened")

	if m.publisher != nil {
		m.publisher.Publish("incident_opened", snapshot)
	}

	playbook := m.matchPlaybook(alert)
	if playbook == nil {
		m.appendTimeline(incident.ID, "playbook_match", "no matching playbook")
		return
	}

	m.appendTimeline(incident.ID, "playbook_selected", fmt.Sprintf("%s (%s)", playbook.Name, playbook.Priority))

	// Remediation runs off the caller's path; the sampler tick that
	// produced the alert must not wait on commands or API calls.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.executePlaybook(incident.ID, alert, playbook)
	}()
}

// matchPlaybook picks the highest-priority enabled playbook whose
// trigger predicate matches. Ties keep the first declared.
func (m *Manager) matchPlaybook(alert *alerts.Alert) *Playbook {
	var best *Playbook
	for i := range m.playbooks {
		p := &m.playbooks[i]
		if !p.Matches(alert) {
			continue
		}
		if best == nil || p.Priority.Rank() < best.Priority.Rank() {
			best = p
		}
	}
	return best
}

// executePlaybook runs the playbook's actions in declared order. A
// failed, skipped, or rate-limited action never halts the remainder.
func (m *Manager) executePlaybook(incidentID string, alert *alerts.Alert, playbook *Playbook) {
	for _, actionID := range playbook.ActionIDs {
		action, ok := m.actions[actionID]
		if !ok {
			m.logger.WithFields(logrus.Fields{
				"playbook_id": playbook.ID,
				"action_id":   actionID,
			}).Warn("Playbook references unknown action")
			m.appendTimeline(incidentID, "action_missing", actionID)
			continue
		}

		m.runAction(incidentID, alert, playbook, &action)
	}

	m.appendTimeline(incidentID, "playbook_finished", playbook.ID)
}

func (m *Manager) runAction(incidentID string, alert *alerts.Alert, playbook *Playbook, action *ResponseAction) {
	execution := newExecution(action.ID, alert.ID, playbook.ID, incidentID)

	if !action.Automated {
		execution.finish(ExecutionSkipped, "", "action requires manual execution")
		m.journal(incidentID, execution, action)
		return
	}

	if !action.AppliesTo(alert.Severity, playbook.Category) {
		execution.finish(ExecutionSkipped, "", "applicability conditions not met")
		m.journal(incidentID, execution, action)
		return
	}

	if ok, reason := m.limiter.Allow(action.ID, action.RateLimit); !ok {
		execution.finish(ExecutionRateLimited, "", reason)
		m.journal(incidentID, execution, action)
		m.logger.WithFields(logrus.Fields{
			"action_id": action.ID,
			"reason":    reason,
		}).Warn("Response action rate limited")
		return
	}

	m.persistExecution(execution)

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ExecutionTimeout)
	result := m.executor.Execute(ctx, &action.Implementation)
	cancel()

	status := ExecutionCompleted
	if !result.Success {
		status = ExecutionFailed
	}
	execution.finish(status, result.Output, result.Err)

	// Verification is a soft signal: it is recorded with the execution
	// but never retroactively fails a successful run.
	if result.Success && action.Verification != nil {
		held, details := m.executor.Verify(context.Background(), action.Verification)
		execution.Verified = &held
		execution.VerifyDetails = details
	}

	m.journal(incidentID, execution, action)
	m.collector.RecordActionExecution(action.ID, result.Success, execution.Duration())

	entry := m.logger.WithFields(logrus.Fields{
		"action_id":   action.ID,
		"incident_id": incidentID,
		"status":      execution.Status,
		"duration":    execution.Duration().String(),
	})
	if result.Success {
		entry.Info("Response action executed")
	} else {
		entry.WithField("error", result.Err).Error("Response action failed")
	}
}

// journal persists the execution record and reflects it on the incident
// timeline and activity clock.
func (m *Manager) journal(incidentID string, execution *ActionExecution, action *ResponseAction) {
	m.persistExecution(execution)

	m.mu.Lock()
	incident := m.incidents[incidentID]
	if incident != nil {
		details := action.ID
		if execution.Error != "" {
			details = fmt.Sprintf("%s: %s", action.ID, execution.Error)
		}
		incident.appendTimeline("action_"+execution.Status, details)
		incident.lastActivity = time.Now()
	}
	var snapshot *Incident
	if incident != nil {
		snapshot = incident.clone()
	}
	m.mu.Unlock()

	if snapshot != nil {
		m.persistIncident(snapshot)
	}
}

// Resolve closes an incident. Resolving an already-resolved incident is
// a no-op.
func (m *Manager) Resolve(incidentID string, resolution ResolutionType, note string) error {
	m.mu.Lock()
	incident, ok := m.incidents[incidentID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("incident %s not found", incidentID)
	}
	if !incident.active() {
		m.mu.Unlock()
		return nil
	}

	now := time.Now()
	incident.Status = StatusResolved
	incident.ResolvedAt = &now
	incident.ResolutionType = resolution
	incident.appendTimeline("incident_resolved", note)

	for _, alertID := range incident.AlertIDs {
		if m.alertToIncident[alertID] == incident.ID {
			delete(m.alertToIncident, alertID)
		}
	}
	snapshot := incident.clone()
	m.mu.Unlock()

	m.persistIncident(snapshot)
	m.collector.RecordIncidentResolved(string(resolution), snapshot.Age())

	m.logger.WithFields(logrus.Fields{
		"incident_id": snapshot.ID,
		"resolution":  resolution,
		"duration":    snapshot.Age().String(),
	}).Info("Incident resolved")

	if m.publisher != nil {
		m.publisher.Publish("incident_resolved", snapshot)
	}
	return nil
}

// Active returns a snapshot of open and investigating incidents.
func (m *Manager) Active() []*Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Incident
	for _, inc := range m.incidents {
		if inc.active() {
			out = append(out, inc.clone())
		}
	}
	return out
}

// All returns a snapshot of every tracked incident.
func (m *Manager) All() []*Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, inc.clone())
	}
	return out
}

// Get returns the incident with the given id, if tracked.
func (m *Manager) Get(incidentID string) (*Incident, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inc, ok := m.incidents[incidentID]
	if !ok {
		return nil, false
	}
	return inc.clone(), true
}

func (m *Manager) appendTimeline(incidentID, action, details string) {
	m.mu.Lock()
	incident := m.incidents[incidentID]
	var snapshot *Incident
	if incident != nil {
		incident.appendTimeline(action, details)
		snapshot = incident.clone()
	}
	m.mu.Unlock()

	if snapshot != nil {
		m.persistIncident(snapshot)
	}
}

func (m *Manager) persistIncident(incident *Incident) {
	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.SaveIncident(ctx, incident); err != nil {
		m.logger.WithError(err).WithField("incident_id", incident.ID).Warn("Failed to persist incident")
	}
}

func (m *Manager) persistExecution(execution *ActionExecution) {
	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.SaveExecution(ctx, execution); err != nil {
		m.logger.WithError(err).WithField("execution_id", execution.ID).Warn("Failed to persist action execution")
	}
}
