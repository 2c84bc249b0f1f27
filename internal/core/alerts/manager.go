package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/metrics"
)

// Store persists alert records. Writes are best effort: a failed write is
// logged and the in-memory table stays authoritative for runtime decisions.
type Store interface {
	SaveAlert(ctx context.Context, alert *Alert) error
}

// Notifier receives alerts that need delivery to configured channels.
type Notifier interface {
	EnqueueAlert(alert *Alert)
	EnqueueResolution(alert *Alert)
}

// IncidentSink receives alert lifecycle events that may open or close
// incidents.
type IncidentSink interface {
	HandleAlert(alert *Alert)
	HandleAlertResolved(alert *Alert)
}

// Publisher broadcasts lifecycle events to connected clients.
type Publisher interface {
	Publish(event string, payload interface{})
}

// ManagerConfig contains configuration for the alert lifecycle manager.
type ManagerConfig struct {
	Enabled   bool
	MaxAlerts int
	Retention time.Duration
}

// Manager owns the active-alert table and decides, for every rule trigger,
// whether it is a new alert, an update, or a resolution.
type Manager struct {
	config    ManagerConfig
	logger    *logrus.Logger
	store     Store
	notifier  Notifier
	incidents IncidentSink
	publisher Publisher
	collector metrics.Collector

	alerts map[string]*Alert // keyed by fingerprint
	mu     sync.RWMutex
}

// NewManager creates an alert lifecycle manager. Collaborators may be nil
// when the corresponding subsystem is disabled.
func NewManager(config ManagerConfig, store Store, collector metrics.Collector, logger *logrus.Logger) *Manager {
	if config.MaxAlerts <= 0 {
		config.MaxAlerts = 1000
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if collector == nil {
		collector = metrics.Noop{}
	}

	return &Manager{
		config:    config,
		logger:    logger,
		store:     store,
		collector: collector,
		alerts:    make(map[string]*Alert),
	}
}

// SetNotifier wires the notification dispatcher.
func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// SetIncidentSink wires the incident manager.
func (m *Manager) SetIncidentSink(s IncidentSink) { m.incidents = s }

// SetPublisher wires the event broadcaster.
func (m *Manager) SetPublisher(p Publisher) { m.publisher = p }

// Process handles a trigger candidate. Repeated candidates sharing a
// fingerprint while unresolved update the stored alert, never duplicate it.
func (m *Manager) Process(c Candidate) {
	if !m.config.Enabled {
		return
	}

	m.mu.Lock()
	existing, ok := m.alerts[c.RuleID]
	if ok && !existing.Resolved {
		existing.Value = c.Value
		existing.UpdatedAt = time.Now()
		updated := existing.clone()
		m.mu.Unlock()

		m.persist(updated)
		m.logger.WithFields(logrus.Fields{
			"alert_id": updated.ID,
			"value":    updated.Value,
		}).Debug("Active alert updated")
		return
	}

	if len(m.alerts) >= m.config.MaxAlerts {
		m.evictOldestResolvedLocked()
	}

	alert := newAlert(c)
	m.alerts[alert.Fingerprint] = alert
	created := alert.clone()
	m.mu.Unlock()

	m.persist(created)
	m.collector.RecordAlert(string(created.Severity), created.Type)

	m.logger.WithFields(logrus.Fields{
		"alert_id": created.ID,
		"severity": created.Severity,
		"type":     created.Type,
		"value":    created.Value,
	}).Warn("Alert created")

	if m.notifier != nil {
		m.notifier.EnqueueAlert(created)
	}
	if m.publisher != nil {
		m.publisher.Publish("alert_triggered", created)
	}
	if m.incidents != nil && created.Severity.Rank() >= SeverityHigh.Rank() {
		m.incidents.HandleAlert(created)
	}
}

// Clear resolves the active alert for a rule whose condition no longer
// holds. Resolving an already-resolved alert is a no-op.
func (m *Manager) Clear(ruleID string, value float64) {
	m.mu.Lock()
	alert, ok := m.alerts[ruleID]
	if !ok || alert.Resolved {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.Value = value
	alert.UpdatedAt = now
	resolved := alert.clone()
	m.mu.Unlock()

	m.finishResolution(resolved)
}

// Resolve marks an alert resolved by its alert id, regardless of whether
// the rule condition cleared. Used by the incident manager's resolution
// heuristic and by operators.
func (m *Manager) Resolve(alertID string) error {
	m.mu.Lock()
	var target *Alert
	for _, alert := range m.alerts {
		if alert.ID == alertID {
			target = alert
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return fmt.Errorf("alert %s not found", alertID)
	}
	if target.Resolved {
		m.mu.Unlock()
		return nil
	}

	now := time.Now()
	target.Resolved = true
	target.ResolvedAt = &now
	target.UpdatedAt = now
	resolved := target.clone()
	m.mu.Unlock()

	m.finishResolution(resolved)
	return nil
}

func (m *Manager) finishResolution(resolved *Alert) {
	m.persist(resolved)
	m.collector.RecordAlertResolved(string(resolved.Severity), resolved.Age())

	m.logger.WithFields(logrus.Fields{
		"alert_id": resolved.ID,
		"duration": resolved.Age().String(),
	}).Info("Alert resolved")

	if m.notifier != nil && resolved.Severity.Rank() >= SeverityHigh.Rank() {
		m.notifier.EnqueueResolution(resolved)
	}
	if m.publisher != nil {
		m.publisher.Publish("alert_resolved", resolved)
	}
	if m.incidents != nil {
		m.incidents.HandleAlertResolved(resolved)
	}
}

// Escalate raises an alert's severity in place. Severity only moves up the
// low -> medium -> high -> critical scale; requests to lower it are
// rejected. Escalation re-persists the alert without re-running the
// new-alert notification flow.
func (m *Manager) Escalate(alertID string, to Severity) error {
	if !to.Valid() {
		return fmt.Errorf("invalid severity %q", to)
	}

	m.mu.Lock()
	var target *Alert
	for _, alert := range m.alerts {
		if alert.ID == alertID {
			target = alert
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return fmt.Errorf("alert %s not found", alertID)
	}
	if target.Resolved {
		m.mu.Unlock()
		return fmt.Errorf("alert %s is already resolved", alertID)
	}
	if to.Rank() <= target.Severity.Rank() {
		m.mu.Unlock()
		return nil
	}

	from := target.Severity
	target.Severity = to
	target.UpdatedAt = time.Now()
	escalated := target.clone()
	m.mu.Unlock()

	m.persist(escalated)

	m.logger.WithFields(logrus.Fields{
		"alert_id": escalated.ID,
		"from":     from,
		"to":       to,
	}).Warn("Alert severity escalated")

	if m.publisher != nil {
		m.publisher.Publish("alert_escalated", escalated)
	}
	return nil
}

// Active returns a snapshot of all unresolved alerts.
func (m *Manager) Active() []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Alert
	for _, alert := range m.alerts {
		if !alert.Resolved {
			out = append(out, alert.clone())
		}
	}
	return out
}

// All returns a snapshot of every tracked alert, resolved included.
func (m *Manager) All() []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		out = append(out, alert.clone())
	}
	return out
}

// Get returns the alert with the given id, if tracked.
func (m *Manager) Get(alertID string) (*Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, alert := range m.alerts {
		if alert.ID == alertID {
			return alert.clone(), true
		}
	}
	return nil, false
}

// Stats summarizes the tracked alert population.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	bySeverity := map[Severity]int{}
	for _, alert := range m.alerts {
		if !alert.Resolved {
			active++
			bySeverity[alert.Severity]++
		}
	}

	return map[string]interface{}{
		"total_alerts":    len(m.alerts),
		"active_alerts":   active,
		"critical_alerts": bySeverity[SeverityCritical],
		"high_alerts":     bySeverity[SeverityHigh],
		"medium_alerts":   bySeverity[SeverityMedium],
		"low_alerts":      bySeverity[SeverityLow],
	}
}

// Cleanup drops resolved alerts older than the retention period from the
// in-memory table. Persisted history is unaffected.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.config.Retention)
	removed := 0
	for fp, alert := range m.alerts {
		if alert.Resolved && alert.Timestamp.Before(cutoff) {
			delete(m.alerts, fp)
			removed++
		}
	}

	if removed > 0 {
		m.logger.WithField("removed_count", removed).Info("Cleaned up old alerts")
	}
}

// evictOldestResolvedLocked removes the oldest resolved alert to make room.
// Caller holds the write lock.
func (m *Manager) evictOldestResolvedLocked() {
	var oldest *Alert
	var oldestFP string

	for fp, alert := range m.alerts {
		if alert.Resolved && (oldest == nil || alert.Timestamp.Before(oldest.Timestamp)) {
			oldest = alert
			oldestFP = fp
		}
	}

	if oldest != nil {
		delete(m.alerts, oldestFP)
		m.logger.WithField("alert_id", oldest.ID).Debug("Evicted oldest resolved alert")
	}
}

func (m *Manager) persist(alert *Alert) {
	if m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		m.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to persist alert")
	}
}
