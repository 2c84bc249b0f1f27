package incidents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/metrics"
)

type memStore struct {
	mu         sync.Mutex
	incidents  []Incident
	executions []ActionExecution
}

func (m *memStore) SaveIncident(ctx context.Context, incident *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, *incident)
	return nil
}

func (m *memStore) SaveExecution(ctx context.Context, execution *ActionExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, *execution)
	return nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	fail     map[string]bool
	verified bool
}

func (f *fakeExecutor) Execute(ctx context.Context, impl *Implementation) ExecResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := ""
	if impl.Command != nil {
		name = impl.Command.Cmd
	} else if impl.HTTPCall != nil {
		name = impl.HTTPCall.URL
	} else if impl.Script != nil {
		name = impl.Script.Path
	}
	f.executed = append(f.executed, name)

	if f.fail[name] {
		return ExecResult{Output: "boom", Err: "exit status 1"}
	}
	return ExecResult{Success: true, Output: "ok"}
}

func (f *fakeExecutor) Verify(ctx context.Context, v *Verification) (bool, string) {
	return f.verified, "probe result"
}

type fakeHealth struct {
	healthy bool
}

func (f *fakeHealth) RegisterCheck(name string, check func() metrics.HealthStatus) {}

func (f *fakeHealth) GetOverallHealth() metrics.HealthReport {
	status := "unhealthy"
	if f.healthy {
		status = "healthy"
	}
	return metrics.HealthReport{Status: status, Timestamp: time.Now()}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func criticalAlert() *alerts.Alert {
	return &alerts.Alert{
		ID:        uuid.New().String(),
		Type:      "database.latency_ms",
		Severity:  alerts.SeverityCritical,
		Title:     "Database degraded",
		Message:   "database.latency_ms is 900.00",
		Timestamp: time.Now(),
	}
}

func commandAction(id string, automated bool) ResponseAction {
	return ResponseAction{
		ID:        id,
		Name:      id,
		Type:      ActionRestartService,
		Automated: automated,
		Implementation: Implementation{
			Command: &Command{Cmd: id},
		},
	}
}

func dbPlaybook(actionIDs ...string) Playbook {
	return Playbook{
		ID:           "db-recovery",
		Name:         "Database recovery",
		Category:     "availability",
		TriggerTypes: []string{"database"},
		Severities:   []alerts.Severity{alerts.SeverityCritical},
		Priority:     PriorityP1,
		ActionIDs:    actionIDs,
		Enabled:      true,
	}
}

func newTestManager(playbooks []Playbook, actions []ResponseAction) (*Manager, *memStore, *fakeExecutor) {
	store := &memStore{}
	executor := &fakeExecutor{fail: make(map[string]bool)}
	m := NewManager(ManagerConfig{
		Enabled:             true,
		ExecutionTimeout:    time.Second,
		HealthyResolveAfter: 5 * time.Minute,
		IdleResolveAfter:    10 * time.Minute,
	}, playbooks, actions, store, executor, nil, testLogger())
	return m, store, executor
}

func executionStatuses(store *memStore) map[string][]string {
	store.mu.Lock()
	defer store.mu.Unlock()

	out := make(map[string][]string)
	for _, e := range store.executions {
		out[e.ActionID] = append(out[e.ActionID], e.Status)
	}
	return out
}

func TestCriticalAlertOpensIncidentAndRunsPlaybook(t *testing.T) {
	actions := []ResponseAction{
		commandAction("restart-db", true),
		commandAction("clear-cache", true),
	}
	m, store, executor := newTestManager([]Playbook{dbPlaybook("restart-db", "clear-cache")}, actions)

	m.HandleAlert(criticalAlert())
	m.Stop()

	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, StatusOpen, active[0].Status)
	assert.Equal(t, alerts.SeverityCritical, active[0].Severity)

	// Actions executed in declared order.
	executor.mu.Lock()
	assert.Equal(t, []string{"restart-db", "clear-cache"}, executor.executed)
	executor.mu.Unlock()

	statuses := executionStatuses(store)
	assert.Contains(t, statuses["restart-db"], ExecutionCompleted)
	assert.Contains(t, statuses["clear-cache"], ExecutionCompleted)
}

func TestHighAlertDoesNotOpenIncident(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)

	high := criticalAlert()
	high.Severity = alerts.SeverityHigh
	m.HandleAlert(high)

	assert.Empty(t, m.Active())
}

func TestOneActiveIncidentPerAlertChain(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)

	alert := criticalAlert()
	m.HandleAlert(alert)
	m.RequestIncident(alert, "escalation request for the same alert")
	m.Stop()

	active := m.Active()
	require.Len(t, active, 1)

	// The repeat request shows up on the timeline, not as a new incident.
	found := false
	for _, entry := range active[0].Timeline {
		if entry.Action == "incident_request" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestManualActionIsSkippedNotExecuted(t *testing.T) {
	actions := []ResponseAction{
		commandAction("page-oncall", false),
		commandAction("restart-db", true),
	}
	m, store, executor := newTestManager([]Playbook{dbPlaybook("page-oncall", "restart-db")}, actions)

	m.HandleAlert(criticalAlert())
	m.Stop()

	executor.mu.Lock()
	assert.Equal(t, []string{"restart-db"}, executor.executed)
	executor.mu.Unlock()

	statuses := executionStatuses(store)
	assert.Contains(t, statuses["page-oncall"], ExecutionSkipped)
}

func TestFailedActionDoesNotHaltPlaybook(t *testing.T) {
	actions := []ResponseAction{
		commandAction("restart-db", true),
		commandAction("clear-cache", true),
	}
	m, store, executor := newTestManager([]Playbook{dbPlaybook("restart-db", "clear-cache")}, actions)
	executor.fail["restart-db"] = true

	m.HandleAlert(criticalAlert())
	m.Stop()

	executor.mu.Lock()
	assert.Equal(t, []string{"restart-db", "clear-cache"}, executor.executed)
	executor.mu.Unlock()

	statuses := executionStatuses(store)
	assert.Contains(t, statuses["restart-db"], ExecutionFailed)
	assert.Contains(t, statuses["clear-cache"], ExecutionCompleted)
}

func TestExhaustedActionBudgetRecordsRateLimited(t *testing.T) {
	action := commandAction("restart-db", true)
	action.RateLimit = RateLimit{MaxExecutionsPerHour: 3}

	m, store, executor := newTestManager([]Playbook{dbPlaybook("restart-db")}, []ResponseAction{action})

	// Burn the hourly budget.
	for i := 0; i < 3; i++ {
		ok, _ := m.limiter.Allow("restart-db", action.RateLimit)
		require.True(t, ok)
	}

	m.HandleAlert(criticalAlert())
	m.Stop()

	executor.mu.Lock()
	assert.Empty(t, executor.executed, "rate-limited action must not execute")
	executor.mu.Unlock()

	statuses := executionStatuses(store)
	assert.Contains(t, statuses["restart-db"], ExecutionRateLimited)
}

func TestActionApplicabilitySkip(t *testing.T) {
	action := commandAction("failover", true)
	action.Categories = []string{"performance"}

	m, store, executor := newTestManager([]Playbook{dbPlaybook("failover")}, []ResponseAction{action})

	m.HandleAlert(criticalAlert())
	m.Stop()

	executor.mu.Lock()
	assert.Empty(t, executor.executed)
	executor.mu.Unlock()

	statuses := executionStatuses(store)
	assert.Contains(t, statuses["failover"], ExecutionSkipped)
}

func TestVerificationRecordedAsSoftSignal(t *testing.T) {
	action := commandAction("restart-db", true)
	action.Verification = &Verification{Type: "http", URL: "http://db/health", TimeoutSeconds: 5}

	m, store, executor := newTestManager([]Playbook{dbPlaybook("restart-db")}, []ResponseAction{action})
	executor.verified = false

	m.HandleAlert(criticalAlert())
	m.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()

	var final *ActionExecution
	for i := range store.executions {
		e := store.executions[i]
		if e.ActionID == "restart-db" && e.Status == ExecutionCompleted {
			final = &e
		}
	}
	require.NotNil(t, final)
	require.NotNil(t, final.Verified)
	assert.False(t, *final.Verified, "failed verification recorded, execution still completed")
}

func TestHighestPriorityPlaybookWins(t *testing.T) {
	low := dbPlaybook("clear-cache")
	low.ID = "generic"
	low.Priority = PriorityP3

	high := dbPlaybook("restart-db")
	high.ID = "targeted"
	high.Priority = PriorityP0

	actions := []ResponseAction{
		commandAction("restart-db", true),
		commandAction("clear-cache", true),
	}
	m, _, executor := newTestManager([]Playbook{low, high}, actions)

	m.HandleAlert(criticalAlert())
	m.Stop()

	executor.mu.Lock()
	defer executor.mu.Unlock()
	assert.Equal(t, []string{"restart-db"}, executor.executed)
}

func TestManualResolve(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)

	m.HandleAlert(criticalAlert())
	incident := m.Active()[0]

	require.NoError(t, m.Resolve(incident.ID, ResolutionManual, "operator fixed it"))

	resolved, ok := m.Get(incident.ID)
	require.True(t, ok)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Equal(t, ResolutionManual, resolved.ResolutionType)
	require.NotNil(t, resolved.ResolvedAt)

	// Resolving again is a no-op.
	require.NoError(t, m.Resolve(incident.ID, ResolutionManual, "again"))
	assert.Error(t, m.Resolve("missing", ResolutionManual, ""))
	assert.Empty(t, m.Active())
}

func TestAutoResolutionWhenHealthy(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)
	health := &fakeHealth{healthy: true}
	m.SetHealthChecker(health)

	m.HandleAlert(criticalAlert())
	incident := m.Active()[0]

	// Young incident stays open even when healthy.
	m.CheckResolution()
	assert.Len(t, m.Active(), 1)

	// Backdate past the healthy-resolve threshold.
	m.mu.Lock()
	m.incidents[incident.ID].CreatedAt = time.Now().Add(-6 * time.Minute)
	m.incidents[incident.ID].lastActivity = time.Now()
	m.mu.Unlock()

	m.CheckResolution()

	resolved, _ := m.Get(incident.ID)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Equal(t, ResolutionAutomatic, resolved.ResolutionType)
}

func TestAutoResolutionWhenIdle(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)
	m.SetHealthChecker(&fakeHealth{healthy: false})

	m.HandleAlert(criticalAlert())
	incident := m.Active()[0]

	m.mu.Lock()
	m.incidents[incident.ID].lastActivity = time.Now().Add(-11 * time.Minute)
	m.mu.Unlock()

	m.CheckResolution()

	resolved, _ := m.Get(incident.ID)
	assert.Equal(t, StatusResolved, resolved.Status)
	assert.Equal(t, ResolutionAutomatic, resolved.ResolutionType)
}

func TestUnhealthyActiveIncidentStaysOpen(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)
	m.SetHealthChecker(&fakeHealth{healthy: false})

	m.HandleAlert(criticalAlert())
	incident := m.Active()[0]

	m.mu.Lock()
	m.incidents[incident.ID].CreatedAt = time.Now().Add(-8 * time.Minute)
	m.incidents[incident.ID].lastActivity = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	m.CheckResolution()
	assert.Len(t, m.Active(), 1)
}

func TestHandleAlertResolvedAppendsTimeline(t *testing.T) {
	m, _, _ := newTestManager(nil, nil)

	alert := criticalAlert()
	m.HandleAlert(alert)
	m.HandleAlertResolved(alert)

	incident := m.Active()[0]
	found := false
	for _, entry := range incident.Timeline {
		if entry.Action == "alert_resolved" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDisabledManagerIgnoresAlerts(t *testing.T) {
	m := NewManager(ManagerConfig{Enabled: false}, nil, nil, nil, &fakeExecutor{}, nil, testLogger())
	m.HandleAlert(criticalAlert())
	assert.Empty(t, m.All())
}
