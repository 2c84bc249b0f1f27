package rules

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/sampler"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func cpuRule(threshold float64) AlertRule {
	return AlertRule{
		ID:        "cpu-high",
		Name:      "High CPU usage",
		Metric:    "system.cpu_percent",
		Operator:  ">",
		Threshold: threshold,
		Severity:  alerts.SeverityHigh,
		Enabled:   true,
		Cooldown:  "5m",
	}
}

func snapshotWithCPU(percent float64) *sampler.Snapshot {
	return &sampler.Snapshot{
		Timestamp:  time.Now(),
		CPUPercent: percent,
		DBTier:     sampler.DBTierOK,
	}
}

func TestEngineOperators(t *testing.T) {
	tests := []struct {
		name      string
		operator  string
		threshold float64
		value     float64
		breached  bool
	}{
		{"greater than breached", ">", 80, 85, true},
		{"greater than boundary", ">", 80, 80, false},
		{"greater or equal boundary", ">=", 80, 80, true},
		{"less than breached", "<", 1, 0, true},
		{"less than not breached", "<", 1, 1, false},
		{"less or equal boundary", "<=", 1, 1, true},
		{"equal breached", "==", 0, 0, true},
		{"equal not breached", "==", 0, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := cpuRule(tt.threshold)
			rule.Operator = tt.operator
			engine := NewEngine([]AlertRule{rule}, testLogger())

			result := engine.Evaluate(snapshotWithCPU(tt.value))
			if tt.breached {
				require.Len(t, result.Triggers, 1)
				assert.Equal(t, "cpu-high", result.Triggers[0].RuleID)
				assert.Equal(t, tt.value, result.Triggers[0].Value)
			} else {
				assert.Empty(t, result.Triggers)
			}
		})
	}
}

func TestEngineCooldownSuppressesRefire(t *testing.T) {
	engine := NewEngine([]AlertRule{cpuRule(80)}, testLogger())

	base := time.Now()
	current := base
	engine.now = func() time.Time { return current }

	// t=0: condition breached, rule fires.
	result := engine.Evaluate(snapshotWithCPU(85))
	require.Len(t, result.Triggers, 1)

	// t=1m: still breached, cooldown active, no trigger.
	current = base.Add(time.Minute)
	result = engine.Evaluate(snapshotWithCPU(87))
	assert.Empty(t, result.Triggers)
	assert.Empty(t, result.Clears)

	// t=6m: cooldown expired, rule fires again.
	current = base.Add(6 * time.Minute)
	result = engine.Evaluate(snapshotWithCPU(90))
	require.Len(t, result.Triggers, 1)
}

func TestEngineCooldownIndependentOfClear(t *testing.T) {
	engine := NewEngine([]AlertRule{cpuRule(80)}, testLogger())

	base := time.Now()
	current := base
	engine.now = func() time.Time { return current }

	result := engine.Evaluate(snapshotWithCPU(85))
	require.Len(t, result.Triggers, 1)

	// Condition clears, a clear intent is emitted.
	current = base.Add(time.Minute)
	result = engine.Evaluate(snapshotWithCPU(50))
	assert.Empty(t, result.Triggers)
	require.Len(t, result.Clears, 1)
	assert.Equal(t, "cpu-high", result.Clears[0].RuleID)

	// Breach returns inside the cooldown window: still suppressed, the
	// cooldown runs from last fire, not from resolution.
	current = base.Add(2 * time.Minute)
	result = engine.Evaluate(snapshotWithCPU(85))
	assert.Empty(t, result.Triggers)
}

func TestEngineClearOnlyAfterBreach(t *testing.T) {
	engine := NewEngine([]AlertRule{cpuRule(80)}, testLogger())

	result := engine.Evaluate(snapshotWithCPU(50))
	assert.Empty(t, result.Triggers)
	assert.Empty(t, result.Clears)

	// Clears are emitted once per breach episode, not on every calm tick.
	require.Len(t, engine.Evaluate(snapshotWithCPU(85)).Triggers, 1)
	require.Len(t, engine.Evaluate(snapshotWithCPU(40)).Clears, 1)
	assert.Empty(t, engine.Evaluate(snapshotWithCPU(40)).Clears)
}

func TestEngineSkipsDisabledAndInvalidRules(t *testing.T) {
	disabled := cpuRule(80)
	disabled.ID = "disabled"
	disabled.Enabled = false

	invalid := cpuRule(80)
	invalid.ID = "invalid-op"
	invalid.Operator = "~"

	engine := NewEngine([]AlertRule{disabled, invalid}, testLogger())

	result := engine.Evaluate(snapshotWithCPU(99))
	assert.Empty(t, result.Triggers)
}

func TestEngineSkipsMissingMetric(t *testing.T) {
	rule := cpuRule(80)
	rule.Metric = "services.cache.latency_ms"

	engine := NewEngine([]AlertRule{rule}, testLogger())

	// Snapshot has no "cache" service, so the rule neither fires nor clears.
	result := engine.Evaluate(snapshotWithCPU(99))
	assert.Empty(t, result.Triggers)
	assert.Empty(t, result.Clears)
}

func TestEngineSetRulesPreservesCooldownState(t *testing.T) {
	engine := NewEngine([]AlertRule{cpuRule(80)}, testLogger())

	base := time.Now()
	current := base
	engine.now = func() time.Time { return current }

	require.Len(t, engine.Evaluate(snapshotWithCPU(85)).Triggers, 1)

	// Same rule id survives the reload, so the cooldown carries over.
	engine.SetRules([]AlertRule{cpuRule(75)})
	current = base.Add(time.Minute)
	assert.Empty(t, engine.Evaluate(snapshotWithCPU(85)).Triggers)

	// A brand new rule id starts fresh.
	fresh := cpuRule(80)
	fresh.ID = "cpu-high-v2"
	engine.SetRules([]AlertRule{fresh})
	require.Len(t, engine.Evaluate(snapshotWithCPU(85)).Triggers, 1)
}

func TestEngineCandidateFields(t *testing.T) {
	rule := cpuRule(80)
	rule.NotifyWebhook = true
	rule.NotifyChat = true
	engine := NewEngine([]AlertRule{rule}, testLogger())

	result := engine.Evaluate(snapshotWithCPU(91.5))
	require.Len(t, result.Triggers, 1)

	c := result.Triggers[0]
	assert.Equal(t, "cpu-high", c.RuleID)
	assert.Equal(t, "system.cpu_percent", c.Type)
	assert.Equal(t, alerts.SeverityHigh, c.Severity)
	assert.Equal(t, "High CPU usage", c.Title)
	assert.Equal(t, 80.0, c.Threshold)
	assert.Equal(t, 91.5, c.Value)
	assert.Equal(t, true, c.Metadata["notify_webhook"])
	assert.Equal(t, false, c.Metadata["notify_email"])
}
