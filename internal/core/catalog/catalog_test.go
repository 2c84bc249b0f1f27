package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

const validDefinitions = `
rules:
  - id: cpu-high
    name: High CPU usage
    metric: system.cpu_percent
    operator: ">"
    threshold: 80
    severity: high
    enabled: true
    cooldown: 5m
    notify_webhook: true

channels:
  - name: ops-webhook
    kind: webhook
    endpoint: http://hooks.internal/ops
    enabled: true
    severities: [high, critical]
    notify_resolution: true
    max_per_hour: 100
    burst_limit: 10
    max_attempts: 3
    backoff_seconds: [10, 30, 60]

escalation_rules:
  - id: stale-high
    severities: [high]
    unresolved_minutes: 30
    increase_severity: true
    create_incident: true

actions:
  - id: restart-db
    name: Restart database
    type: restart_service
    automated: true
    severities: [critical]
    rate_limit:
      max_executions_per_hour: 3
      cooldown_minutes: 15
    implementation:
      command:
        cmd: systemctl
        args: [restart, postgresql]
    verification:
      type: http
      url: http://db.internal/health
      timeout_seconds: 10

playbooks:
  - id: db-recovery
    name: Database recovery
    category: availability
    trigger_types: [database]
    severities: [critical]
    priority: P1
    action_ids: [restart-db]
    enabled: true
`

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidDefinitions(t *testing.T) {
	defs, err := Load(writeDefinitions(t, validDefinitions))
	require.NoError(t, err)

	require.Len(t, defs.Rules, 1)
	assert.Equal(t, "cpu-high", defs.Rules[0].ID)
	assert.Equal(t, alerts.SeverityHigh, defs.Rules[0].Severity)
	assert.True(t, defs.Rules[0].NotifyWebhook)

	require.Len(t, defs.Channels, 1)
	assert.Equal(t, []int{10, 30, 60}, defs.Channels[0].BackoffSeconds)

	require.Len(t, defs.EscalationRules, 1)
	assert.Equal(t, 30, defs.EscalationRules[0].UnresolvedMinutes)

	require.Len(t, defs.Actions, 1)
	action := defs.Actions[0]
	assert.Equal(t, "command", action.Implementation.Kind())
	assert.Equal(t, 3, action.RateLimit.MaxExecutionsPerHour)
	require.NotNil(t, action.Verification)
	assert.Equal(t, 10, action.Verification.TimeoutSeconds)

	require.Len(t, defs.Playbooks, 1)
	assert.Equal(t, []string{"restart-db"}, defs.Playbooks[0].ActionIDs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/definitions.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeDefinitions(t, `
rules:
  - id: cpu-high
    metric: system.cpu_percent
    operator: ">"
    threshold: 80
    severity: high
    enabled: true
    tipo: oops
`))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownActionReference(t *testing.T) {
	_, err := Load(writeDefinitions(t, `
playbooks:
  - id: db-recovery
    priority: P1
    action_ids: [missing-action]
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestLoadRejectsTwoImplementationVariants(t *testing.T) {
	_, err := Load(writeDefinitions(t, `
actions:
  - id: broken
    automated: true
    implementation:
      command:
        cmd: restart
      script:
        path: /opt/fix.sh
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestLoadRejectsDuplicateRuleIDs(t *testing.T) {
	_, err := Load(writeDefinitions(t, `
rules:
  - id: cpu-high
    metric: system.cpu_percent
    operator: ">"
    threshold: 80
    severity: high
  - id: cpu-high
    metric: system.cpu_percent
    operator: ">"
    threshold: 90
    severity: critical
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule id")
}
