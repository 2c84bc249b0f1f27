package incidents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

func TestImplementationValidate(t *testing.T) {
	tests := []struct {
		name    string
		impl    Implementation
		wantErr bool
	}{
		{"command only", Implementation{Command: &Command{Cmd: "systemctl"}}, false},
		{"http only", Implementation{HTTPCall: &HTTPCall{URL: "http://x"}}, false},
		{"script only", Implementation{Script: &Script{Path: "/opt/fix.sh"}}, false},
		{"empty", Implementation{}, true},
		{"two variants", Implementation{Command: &Command{Cmd: "x"}, Script: &Script{Path: "y"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.impl.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestImplementationKind(t *testing.T) {
	assert.Equal(t, "command", (&Implementation{Command: &Command{}}).Kind())
	assert.Equal(t, "http_call", (&Implementation{HTTPCall: &HTTPCall{}}).Kind())
	assert.Equal(t, "script", (&Implementation{Script: &Script{}}).Kind())
	assert.Equal(t, "none", (&Implementation{}).Kind())
}

func TestPlaybookMatches(t *testing.T) {
	playbook := Playbook{
		ID:           "db-degraded",
		Enabled:      true,
		TriggerTypes: []string{"database"},
		Severities:   []alerts.Severity{alerts.SeverityCritical},
		Priority:     PriorityP1,
	}

	dbAlert := &alerts.Alert{Type: "database.latency_ms", Severity: alerts.SeverityCritical}
	assert.True(t, playbook.Matches(dbAlert))

	cpuAlert := &alerts.Alert{Type: "system.cpu_percent", Severity: alerts.SeverityCritical}
	assert.False(t, playbook.Matches(cpuAlert))

	lowDB := &alerts.Alert{Type: "database.latency_ms", Severity: alerts.SeverityHigh}
	assert.False(t, playbook.Matches(lowDB))

	playbook.Enabled = false
	assert.False(t, playbook.Matches(dbAlert))
}

func TestPlaybookMatchesEmptyPredicates(t *testing.T) {
	playbook := Playbook{ID: "catch-all", Enabled: true}
	assert.True(t, playbook.Matches(&alerts.Alert{Type: "anything", Severity: alerts.SeverityLow}))
}

func TestResponseActionAppliesTo(t *testing.T) {
	action := ResponseAction{
		ID:         "restart-api",
		Severities: []alerts.Severity{alerts.SeverityCritical},
		Categories: []string{"availability"},
	}

	assert.True(t, action.AppliesTo(alerts.SeverityCritical, "availability"))
	assert.False(t, action.AppliesTo(alerts.SeverityHigh, "availability"))
	assert.False(t, action.AppliesTo(alerts.SeverityCritical, "performance"))

	// Empty playbook category skips the category check.
	assert.True(t, action.AppliesTo(alerts.SeverityCritical, ""))

	unconstrained := ResponseAction{ID: "log-only"}
	assert.True(t, unconstrained.AppliesTo(alerts.SeverityLow, "anything"))
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityP0.Rank(), PriorityP4.Rank())
	assert.Equal(t, 5, Priority("P9").Rank())
}
