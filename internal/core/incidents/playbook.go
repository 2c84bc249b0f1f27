package incidents

import (
	"fmt"
	"strings"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

// Priority orders playbooks, P0 highest.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

var priorityRank = map[Priority]int{
	PriorityP0: 0,
	PriorityP1: 1,
	PriorityP2: 2,
	PriorityP3: 3,
	PriorityP4: 4,
}

// Rank returns the ordinal of the priority, P0 lowest (best). Unknown
// priorities sort last.
func (p Priority) Rank() int {
	rank, ok := priorityRank[p]
	if !ok {
		return len(priorityRank)
	}
	return rank
}

// ActionType classifies what a response action does.
type ActionType string

const (
	ActionRestartService ActionType = "restart_service"
	ActionScaleUp        ActionType = "scale_up"
	ActionClearCache     ActionType = "clear_cache"
	ActionFailover       ActionType = "failover"
	ActionNotify         ActionType = "notify"
	ActionInvestigate    ActionType = "investigate"
)

// Command runs a process on the host.
type Command struct {
	Cmd        string   `yaml:"cmd" json:"cmd"`
	Args       []string `yaml:"args" json:"args"`
	WorkingDir string   `yaml:"working_dir" json:"working_dir"`
}

// HTTPCall invokes an outbound API.
type HTTPCall struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers" json:"headers"`
	Body    string            `yaml:"body" json:"body"`
}

// Script runs an executable script file.
type Script struct {
	Path string   `yaml:"path" json:"path"`
	Args []string `yaml:"args" json:"args"`
}

// Implementation is a tagged variant: exactly one of Command, HTTPCall,
// or Script is populated.
type Implementation struct {
	Command  *Command  `yaml:"command,omitempty" json:"command,omitempty"`
	HTTPCall *HTTPCall `yaml:"http_call,omitempty" json:"http_call,omitempty"`
	Script   *Script   `yaml:"script,omitempty" json:"script,omitempty"`
}

// Kind names the populated variant.
func (im *Implementation) Kind() string {
	switch {
	case im.Command != nil:
		return "command"
	case im.HTTPCall != nil:
		return "http_call"
	case im.Script != nil:
		return "script"
	default:
		return "none"
	}
}

// Validate enforces the exactly-one-variant rule.
func (im *Implementation) Validate() error {
	count := 0
	if im.Command != nil {
		count++
	}
	if im.HTTPCall != nil {
		count++
	}
	if im.Script != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("implementation must declare exactly one of command, http_call, script (got %d)", count)
	}
	return nil
}

// Verification describes a post-execution check: either an HTTP health
// probe or a metric comparison against the latest snapshot.
type Verification struct {
	Type           string  `yaml:"type" json:"type"` // "http" or "metric"
	URL            string  `yaml:"url" json:"url"`
	Metric         string  `yaml:"metric" json:"metric"`
	Operator       string  `yaml:"operator" json:"operator"`
	Threshold      float64 `yaml:"threshold" json:"threshold"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RateLimit bounds how often an action may run.
type RateLimit struct {
	MaxExecutionsPerHour int `yaml:"max_executions_per_hour" json:"max_executions_per_hour"`
	CooldownMinutes      int `yaml:"cooldown_minutes" json:"cooldown_minutes"`
}

// Impact is an advisory hint about what running the action costs.
type Impact struct {
	Disruption        string `yaml:"disruption" json:"disruption"`
	EstimatedDuration string `yaml:"estimated_duration" json:"estimated_duration"`
}

// ResponseAction is a reusable remediation step referenced by playbooks.
type ResponseAction struct {
	ID             string            `yaml:"id" json:"id"`
	Name           string            `yaml:"name" json:"name"`
	Type           ActionType        `yaml:"type" json:"type"`
	Automated      bool              `yaml:"automated" json:"automated"`
	Severities     []alerts.Severity `yaml:"severities" json:"severities"`
	Categories     []string          `yaml:"categories" json:"categories"`
	RateLimit      RateLimit         `yaml:"rate_limit" json:"rate_limit"`
	Implementation Implementation    `yaml:"implementation" json:"implementation"`
	Rollback       *Implementation   `yaml:"rollback,omitempty" json:"rollback,omitempty"`
	Verification   *Verification     `yaml:"verification,omitempty" json:"verification,omitempty"`
	Risks          []string          `yaml:"risks" json:"risks"`
	Impact         Impact            `yaml:"impact" json:"impact"`
}

// AppliesTo checks the action's applicability conditions against the
// triggering alert's severity and the playbook's category. Empty
// condition lists match everything.
func (a *ResponseAction) AppliesTo(severity alerts.Severity, category string) bool {
	if len(a.Severities) > 0 {
		found := false
		for _, s := range a.Severities {
			if s == severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(a.Categories) > 0 && category != "" {
		found := false
		for _, c := range a.Categories {
			if c == category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Validate reports whether the action is well formed.
func (a *ResponseAction) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action missing id")
	}
	if err := a.Implementation.Validate(); err != nil {
		return fmt.Errorf("action %s: %w", a.ID, err)
	}
	if a.Rollback != nil {
		if err := a.Rollback.Validate(); err != nil {
			return fmt.Errorf("action %s rollback: %w", a.ID, err)
		}
	}
	return nil
}

// EscalationPolicy is a playbook's declared escalation path when the
// automated response does not clear the incident.
type EscalationPolicy struct {
	TimeoutMinutes int      `yaml:"timeout_minutes" json:"timeout_minutes"`
	EscalateTo     string   `yaml:"escalate_to" json:"escalate_to"`
	Channels       []string `yaml:"channels" json:"channels"`
}

// Playbook binds a trigger predicate to an ordered list of response
// actions.
type Playbook struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Category     string            `yaml:"category" json:"category"`
	TriggerTypes []string          `yaml:"trigger_types" json:"trigger_types"`
	Conditions   []string          `yaml:"conditions" json:"conditions"`
	Severities   []alerts.Severity `yaml:"severities" json:"severities"`
	Priority     Priority          `yaml:"priority" json:"priority"`
	ActionIDs    []string          `yaml:"action_ids" json:"action_ids"`
	Escalation   *EscalationPolicy `yaml:"escalation,omitempty" json:"escalation,omitempty"`
	Enabled      bool              `yaml:"enabled" json:"enabled"`
}

// Matches checks the playbook's trigger predicate against an alert: any
// trigger substring must appear in the alert type, and the severity must
// be in the playbook's set (empty set matches all).
func (p *Playbook) Matches(alert *alerts.Alert) bool {
	if !p.Enabled {
		return false
	}

	if len(p.Severities) > 0 {
		found := false
		for _, s := range p.Severities {
			if s == alert.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(p.TriggerTypes) > 0 {
		found := false
		for _, sub := range p.TriggerTypes {
			if sub != "" && strings.Contains(alert.Type, sub) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
