package escalation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

// Rule describes when a lingering unresolved alert gets escalated and
// what the escalation does.
type Rule struct {
	ID                string            `yaml:"id" json:"id"`
	Name              string            `yaml:"name" json:"name"`
	Severities        []alerts.Severity `yaml:"severities" json:"severities"`
	UnresolvedMinutes int               `yaml:"unresolved_minutes" json:"unresolved_minutes"`

	// TypeContains restricts the rule to alerts whose type contains any
	// of the substrings. Empty means all types.
	TypeContains []string `yaml:"type_contains" json:"type_contains"`

	IncreaseSeverity bool     `yaml:"increase_severity" json:"increase_severity"`
	CreateIncident   bool     `yaml:"create_incident" json:"create_incident"`
	NotifyChannels   []string `yaml:"notify_channels" json:"notify_channels"`
}

// Validate reports whether the rule is well formed.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("escalation rule missing id")
	}
	if r.UnresolvedMinutes <= 0 {
		return fmt.Errorf("escalation rule %s needs unresolved_minutes > 0", r.ID)
	}
	for _, s := range r.Severities {
		if !s.Valid() {
			return fmt.Errorf("escalation rule %s has invalid severity %q", r.ID, s)
		}
	}
	return nil
}

func (r *Rule) matches(alert *alerts.Alert) bool {
	if len(r.Severities) > 0 {
		found := false
		for _, s := range r.Severities {
			if s == alert.Severity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(r.TypeContains) > 0 {
		found := false
		for _, sub := range r.TypeContains {
			if sub != "" && strings.Contains(alert.Type, sub) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return alert.Age().Minutes() >= float64(r.UnresolvedMinutes)
}

// AlertSource is the slice of the alert lifecycle manager the checker
// needs.
type AlertSource interface {
	Active() []*alerts.Alert
	Escalate(alertID string, to alerts.Severity) error
}

// IncidentRequester accepts escalation-driven incident requests.
type IncidentRequester interface {
	RequestIncident(alert *alerts.Alert, reason string)
}

// TargetedNotifier re-notifies specific channels on escalation.
type TargetedNotifier interface {
	EnqueueAlertTo(alert *alerts.Alert, channelNames []string)
}

// Checker walks the active alerts on a schedule and applies escalation
// rules. Each rule fires at most once per alert lifetime; the applied set
// is pruned when the alert leaves the active table.
type Checker struct {
	logger    *logrus.Logger
	rules     []Rule
	alerts    AlertSource
	incidents IncidentRequester
	notifier  TargetedNotifier

	mu      sync.Mutex
	applied map[string]bool // alertID|ruleID
}

// NewChecker creates an escalation checker. Invalid rules are dropped
// with a warning.
func NewChecker(rules []Rule, source AlertSource, logger *logrus.Logger) *Checker {
	valid := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			logger.WithError(err).Warn("Dropping invalid escalation rule")
			continue
		}
		valid = append(valid, r)
	}

	return &Checker{
		logger:  logger,
		rules:   valid,
		alerts:  source,
		applied: make(map[string]bool),
	}
}

// SetIncidentRequester wires the incident manager.
func (c *Checker) SetIncidentRequester(r IncidentRequester) { c.incidents = r }

// SetNotifier wires the notification dispatcher.
func (c *Checker) SetNotifier(n TargetedNotifier) { c.notifier = n }

// Check runs one escalation pass over the active alerts.
func (c *Checker) Check() {
	active := c.alerts.Active()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(active)

	for _, alert := range active {
		for i := range c.rules {
			rule := &c.rules[i]
			key := alert.ID + "|" + rule.ID

			if c.applied[key] || !rule.matches(alert) {
				continue
			}
			c.applied[key] = true
			c.apply(alert, rule)
		}
	}
}

// apply runs one rule's actions against one alert. Caller holds the lock;
// collaborator calls do not re-enter the checker.
func (c *Checker) apply(alert *alerts.Alert, rule *Rule) {
	severity := alert.Severity

	if rule.IncreaseSeverity {
		next := severity.Next()
		if next != severity {
			if err := c.alerts.Escalate(alert.ID, next); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"alert_id": alert.ID,
					"rule_id":  rule.ID,
				}).Warn("Failed to escalate alert")
			} else {
				severity = next
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"rule_id":   rule.ID,
		"severity":  severity,
		"alert_age": alert.Age().String(),
	}).Warn("Escalation rule applied")

	if rule.CreateIncident && severity == alerts.SeverityCritical && c.incidents != nil {
		escalated := *alert
		escalated.Severity = severity
		c.incidents.RequestIncident(&escalated, fmt.Sprintf("escalated by rule %s after %dm unresolved", rule.ID, rule.UnresolvedMinutes))
	}

	if len(rule.NotifyChannels) > 0 && c.notifier != nil {
		escalated := *alert
		escalated.Severity = severity
		c.notifier.EnqueueAlertTo(&escalated, rule.NotifyChannels)
	}
}

// pruneLocked drops applied entries for alerts no longer active, so a
// fresh alert on the same rule starts clean.
func (c *Checker) pruneLocked(active []*alerts.Alert) {
	activeIDs := make(map[string]bool, len(active))
	for _, a := range active {
		activeIDs[a.ID] = true
	}

	for key := range c.applied {
		alertID, _, _ := strings.Cut(key, "|")
		if !activeIDs[alertID] {
			delete(c.applied, key)
		}
	}
}
