package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/sampler"
)

// AlertRule declares a threshold condition over one snapshot metric.
type AlertRule struct {
	ID        string          `yaml:"id" json:"id"`
	Name      string          `yaml:"name" json:"name"`
	Metric    string          `yaml:"metric" json:"metric"`
	Operator  string          `yaml:"operator" json:"operator"`
	Threshold float64         `yaml:"threshold" json:"threshold"`
	Severity  alerts.Severity `yaml:"severity" json:"severity"`
	Enabled   bool            `yaml:"enabled" json:"enabled"`
	Cooldown  string          `yaml:"cooldown" json:"cooldown"`

	// Per-rule notification routing hints, attached to alert metadata.
	NotifyLog     bool `yaml:"notify_log" json:"notify_log"`
	NotifyWebhook bool `yaml:"notify_webhook" json:"notify_webhook"`
	NotifyEmail   bool `yaml:"notify_email" json:"notify_email"`
	NotifyChat    bool `yaml:"notify_chat" json:"notify_chat"`
}

// CooldownDuration parses the rule's cooldown, defaulting to 5 minutes.
func (r *AlertRule) CooldownDuration() time.Duration {
	if r.Cooldown == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(r.Cooldown)
	if err != nil || d < 0 {
		return 5 * time.Minute
	}
	return d
}

// Validate reports whether the rule is well formed.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule missing id")
	}
	if r.Metric == "" {
		return fmt.Errorf("rule %s missing metric", r.ID)
	}
	switch r.Operator {
	case ">", ">=", "<", "<=", "==":
	default:
		return fmt.Errorf("rule %s has unknown operator %q", r.ID, r.Operator)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s has invalid severity %q", r.ID, r.Severity)
	}
	if r.Cooldown != "" {
		if _, err := time.ParseDuration(r.Cooldown); err != nil {
			return fmt.Errorf("rule %s has invalid cooldown: %w", r.ID, err)
		}
	}
	return nil
}

// Clear reports a rule whose condition no longer holds, so the lifecycle
// manager can resolve the matching alert.
type Clear struct {
	RuleID string
	Value  float64
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Triggers []alerts.Candidate
	Clears   []Clear
}

// Engine evaluates rules against snapshots. It is stateful only in the
// per-rule last-fired table that enforces cooldowns; that table is keyed
// by rule id and tracks firing independently of alert lifecycle state.
type Engine struct {
	logger *logrus.Logger

	mu        sync.Mutex
	rules     []AlertRule
	lastFired map[string]time.Time
	breaching map[string]bool
	now       func() time.Time
}

// NewEngine creates a rule engine with the given rule set. Invalid and
// disabled rules are kept in the set but never fire.
func NewEngine(rules []AlertRule, logger *logrus.Logger) *Engine {
	return &Engine{
		logger:    logger,
		rules:     rules,
		lastFired: make(map[string]time.Time),
		breaching: make(map[string]bool),
		now:       time.Now,
	}
}

// SetRules replaces the rule set. Cooldown and breach state for rule ids
// that survive the swap is preserved.
func (e *Engine) SetRules(rules []AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.ID] = true
	}
	for id := range e.lastFired {
		if !keep[id] {
			delete(e.lastFired, id)
		}
	}
	for id := range e.breaching {
		if !keep[id] {
			delete(e.breaching, id)
		}
	}
	e.rules = rules
}

// Rules returns a copy of the current rule set.
func (e *Engine) Rules() []AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AlertRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate checks every enabled rule against the snapshot. A breached rule
// inside its cooldown window produces no trigger; a previously breaching
// rule whose condition cleared produces a clear intent.
func (e *Engine) Evaluate(snap *sampler.Snapshot) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result Result
	now := e.now()

	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Enabled {
			continue
		}
		if err := rule.Validate(); err != nil {
			e.logger.WithError(err).WithField("rule_id", rule.ID).Debug("Skipping invalid rule")
			continue
		}

		value, ok := snap.Metric(rule.Metric)
		if !ok {
			e.logger.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"metric":  rule.Metric,
			}).Debug("Metric not present in snapshot, skipping rule")
			continue
		}

		breached := compare(value, rule.Operator, rule.Threshold)

		if !breached {
			if e.breaching[rule.ID] {
				e.breaching[rule.ID] = false
				result.Clears = append(result.Clears, Clear{RuleID: rule.ID, Value: value})
			}
			continue
		}

		e.breaching[rule.ID] = true

		if last, ok := e.lastFired[rule.ID]; ok && now.Sub(last) < rule.CooldownDuration() {
			e.logger.WithFields(logrus.Fields{
				"rule_id":    rule.ID,
				"last_fired": last,
			}).Debug("Rule in cooldown, suppressing trigger")
			continue
		}

		e.lastFired[rule.ID] = now
		result.Triggers = append(result.Triggers, e.candidate(rule, value))
	}

	return result
}

func (e *Engine) candidate(rule *AlertRule, value float64) alerts.Candidate {
	title := rule.Name
	if title == "" {
		title = rule.ID
	}

	return alerts.Candidate{
		RuleID:    rule.ID,
		Type:      rule.Metric,
		Severity:  rule.Severity,
		Title:     title,
		Message:   fmt.Sprintf("%s is %.2f (threshold %s %.2f)", rule.Metric, value, rule.Operator, rule.Threshold),
		Threshold: rule.Threshold,
		Value:     value,
		Metadata: map[string]interface{}{
			"operator":       rule.Operator,
			"notify_log":     rule.NotifyLog,
			"notify_webhook": rule.NotifyWebhook,
			"notify_email":   rule.NotifyEmail,
			"notify_chat":    rule.NotifyChat,
		},
	}
}

func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	default:
		return false
	}
}
