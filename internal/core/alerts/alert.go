package alerts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity level of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity on the low..critical
// scale. Unknown severities rank below low.
func (s Severity) Rank() int {
	rank, ok := severityRank[s]
	if !ok {
		return -1
	}
	return rank
}

// Next returns the severity one step up the scale. Critical is the ceiling.
func (s Severity) Next() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh:
		return SeverityCritical
	default:
		return SeverityCritical
	}
}

// Valid reports whether the severity is one of the known levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Alert is a stateful record of a breached condition, tracked until resolved.
type Alert struct {
	ID          string                 `json:"id"`
	Fingerprint string                 `json:"fingerprint"`
	Type        string                 `json:"type"`
	Severity    Severity               `json:"severity"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Threshold   float64                `json:"threshold"`
	Value       float64                `json:"value"`
	Timestamp   time.Time              `json:"timestamp"`
	Resolved    bool                   `json:"resolved"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Candidate is a raw trigger produced by rule evaluation, before the
// lifecycle manager decides whether it is a new alert or an update.
type Candidate struct {
	RuleID    string
	Type      string
	Severity  Severity
	Title     string
	Message   string
	Threshold float64
	Value     float64
	Metadata  map[string]interface{}
}

// newAlert materializes a candidate into a tracked alert.
func newAlert(c Candidate) *Alert {
	now := time.Now()
	meta := make(map[string]interface{}, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["rule_id"] = c.RuleID

	return &Alert{
		ID:          uuid.New().String(),
		Fingerprint: c.RuleID,
		Type:        c.Type,
		Severity:    c.Severity,
		Title:       c.Title,
		Message:     c.Message,
		Threshold:   c.Threshold,
		Value:       c.Value,
		Timestamp:   now,
		UpdatedAt:   now,
		Metadata:    meta,
	}
}

// Age returns how long the alert has been unresolved.
func (a *Alert) Age() time.Duration {
	if a.Resolved && a.ResolvedAt != nil {
		return a.ResolvedAt.Sub(a.Timestamp)
	}
	return time.Since(a.Timestamp)
}

// clone returns a copy safe to hand out past the manager's lock.
func (a *Alert) clone() *Alert {
	cp := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	cp.Metadata = make(map[string]interface{}, len(a.Metadata))
	for k, v := range a.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// MetadataJSON renders the metadata map for persistence.
func (a *Alert) MetadataJSON() string {
	if len(a.Metadata) == 0 {
		return "{}"
	}
	data, err := json.Marshal(a.Metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}
