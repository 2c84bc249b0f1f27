package incidents

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

// Incident status values. Automation only drives open -> resolved;
// investigating and cancelled are operator-set.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusCancelled     Status = "cancelled"
)

// ResolutionType records who closed the incident.
type ResolutionType string

const (
	ResolutionAutomatic ResolutionType = "automatic"
	ResolutionManual    ResolutionType = "manual"
)

// TimelineEntry is one event in an incident's ordered history.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// Incident groups one or more related alerts with the response taken for
// them. Owned exclusively by the incident manager.
type Incident struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Severity       alerts.Severity `json:"severity"`
	Status         Status          `json:"status"`
	AlertIDs       []string        `json:"alert_ids"`
	Assignee       string          `json:"assignee,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Timeline       []TimelineEntry `json:"timeline"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	ResolutionType ResolutionType  `json:"resolution_type,omitempty"`

	// lastActivity tracks the most recent response-action event, feeding
	// the idle auto-resolution heuristic.
	lastActivity time.Time
}

func newIncident(alert *alerts.Alert, reason string) *Incident {
	now := time.Now()
	inc := &Incident{
		ID:          uuid.New().String(),
		Title:       alert.Title,
		Description: alert.Message,
		Severity:    alert.Severity,
		Status:      StatusOpen,
		AlertIDs:    []string{alert.ID},
		Tags:        []string{alert.Type},
		CreatedAt:   now,
		UpdatedAt:   now,

		lastActivity: now,
	}
	inc.appendTimeline("incident_opened", reason)
	return inc
}

func (i *Incident) appendTimeline(action, details string) {
	now := time.Now()
	i.Timeline = append(i.Timeline, TimelineEntry{
		Timestamp: now,
		Action:    action,
		Details:   details,
	})
	i.UpdatedAt = now
}

func (i *Incident) hasAlert(alertID string) bool {
	for _, id := range i.AlertIDs {
		if id == alertID {
			return true
		}
	}
	return false
}

// Age returns how long the incident has been open.
func (i *Incident) Age() time.Duration {
	if i.ResolvedAt != nil {
		return i.ResolvedAt.Sub(i.CreatedAt)
	}
	return time.Since(i.CreatedAt)
}

func (i *Incident) active() bool {
	return i.Status == StatusOpen || i.Status == StatusInvestigating
}

// clone returns a copy safe to hand out past the manager's lock.
func (i *Incident) clone() *Incident {
	cp := *i
	cp.AlertIDs = append([]string(nil), i.AlertIDs...)
	cp.Tags = append([]string(nil), i.Tags...)
	cp.Timeline = append([]TimelineEntry(nil), i.Timeline...)
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// AlertIDsJSON renders the alert id list for persistence.
func (i *Incident) AlertIDsJSON() string {
	data, err := json.Marshal(i.AlertIDs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// TimelineJSON renders the timeline for persistence.
func (i *Incident) TimelineJSON() string {
	data, err := json.Marshal(i.Timeline)
	if err != nil {
		return "[]"
	}
	return string(data)
}
