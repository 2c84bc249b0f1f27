package incidents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Execution status values. Skipped and rate_limited record gating
// decisions; only completed and failed reflect an actual attempt.
const (
	ExecutionRunning     = "running"
	ExecutionCompleted   = "completed"
	ExecutionFailed      = "failed"
	ExecutionSkipped     = "skipped"
	ExecutionRateLimited = "rate_limited"
)

// ActionExecution journals one invocation (or gating rejection) of a
// response action. Appended per attempt, never updated after finishing.
type ActionExecution struct {
	ID         string     `json:"id" db:"id"`
	ActionID   string     `json:"action_id" db:"action_id"`
	AlertID    string     `json:"alert_id" db:"alert_id"`
	PlaybookID string     `json:"playbook_id" db:"playbook_id"`
	IncidentID string     `json:"incident_id" db:"incident_id"`
	Status     string     `json:"status" db:"status"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Output     string     `json:"output,omitempty" db:"output"`
	Error      string     `json:"error,omitempty" db:"error"`

	// Verification outcome, recorded as a soft signal. Nil when the
	// action declares no verification or the execution never ran.
	Verified      *bool  `json:"verified,omitempty" db:"verified"`
	VerifyDetails string `json:"verify_details,omitempty" db:"verify_details"`
}

func newExecution(actionID, alertID, playbookID, incidentID string) *ActionExecution {
	return &ActionExecution{
		ID:         uuid.New().String(),
		ActionID:   actionID,
		AlertID:    alertID,
		PlaybookID: playbookID,
		IncidentID: incidentID,
		Status:     ExecutionRunning,
		StartedAt:  time.Now(),
	}
}

func (e *ActionExecution) finish(status, output, errMsg string) {
	now := time.Now()
	e.Status = status
	e.Output = output
	e.Error = errMsg
	e.FinishedAt = &now
}

// Duration returns how long the execution ran.
func (e *ActionExecution) Duration() time.Duration {
	if e.FinishedAt == nil {
		return time.Since(e.StartedAt)
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store persists incidents and execution journal entries. Best effort.
type Store interface {
	SaveIncident(ctx context.Context, incident *Incident) error
	SaveExecution(ctx context.Context, execution *ActionExecution) error
}
