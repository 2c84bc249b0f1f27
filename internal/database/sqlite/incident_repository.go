package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseguard/pulseguard/internal/core/incidents"
)

// IncidentRepository persists incidents and the action execution journal.
// Implements incidents.Store.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository creates a new IncidentRepository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// SaveIncident upserts the incident row. Called on every state change.
func (r *IncidentRepository) SaveIncident(ctx context.Context, incident *incidents.Incident) error {
	query := `
		INSERT INTO incidents (id, title, description, severity, status, alert_ids, assignee, timeline, created_at, updated_at, resolved_at, resolution_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			status = excluded.status,
			alert_ids = excluded.alert_ids,
			assignee = excluded.assignee,
			timeline = excluded.timeline,
			updated_at = excluded.updated_at,
			resolved_at = excluded.resolved_at,
			resolution_type = excluded.resolution_type
	`

	_, err := r.db.ExecContext(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		string(incident.Severity),
		string(incident.Status),
		incident.AlertIDsJSON(),
		incident.Assignee,
		incident.TimelineJSON(),
		incident.CreatedAt,
		incident.UpdatedAt,
		incident.ResolvedAt,
		string(incident.ResolutionType),
	)
	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// SaveExecution upserts one action execution journal entry.
func (r *IncidentRepository) SaveExecution(ctx context.Context, execution *incidents.ActionExecution) error {
	query := `
		INSERT INTO action_executions (id, action_id, alert_id, playbook_id, incident_id, status, started_at, finished_at, output, error, verified, verify_details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			output = excluded.output,
			error = excluded.error,
			verified = excluded.verified,
			verify_details = excluded.verify_details
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.ActionID,
		execution.AlertID,
		execution.PlaybookID,
		execution.IncidentID,
		execution.Status,
		execution.StartedAt,
		execution.FinishedAt,
		execution.Output,
		execution.Error,
		execution.Verified,
		execution.VerifyDetails,
	)
	if err != nil {
		return fmt.Errorf("failed to save action execution: %w", err)
	}
	return nil
}

// ResponseMetricsRow summarizes execution outcomes per action.
type ResponseMetricsRow struct {
	ActionID  string `db:"action_id"`
	Total     int    `db:"total"`
	Completed int    `db:"completed"`
	Failed    int    `db:"failed"`
}

// GetResponseMetrics aggregates the execution journal since the cutoff.
// Reporting only.
func (r *IncidentRepository) GetResponseMetrics(ctx context.Context, since time.Time) ([]ResponseMetricsRow, error) {
	query := `
		SELECT action_id,
		       COUNT(*) AS total,
		       SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
		       SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed
		FROM action_executions
		WHERE started_at >= ?
		GROUP BY action_id
	`

	var rows []ResponseMetricsRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to get response metrics: %w", err)
	}
	return rows, nil
}
