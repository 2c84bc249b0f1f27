package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

// AlertRepository persists alert history. Implements alerts.Store.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// SaveAlert upserts the alert row. Called on every lifecycle transition,
// so the stored row always reflects the latest state.
func (r *AlertRepository) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	query := `
		INSERT INTO alerts (id, fingerprint, type, severity, title, message, threshold, value, created_at, updated_at, resolved, resolved_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			value = excluded.value,
			updated_at = excluded.updated_at,
			resolved = excluded.resolved,
			resolved_at = excluded.resolved_at,
			metadata = excluded.metadata
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.Fingerprint,
		alert.Type,
		string(alert.Severity),
		alert.Title,
		alert.Message,
		alert.Threshold,
		alert.Value,
		alert.Timestamp,
		alert.UpdatedAt,
		alert.Resolved,
		alert.ResolvedAt,
		alert.MetadataJSON(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// AlertStatsRow is one severity bucket of the historical alert stats.
type AlertStatsRow struct {
	Severity string `db:"severity"`
	Total    int    `db:"total"`
	Resolved int    `db:"resolved"`
}

// GetAlertStats aggregates alert history since the cutoff by severity.
// Reporting only, never consulted for runtime decisions.
func (r *AlertRepository) GetAlertStats(ctx context.Context, since time.Time) ([]AlertStatsRow, error) {
	query := `
		SELECT severity,
		       COUNT(*) AS total,
		       SUM(CASE WHEN resolved THEN 1 ELSE 0 END) AS resolved
		FROM alerts
		WHERE created_at >= ?
		GROUP BY severity
	`

	var rows []AlertStatsRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to get alert stats: %w", err)
	}
	return rows, nil
}
