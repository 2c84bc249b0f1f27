package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pulseguard/pulseguard/internal/core/notify"
)

// NotificationRepository persists notification delivery records.
// Implements notify.Store.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// SaveNotification upserts the record for one (alert, channel) delivery
// chain. Called on every status transition.
func (r *NotificationRepository) SaveNotification(ctx context.Context, n *notify.AlertNotification) error {
	query := `
		INSERT INTO alert_notifications (id, alert_id, channel, endpoint, resolution, status, attempts, last_error, created_at, updated_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at,
			sent_at = excluded.sent_at
	`

	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.AlertID,
		n.Channel,
		n.Endpoint,
		n.Resolution,
		n.Status,
		n.Attempts,
		n.LastError,
		n.CreatedAt,
		n.UpdatedAt,
		n.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListRecent returns the most recent notification records for reporting.
func (r *NotificationRepository) ListRecent(ctx context.Context, limit int) ([]notify.AlertNotification, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, alert_id, channel, endpoint, resolution, status, attempts, last_error, created_at, updated_at, sent_at
		FROM alert_notifications
		ORDER BY created_at DESC
		LIMIT ?
	`

	var rows []notify.AlertNotification
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}
