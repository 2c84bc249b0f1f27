package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Delivery status for a notification record.
const (
	StatusPending     = "pending"
	StatusSent        = "sent"
	StatusFailed      = "failed"
	StatusRateLimited = "rate_limited"
)

// AlertNotification tracks the delivery of one alert to one channel across
// all attempts. The record is persisted on every status transition.
type AlertNotification struct {
	ID         string     `json:"id" db:"id"`
	AlertID    string     `json:"alert_id" db:"alert_id"`
	Channel    string     `json:"channel" db:"channel"`
	Endpoint   string     `json:"endpoint" db:"endpoint"`
	Resolution bool       `json:"resolution" db:"resolution"`
	Status     string     `json:"status" db:"status"`
	Attempts   int        `json:"attempts" db:"attempts"`
	LastError  string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	SentAt     *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

func newNotification(alertID string, channel *ChannelConfig, resolution bool) *AlertNotification {
	now := time.Now()
	return &AlertNotification{
		ID:         uuid.New().String(),
		AlertID:    alertID,
		Channel:    channel.Name,
		Endpoint:   channel.Endpoint,
		Resolution: resolution,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Store persists notification records. Best effort, failures are logged.
type Store interface {
	SaveNotification(ctx context.Context, n *AlertNotification) error
}
