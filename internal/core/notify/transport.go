package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

// Payload is the JSON body delivered to a channel.
type Payload struct {
	Event     string        `json:"event"`
	Alert     *alerts.Alert `json:"alert"`
	Channel   string        `json:"channel"`
	Timestamp time.Time     `json:"timestamp"`
}

func newPayload(alert *alerts.Alert, channel string, resolution bool) *Payload {
	event := "alert_triggered"
	if resolution {
		event = "alert_resolved"
	}
	return &Payload{
		Event:     event,
		Alert:     alert,
		Channel:   channel,
		Timestamp: time.Now(),
	}
}

// Transport delivers one payload to one channel endpoint.
type Transport interface {
	Deliver(ctx context.Context, channel *ChannelConfig, payload *Payload) error
}

// HTTPTransport posts payloads as JSON. Used for webhook and chat
// channels.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport with the given per-request
// timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver posts the payload to the channel endpoint. Any non-2xx response
// is an error.
func (t *HTTPTransport) Deliver(ctx context.Context, channel *ChannelConfig, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery to %s failed: %w", channel.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("channel %s returned status %d", channel.Name, resp.StatusCode)
	}
	return nil
}

// EmailTransport hands payloads to the mail pipeline. Delivery details
// live behind the relay endpoint; from the dispatcher's point of view the
// transport is opaque.
type EmailTransport struct {
	logger *logrus.Logger
	relay  *HTTPTransport
}

// NewEmailTransport creates an email transport. Channels with a relay
// endpoint are posted to it; channels without one are logged only.
func NewEmailTransport(timeout time.Duration, logger *logrus.Logger) *EmailTransport {
	return &EmailTransport{
		logger: logger,
		relay:  NewHTTPTransport(timeout),
	}
}

func (t *EmailTransport) Deliver(ctx context.Context, channel *ChannelConfig, payload *Payload) error {
	if channel.Endpoint != "" {
		return t.relay.Deliver(ctx, channel, payload)
	}

	t.logger.WithFields(logrus.Fields{
		"channel":  channel.Name,
		"event":    payload.Event,
		"alert_id": payload.Alert.ID,
	}).Info("Email notification (no relay configured)")
	return nil
}
