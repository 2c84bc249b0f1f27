package notify

import (
	"fmt"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
)

// ChannelKind identifies the delivery mechanism of a channel.
type ChannelKind string

const (
	KindWebhook ChannelKind = "webhook"
	KindChat    ChannelKind = "chat"
	KindEmail   ChannelKind = "email"
)

// ChannelConfig declares one notification destination and its delivery
// policy.
type ChannelConfig struct {
	Name     string      `yaml:"name" json:"name"`
	Kind     ChannelKind `yaml:"kind" json:"kind"`
	Endpoint string      `yaml:"endpoint" json:"endpoint"`
	Enabled  bool        `yaml:"enabled" json:"enabled"`

	// Severities the channel accepts. Empty means all severities.
	Severities []alerts.Severity `yaml:"severities" json:"severities"`

	// NotifyResolution opts the channel into resolution notices.
	NotifyResolution bool `yaml:"notify_resolution" json:"notify_resolution"`

	// Rate limits, enforced per (channel, endpoint).
	MaxPerHour int `yaml:"max_per_hour" json:"max_per_hour"`
	BurstLimit int `yaml:"burst_limit" json:"burst_limit"`

	// Retry policy. Attempt n waits backoff_seconds[min(n-1, len-1)]
	// before retrying; MaxAttempts exhausted means terminal failure.
	MaxAttempts    int   `yaml:"max_attempts" json:"max_attempts"`
	BackoffSeconds []int `yaml:"backoff_seconds" json:"backoff_seconds"`
}

// Accepts reports whether the channel takes alerts of the given severity.
func (c *ChannelConfig) Accepts(severity alerts.Severity) bool {
	if len(c.Severities) == 0 {
		return true
	}
	for _, s := range c.Severities {
		if s == severity {
			return true
		}
	}
	return false
}

// RateKey identifies the rate-limit bucket for this channel.
func (c *ChannelConfig) RateKey() string {
	return c.Name + "|" + c.Endpoint
}

// Validate reports whether the channel config is usable.
func (c *ChannelConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channel missing name")
	}
	switch c.Kind {
	case KindWebhook, KindChat, KindEmail:
	default:
		return fmt.Errorf("channel %s has unknown kind %q", c.Name, c.Kind)
	}
	if c.Kind != KindEmail && c.Endpoint == "" {
		return fmt.Errorf("channel %s missing endpoint", c.Name)
	}
	for _, s := range c.Severities {
		if !s.Valid() {
			return fmt.Errorf("channel %s has invalid severity %q", c.Name, s)
		}
	}
	return nil
}

// backoff returns the wait before retry attempt n (1-based), clamped to
// the last configured step. No configuration means 30 seconds.
func (c *ChannelConfig) backoff(attempt int) int {
	if len(c.BackoffSeconds) == 0 {
		return 30
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(c.BackoffSeconds) {
		idx = len(c.BackoffSeconds) - 1
	}
	return c.BackoffSeconds[idx]
}

// maxAttempts returns the configured attempt budget, default 3.
func (c *ChannelConfig) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}
