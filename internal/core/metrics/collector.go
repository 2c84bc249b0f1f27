package metrics

import (
	"time"
)

// Collector defines the interface for emitting engine telemetry.
type Collector interface {
	RecordSystemResource(cpu, memory, disk float64)
	RecordAlert(severity, alertType string)
	RecordAlertResolved(severity string, duration time.Duration)
	RecordNotification(channel, status string)
	RecordActionExecution(actionID string, success bool, duration time.Duration)
	RecordIncidentOpened(severity string)
	RecordIncidentResolved(resolutionType string, duration time.Duration)
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Config contains configuration for metrics collection
type Config struct {
	Enabled bool
	Prefix  string
}

// Noop is a Collector that discards everything. Useful in tests and when
// metrics are disabled.
type Noop struct{}

func (Noop) RecordSystemResource(cpu, memory, disk float64)                            {}
func (Noop) RecordAlert(severity, alertType string)                                    {}
func (Noop) RecordAlertResolved(severity string, duration time.Duration)               {}
func (Noop) RecordNotification(channel, status string)                                 {}
func (Noop) RecordActionExecution(actionID string, success bool, d time.Duration)      {}
func (Noop) RecordIncidentOpened(severity string)                                      {}
func (Noop) RecordIncidentResolved(resolutionType string, duration time.Duration)      {}
func (Noop) RecordHTTPRequest(method, path string, status int, duration time.Duration) {}
