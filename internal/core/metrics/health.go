package metrics

import (
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     string                  `json:"status"`
	Message    string                  `json:"message"`
	Timestamp  time.Time               `json:"timestamp"`
	Duration   time.Duration           `json:"duration"`
	Components map[string]HealthStatus `json:"components"`
}

// HealthChecker aggregates named component checks into an overall report.
// The incident resolution checker consults it to decide whether the system
// has returned to a healthy state.
type HealthChecker interface {
	RegisterCheck(name string, check func() HealthStatus)
	GetOverallHealth() HealthReport
}

// DefaultHealthChecker implements HealthChecker
type DefaultHealthChecker struct {
	mu     sync.RWMutex
	checks map[string]func() HealthStatus
}

// NewDefaultHealthChecker creates a new health checker
func NewDefaultHealthChecker() *DefaultHealthChecker {
	return &DefaultHealthChecker{
		checks: make(map[string]func() HealthStatus),
	}
}

// RegisterCheck registers a component health check under a name. A later
// registration with the same name replaces the earlier one.
func (h *DefaultHealthChecker) RegisterCheck(name string, check func() HealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// GetOverallHealth runs every registered check and folds the results into a
// single report.
func (h *DefaultHealthChecker) GetOverallHealth() HealthReport {
	start := time.Now()

	h.mu.RLock()
	checks := make(map[string]func() HealthStatus, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	components := make(map[string]HealthStatus, len(checks))
	for name, check := range checks {
		status := check()
		if status.Timestamp.IsZero() {
			status.Timestamp = time.Now()
		}
		components[name] = status
	}

	overallStatus, message := calculateOverallStatus(components)

	return HealthReport{
		Status:     overallStatus,
		Message:    message,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
	}
}

// calculateOverallStatus determines the overall health status based on component statuses
func calculateOverallStatus(components map[string]HealthStatus) (string, string) {
	degradedCount := 0
	unhealthyCount := 0
	unknownCount := 0
	totalCount := len(components)

	if totalCount == 0 {
		return "unknown", "No health checks registered"
	}

	for _, status := range components {
		switch status.Status {
		case "healthy":
		case "degraded":
			degradedCount++
		case "unhealthy":
			unhealthyCount++
		default:
			unknownCount++
		}
	}

	if unhealthyCount > 0 {
		return "unhealthy", fmt.Sprintf("%d/%d components unhealthy", unhealthyCount, totalCount)
	}

	if degradedCount > 0 {
		return "degraded", fmt.Sprintf("%d/%d components degraded", degradedCount, totalCount)
	}

	if unknownCount > 0 {
		return "unknown", fmt.Sprintf("%d/%d components unknown", unknownCount, totalCount)
	}

	return "healthy", fmt.Sprintf("All %d components healthy", totalCount)
}

// NewHealthStatus creates a new health status
func NewHealthStatus(status, message string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// WithDetail adds a single detail to a health status
func (h HealthStatus) WithDetail(key string, value interface{}) HealthStatus {
	if h.Details == nil {
		h.Details = make(map[string]interface{})
	}

	h.Details[key] = value
	return h
}

// IsHealthy returns true if the status is healthy
func (h HealthStatus) IsHealthy() bool {
	return h.Status == "healthy"
}

// IsHealthy reports whether the whole system is currently healthy.
func (r HealthReport) IsHealthy() bool {
	return r.Status == "healthy"
}
