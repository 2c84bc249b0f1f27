package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements Collector using Prometheus metrics
type PrometheusCollector struct {
	config *Config

	// System metrics
	systemCPU    prometheus.Gauge
	systemMemory prometheus.Gauge
	systemDisk   prometheus.Gauge

	// Alert metrics
	alertsTotal         *prometheus.CounterVec
	alertsResolvedTotal *prometheus.CounterVec
	alertsActive        *prometheus.GaugeVec
	alertResolutionTime *prometheus.HistogramVec

	// Notification metrics
	notificationsTotal *prometheus.CounterVec

	// Response action metrics
	actionExecutions *prometheus.CounterVec
	actionDuration   *prometheus.HistogramVec

	// Incident metrics
	incidentsOpened        *prometheus.CounterVec
	incidentsResolved      *prometheus.CounterVec
	incidentResolutionTime *prometheus.HistogramVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector
func NewPrometheusCollector(config *Config) *PrometheusCollector {
	if config == nil {
		config = &Config{
			Enabled: true,
			Prefix:  "pulseguard",
		}
	}

	prefix := config.Prefix

	collector := &PrometheusCollector{
		config: config,
	}

	collector.systemCPU = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_system_cpu_usage_percent",
			Help: "System CPU usage percentage",
		},
	)

	collector.systemMemory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_system_memory_usage_percent",
			Help: "System memory usage percentage",
		},
	)

	collector.systemDisk = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_system_disk_usage_percent",
			Help: "System disk usage percentage",
		},
	)

	collector.alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alerts_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"severity", "type"},
	)

	collector.alertsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alerts_resolved_total",
			Help: "Total number of alerts resolved",
		},
		[]string{"severity"},
	)

	collector.alertsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_alerts_active",
			Help: "Number of active alerts",
		},
		[]string{"severity"},
	)

	collector.alertResolutionTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_alert_resolution_seconds",
			Help:    "Time from alert creation to resolution in seconds",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 14400},
		},
		[]string{"severity"},
	)

	collector.notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_notifications_total",
			Help: "Total number of notification delivery outcomes",
		},
		[]string{"channel", "status"},
	)

	collector.actionExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_action_executions_total",
			Help: "Total number of response action executions",
		},
		[]string{"action_id", "success"},
	)

	collector.actionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_action_duration_seconds",
			Help:    "Response action execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"action_id"},
	)

	collector.incidentsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_incidents_opened_total",
			Help: "Total number of incidents opened",
		},
		[]string{"severity"},
	)

	collector.incidentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_incidents_resolved_total",
			Help: "Total number of incidents resolved",
		},
		[]string{"resolution_type"},
	)

	collector.incidentResolutionTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_incident_resolution_seconds",
			Help:    "Time from incident creation to resolution in seconds",
			Buckets: []float64{60, 300, 600, 1800, 3600, 14400, 86400},
		},
		[]string{"resolution_type"},
	)

	collector.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	collector.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return collector
}

// RecordSystemResource records system resource metrics
func (p *PrometheusCollector) RecordSystemResource(cpu, memory, disk float64) {
	if !p.config.Enabled {
		return
	}

	p.systemCPU.Set(cpu)
	p.systemMemory.Set(memory)
	p.systemDisk.Set(disk)
}

// RecordAlert records a triggered alert
func (p *PrometheusCollector) RecordAlert(severity, alertType string) {
	if !p.config.Enabled {
		return
	}

	p.alertsTotal.WithLabelValues(severity, alertType).Inc()
	p.alertsActive.WithLabelValues(severity).Inc()
}

// RecordAlertResolved records an alert resolution
func (p *PrometheusCollector) RecordAlertResolved(severity string, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.alertsResolvedTotal.WithLabelValues(severity).Inc()
	p.alertsActive.WithLabelValues(severity).Dec()
	p.alertResolutionTime.WithLabelValues(severity).Observe(duration.Seconds())
}

// RecordNotification records a notification delivery outcome
func (p *PrometheusCollector) RecordNotification(channel, status string) {
	if !p.config.Enabled {
		return
	}

	p.notificationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordActionExecution records a response action execution
func (p *PrometheusCollector) RecordActionExecution(actionID string, success bool, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.actionExecutions.WithLabelValues(actionID, strconv.FormatBool(success)).Inc()
	p.actionDuration.WithLabelValues(actionID).Observe(duration.Seconds())
}

// RecordIncidentOpened records an opened incident
func (p *PrometheusCollector) RecordIncidentOpened(severity string) {
	if !p.config.Enabled {
		return
	}

	p.incidentsOpened.WithLabelValues(severity).Inc()
}

// RecordIncidentResolved records an incident resolution
func (p *PrometheusCollector) RecordIncidentResolved(resolutionType string, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.incidentsResolved.WithLabelValues(resolutionType).Inc()
	p.incidentResolutionTime.WithLabelValues(resolutionType).Observe(duration.Seconds())
}

// RecordHTTPRequest records HTTP request metrics
func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
