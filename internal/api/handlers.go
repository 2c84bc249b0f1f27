package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/incidents"
	"github.com/pulseguard/pulseguard/internal/core/metrics"
	"github.com/pulseguard/pulseguard/internal/database/sqlite"
	"github.com/pulseguard/pulseguard/pkg/errors"
)

// Handlers serves the read-only reporting API plus manual incident
// resolution. Runtime state comes from the in-memory managers;
// historical aggregates come from the repositories.
type Handlers struct {
	logger       *logrus.Logger
	alerts       *alerts.Manager
	incidents    *incidents.Manager
	health       metrics.HealthChecker
	alertRepo    *sqlite.AlertRepository
	incidentRepo *sqlite.IncidentRepository
	notifyRepo   *sqlite.NotificationRepository
	snapshotRepo *sqlite.SnapshotRepository
}

// NewHandlers creates the API handlers. Repository arguments may be nil
// when persistence is disabled; the corresponding endpoints then return
// empty history.
func NewHandlers(alertMgr *alerts.Manager, incidentMgr *incidents.Manager, health metrics.HealthChecker, alertRepo *sqlite.AlertRepository, incidentRepo *sqlite.IncidentRepository, notifyRepo *sqlite.NotificationRepository, snapshotRepo *sqlite.SnapshotRepository, logger *logrus.Logger) *Handlers {
	return &Handlers{
		logger:       logger,
		alerts:       alertMgr,
		incidents:    incidentMgr,
		health:       health,
		alertRepo:    alertRepo,
		incidentRepo: incidentRepo,
		notifyRepo:   notifyRepo,
		snapshotRepo: snapshotRepo,
	}
}

func (h *Handlers) respondError(c *gin.Context, err *errors.AppError) {
	c.JSON(err.Code, gin.H{"error": err.Message, "details": err.Details})
}

// ListAlerts returns tracked alerts. ?active=true filters to unresolved.
func (h *Handlers) ListAlerts(c *gin.Context) {
	var list []*alerts.Alert
	if c.Query("active") == "true" {
		list = h.alerts.Active()
	} else {
		list = h.alerts.All()
	}

	c.JSON(http.StatusOK, gin.H{"alerts": list, "count": len(list)})
}

// GetAlert returns one alert by id.
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, ok := h.alerts.Get(c.Param("id"))
	if !ok {
		h.respondError(c, errors.ErrNotFound.WithDetails("alert "+c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ListIncidents returns tracked incidents. ?active=true filters to open.
func (h *Handlers) ListIncidents(c *gin.Context) {
	var list []*incidents.Incident
	if c.Query("active") == "true" {
		list = h.incidents.Active()
	} else {
		list = h.incidents.All()
	}

	c.JSON(http.StatusOK, gin.H{"incidents": list, "count": len(list)})
}

// GetIncident returns one incident by id.
func (h *Handlers) GetIncident(c *gin.Context) {
	incident, ok := h.incidents.Get(c.Param("id"))
	if !ok {
		h.respondError(c, errors.ErrNotFound.WithDetails("incident "+c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, incident)
}

type resolveRequest struct {
	Note string `json:"note"`
}

// ResolveIncident manually resolves an incident.
func (h *Handlers) ResolveIncident(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.respondError(c, errors.ErrBadRequest.WithDetails(err.Error()))
		return
	}

	note := req.Note
	if note == "" {
		note = "resolved via API"
	}

	if err := h.incidents.Resolve(c.Param("id"), incidents.ResolutionManual, note); err != nil {
		h.respondError(c, errors.ErrNotFound.WithDetails(err.Error()))
		return
	}

	incident, _ := h.incidents.Get(c.Param("id"))
	c.JSON(http.StatusOK, incident)
}

// ListNotifications returns recent notification delivery records.
func (h *Handlers) ListNotifications(c *gin.Context) {
	if h.notifyRepo == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []any{}, "count": 0})
		return
	}

	rows, err := h.notifyRepo.ListRecent(c.Request.Context(), 100)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list notifications")
		h.respondError(c, errors.ErrInternalServer)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": rows, "count": len(rows)})
}

// Stats returns runtime counters plus 24h historical aggregates.
func (h *Handlers) Stats(c *gin.Context) {
	stats := gin.H{
		"alerts":           h.alerts.Stats(),
		"active_incidents": len(h.incidents.Active()),
	}

	since := time.Now().Add(-24 * time.Hour)
	if h.alertRepo != nil {
		if rows, err := h.alertRepo.GetAlertStats(c.Request.Context(), since); err == nil {
			stats["alert_history_24h"] = rows
		}
	}
	if h.incidentRepo != nil {
		if rows, err := h.incidentRepo.GetResponseMetrics(c.Request.Context(), since); err == nil {
			stats["response_metrics_24h"] = rows
		}
	}

	c.JSON(http.StatusOK, stats)
}

// Snapshots returns the most recent persisted snapshots.
func (h *Handlers) Snapshots(c *gin.Context) {
	if h.snapshotRepo == nil {
		c.JSON(http.StatusOK, gin.H{"snapshots": []any{}})
		return
	}

	rows, err := h.snapshotRepo.Recent(c.Request.Context(), 60)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list snapshots")
		h.respondError(c, errors.ErrInternalServer)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": rows})
}

// Health returns the aggregated component health report.
func (h *Handlers) Health(c *gin.Context) {
	report := h.health.GetOverallHealth()

	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
