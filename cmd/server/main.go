package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/api"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/core/alerts"
	"github.com/pulseguard/pulseguard/internal/core/catalog"
	"github.com/pulseguard/pulseguard/internal/core/engine"
	"github.com/pulseguard/pulseguard/internal/core/escalation"
	"github.com/pulseguard/pulseguard/internal/core/incidents"
	"github.com/pulseguard/pulseguard/internal/core/metrics"
	"github.com/pulseguard/pulseguard/internal/core/notify"
	"github.com/pulseguard/pulseguard/internal/core/rules"
	"github.com/pulseguard/pulseguard/internal/core/sampler"
	"github.com/pulseguard/pulseguard/internal/database"
	"github.com/pulseguard/pulseguard/internal/database/sqlite"
	"github.com/pulseguard/pulseguard/internal/websocket"
	"github.com/pulseguard/pulseguard/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Logging.Level)
	log.Info("Starting PulseGuard incident response engine")

	db, err := database.Initialize(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	defs, err := catalog.Load(cfg.Alerting.DefinitionsPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load definitions catalog")
	}
	log.WithFields(logrus.Fields{
		"rules":     len(defs.Rules),
		"channels":  len(defs.Channels),
		"playbooks": len(defs.Playbooks),
		"actions":   len(defs.Actions),
	}).Info("Definitions catalog loaded")

	var collector metrics.Collector = metrics.Noop{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollector(&metrics.Config{
			Enabled: true,
			Prefix:  cfg.Metrics.Prefix,
		})
	}

	hub := websocket.NewHub(log)
	go hub.Run()

	// Repositories back the best-effort persistence boundary.
	alertRepo := sqlite.NewAlertRepository(db)
	notifyRepo := sqlite.NewNotificationRepository(db)
	incidentRepo := sqlite.NewIncidentRepository(db)
	snapshotRepo := sqlite.NewSnapshotRepository(db)

	// Sampler.
	var probes []sampler.ServiceProbe
	for _, p := range cfg.Sampler.Services {
		probes = append(probes, sampler.ServiceProbe{
			Name:    p.Name,
			URL:     p.URL,
			Timeout: parseDuration(p.Timeout, 5*time.Second),
		})
	}
	var probeDB *sqlx.DB
	if cfg.Sampler.DatabaseProbe {
		probeDB = db
	}
	source := sampler.NewSystemSource(probeDB, sampler.DBTiers{
		SlowMs:     cfg.Sampler.Thresholds.SlowMs,
		DegradedMs: cfg.Sampler.Thresholds.DegradedMs,
	}, probes, log)

	samplerSvc := sampler.NewService(sampler.ServiceConfig{
		Enabled:          cfg.Sampler.Enabled,
		Interval:         parseDuration(cfg.Sampler.Interval, 30*time.Second),
		PersistSnapshots: cfg.Sampler.PersistSnapshots,
	}, source, snapshotRepo, collector, log)

	// Alert pipeline.
	ruleEngine := rules.NewEngine(defs.Rules, log)

	alertMgr := alerts.NewManager(alerts.ManagerConfig{
		Enabled:   cfg.Alerting.Enabled,
		MaxAlerts: cfg.Alerting.MaxAlerts,
		Retention: parseDuration(cfg.Alerting.Retention, 168*time.Hour),
	}, alertRepo, collector, log)

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Enabled:         cfg.Notifications.Enabled,
		QueueSize:       cfg.Notifications.QueueSize,
		DeliveryTimeout: parseDuration(cfg.Notifications.DeliveryTimeout, 30*time.Second),
	}, defs.Channels, notifyRepo, collector, log)

	checker := escalation.NewChecker(defs.EscalationRules, alertMgr, log)

	incidentMgr := incidents.NewManager(incidents.ManagerConfig{
		Enabled:             cfg.Incidents.Enabled,
		ExecutionTimeout:    parseDuration(cfg.Incidents.ExecutionTimeout, 60*time.Second),
		HealthyResolveAfter: parseDuration(cfg.Incidents.HealthyResolveAfter, 5*time.Minute),
		IdleResolveAfter:    parseDuration(cfg.Incidents.IdleResolveAfter, 10*time.Minute),
	}, defs.Playbooks, defs.Actions, incidentRepo, incidents.NewDefaultExecutor(samplerSvc, log), collector, log)

	health := buildHealthChecker(db, samplerSvc, alertMgr)

	alertMgr.SetNotifier(dispatcher)
	alertMgr.SetIncidentSink(incidentMgr)
	alertMgr.SetPublisher(hub)
	checker.SetIncidentRequester(incidentMgr)
	checker.SetNotifier(dispatcher)
	incidentMgr.SetHealthChecker(health)
	incidentMgr.SetPublisher(hub)

	engineSvc := engine.New(engine.Config{
		EscalationEnabled:  cfg.Escalation.Enabled,
		EscalationInterval: parseDuration(cfg.Escalation.CheckInterval, 60*time.Second),
		ResolutionInterval: parseDuration(cfg.Incidents.ResolutionCheckInterval, 30*time.Second),
		CleanupInterval:    parseDuration(cfg.Alerting.CleanupInterval, time.Hour),
	}, samplerSvc, ruleEngine, alertMgr, dispatcher, checker, incidentMgr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engineSvc.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start engine")
	}

	handlers := api.NewHandlers(alertMgr, incidentMgr, health, alertRepo, incidentRepo, notifyRepo, snapshotRepo, log)
	router := api.NewRouter(cfg, handlers, hub, collector, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	engineSvc.Stop()
	log.Info("Shutdown complete")
}

// buildHealthChecker registers the component checks the resolution
// heuristic and the /health endpoint rely on.
func buildHealthChecker(db *sqlx.DB, samplerSvc *sampler.Service, alertMgr *alerts.Manager) metrics.HealthChecker {
	health := metrics.NewDefaultHealthChecker()

	health.RegisterCheck("database", func() metrics.HealthStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return metrics.NewHealthStatus("unhealthy", err.Error())
		}
		return metrics.NewHealthStatus("healthy", "database reachable")
	})

	health.RegisterCheck("sampler", func() metrics.HealthStatus {
		snap, ok := samplerSvc.Latest()
		if !ok {
			return metrics.NewHealthStatus("degraded", "no snapshot yet")
		}
		if snap.Degraded {
			return metrics.NewHealthStatus("degraded", "last snapshot partial")
		}
		return metrics.NewHealthStatus("healthy", "sampling").WithDetail("last_sample", snap.Timestamp)
	})

	health.RegisterCheck("alerts", func() metrics.HealthStatus {
		stats := alertMgr.Stats()
		if critical, ok := stats["critical_alerts"].(int); ok && critical > 0 {
			return metrics.NewHealthStatus("unhealthy", fmt.Sprintf("%d critical alerts active", critical))
		}
		if active, ok := stats["active_alerts"].(int); ok && active > 0 {
			return metrics.NewHealthStatus("degraded", fmt.Sprintf("%d alerts active", active))
		}
		return metrics.NewHealthStatus("healthy", "no active alerts")
	})

	return health
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
