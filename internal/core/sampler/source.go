package sampler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// Source produces snapshots. The engine only depends on this interface so
// tests can supply canned readings.
type Source interface {
	Sample(ctx context.Context) (*Snapshot, error)
}

// ServiceProbe checks the health of one external service.
type ServiceProbe struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// DBTiers holds the latency boundaries, in milliseconds, between database
// health tiers.
type DBTiers struct {
	SlowMs     float64
	DegradedMs float64
}

// SystemSource samples host, process, database, and external service
// health. A nil db skips the database probe; an empty probe list skips
// service probes.
type SystemSource struct {
	logger *logrus.Logger
	db     *sqlx.DB
	tiers  DBTiers
	probes []ServiceProbe
	client *http.Client
}

// NewSystemSource creates the default snapshot source.
func NewSystemSource(db *sqlx.DB, tiers DBTiers, probes []ServiceProbe, logger *logrus.Logger) *SystemSource {
	if tiers.SlowMs <= 0 {
		tiers.SlowMs = 100
	}
	if tiers.DegradedMs <= 0 {
		tiers.DegradedMs = 500
	}

	return &SystemSource{
		logger: logger,
		db:     db,
		tiers:  tiers,
		probes: probes,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Sample collects one snapshot. Individual reading failures degrade the
// snapshot instead of failing the tick.
func (s *SystemSource) Sample(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Timestamp: time.Now(),
	}

	if percents, err := cpu.PercentWithContext(ctx, time.Second, false); err != nil {
		s.logger.WithError(err).Warn("Failed to read CPU usage")
		snap.Degraded = true
	} else if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to read memory usage")
		snap.Degraded = true
	} else {
		snap.MemoryPercent = vmem.UsedPercent
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err != nil {
		s.logger.WithError(err).Warn("Failed to read disk usage")
		snap.Degraded = true
	} else {
		snap.DiskPercent = usage.UsedPercent
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to read load average")
		snap.Degraded = true
	} else {
		snap.Load1 = avg.Load1
	}

	s.sampleRuntime(snap)
	s.sampleDatabase(ctx, snap)
	s.sampleServices(ctx, snap)

	return snap, nil
}

func (s *SystemSource) sampleRuntime(snap *Snapshot) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snap.HeapBytes = m.HeapAlloc
	snap.Goroutines = runtime.NumGoroutine()
	// Most recent GC pause as the scheduler-stall reading.
	if m.NumGC > 0 {
		snap.GCPauseMs = float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6
	}
}

func (s *SystemSource) sampleDatabase(ctx context.Context, snap *Snapshot) {
	if s.db == nil {
		snap.DBTier = DBTierOK
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := s.db.PingContext(pingCtx)
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	snap.DBLatencyMs = latency
	switch {
	case err != nil:
		snap.DBTier = DBTierDown
		snap.Degraded = true
		s.logger.WithError(err).Warn("Database probe failed")
	case latency >= s.tiers.DegradedMs:
		snap.DBTier = DBTierDegraded
	case latency >= s.tiers.SlowMs:
		snap.DBTier = DBTierSlow
	default:
		snap.DBTier = DBTierOK
	}
}

func (s *SystemSource) sampleServices(ctx context.Context, snap *Snapshot) {
	for _, probe := range s.probes {
		timeout := probe.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		healthy := s.probeOnce(probeCtx, probe.URL)
		cancel()

		snap.Services = append(snap.Services, ServiceHealth{
			Name:      probe.Name,
			Healthy:   healthy,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		})
		if !healthy {
			s.logger.WithField("service", probe.Name).Warn("Service probe unhealthy")
		}
	}
}

func (s *SystemSource) probeOnce(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 400
}
