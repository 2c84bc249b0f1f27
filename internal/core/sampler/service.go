package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseguard/pulseguard/internal/core/metrics"
)

// SnapshotStore persists snapshots for later inspection. Persistence is
// best effort and never blocks the sampling loop on failure.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

// Handler receives every completed snapshot. The rule engine hangs off
// this hook.
type Handler func(snap *Snapshot)

// ServiceConfig contains configuration for the sampling service.
type ServiceConfig struct {
	Enabled          bool
	Interval         time.Duration
	PersistSnapshots bool
}

// Service drives periodic sampling. Each tick produces one snapshot,
// records resource gauges, optionally persists it, and hands it to the
// registered handlers in order.
type Service struct {
	config    ServiceConfig
	logger    *logrus.Logger
	source    Source
	store     SnapshotStore
	collector metrics.Collector

	handlers []Handler

	mu       sync.RWMutex
	latest   *Snapshot
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService creates the sampling service.
func NewService(config ServiceConfig, source Source, store SnapshotStore, collector metrics.Collector, logger *logrus.Logger) *Service {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.Noop{}
	}

	return &Service{
		config:    config,
		logger:    logger,
		source:    source,
		store:     store,
		collector: collector,
	}
}

// OnSnapshot registers a handler invoked for every snapshot, in
// registration order. Must be called before Start.
func (s *Service) OnSnapshot(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Start launches the sampling loop.
func (s *Service) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Sampler disabled, skipping start")
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.WithField("interval", s.config.Interval.String()).Info("Sampler started")
	return nil
}

// Stop terminates the sampling loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Sampler stopped")
}

// Latest returns the most recent snapshot, if any tick has completed.
func (s *Service) Latest() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, false
	}
	return s.latest, true
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Take an immediate first sample so rules have data at startup.
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs a single sampling pass. Exposed for manual triggering.
func (s *Service) Tick(ctx context.Context) {
	s.tick(ctx)
}

func (s *Service) tick(ctx context.Context) {
	snap, err := s.source.Sample(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Sampling tick failed")
		return
	}

	if snap.Degraded {
		s.logger.Warn("Snapshot degraded, one or more readings failed")
	}

	s.collector.RecordSystemResource(snap.CPUPercent, snap.MemoryPercent, snap.DiskPercent)

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	if s.config.PersistSnapshots && s.store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.SaveSnapshot(saveCtx, snap); err != nil {
			s.logger.WithError(err).Warn("Failed to persist snapshot")
		}
		cancel()
	}

	for _, h := range s.handlers {
		h(snap)
	}
}
