package sampler

import (
	"strings"
	"time"
)

// DBTier classifies database responsiveness by round-trip latency.
type DBTier string

const (
	DBTierOK       DBTier = "ok"
	DBTierSlow     DBTier = "slow"
	DBTierDegraded DBTier = "degraded"
	DBTierDown     DBTier = "down"
)

// ServiceHealth is one external service probe result.
type ServiceHealth struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	LatencyMs float64 `json:"latency_ms"`
}

// Snapshot is an immutable point-in-time reading of system, process, and
// dependency health. It is created once per sampling tick and consumed by
// rule evaluation; it is never mutated after creation.
type Snapshot struct {
	Timestamp     time.Time       `json:"timestamp"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	DiskPercent   float64         `json:"disk_percent"`
	Load1         float64         `json:"load1"`
	HeapBytes     uint64          `json:"heap_bytes"`
	Goroutines    int             `json:"goroutines"`
	GCPauseMs     float64         `json:"gc_pause_ms"`
	DBLatencyMs   float64         `json:"db_latency_ms"`
	DBTier        DBTier          `json:"db_tier"`
	Services      []ServiceHealth `json:"services,omitempty"`

	// Degraded is set when one or more readings failed this tick. The
	// snapshot is still usable; failed readings stay at their zero value.
	Degraded bool `json:"degraded,omitempty"`
}

// Metric resolves a dotted metric path against the snapshot. Supported
// paths:
//
//	system.cpu_percent, system.memory_percent, system.disk_percent,
//	system.load1, process.heap_mb, process.goroutines,
//	process.gc_pause_ms, database.latency_ms, database.healthy,
//	services.<name>.latency_ms, services.<name>.healthy
//
// Boolean readings resolve to 1 (true) or 0 (false).
func (s *Snapshot) Metric(path string) (float64, bool) {
	switch path {
	case "system.cpu_percent":
		return s.CPUPercent, true
	case "system.memory_percent":
		return s.MemoryPercent, true
	case "system.disk_percent":
		return s.DiskPercent, true
	case "system.load1":
		return s.Load1, true
	case "process.heap_mb":
		return float64(s.HeapBytes) / (1024 * 1024), true
	case "process.goroutines":
		return float64(s.Goroutines), true
	case "process.gc_pause_ms":
		return s.GCPauseMs, true
	case "database.latency_ms":
		return s.DBLatencyMs, true
	case "database.healthy":
		if s.DBTier == DBTierOK || s.DBTier == DBTierSlow {
			return 1, true
		}
		return 0, true
	}

	if name, field, ok := splitServicePath(path); ok {
		for _, svc := range s.Services {
			if svc.Name != name {
				continue
			}
			switch field {
			case "latency_ms":
				return svc.LatencyMs, true
			case "healthy":
				if svc.Healthy {
					return 1, true
				}
				return 0, true
			}
		}
	}

	return 0, false
}

func splitServicePath(path string) (name, field string, ok bool) {
	rest, found := strings.CutPrefix(path, "services.")
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ".")
	if idx <= 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
