package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Timestamp:     time.Now(),
		CPUPercent:    42.5,
		MemoryPercent: 61.2,
		DiskPercent:   80.0,
		Load1:         1.5,
		HeapBytes:     64 * 1024 * 1024,
		Goroutines:    120,
		GCPauseMs:     3.2,
		DBLatencyMs:   12.7,
		DBTier:        DBTierSlow,
		Services: []ServiceHealth{
			{Name: "api-gateway", Healthy: true, LatencyMs: 45.0},
			{Name: "auth.service", Healthy: false, LatencyMs: 0},
		},
	}
}

func TestSnapshotMetric(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name     string
		path     string
		expected float64
		found    bool
	}{
		{"cpu percent", "system.cpu_percent", 42.5, true},
		{"memory percent", "system.memory_percent", 61.2, true},
		{"disk percent", "system.disk_percent", 80.0, true},
		{"load average", "system.load1", 1.5, true},
		{"heap in megabytes", "process.heap_mb", 64.0, true},
		{"goroutines", "process.goroutines", 120, true},
		{"gc pause", "process.gc_pause_ms", 3.2, true},
		{"db latency", "database.latency_ms", 12.7, true},
		{"db healthy while slow", "database.healthy", 1, true},
		{"service latency", "services.api-gateway.latency_ms", 45.0, true},
		{"service healthy", "services.api-gateway.healthy", 1, true},
		{"dotted service name", "services.auth.service.healthy", 0, true},
		{"unknown path", "system.nonexistent", 0, false},
		{"unknown service", "services.missing.healthy", 0, false},
		{"bare services prefix", "services.", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, found := snap.Metric(tt.path)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.InDelta(t, tt.expected, value, 0.001)
			}
		})
	}
}

func TestSnapshotMetricDatabaseUnhealthyTiers(t *testing.T) {
	snap := testSnapshot()

	snap.DBTier = DBTierDegraded
	value, found := snap.Metric("database.healthy")
	assert.True(t, found)
	assert.Equal(t, 0.0, value)

	snap.DBTier = DBTierDown
	value, found = snap.Metric("database.healthy")
	assert.True(t, found)
	assert.Equal(t, 0.0, value)

	snap.DBTier = DBTierOK
	value, found = snap.Metric("database.healthy")
	assert.True(t, found)
	assert.Equal(t, 1.0, value)
}
