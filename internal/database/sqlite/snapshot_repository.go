package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pulseguard/pulseguard/internal/core/sampler"
)

// SnapshotRepository persists sampling snapshots for trend reporting.
// Implements sampler.SnapshotStore.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// SaveSnapshot appends one snapshot row.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snap *sampler.Snapshot) error {
	query := `
		INSERT INTO snapshots (timestamp, cpu_percent, memory_percent, disk_percent, load1, heap_bytes, goroutines, gc_pause_ms, db_latency_ms, db_tier, degraded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		snap.Timestamp,
		snap.CPUPercent,
		snap.MemoryPercent,
		snap.DiskPercent,
		snap.Load1,
		snap.HeapBytes,
		snap.Goroutines,
		snap.GCPauseMs,
		snap.DBLatencyMs,
		string(snap.DBTier),
		snap.Degraded,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SnapshotRow is one persisted snapshot reading.
type SnapshotRow struct {
	Timestamp     string  `db:"timestamp"`
	CPUPercent    float64 `db:"cpu_percent"`
	MemoryPercent float64 `db:"memory_percent"`
	DiskPercent   float64 `db:"disk_percent"`
	DBLatencyMs   float64 `db:"db_latency_ms"`
	DBTier        string  `db:"db_tier"`
}

// Recent returns the latest persisted snapshots, newest first.
func (r *SnapshotRepository) Recent(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 60
	}

	query := `
		SELECT timestamp, cpu_percent, memory_percent, disk_percent, db_latency_ms, db_tier
		FROM snapshots
		ORDER BY timestamp DESC
		LIMIT ?
	`

	var rows []SnapshotRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return rows, nil
}

// Prune keeps only the newest rows, returning how many were deleted.
func (r *SnapshotRepository) Prune(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM snapshots
		WHERE id NOT IN (SELECT id FROM snapshots ORDER BY timestamp DESC LIMIT ?)
	`

	result, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return result.RowsAffected()
}
