package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

// Report is one stored snapshot.
type Report struct {
	ID             int64     `json:"id"`
	Seq            uint64    `json:"seq"`
	EnsembleNumber int       `json:"ensemble_number"`
	AvgVel         float64   `json:"avg_vel"`
	AvgDir         float64   `json:"avg_dir"`
	MaxVel         float64   `json:"max_vel"`
	MinBin         int       `json:"min_bin"`
	MaxBin         int       `json:"max_bin"`
	SampleCount    int       `json:"sample_count"`
	ShipVel        float64   `json:"ship_vel"`
	ShipDir        float64   `json:"ship_dir"`
	ShipMaxVel     float64   `json:"ship_max_vel"`
	Record         string    `json:"record"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// RecordReport stores a snapshot.
func (db *DB) RecordReport(ctx context.Context, snap *watercolumn.Snapshot) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reports (
			seq, ensemble_number, avg_vel, avg_dir, max_vel, min_bin, max_bin,
			sample_count, ship_vel, ship_dir, ship_max_vel, record, recorded_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(snap.Seq), snap.EnsembleNumber,
		snap.Average.AvgVel, snap.Average.AvgDir, snap.Average.MaxVel,
		snap.Average.MinBin, snap.Average.MaxBin, snap.SampleCount,
		snap.Ship.ShipVel, snap.Ship.ShipDir, snap.Ship.ShipMaxVel,
		snap.Record, snap.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record report for ensemble %d: %w", snap.EnsembleNumber, err)
	}
	return nil
}

// Emit makes the database a processor sink. Wrap it with
// watercolumn.NewOnly so repeated ticks are stored once.
func (db *DB) Emit(ctx context.Context, snap *watercolumn.Snapshot) error {
	return db.RecordReport(ctx, snap)
}

// RecentReports returns up to limit reports, newest first.
func (db *DB) RecentReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT report_id, seq, ensemble_number, avg_vel, avg_dir, max_vel, min_bin,
			max_bin, sample_count, ship_vel, ship_dir, ship_max_vel, record, recorded_unix_ns
		FROM reports ORDER BY report_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var (
			r   Report
			seq int64
			ns  int64
		)
		if err := rows.Scan(&r.ID, &seq, &r.EnsembleNumber, &r.AvgVel, &r.AvgDir, &r.MaxVel,
			&r.MinBin, &r.MaxBin, &r.SampleCount, &r.ShipVel, &r.ShipDir, &r.ShipMaxVel,
			&r.Record, &ns); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Seq = uint64(seq)
		r.RecordedAt = time.Unix(0, ns).UTC()
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// PruneReports deletes reports recorded before cutoff and returns how many
// were removed.
func (db *DB) PruneReports(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM reports WHERE recorded_unix_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return res.RowsAffected()
}
