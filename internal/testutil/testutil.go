// Package testutil provides shared test fixtures for the averaging pipeline.
package testutil

import (
	"testing"
	"time"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/monitoring"
)

// Epoch is the fixed start time used with mock clocks.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// UniformEnsemble builds an ensemble whose earth velocity bins all carry
// the same magnitude and direction.
func UniformEnsemble(num int, mag, dir float64, bins int) *adcp.Ensemble {
	vv := make([]adcp.VelocityVector, bins)
	for i := range vv {
		vv[i] = adcp.VelocityVector{Magnitude: mag, DirectionYNorth: dir}
	}
	return &adcp.Ensemble{EnsembleNumber: num, NumBins: bins, BinSize: 0.5, EarthVelocity: vv}
}

// WithBadBins replaces the listed bins with the bad velocity sentinel.
func WithBadBins(ens *adcp.Ensemble, bins ...int) *adcp.Ensemble {
	for _, b := range bins {
		ens.EarthVelocity[b] = adcp.VelocityVector{Magnitude: adcp.BadVelocity, DirectionYNorth: adcp.BadVelocity}
	}
	return ens
}

// CaptureLogs routes the diagnostic logger to t.Logf for the duration of the
// test.
func CaptureLogs(t testing.TB) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}
