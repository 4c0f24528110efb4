package watercolumn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/testutil"
)

func TestRemoveShipVelocity(t *testing.T) {
	in := []adcp.VelocityVector{
		{Magnitude: 1, DirectionYNorth: 0},  // 1 m/s north
		{Magnitude: 2, DirectionYNorth: 90}, // 2 m/s east
		{Magnitude: adcp.BadVelocity, DirectionYNorth: adcp.BadVelocity},
	}
	// vessel making 1 m/s east
	got := RemoveShipVelocity(in, 1, 0)

	require.Len(t, got, 3)
	assert.InDelta(t, 1.4142135623730951, got[0].Magnitude, 1e-9)
	assert.InDelta(t, 45, got[0].DirectionYNorth, 1e-9)
	assert.InDelta(t, 3, got[1].Magnitude, 1e-9)
	assert.InDelta(t, 90, got[1].DirectionYNorth, 1e-9)
	assert.True(t, got[2].IsBad())

	// input untouched
	assert.Equal(t, 1.0, in[0].Magnitude)
}

func TestRemoveShipVelocityDirectionRange(t *testing.T) {
	got := RemoveShipVelocity([]adcp.VelocityVector{{Magnitude: 1, DirectionYNorth: 0}}, -2, 0)
	assert.InDelta(t, 360-63.43494882292201, got[0].DirectionYNorth, 1e-9)
}

func TestMarkBadBelowBottom(t *testing.T) {
	ens := testutil.UniformEnsemble(1, 1, 0, 6)
	ens.BinSize = 1
	// 2.5m vertical to the bottom
	ens.BottomTrack = &adcp.BottomTrack{AverageRange: 2.5 / cosBeamAngle}

	got := MarkBadBelowBottom(ens.EarthVelocity, ens)
	for i, v := range got {
		assert.Equal(t, i >= 2, v.IsBad(), "bin %d", i)
	}
	assert.False(t, ens.EarthVelocity[5].IsBad())

	ens.BottomTrack = nil
	assert.Equal(t, ens.EarthVelocity, MarkBadBelowBottom(ens.EarthVelocity, ens))
}

func TestProfileScreenUsesPreviousBottomTrack(t *testing.T) {
	cfg := Config{RemoveShipSpeed: true, VelocityFrame: adcp.FrameEarth}
	var s profileScreen

	// no bottom track seen yet: profile passes through
	ens := testutil.UniformEnsemble(1, 1, 0, 2)
	assert.Equal(t, ens.EarthVelocity, s.apply(ens, cfg))
	s.remember(ens)

	good := testutil.UniformEnsemble(2, 1, 0, 2)
	good.BottomTrack = &adcp.BottomTrack{EarthVelocity: [3]float64{0, 1, 0}, EarthVelocityGood: true}
	got := s.apply(good, cfg)
	assert.InDelta(t, 2, got[0].Magnitude, 1e-9)
	s.remember(good)

	// bad bottom track: last good velocity is reused
	lost := testutil.UniformEnsemble(3, 1, 0, 2)
	lost.BottomTrack = &adcp.BottomTrack{EarthVelocity: [3]float64{5, 5, 0}}
	got = s.apply(lost, cfg)
	assert.InDelta(t, 2, got[0].Magnitude, 1e-9)
	s.remember(lost)
	assert.Equal(t, 1.0, s.north)

	// instrument frame profiles are never corrected
	cfg.VelocityFrame = adcp.FrameInstrument
	lost.InstrumentVelocity = []adcp.VelocityVector{{Magnitude: 1}}
	assert.Equal(t, lost.InstrumentVelocity, s.apply(lost, cfg))
}

func TestProcessorScreensProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRunningAverageCount = 1
	p, _ := newTestProcessor(t, cfg)

	// 1 m/s north measured from a vessel making 1 m/s south
	ens := testutil.UniformEnsemble(1, 1, 0, 4)
	ens.BottomTrack = &adcp.BottomTrack{EarthVelocity: [3]float64{0, -1, 0}, EarthVelocityGood: true}
	snap := p.OnEnsemble(ens)
	assert.InDelta(t, 0, snap.Average.AvgVel, 1e-9)
	assert.Equal(t, 1.0, ens.EarthVelocity[0].Magnitude, "caller's ensemble is not modified")

	// bottom inside the profile with a fixed max bin: bins below it are bad
	p2, _ := newTestProcessor(t, Config{MaxRunningAverageCount: 1, UseFixedMaxBin: true, FixedMaxBin: 4, MarkBadBelowBottom: true})
	ens = testutil.UniformEnsemble(2, 2, 10, 4)
	ens.BinSize = 1
	ens.BottomTrack = &adcp.BottomTrack{AverageRange: 2.5 / cosBeamAngle}
	snap = p2.OnEnsemble(ens)
	assert.Equal(t, 2.0, snap.Average.AvgVel)
	assert.Equal(t, []BinRow{
		{Bin: 1, Mag: "2.00", Dir: "10.00"},
		{Bin: 2, Mag: "2.00", Dir: "10.00"},
		{Bin: 3, Mag: "-", Dir: "-"},
		{Bin: 4, Mag: "-", Dir: "-"},
	}, snap.Bins)
}

func TestReconfigureScreeningRestartsWindow(t *testing.T) {
	p, _ := newTestProcessor(t, Config{MaxRunningAverageCount: 4})
	p.OnEnsemble(testutil.UniformEnsemble(1, 1, 0, 2))
	require.NoError(t, p.Reconfigure(Config{MaxRunningAverageCount: 4, RemoveShipSpeed: true}))
	snap := p.OnEnsemble(testutil.UniformEnsemble(2, 1, 0, 2))
	assert.Equal(t, 1, snap.SampleCount)
}
