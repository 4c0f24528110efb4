package watercolumn

import (
	"math"

	"github.com/banshee-data/watercolumn/internal/adcp"
)

// RemoveShipVelocity returns a copy of an earth-frame profile with the
// vessel's velocity over ground (east, north in m/s) added back to every good
// bin, so that the profile reads water motion over ground rather than relative
// to the moving instrument. Bad bins are copied unchanged.
func RemoveShipVelocity(vectors []adcp.VelocityVector, east, north float64) []adcp.VelocityVector {
	out := make([]adcp.VelocityVector, len(vectors))
	for i, v := range vectors {
		if v.IsBad() {
			out[i] = v
			continue
		}
		rad := v.DirectionYNorth * math.Pi / 180
		e := v.Magnitude*math.Sin(rad) + east
		n := v.Magnitude*math.Cos(rad) + north
		out[i] = adcp.VelocityVector{Magnitude: math.Hypot(e, n), DirectionYNorth: bearing(e, n)}
	}
	return out
}

// MarkBadBelowBottom returns a copy of the profile with every bin whose far
// edge lies below the bottom track depth set to the bad velocity sentinel.
// Without a bottom track range the profile is copied unchanged.
func MarkBadBelowBottom(vectors []adcp.VelocityVector, ens *adcp.Ensemble) []adcp.VelocityVector {
	out := append([]adcp.VelocityVector(nil), vectors...)
	if ens.BottomTrack == nil || ens.BottomTrack.AverageRange <= 0 || ens.BinSize <= 0 {
		return out
	}
	depth := ens.BottomTrack.AverageRange * cosBeamAngle
	for i := range out {
		if float64(i+1)*ens.BinSize > depth {
			out[i] = adcp.VelocityVector{Magnitude: adcp.BadVelocity, DirectionYNorth: adcp.BadVelocity}
		}
	}
	return out
}

func bearing(east, north float64) float64 {
	deg := math.Atan2(east, north) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// profileScreen is the producer state for screening: the last good bottom
// track velocity, used when an ensemble arrives without one.
type profileScreen struct {
	east, north float64
	ok          bool
}

// apply screens the profile selected by cfg.VelocityFrame. Ship motion is
// only removed from earth-frame profiles.
func (s *profileScreen) apply(ens *adcp.Ensemble, cfg Config) []adcp.VelocityVector {
	vectors := ens.Vectors(cfg.VelocityFrame)
	if cfg.RemoveShipSpeed && cfg.VelocityFrame == adcp.FrameEarth {
		switch {
		case ens.HasGoodBottomTrack():
			bt := ens.BottomTrack.EarthVelocity
			vectors = RemoveShipVelocity(vectors, bt[adcp.BeamEast], bt[adcp.BeamNorth])
		case s.ok:
			vectors = RemoveShipVelocity(vectors, s.east, s.north)
		}
	}
	if cfg.MarkBadBelowBottom {
		vectors = MarkBadBelowBottom(vectors, ens)
	}
	return vectors
}

// remember keeps the ensemble's bottom track velocity when it is good.
func (s *profileScreen) remember(ens *adcp.Ensemble) {
	if !ens.HasGoodBottomTrack() {
		return
	}
	s.east = ens.BottomTrack.EarthVelocity[adcp.BeamEast]
	s.north = ens.BottomTrack.EarthVelocity[adcp.BeamNorth]
	s.ok = true
}
