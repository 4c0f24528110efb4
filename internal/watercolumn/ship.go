package watercolumn

import (
	"math"

	"github.com/banshee-data/watercolumn/internal/adcp"
)

// ShipData is the platform's own motion for one ensemble together with the
// largest ship speed seen since start or the last reset.
type ShipData struct {
	ShipVel    float64 `json:"ship_vel"`
	ShipDir    float64 `json:"ship_dir"`
	ShipMaxVel float64 `json:"ship_max_vel"`
}

// ExtractShipData derives ship speed and direction from an ensemble.
//
// Only ensembles that carry navigation data produce a speed or direction. GPS
// speed over ground is preferred over bottom track speed; for direction the
// GPS heading wins over the GPS bearing, then the bottom track course. The
// returned running maximum is max(runningMax, ShipVel) for every call.
func ExtractShipData(ens *adcp.Ensemble, runningMax float64) (ShipData, float64) {
	var sd ShipData

	if nav := ens.Navigation; nav != nil {
		switch {
		case nav.SpeedValid:
			sd.ShipVel = nav.SpeedOverGround
		case ens.HasGoodBottomTrack():
			sd.ShipVel = ens.BottomTrack.Magnitude()
		}

		switch {
		case nav.HeadingValid:
			sd.ShipDir = nav.Heading
		case nav.BearingValid:
			sd.ShipDir = nav.Bearing
		case ens.HasGoodBottomTrack():
			sd.ShipDir = ens.BottomTrack.Direction()
		}
	}

	runningMax = math.Max(runningMax, sd.ShipVel)
	sd.ShipMaxVel = runningMax
	return sd, runningMax
}

// ShipTracker holds the running maximum ship speed between ensembles. It is
// owned by the producer and not safe for concurrent use.
type ShipTracker struct {
	max float64
}

// Extract computes ship data for an ensemble and advances the running max.
func (t *ShipTracker) Extract(ens *adcp.Ensemble) ShipData {
	var sd ShipData
	sd, t.max = ExtractShipData(ens, t.max)
	return sd
}

// Max returns the running maximum ship speed.
func (t *ShipTracker) Max() float64 { return t.max }

// Reset clears the running maximum.
func (t *ShipTracker) Reset() { t.max = 0 }
