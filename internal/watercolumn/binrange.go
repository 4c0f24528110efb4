package watercolumn

import (
	"math"

	"github.com/banshee-data/watercolumn/internal/adcp"
)

// BeamAngleDegrees is the transducer beam angle from vertical.
const BeamAngleDegrees = 20.0

var cosBeamAngle = math.Cos(BeamAngleDegrees * math.Pi / 180)

// SelectBinRange returns the bin range [minBin, maxBin) to average for an
// ensemble. The minimum comes straight from the config. The maximum is the
// fixed value when enabled and within the ensemble, otherwise it is derived
// from the bottom track range, falling back to the ensemble bin count.
func SelectBinRange(ens *adcp.Ensemble, cfg Config) (minBin, maxBin int) {
	minBin = cfg.MinBin
	maxBin = ens.NumBins

	if cfg.UseFixedMaxBin && cfg.FixedMaxBin <= ens.NumBins {
		maxBin = cfg.FixedMaxBin
	} else if ens.BottomTrack != nil {
		// vertical range to the bottom, in bins, less one bin for side lobe
		// contamination near the bottom
		rng := ens.BottomTrack.AverageRange * cosBeamAngle
		if ens.BinSize != 0 {
			maxBin = int(math.RoundToEven(rng/ens.BinSize - 1))
		}
	}

	if maxBin <= 0 {
		maxBin = ens.NumBins
	}
	return minBin, maxBin
}
