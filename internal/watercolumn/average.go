package watercolumn

import "github.com/banshee-data/watercolumn/internal/adcp"

// Average is the water column average of one ensemble, or the smoothed
// average over the running window. Velocities are m/s, directions degrees
// from north.
type Average struct {
	AvgVel float64 `json:"avg_vel"`
	AvgDir float64 `json:"avg_dir"`
	MaxVel float64 `json:"max_vel"`
	MinBin int     `json:"min_bin"`
	MaxBin int     `json:"max_bin"`
}

// AverageVelocity averages magnitude and direction over bins [minBin, maxBin),
// skipping bins that carry the bad velocity sentinel. With no valid bins the
// averages are zero. The requested bin range is reported as given.
func AverageVelocity(vectors []adcp.VelocityVector, minBin, maxBin int) Average {
	var (
		sumVel, sumDir, maxVel float64
		count                  int
	)
	for x := max(minBin, 0); x < maxBin && x < len(vectors); x++ {
		v := vectors[x]
		if v.IsBad() {
			continue
		}
		if v.Magnitude > maxVel {
			maxVel = v.Magnitude
		}
		sumVel += v.Magnitude
		sumDir += v.DirectionYNorth
		count++
	}

	avg := Average{MaxVel: maxVel, MinBin: minBin, MaxBin: maxBin}
	if count > 0 {
		avg.AvgVel = sumVel / float64(count)
		avg.AvgDir = sumDir / float64(count)
	}
	return avg
}
