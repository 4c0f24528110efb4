package watercolumn

import (
	"strconv"

	"github.com/banshee-data/watercolumn/internal/adcp"
)

// BinRow is one row of the per-bin water table shown alongside the averages.
type BinRow struct {
	Bin int    `json:"bin"`
	Mag string `json:"mag"`
	Dir string `json:"dir"`
}

// WaterTable lists every bin of the ensemble, numbered from 1, with bad
// values shown as "-".
func WaterTable(vectors []adcp.VelocityVector) []BinRow {
	rows := make([]BinRow, 0, len(vectors))
	for x, v := range vectors {
		rows = append(rows, BinRow{
			Bin: x + 1,
			Mag: formatBinValue(v.Magnitude),
			Dir: formatBinValue(v.DirectionYNorth),
		})
	}
	return rows
}

func formatBinValue(v float64) string {
	if v == adcp.BadVelocity {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
