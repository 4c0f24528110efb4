// Package adcp holds the decoded ensemble model consumed by the water column
// averager, plus the small pieces of line handling (ensemble feed, NMEA
// navigation, command sets) needed to talk to the instrument.
package adcp

import (
	"math"
	"strings"
)

// BadVelocity is the sentinel written by the instrument for a bin or beam
// with no valid velocity.
const BadVelocity = 88.888

// Beam indices into earth-frame velocity arrays.
const (
	BeamEast = iota
	BeamNorth
	BeamVertical
)

// VelocityVector is the magnitude and direction (Y axis = north) of a single
// depth bin.
type VelocityVector struct {
	Magnitude       float64 `json:"mag"`
	DirectionYNorth float64 `json:"dir"`
}

// IsBad reports whether the vector carries the bad-velocity sentinel.
func (v VelocityVector) IsBad() bool {
	return v.Magnitude == BadVelocity
}

// BottomTrack is the bottom-referenced block of an ensemble.
type BottomTrack struct {
	AverageRange      float64    `json:"avg_range"`
	EarthVelocity     [3]float64 `json:"earth_vel"`
	EarthVelocityGood bool       `json:"earth_vel_good"`
}

// Magnitude returns the horizontal speed over ground from the earth-frame
// bottom track velocity.
func (bt *BottomTrack) Magnitude() float64 {
	return math.Hypot(bt.EarthVelocity[BeamEast], bt.EarthVelocity[BeamNorth])
}

// Direction returns the bottom track course in degrees from north, in the
// range [0, 360).
func (bt *BottomTrack) Direction() float64 {
	deg := math.Atan2(bt.EarthVelocity[BeamEast], bt.EarthVelocity[BeamNorth]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Navigation carries the GPS derived values attached to an ensemble. Each
// value has its own validity flag since the sentences arrive independently.
type Navigation struct {
	SpeedOverGround float64 `json:"sog_mps"`
	SpeedValid      bool    `json:"sog_valid"`
	Bearing         float64 `json:"bearing"`
	BearingValid    bool    `json:"bearing_valid"`
	Heading         float64 `json:"heading"`
	HeadingValid    bool    `json:"heading_valid"`
}

// Ensemble is one decoded ping cycle.
type Ensemble struct {
	EnsembleNumber     int              `json:"ensemble_number"`
	NumBins            int              `json:"num_bins"`
	BinSize            float64          `json:"bin_size"`
	EarthVelocity      []VelocityVector `json:"earth_velocity,omitempty"`
	InstrumentVelocity []VelocityVector `json:"instrument_velocity,omitempty"`
	BottomTrack        *BottomTrack     `json:"bottom_track,omitempty"`
	Navigation         *Navigation      `json:"navigation,omitempty"`
}

// HasGoodBottomTrack reports whether the ensemble carries a bottom track block
// with good earth velocity.
func (e *Ensemble) HasGoodBottomTrack() bool {
	return e.BottomTrack != nil && e.BottomTrack.EarthVelocityGood
}

// VelocityFrame selects which velocity array feeds the averager.
type VelocityFrame string

const (
	FrameEarth      VelocityFrame = "earth"
	FrameInstrument VelocityFrame = "instrument"
)

// ParseVelocityFrame accepts "earth"/"instrument" in any case. Unknown values
// fall back to earth.
func ParseVelocityFrame(s string) VelocityFrame {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "instrument", "instr":
		return FrameInstrument
	default:
		return FrameEarth
	}
}

// Vectors returns the velocity vectors for the given frame.
func (e *Ensemble) Vectors(frame VelocityFrame) []VelocityVector {
	if frame == FrameInstrument {
		return e.InstrumentVelocity
	}
	return e.EarthVelocity
}
