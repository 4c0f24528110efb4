// Package watercolumn is the streaming averaging engine. Each decoded
// ensemble is reduced to a per-ensemble water column average over a selected
// bin range, smoothed through a bounded running window, rendered as an
// $RTIAWC record and published as an immutable snapshot for a fixed-cadence
// output loop.
package watercolumn

import (
	"fmt"
	"time"

	"github.com/banshee-data/watercolumn/internal/adcp"
)

// DirectionMean selects how directions are averaged across the window.
type DirectionMean string

const (
	// DirectionArithmetic averages degrees as plain numbers. This matches the
	// records produced by the existing field software.
	DirectionArithmetic DirectionMean = "arithmetic"
	// DirectionCircular averages unit vectors, which behaves correctly
	// across the 0/360 boundary.
	DirectionCircular DirectionMean = "circular"
)

// DefaultRunningAverageCount is the window capacity DefaultConfig and the
// configuration file use. A zero MaxRunningAverageCount is kept as given and
// yields a window that retains nothing.
const DefaultRunningAverageCount = 10

// Default values filled in for the zero fields of a Config.
const (
	DefaultOutputPeriod  = time.Second
	DefaultHeadingSource = "ADCP"
)

// Config is the averaging window configuration snapshot passed to the
// processor. It replaces any process-wide settings.
type Config struct {
	MinBin                 int
	UseFixedMaxBin         bool
	FixedMaxBin            int
	MaxRunningAverageCount int
	OutputPeriod           time.Duration
	VelocityFrame          adcp.VelocityFrame
	HeadingSource          string
	DirectionMean          DirectionMean

	// RemoveShipSpeed adds the bottom track velocity (the last good one when
	// the ensemble has none) back to earth-frame profiles.
	RemoveShipSpeed bool
	// MarkBadBelowBottom drops bins that reach below the bottom track depth.
	MarkBadBelowBottom bool
}

// DefaultConfig returns the configuration used when nothing is supplied.
func DefaultConfig() Config {
	return Config{
		MaxRunningAverageCount: DefaultRunningAverageCount,
		OutputPeriod:           DefaultOutputPeriod,
		VelocityFrame:          adcp.FrameEarth,
		HeadingSource:          DefaultHeadingSource,
		DirectionMean:          DirectionArithmetic,
		RemoveShipSpeed:        true,
		MarkBadBelowBottom:     true,
	}
}

// Validate checks the invariants the processor relies on.
func (c Config) Validate() error {
	if c.MinBin < 0 {
		return fmt.Errorf("min bin must be non-negative, got %d", c.MinBin)
	}
	if c.UseFixedMaxBin && c.FixedMaxBin < 0 {
		return fmt.Errorf("fixed max bin must be non-negative, got %d", c.FixedMaxBin)
	}
	if c.MaxRunningAverageCount < 0 {
		return fmt.Errorf("max running average count must be non-negative, got %d", c.MaxRunningAverageCount)
	}
	if c.OutputPeriod <= 0 {
		return fmt.Errorf("output period must be positive, got %s", c.OutputPeriod)
	}
	switch c.DirectionMean {
	case "", DirectionArithmetic, DirectionCircular:
	default:
		return fmt.Errorf("unsupported direction mean %q", c.DirectionMean)
	}
	return nil
}

// sameSelection reports whether two configs pick the same samples, in which
// case a reconfiguration can keep the window contents.
func (c Config) sameSelection(o Config) bool {
	return c.MinBin == o.MinBin &&
		c.UseFixedMaxBin == o.UseFixedMaxBin &&
		c.FixedMaxBin == o.FixedMaxBin &&
		c.VelocityFrame == o.VelocityFrame &&
		c.DirectionMean == o.DirectionMean &&
		c.RemoveShipSpeed == o.RemoveShipSpeed &&
		c.MarkBadBelowBottom == o.MarkBadBelowBottom
}
