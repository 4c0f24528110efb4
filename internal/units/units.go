// Package units provides shared constants and conversions for speed units
package units

// Unit constants
const (
	MPS   = "mps"
	KNOTS = "knots"
	KMPH  = "kmph"
	KPH   = "kph"
	MPH   = "mph"
)

const (
	mpsPerKnot = 0.514444
	mpsPerKPH  = 1 / 3.6
	mpsPerMPH  = 0.44704
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, KNOTS, KMPH, KPH, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, knots, kmph, kph, mph"
}

// ToMPS converts a speed in the given units to meters per second. The
// averager and ship tracker work in m/s throughout.
func ToMPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case KNOTS:
		return speed * mpsPerKnot
	case KMPH, KPH:
		return speed * mpsPerKPH
	case MPH:
		return speed * mpsPerMPH
	default:
		return speed
	}
}

// ConvertSpeed converts a speed from meters per second to the target units
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case KNOTS:
		return speedMPS / mpsPerKnot
	case KMPH, KPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS / mpsPerMPH
	default:
		return speedMPS
	}
}
