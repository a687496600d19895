// Package units provides shared constants, validation and conversions for
// speed units. The simulation works in km/h for speeds and m/s for the
// kinematic integration, so most callers go through KphToMps and MpsToKph.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// KphPerMps is the km/h to m/s conversion factor.
const KphPerMps = 3.6

const mphPerMps = 2.2369362920544

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

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
	return "mps, mph, kmph, kph"
}

// KphToMps converts km/h to m/s.
func KphToMps(kph float64) float64 {
	return kph / KphPerMps
}

// MpsToKph converts m/s to km/h.
func MpsToKph(mps float64) float64 {
	return mps * KphPerMps
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units return the value unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * mphPerMps
	case KMPH, KPH:
		return speedMPS * KphPerMps
	default:
		return speedMPS
	}
}

// ConvertKph converts a speed stored in km/h (the simulation's native speed
// unit) to the target units.
func ConvertKph(speedKph float64, targetUnits string) float64 {
	switch targetUnits {
	case KMPH, KPH:
		return speedKph
	default:
		return ConvertSpeed(KphToMps(speedKph), targetUnits)
	}
}
