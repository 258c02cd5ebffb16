// Package units provides shared constants, validation and conversions for the
// angular, speed and atmospheric units used by the trajectory solver.
package units

// Angular unit constants, used for sight adjustments and click sizes.
const (
	MOA = "moa"
	MIL = "mil"
)

// ValidAngularUnits contains all valid angular unit values
var ValidAngularUnits = []string{MOA, MIL}

// IsValidAngular checks if the given unit is in the list of valid angular units
func IsValidAngular(unit string) bool {
	for _, validUnit := range ValidAngularUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidAngularUnitsString returns a comma-separated string of valid angular units for error messages
func GetValidAngularUnitsString() string {
	return "moa, mil"
}

// CelsiusToFahrenheit converts a temperature in °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// FahrenheitToRankine converts a temperature in °F to °R.
func FahrenheitToRankine(f float64) float64 {
	return f + 459.67
}

// HectopascalsToInHg converts a barometric pressure from hPa to inches of mercury.
func HectopascalsToInHg(hpa float64) float64 {
	return hpa * 0.029529983071445
}
