package units

// Speed unit constants
const (
	FPS  = "fps"
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// MPHToFPS is the factor applied to wind speeds before drift integration.
const MPHToFPS = 1.4667

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{FPS, MPS, MPH, KMPH, KPH}

// IsValid checks if the given speed unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid speed units for error messages
func GetValidUnitsString() string {
	return "fps, mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from feet per second to the target units.
// The solver works in ft/s throughout.
func ConvertSpeed(speedFPS float64, targetUnits string) float64 {
	switch targetUnits {
	case FPS:
		return speedFPS
	case MPS:
		return speedFPS * 0.3048
	case MPH:
		return speedFPS * 3600.0 / 5280.0
	case KMPH, KPH:
		return speedFPS * 1.09728
	default:
		return speedFPS
	}
}

// ConvertToFPS converts a speed in the given units to feet per second.
func ConvertToFPS(speed float64, fromUnits string) float64 {
	switch fromUnits {
	case FPS:
		return speed
	case MPS:
		return speed / 0.3048
	case MPH:
		return speed * 5280.0 / 3600.0
	case KMPH, KPH:
		return speed / 1.09728
	default:
		return speed
	}
}
