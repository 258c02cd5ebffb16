package ballistics

import (
	"math"

	"github.com/banshee-data/ballistics/internal/units"
)

const (
	// StandardSpeedOfSound is the speed of sound at 59°F, in ft/s.
	StandardSpeedOfSound = 1116.4
	// StandardTemperatureRankine is 59°F expressed in °R.
	StandardTemperatureRankine = 518.67
	// StandardPressureInHg is sea-level standard pressure.
	StandardPressureInHg = 29.92126

	minDensityAltitude = -3000.0
	maxDensityAltitude = 80000.0
	minTemperatureR    = 1.0
)

// SpeedOfSound returns the local speed of sound in ft/s for an air
// temperature in °C.
func SpeedOfSound(tempC float64) float64 {
	r := math.Max(units.FahrenheitToRankine(units.CelsiusToFahrenheit(tempC)), minTemperatureR)
	return StandardSpeedOfSound * math.Sqrt(r/StandardTemperatureRankine)
}

// DensityRatio returns local air density relative to the standard
// atmosphere. Density altitude is honoured first, then pressure with
// temperature; otherwise the standard atmosphere (1.0) is assumed.
func DensityRatio(in Input) float64 {
	switch {
	case in.DensityAltitude != nil:
		h := math.Min(math.Max(*in.DensityAltitude, minDensityAltitude), maxDensityAltitude)
		return math.Pow(1-6.87535e-6*h, 4.2561)
	case in.Pressure != nil:
		inHg := units.HectopascalsToInHg(*in.Pressure)
		r := math.Max(units.FahrenheitToRankine(units.CelsiusToFahrenheit(in.Temperature)), minTemperatureR)
		return math.Max(0, (inHg/StandardPressureInHg)*(StandardTemperatureRankine/r))
	default:
		return 1.0
	}
}
