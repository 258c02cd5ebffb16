package ballistics

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/ballistics/internal/monitoring"
	"github.com/banshee-data/ballistics/internal/units"
)

var logf = monitoring.Component("ballistics")

// MinBallisticCoefficient is the floor applied to the ballistic coefficient
// before it is used as a divisor.
const MinBallisticCoefficient = 0.01

// MaxZeroRangeYards is the exclusive upper bound for a zero distance.
const MaxZeroRangeYards = 2000.0

// MinClickSize is the smallest positive turret click accepted, in angular units.
const MinClickSize = 0.001

// AbsoluteZeroCelsius is the exclusive lower bound for air temperature.
const AbsoluteZeroCelsius = -273.15

// Twist directions for spin drift.
const (
	TwistRight = "right"
	TwistLeft  = "left"
)

var (
	// ErrInvalidRange is returned when the zero range is not in (0, MaxZeroRangeYards).
	ErrInvalidRange = errors.New("invalid zero range")
	// ErrInvalidMuzzleVelocity is returned for a non-positive or non-finite muzzle velocity.
	ErrInvalidMuzzleVelocity = errors.New("invalid muzzle velocity")
	// ErrUnknownClickUnit is returned when the click unit is neither MOA nor MIL.
	ErrUnknownClickUnit = errors.New("unknown click unit")
	// ErrUnknownTwistDirection is returned when the twist direction is neither left nor right.
	ErrUnknownTwistDirection = errors.New("unknown twist direction")
	// ErrInvalidClickSize is returned for a positive click size below MinClickSize.
	ErrInvalidClickSize = errors.New("invalid click size")
	// ErrInvalidAtmosphere is returned for a non-positive pressure or a
	// temperature at or below absolute zero.
	ErrInvalidAtmosphere = errors.New("invalid atmosphere")
	// ErrNonFiniteInput is returned when a numeric field is NaN or infinite.
	ErrNonFiniteInput = errors.New("non-finite input")
)

// Input describes one shot. It is supplied whole per calculation and never
// modified by the solver.
type Input struct {
	MuzzleVelocity       float64   `json:"muzzle_velocity"`       // ft/s
	BallisticCoefficient float64   `json:"ballistic_coefficient"` // relative to DragModel
	DragModel            DragModel `json:"drag_model"`
	BulletWeight         float64   `json:"bullet_weight"` // grains
	ZeroRange            float64   `json:"zero_range"`    // yards
	SightHeight          float64   `json:"sight_height"`  // inches above bore

	WindSpeed     float64 `json:"wind_speed"`     // mph
	WindDirection float64 `json:"wind_direction"` // degrees, 90 = full value from the right

	Temperature float64 `json:"temperature"` // °C
	// Pressure and DensityAltitude are alternative density sources. When
	// both are set DensityAltitude wins; when neither is set the standard
	// atmosphere is assumed.
	Pressure        *float64 `json:"pressure,omitempty"`         // hPa
	DensityAltitude *float64 `json:"density_altitude,omitempty"` // ft
	Humidity        float64  `json:"humidity"`                   // percent, reserved

	Latitude         float64 `json:"latitude"` // degrees
	Azimuth          float64 `json:"azimuth"`  // degrees
	IncludeCoriolis  bool    `json:"include_coriolis"`
	IncludeSpinDrift bool    `json:"include_spin_drift"`
	TwistDirection   string  `json:"twist_direction,omitempty"`

	ClickUnit string  `json:"click_unit"` // "moa" or "mil"
	ClickSize float64 `json:"click_size"` // angular units per click
}

// Validate reports hard input errors. Recoverable problems such as a
// non-positive ballistic coefficient are not errors; they are clamped when
// the input is normalized.
func (in Input) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"bullet_weight", in.BulletWeight},
		{"sight_height", in.SightHeight},
		{"wind_speed", in.WindSpeed},
		{"wind_direction", in.WindDirection},
		{"temperature", in.Temperature},
		{"humidity", in.Humidity},
		{"latitude", in.Latitude},
		{"azimuth", in.Azimuth},
		{"click_size", in.ClickSize},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNonFiniteInput, f.name, f.v)
		}
	}
	if in.Pressure != nil && (math.IsNaN(*in.Pressure) || math.IsInf(*in.Pressure, 0)) {
		return fmt.Errorf("%w: pressure=%v", ErrNonFiniteInput, *in.Pressure)
	}
	if in.DensityAltitude != nil && (math.IsNaN(*in.DensityAltitude) || math.IsInf(*in.DensityAltitude, 0)) {
		return fmt.Errorf("%w: density_altitude=%v", ErrNonFiniteInput, *in.DensityAltitude)
	}

	if !(in.MuzzleVelocity > 0) || math.IsInf(in.MuzzleVelocity, 0) {
		return fmt.Errorf("%w: %v ft/s must be positive", ErrInvalidMuzzleVelocity, in.MuzzleVelocity)
	}
	if !(in.ZeroRange > 0) || in.ZeroRange >= MaxZeroRangeYards {
		return fmt.Errorf("%w: %v yd must be in (0, %v)", ErrInvalidRange, in.ZeroRange, MaxZeroRangeYards)
	}
	if in.ClickSize > 0 && in.ClickSize < MinClickSize {
		return fmt.Errorf("%w: %v is below %v", ErrInvalidClickSize, in.ClickSize, MinClickSize)
	}
	if in.Temperature <= AbsoluteZeroCelsius {
		return fmt.Errorf("%w: temperature %v °C is at or below absolute zero", ErrInvalidAtmosphere, in.Temperature)
	}
	if in.Pressure != nil && *in.Pressure <= 0 {
		return fmt.Errorf("%w: pressure %v hPa must be positive", ErrInvalidAtmosphere, *in.Pressure)
	}
	if in.DragModel != "" && !in.DragModel.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDragModel, in.DragModel)
	}
	if in.ClickUnit != "" && !units.IsValidAngular(in.ClickUnit) {
		return fmt.Errorf("%w: %q (valid: %s)", ErrUnknownClickUnit, in.ClickUnit, units.GetValidAngularUnitsString())
	}
	switch in.TwistDirection {
	case "", TwistRight, TwistLeft:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTwistDirection, in.TwistDirection)
	}
	return nil
}

// normalize returns a copy with defaults filled in and the ballistic
// coefficient floored.
func (in Input) normalize() Input {
	out := in
	if out.DragModel == "" {
		out.DragModel = G1
	}
	if out.ClickUnit == "" {
		out.ClickUnit = units.MOA
	}
	if out.TwistDirection == "" {
		out.TwistDirection = TwistRight
	}
	if bc := out.BallisticCoefficient; !(bc >= MinBallisticCoefficient) {
		logf("clamping ballistic coefficient %v to %v", bc, MinBallisticCoefficient)
		out.BallisticCoefficient = MinBallisticCoefficient
	}
	return out
}
