package ballistics

import "math"

const (
	// Gravity is standard gravitational acceleration in ft/s².
	Gravity = 32.174

	// standardAirDensity is sea-level air density in slug/ft³.
	standardAirDensity = 0.0023769

	// BC is a sectional density ratio in lb/in², so retardation is
	// ρr·g·Cd·dragScale·v²/BC rather than ρr·g·Cd/BC. Dropping dragScale and
	// v² leaves drag independent of speed. π/(8·144) comes from the
	// reference projectile's frontal area.
	dragScale = math.Pi * standardAirDensity / 1152

	maxSubsteps     = 20
	substepLengthFt = 15.0
	transonicLow    = 0.8
	transonicHigh   = 1.2
	minSpeedOfSound = 1.0
)

// Environment carries everything the integrator needs besides the state.
type Environment struct {
	BC           float64
	Model        DragModel
	DensityRatio float64
	SpeedOfSound float64 // ft/s
}

// SimState is the projectile state during one integration run. Positions are
// in feet, with Y measured from the bore line at the muzzle.
type SimState struct {
	X  float64 // downrange, ft
	Y  float64 // vertical, ft
	VX float64 // ft/s
	VY float64 // ft/s
	V  float64 // ft/s
	T  float64 // s
}

// NewSimState returns the state at the muzzle for a launch angle in radians.
func NewSimState(v0, angle float64) SimState {
	return SimState{
		VX: v0 * math.Cos(angle),
		VY: v0 * math.Sin(angle),
		V:  v0,
	}
}

func substepCount(dxFeet, mach float64) int {
	if mach >= transonicLow && mach <= transonicHigh {
		return maxSubsteps
	}
	n := int(math.Ceil(dxFeet / substepLengthFt))
	if n < 1 {
		return 1
	}
	if n > maxSubsteps {
		return maxSubsteps
	}
	return n
}

// Advance moves the state dxFeet downrange. If the horizontal velocity is or
// becomes non-positive the last valid state is returned, so callers detect a
// stall by checking how far X moved.
func Advance(s SimState, dxFeet float64, env Environment) SimState {
	if s.VX <= 0 || !(dxFeet > 0) {
		return s
	}
	bc := env.BC
	if !(bc >= MinBallisticCoefficient) {
		bc = MinBallisticCoefficient
	}
	sos := math.Max(env.SpeedOfSound, minSpeedOfSound)

	n := substepCount(dxFeet, s.V/sos)
	ds := dxFeet / float64(n)
	for i := 0; i < n; i++ {
		v := math.Hypot(s.VX, s.VY)
		dt := ds / s.VX

		cd := DragCoefficient(env.Model, v/sos)
		a := -(env.DensityRatio * Gravity * cd * dragScale * v * v) / bc

		vx := s.VX + a*(s.VX/v)*dt
		vy := s.VY + a*(s.VY/v)*dt - Gravity*dt
		if !(vx > 0) || math.IsNaN(vy) {
			return s
		}

		avgVX := (s.VX + vx) / 2
		avgVY := (s.VY + vy) / 2
		step := ds / avgVX

		s.X += ds
		s.Y += avgVY * step
		s.T += step
		s.VX, s.VY = vx, vy
		s.V = math.Hypot(vx, vy)
	}
	return s
}
