// Package ballistics computes point-mass exterior ballistics tables: drop,
// windage, velocity, energy and time of flight at fixed range increments.
//
// Every call is a pure function of its Input. All mutable state lives in a
// SimState local to one call, so ComputeTrajectory may be called from many
// goroutines at once.
package ballistics

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/ballistics/internal/units"
)

const (
	// MinVelocity is the speed below which sampling stops.
	MinVelocity = 200.0

	// EarthRotation is Earth's angular velocity in rad/s.
	EarthRotation = 7.292115e-5

	// MaxRangeLimitYards bounds Options.MaxRangeYards.
	MaxRangeLimitYards = 5000
	// MaxRows bounds the number of grid points in one solve.
	MaxRows = 1000

	energyDivisor = 450240.0
	rowsPrealloc  = 64
	degToRad      = math.Pi / 180
)

var (
	// ErrNoTrajectory is returned when not even the first sample could be taken.
	ErrNoTrajectory = errors.New("no trajectory rows produced")
	// ErrInvalidOptions is returned for an unusable sampling grid.
	ErrInvalidOptions = errors.New("invalid options")
)

// Options controls the sampling grid.
type Options struct {
	StepYards     int `json:"step_yards"`
	MaxRangeYards int `json:"max_range_yards"`
}

// DefaultOptions samples every 25 yards out to 1000 yards.
func DefaultOptions() Options {
	return Options{StepYards: 25, MaxRangeYards: 1000}
}

// Validate checks that the grid is usable.
func (o Options) Validate() error {
	if o.StepYards <= 0 {
		return fmt.Errorf("%w: step_yards must be positive, got %d", ErrInvalidOptions, o.StepYards)
	}
	if o.MaxRangeYards < o.StepYards {
		return fmt.Errorf("%w: max_range_yards (%d) must be at least step_yards (%d)", ErrInvalidOptions, o.MaxRangeYards, o.StepYards)
	}
	if o.MaxRangeYards > MaxRangeLimitYards {
		return fmt.Errorf("%w: max_range_yards (%d) exceeds %d", ErrInvalidOptions, o.MaxRangeYards, MaxRangeLimitYards)
	}
	if n := o.MaxRangeYards / o.StepYards; n > MaxRows {
		return fmt.Errorf("%w: grid of %d rows exceeds %d", ErrInvalidOptions, n, MaxRows)
	}
	return nil
}

// TrajectoryRow is the solution at one sampled range. Drop is positive below
// the sight line; windage is positive to the right.
type TrajectoryRow struct {
	Range         int     `json:"range"` // yards
	DropInches    float64 `json:"drop_inches"`
	DropMOA       float64 `json:"drop_moa"`
	DropMIL       float64 `json:"drop_mil"`
	WindageInches float64 `json:"windage_inches"`
	WindageMOA    float64 `json:"windage_moa"`
	WindageMIL    float64 `json:"windage_mil"`
	Clicks        int     `json:"clicks"`         // elevation
	WindageClicks int     `json:"windage_clicks"` // windage
	Velocity      float64 `json:"velocity"`       // ft/s
	Energy        float64 `json:"energy"`         // ft·lb
	Time          float64 `json:"time"`           // s
}

// ComputeTrajectory solves the shot on the default grid.
func ComputeTrajectory(in Input) ([]TrajectoryRow, error) {
	return ComputeTrajectoryWithOptions(in, DefaultOptions())
}

// ComputeTrajectoryWithOptions solves the shot on a custom grid.
func ComputeTrajectoryWithOptions(in Input, opts Options) ([]TrajectoryRow, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	in = in.normalize()

	env := Environment{
		BC:           in.BallisticCoefficient,
		Model:        in.DragModel,
		DensityRatio: DensityRatio(in),
		SpeedOfSound: SpeedOfSound(in.Temperature),
	}
	angle := SolveZeroAngle(in.MuzzleVelocity, env, in.ZeroRange, in.SightHeight/12)

	rows := Sample(in, env, angle, opts)
	if len(rows) == 0 {
		return nil, ErrNoTrajectory
	}
	return rows, nil
}

// Sample integrates from the muzzle at the given bore angle and emits one row
// per grid range until the maximum range, a stall, or MinVelocity.
func Sample(in Input, env Environment, angle float64, opts Options) []TrajectoryRow {
	s := NewSimState(in.MuzzleVelocity, angle)
	sightFeet := in.SightHeight / 12
	crosswindFps := in.WindSpeed * units.MPHToFPS * math.Sin(in.WindDirection*degToRad)
	stepFeet := float64(opts.StepYards) * 3

	var driftFeet float64
	rows := make([]TrajectoryRow, 0, min(opts.MaxRangeYards/opts.StepYards, rowsPrealloc))
	for yd := opts.StepYards; yd <= opts.MaxRangeYards; yd += opts.StepYards {
		next := Advance(s, stepFeet, env)
		if next.X < s.X+stepFeet-stallTolerance || !(next.V >= MinVelocity) {
			break
		}
		driftFeet += crosswindFps * (next.T - s.T)
		s = next
		rows = append(rows, buildRow(in, s, yd, sightFeet, driftFeet))
	}
	return rows
}

func buildRow(in Input, s SimState, yd int, sightFeet, driftFeet float64) TrajectoryRow {
	rng := float64(yd)
	drop := (sightFeet - s.Y) * 12
	windage := driftFeet * 12
	if in.IncludeCoriolis {
		windage += coriolisDeflection(in.Latitude, s.V, s.T)
	}
	if in.IncludeSpinDrift {
		sd := spinDrift(rng)
		if in.TwistDirection == TwistLeft {
			sd = -sd
		}
		windage += sd
	}

	return TrajectoryRow{
		Range:         yd,
		DropInches:    drop,
		DropMOA:       units.InchesToMOA(drop, rng),
		DropMIL:       units.InchesToMIL(drop, rng),
		WindageInches: windage,
		WindageMOA:    units.InchesToMOA(windage, rng),
		WindageMIL:    units.InchesToMIL(windage, rng),
		Clicks:        units.Clicks(units.FromInches(drop, rng, in.ClickUnit), in.ClickSize),
		WindageClicks: units.Clicks(units.FromInches(windage, rng, in.ClickUnit), in.ClickSize),
		Velocity:      s.V,
		Energy:        in.BulletWeight * s.V * s.V / energyDivisor,
		Time:          s.T,
	}
}

// coriolisDeflection returns the horizontal Coriolis term in inches.
func coriolisDeflection(latitudeDeg, v, t float64) float64 {
	return 2 * EarthRotation * math.Sin(latitudeDeg*degToRad) * v * t * 12
}

// spinDrift returns the empirical right-hand-twist drift in inches.
func spinDrift(rangeYards float64) float64 {
	f := math.Min(math.Max(rangeYards/1000, 0), 1.5)
	return units.MILToInches(0.15*math.Pow(f, 1.83), rangeYards)
}
