package units

import "math"

// inchesPerMOAAt100 is the true subtension of one minute of angle at 100 yards.
const inchesPerMOAAt100 = 1.0471975511965976

// inchesPerMILPerYard is the subtension of one milliradian per yard of range.
const inchesPerMILPerYard = 0.036

// InchesToMOA converts a linear offset at the given range into minutes of
// angle. Non-positive ranges return 0.
func InchesToMOA(inches, rangeYards float64) float64 {
	if rangeYards <= 0 {
		return 0
	}
	return inches / (inchesPerMOAAt100 * rangeYards / 100)
}

// InchesToMIL converts a linear offset at the given range into milliradians.
// Non-positive ranges return 0.
func InchesToMIL(inches, rangeYards float64) float64 {
	if rangeYards <= 0 {
		return 0
	}
	return inches / (inchesPerMILPerYard * rangeYards)
}

// MILToInches is the inverse of InchesToMIL.
func MILToInches(mil, rangeYards float64) float64 {
	return mil * inchesPerMILPerYard * rangeYards
}

// FromInches converts a linear offset into the given angular unit.
// Unknown units fall back to MOA.
func FromInches(inches, rangeYards float64, unit string) float64 {
	switch unit {
	case MIL:
		return InchesToMIL(inches, rangeYards)
	case MOA:
		return InchesToMOA(inches, rangeYards)
	default:
		return InchesToMOA(inches, rangeYards)
	}
}

// Clicks returns the number of turret clicks needed to dial the given angular
// value, rounded to the nearest click. A non-positive click size yields 0;
// counts beyond the int range saturate.
func Clicks(angular, clickSize float64) int {
	if clickSize <= 0 {
		return 0
	}
	c := math.Round(angular / clickSize)
	switch {
	case math.IsNaN(c):
		return 0
	case c >= math.MaxInt:
		return math.MaxInt
	case c <= math.MinInt:
		return math.MinInt
	}
	return int(c)
}
