package ballistics

import "math"

const (
	zeroSearchIterations = 24
	maxZeroAngle         = 5 * math.Pi / 180
	zeroChunkFeet        = 75.0

	// stallTolerance is how far short of the requested distance Advance may
	// stop before the run is treated as stalled.
	stallTolerance = 1e-6
)

// SolveZeroAngle returns the bore inclination in radians, within [0°, 5°],
// at which the trajectory meets the sight line at the zero range.
func SolveZeroAngle(v0 float64, env Environment, zeroRangeYards, sightHeightFeet float64) float64 {
	target := zeroRangeYards * 3
	lo, hi := 0.0, maxZeroAngle
	for i := 0; i < zeroSearchIterations; i++ {
		mid := (lo + hi) / 2
		y, ok := heightAt(v0, mid, env, target)
		if ok && y > sightHeightFeet {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2
}

// heightAt integrates a fresh state from the muzzle to targetFeet. ok is false
// if the run stalled before reaching it.
func heightAt(v0, angle float64, env Environment, targetFeet float64) (y float64, ok bool) {
	s := NewSimState(v0, angle)
	for s.X < targetFeet-stallTolerance {
		dx := math.Min(zeroChunkFeet, targetFeet-s.X)
		next := Advance(s, dx, env)
		if next.X < s.X+dx-stallTolerance {
			return next.Y, false
		}
		s = next
	}
	return s.Y, true
}
