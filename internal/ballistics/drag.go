package ballistics

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// DragModel selects the reference drag curve a ballistic coefficient is
// expressed against.
type DragModel string

// Supported drag models
const (
	G1 DragModel = "G1"
	G7 DragModel = "G7"
)

// ErrUnknownDragModel is returned when a drag model tag is not G1 or G7.
var ErrUnknownDragModel = errors.New("unknown drag model")

// ParseDragModel accepts "g1"/"G1" and "g7"/"G7".
func ParseDragModel(s string) (DragModel, error) {
	switch DragModel(strings.ToUpper(strings.TrimSpace(s))) {
	case G1:
		return G1, nil
	case G7:
		return G7, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDragModel, s)
	}
}

// Valid reports whether m is a supported drag model.
func (m DragModel) Valid() bool {
	return m == G1 || m == G7
}

// Table returns the reference curve for the model. Unknown models fall back
// to G1.
func (m DragModel) Table() DragTable {
	if m == G7 {
		return G7Table
	}
	return G1Table
}

// Interpolator evaluates a drag table at arbitrary Mach numbers. Values
// outside the tabulated range are held flat at the end points and values at
// a knot are returned exactly.
type Interpolator struct {
	pl       interp.PiecewiseLinear
	constant bool
	cd       float64
}

// NewInterpolator fits a piecewise-linear curve through the table. The
// table must be non-empty and strictly increasing in Mach.
func NewInterpolator(table DragTable) (*Interpolator, error) {
	if len(table) == 0 {
		return nil, errors.New("drag table is empty")
	}
	if len(table) == 1 {
		return &Interpolator{constant: true, cd: table[0].Cd}, nil
	}
	xs := make([]float64, len(table))
	ys := make([]float64, len(table))
	for i, p := range table {
		if i > 0 && p.Mach <= table[i-1].Mach {
			return nil, fmt.Errorf("drag table not strictly increasing at index %d (mach %g)", i, p.Mach)
		}
		xs[i] = p.Mach
		ys[i] = p.Cd
	}
	ip := &Interpolator{}
	if err := ip.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("failed to fit drag table: %w", err)
	}
	return ip, nil
}

// Cd returns the drag coefficient at the given Mach number.
func (ip *Interpolator) Cd(mach float64) float64 {
	if ip.constant {
		return ip.cd
	}
	return ip.pl.Predict(mach)
}

func mustInterpolator(table DragTable) *Interpolator {
	ip, err := NewInterpolator(table)
	if err != nil {
		panic(err)
	}
	return ip
}

// Fitted once and only read afterwards.
var (
	g1Interpolator = mustInterpolator(G1Table)
	g7Interpolator = mustInterpolator(G7Table)
)

// Interpolate evaluates an arbitrary table at mach. Prefer DragCoefficient
// for the built-in models, which reuses the curves fitted at start-up.
func Interpolate(table DragTable, mach float64) (float64, error) {
	ip, err := NewInterpolator(table)
	if err != nil {
		return 0, err
	}
	return ip.Cd(mach), nil
}

// DragCoefficient returns the reference drag coefficient for the model at
// the given Mach number.
func DragCoefficient(model DragModel, mach float64) float64 {
	if model == G7 {
		return g7Interpolator.Cd(mach)
	}
	return g1Interpolator.Cd(mach)
}
