package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/ballistics/internal/ballistics"
	"github.com/banshee-data/ballistics/internal/units"
)

// writeTable prints rows as aligned columns. Angular columns use clickUnit.
func writeTable(w io.Writer, rows []ballistics.TrajectoryRow, velocityUnits, clickUnit string) error {
	angular := strings.ToUpper(clickUnit)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Range\tDrop\tDrop\tClicks\tWind\tWind\tClicks\tVelocity\tEnergy\tTime\t\n")
	fmt.Fprintf(tw, "yd\tin\t%s\t\tin\t%s\t\t%s\tft·lb\ts\t\n", angular, angular, velocityUnits)
	for _, r := range rows {
		drop, wind := r.DropMOA, r.WindageMOA
		if clickUnit == units.MIL {
			drop, wind = r.DropMIL, r.WindageMIL
		}
		fmt.Fprintf(tw, "%d\t%.1f\t%.2f\t%d\t%.1f\t%.2f\t%d\t%.0f\t%.0f\t%.3f\t\n",
			r.Range, r.DropInches, drop, r.Clicks, r.WindageInches, wind, r.WindageClicks,
			r.Velocity, r.Energy, r.Time)
	}
	return tw.Flush()
}
