// Package hazard grades aligned depth, velocity and VD rasters into the ARR
// combined flood hazard classes H1 to H6.
package hazard

import (
	"fmt"
	"math"
)

// NoData is the class of cells where any input is nodata. It doubles as the
// storage nodata value of hazard rasters.
const NoData uint8 = 0

// MaxClass is the most severe hazard class.
const MaxClass uint8 = 6

// unbounded marks a criterion a class does not use.
var unbounded = math.Inf(1)

// Threshold is one row of a classification table. A cell meets the class when
// any of its inputs strictly exceeds the matching limit.
type Threshold struct {
	Class    uint8
	VD       float64
	Depth    float64
	Velocity float64
}

// Triggered reports whether the cell values meet this threshold.
func (t Threshold) Triggered(vd, depth, velocity float64) bool {
	return vd > t.VD || depth > t.Depth || velocity > t.Velocity
}

// Table is an ordered list of thresholds, least severe first.
type Table []Threshold

// DefaultTable holds the ARR combined hazard curves.
//
// Class 6 shares the VD > 4.0 clause of class 5 and has no other limit, so
// every cell with VD above 4.0 grades 6.
var DefaultTable = Table{
	{Class: 1, VD: 0, Depth: 0.3, Velocity: 2.0},
	{Class: 2, VD: 0.3, Depth: 0.5, Velocity: unbounded},
	{Class: 3, VD: 0.6, Depth: 1.2, Velocity: unbounded},
	{Class: 4, VD: 1.0, Depth: 2.0, Velocity: unbounded},
	{Class: 5, VD: 4.0, Depth: 4.0, Velocity: 4.0},
	{Class: 6, VD: 4.0, Depth: unbounded, Velocity: unbounded},
}

// Validate checks that the table lists classes 1..MaxClass in order.
func (t Table) Validate() error {
	if len(t) != int(MaxClass) {
		return fmt.Errorf("hazard table has %d classes, want %d", len(t), MaxClass)
	}
	for i, th := range t {
		if th.Class != uint8(i+1) {
			return fmt.Errorf("hazard table row %d has class %d, want %d", i, th.Class, i+1)
		}
		if math.IsNaN(th.VD) || math.IsNaN(th.Depth) || math.IsNaN(th.Velocity) {
			return fmt.Errorf("hazard table class %d has a NaN limit", th.Class)
		}
	}
	return nil
}

// ClassOf grades a single valid cell. Every row is evaluated in order and the
// last triggered class wins, so the result is the most severe class met.
// Cells that meet no row are 0.
func (t Table) ClassOf(vd, depth, velocity float64) uint8 {
	class := NoData
	for _, th := range t {
		if th.Triggered(vd, depth, velocity) {
			class = th.Class
		}
	}
	return class
}

// ClassOf grades a single valid cell with DefaultTable.
func ClassOf(vd, depth, velocity float64) uint8 {
	return DefaultTable.ClassOf(vd, depth, velocity)
}
