package hazard

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// Histogram counts cells per class; index 0 is nodata / no hazard.
type Histogram [MaxClass + 1]int

// Total returns the number of cells counted.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// Classifier grades aligned rasters with a threshold table.
type Classifier struct {
	table  Table
	logger *slog.Logger
}

// NewClassifier creates a Classifier for table. A nil table means
// DefaultTable.
func NewClassifier(table Table, logger *slog.Logger) (*Classifier, error) {
	if table == nil {
		table = DefaultTable
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{table: table, logger: logger}, nil
}

// Classify grades every cell of the VD grid. Depth and velocity must already be
// congruent with vd. A cell that is nodata in any input grades 0, applied after
// the thresholds. The result is a Byte raster on vd's grid with nodata 0.
func (c *Classifier) Classify(depth, velocity, vd *raster.Band) (*raster.Band, Histogram, error) {
	var hist Histogram
	inputs := []struct {
		role string
		band *raster.Band
	}{{domain.RoleDepth, depth}, {domain.RoleVelocity, velocity}}
	for _, in := range inputs {
		b := in.band
		if !vd.Grid.Congruent(b.Grid) || len(b.Data) != len(vd.Data) {
			return nil, hist, fmt.Errorf("classify: %s grid %dx%d against vd %dx%d: %w",
				in.role, b.Grid.Width, b.Grid.Height, vd.Grid.Width, vd.Grid.Height, domain.ErrShapeMismatch)
		}
	}

	out := &raster.Band{
		Grid: vd.Grid.WithStorage(raster.Byte, float64(NoData)),
		Data: make([]float64, len(vd.Data)),
	}
	for i := range vd.Data {
		class := NoData
		if !masked(vd, i) && !masked(depth, i) && !masked(velocity, i) {
			class = c.table.ClassOf(vd.Data[i], depth.Data[i], velocity.Data[i])
		}
		out.Data[i] = float64(class)
		hist[class]++
	}

	c.logger.Debug("classified hazard raster", "cells", hist.Total(), "nodata", hist[NoData])
	return out, hist, nil
}

func masked(b *raster.Band, i int) bool {
	return b.IsNodata(i) || math.IsNaN(b.Data[i])
}
