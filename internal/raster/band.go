package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Band is a single raster band bound to a grid. Data is row-major,
// len(Data) == Grid.Cells().
type Band struct {
	Grid Grid
	Data []float64
}

// NewBand allocates a band on g filled with g's nodata (or zero).
func NewBand(g Grid) *Band {
	b := &Band{Grid: g, Data: make([]float64, g.Cells())}
	if g.HasNodata && g.Nodata != 0 {
		for i := range b.Data {
			b.Data[i] = g.Nodata
		}
	}
	return b
}

// FromValues wraps existing data, checking its length against the grid.
func FromValues(g Grid, data []float64) (*Band, error) {
	if len(data) != g.Cells() {
		return nil, fmt.Errorf("band data has %d cells, grid %dx%d needs %d", len(data), g.Width, g.Height, g.Cells())
	}
	return &Band{Grid: g, Data: data}, nil
}

// IsNodata reports whether cell i holds the band's own nodata sentinel.
// A NaN sentinel matches NaN cells.
func (b *Band) IsNodata(i int) bool {
	return isNodataValue(b.Grid, b.Data[i])
}

// NodataMask returns one flag per cell, true where the cell is nodata.
func (b *Band) NodataMask() []bool {
	mask := make([]bool, len(b.Data))
	if !b.Grid.HasNodata {
		return mask
	}
	for i := range b.Data {
		mask[i] = b.IsNodata(i)
	}
	return mask
}

func isNodataValue(g Grid, v float64) bool {
	if !g.HasNodata {
		return false
	}
	if math.IsNaN(g.Nodata) {
		return math.IsNaN(v)
	}
	return v == g.Nodata
}

// Summary describes the valid (non-nodata) cells of a band.
type Summary struct {
	Valid  int     `json:"valid"`
	Nodata int     `json:"nodata"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// Summarize computes a Summary over the band's valid cells.
func Summarize(b *Band) Summary {
	valid := make([]float64, 0, len(b.Data))
	for i, v := range b.Data {
		if b.IsNodata(i) || math.IsNaN(v) {
			continue
		}
		valid = append(valid, v)
	}
	s := Summary{Valid: len(valid), Nodata: len(b.Data) - len(valid)}
	if len(valid) == 0 {
		return s
	}
	s.Min = floats.Min(valid)
	s.Max = floats.Max(valid)
	s.Mean = stat.Mean(valid, nil)
	return s
}
