// Package raster holds in-memory raster grids and bands and the elementwise
// operations the hazard pipeline performs on them.
package raster

import (
	"errors"
	"math"
)

// DataType is the storage type of a band's pixels. Values are always held as
// float64 in memory; DataType decides how they are written.
type DataType int

const (
	Float64 DataType = iota
	Float32
	Byte
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Byte:
		return "Byte"
	default:
		return "Float64"
	}
}

// geoTolerance is the relative tolerance used when comparing geotransforms.
const geoTolerance = 1e-9

// Grid describes raster placement: size, affine geotransform (GDAL order:
// originX, pixelW, rotX, originY, rotY, pixelH), spatial reference and nodata.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	SpatialRef   string
	Nodata       float64
	HasNodata    bool
	DataType     DataType
}

// Cells returns Width*Height.
func (g Grid) Cells() int {
	return g.Width * g.Height
}

// Congruent reports whether two grids can be combined cell by cell: same
// size, same geotransform within tolerance and same spatial reference.
// Nodata and data type do not take part.
func (g Grid) Congruent(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height {
		return false
	}
	if g.SpatialRef != o.SpatialRef {
		return false
	}
	for i := range g.GeoTransform {
		if !closeEnough(g.GeoTransform[i], o.GeoTransform[i]) {
			return false
		}
	}
	return true
}

// PixelToGeo maps fractional pixel coordinates (col, row) to georeferenced x/y.
func (g Grid) PixelToGeo(col, row float64) (x, y float64) {
	gt := g.GeoTransform
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// GeoToPixel is the inverse of PixelToGeo.
func (g Grid) GeoToPixel(x, y float64) (col, row float64, err error) {
	gt := g.GeoTransform
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, errors.New("geotransform is not invertible")
	}
	dx := x - gt[0]
	dy := y - gt[3]
	col = (gt[5]*dx - gt[2]*dy) / det
	row = (-gt[4]*dx + gt[1]*dy) / det
	return col, row, nil
}

// WithStorage returns a copy of g with a different data type and nodata.
func (g Grid) WithStorage(dt DataType, nodata float64) Grid {
	g.DataType = dt
	g.Nodata = nodata
	g.HasNodata = true
	return g
}

func closeEnough(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= geoTolerance*scale
}
