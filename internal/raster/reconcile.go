package raster

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
)

// Reconciler makes secondary bands congruent with a reference band.
type Reconciler struct {
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Align opens each path from store and reconciles it onto ref's grid. A
// secondary that cannot be opened is a reprojection failure.
func (r *Reconciler) Align(store Store, ref *Band, paths ...string) ([]*Band, error) {
	others := make([]*Band, len(paths))
	for i, p := range paths {
		b, err := store.Open(p)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", domain.ErrReprojection, p, err)
		}
		others[i] = b
	}
	return r.Reconcile(ref, others...)
}

// Reconcile returns others in order, each either unchanged (already congruent
// with ref) or bilinearly resampled onto ref's grid. A spatial reference
// mismatch reprojects pixel centres into the secondary's CRS before sampling.
func (r *Reconciler) Reconcile(ref *Band, others ...*Band) ([]*Band, error) {
	out := make([]*Band, len(others))
	for i, o := range others {
		if ref.Grid.Congruent(o.Grid) {
			out[i] = o
			continue
		}
		r.logger.Debug("resampling band onto reference grid",
			"src_size", fmt.Sprintf("%dx%d", o.Grid.Width, o.Grid.Height),
			"ref_size", fmt.Sprintf("%dx%d", ref.Grid.Width, ref.Grid.Height),
			"reproject", o.Grid.SpatialRef != ref.Grid.SpatialRef,
		)
		rs, err := resample(ref.Grid, o)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrReprojection, err)
		}
		out[i] = rs
	}
	return out, nil
}

// resample samples src at every pixel centre of dst. The result keeps src's
// data type and nodata; cells that land outside src are nodata. A src without
// a nodata value gets NaN as its sentinel.
func resample(dst Grid, src *Band) (*Band, error) {
	toSrc, err := coordTransform(dst.SpatialRef, src.Grid.SpatialRef)
	if err != nil {
		return nil, err
	}
	if _, _, err := src.Grid.GeoToPixel(0, 0); err != nil {
		return nil, fmt.Errorf("source grid: %w", err)
	}

	grid := dst
	grid.DataType = src.Grid.DataType
	grid.HasNodata = true
	grid.Nodata = src.Grid.Nodata
	if !src.Grid.HasNodata {
		grid.Nodata = math.NaN()
	}

	out := &Band{Grid: grid, Data: make([]float64, grid.Cells())}
	for row := 0; row < dst.Height; row++ {
		for col := 0; col < dst.Width; col++ {
			x, y := dst.PixelToGeo(float64(col)+0.5, float64(row)+0.5)
			sx, sy, err := toSrc(x, y)
			if err != nil {
				return nil, fmt.Errorf("transform (%g, %g): %w", x, y, err)
			}
			c, r, _ := src.Grid.GeoToPixel(sx, sy)
			v, ok := bilinear(src, c-0.5, r-0.5)
			if !ok {
				v = grid.Nodata
			}
			out.Data[row*dst.Width+col] = v
		}
	}
	return out, nil
}

// bilinear interpolates src at fractional cell-centre coordinates (fx, fy).
// Nodata neighbours are dropped and the remaining weights renormalised;
// neighbours past the edge are clamped.
func bilinear(src *Band, fx, fy float64) (float64, bool) {
	w, h := src.Grid.Width, src.Grid.Height
	if fx < -0.5 || fy < -0.5 || fx > float64(w)-0.5 || fy > float64(h)-0.5 {
		return 0, false
	}

	x0 := math.Floor(fx)
	y0 := math.Floor(fy)
	tx := fx - x0
	ty := fy - y0

	taps := [4]struct {
		col, row int
		weight   float64
	}{
		{int(x0), int(y0), (1 - tx) * (1 - ty)},
		{int(x0) + 1, int(y0), tx * (1 - ty)},
		{int(x0), int(y0) + 1, (1 - tx) * ty},
		{int(x0) + 1, int(y0) + 1, tx * ty},
	}

	var sum, wsum float64
	for _, tap := range taps {
		if tap.weight == 0 {
			continue
		}
		c := clamp(tap.col, 0, w-1)
		r := clamp(tap.row, 0, h-1)
		i := r*w + c
		v := src.Data[i]
		if src.IsNodata(i) || math.IsNaN(v) {
			continue
		}
		sum += v * tap.weight
		wsum += tap.weight
	}
	if wsum == 0 {
		return 0, false
	}
	return sum / wsum, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// coordTransform maps coordinates in dstSR to srcSR. Identical references
// short-circuit to the identity.
func coordTransform(dstSR, srcSR string) (proj.Transformer, error) {
	if dstSR == srcSR {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}
	if dstSR == "" || srcSR == "" {
		return nil, errors.New("cannot reproject: one grid has no spatial reference")
	}
	dst, err := proj.Parse(dstSR)
	if err != nil {
		return nil, fmt.Errorf("parse reference spatial reference: %w", err)
	}
	src, err := proj.Parse(srcSR)
	if err != nil {
		return nil, fmt.Errorf("parse secondary spatial reference: %w", err)
	}
	t, err := dst.NewTransform(src)
	if err != nil {
		return nil, fmt.Errorf("build transform: %w", err)
	}
	return t, nil
}
