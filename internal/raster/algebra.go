package raster

import (
	"fmt"
	"math"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
)

// VDNodata is the nodata sentinel of every VD raster.
const VDNodata = -9999

// float32Limit keeps products inside the float32 range before rounding.
const float32Limit = 3.4e38

// Multiply returns the elementwise product of two congruent bands on ref's
// grid as Float32 with VDNodata. A cell is nodata when either input is nodata
// under its own sentinel.
func Multiply(ref, other *Band) (*Band, error) {
	if !ref.Grid.Congruent(other.Grid) {
		return nil, fmt.Errorf("multiply %dx%d by %dx%d: %w",
			ref.Grid.Width, ref.Grid.Height, other.Grid.Width, other.Grid.Height, domain.ErrShapeMismatch)
	}
	if len(ref.Data) != len(other.Data) {
		return nil, fmt.Errorf("multiply: %d cells by %d cells: %w", len(ref.Data), len(other.Data), domain.ErrShapeMismatch)
	}

	out := &Band{
		Grid: ref.Grid.WithStorage(Float32, VDNodata),
		Data: make([]float64, len(ref.Data)),
	}
	for i := range ref.Data {
		a, b := ref.Data[i], other.Data[i]
		if ref.IsNodata(i) || other.IsNodata(i) || math.IsNaN(a) || math.IsNaN(b) {
			out.Data[i] = VDNodata
			continue
		}
		p := a * b
		if p > float32Limit {
			p = float32Limit
		} else if p < -float32Limit {
			p = -float32Limit
		}
		out.Data[i] = float64(float32(p))
	}
	return out, nil
}
