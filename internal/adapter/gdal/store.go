// Package gdal reads and writes GeoTIFF rasters through GDAL.
package gdal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

var registerOnce sync.Once

// creationOptions match what the derived products have always been written
// with: tiled, LZW-compressed GeoTIFF.
var creationOptions = []string{"TILED=YES", "COMPRESS=LZW"}

// Store is a raster.Store over GeoTIFF files on disk. Relative paths resolve
// against the base directory.
type Store struct {
	base   string
	logger *slog.Logger
}

// NewStore registers the GDAL drivers once and returns a Store rooted at base.
func NewStore(base string, logger *slog.Logger) *Store {
	registerOnce.Do(godal.RegisterAll)
	return &Store{base: base, logger: logger}
}

func (s *Store) resolve(path string) string {
	if filepath.IsAbs(path) || s.base == "" {
		return path
	}
	return filepath.Join(s.base, path)
}

// Open reads band 1 of the raster at path.
func (s *Store) Open(path string) (*raster.Band, error) {
	path = s.resolve(path)
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer ds.Close() //nolint:errcheck // read-only dataset

	st := ds.Structure()
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("open raster %s: no bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("read geotransform of %s: %w", path, err)
	}

	var srs string
	if sr := ds.SpatialRef(); sr != nil {
		defer sr.Close()
		if wkt, err := sr.WKT(); err == nil {
			srs = wkt
		}
	}

	grid := raster.Grid{
		Width:        st.SizeX,
		Height:       st.SizeY,
		GeoTransform: gt,
		SpatialRef:   srs,
		DataType:     fromGDALType(bands[0].Structure().DataType),
	}
	if nd, ok := bands[0].NoData(); ok {
		grid.Nodata = nd
		grid.HasNodata = true
	}

	data := make([]float64, grid.Cells())
	if err := bands[0].Read(0, 0, data, grid.Width, grid.Height); err != nil {
		return nil, fmt.Errorf("read band of %s: %w", path, err)
	}
	return raster.FromValues(grid, data)
}

// Write creates the GeoTIFF at path, replacing any existing file.
func (s *Store) Write(path string, b *raster.Band) error {
	path = s.resolve(path)
	g := b.Grid
	if len(b.Data) != g.Cells() {
		return fmt.Errorf("write %s: band has %d cells, grid needs %d", path, len(b.Data), g.Cells())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, toGDALType(g.DataType), g.Width, g.Height,
		godal.CreationOption(creationOptions...))
	if err != nil {
		return fmt.Errorf("create raster %s: %w", path, err)
	}
	werr := s.fill(ds, b)
	if cerr := ds.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("close raster %s: %w", path, cerr)
	}
	if werr != nil {
		return werr
	}
	s.logger.Debug("raster written", "path", path, "type", g.DataType, "size", fmt.Sprintf("%dx%d", g.Width, g.Height))
	return nil
}

func (s *Store) fill(ds *godal.Dataset, b *raster.Band) error {
	g := b.Grid
	if err := ds.SetGeoTransform(g.GeoTransform); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if g.SpatialRef != "" {
		if err := ds.SetProjection(g.SpatialRef); err != nil {
			return fmt.Errorf("set projection: %w", err)
		}
	}
	band := ds.Bands()[0]
	if g.HasNodata {
		if err := band.SetNoData(g.Nodata); err != nil {
			return fmt.Errorf("set nodata: %w", err)
		}
	}
	if err := band.Write(0, 0, b.Data, g.Width, g.Height); err != nil {
		return fmt.Errorf("write band: %w", err)
	}
	return nil
}

// Exists reports whether a file is present at path.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(s.resolve(path))
	return err == nil
}

// Remove deletes the raster and its auxiliary metadata file, if any.
func (s *Store) Remove(path string) error {
	path = s.resolve(path)
	if err := os.Remove(path); err != nil {
		return err
	}
	if err := os.Remove(path + ".aux.xml"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("remove aux file failed", "path", path+".aux.xml", "error", err)
	}
	return nil
}

func toGDALType(dt raster.DataType) godal.DataType {
	switch dt {
	case raster.Byte:
		return godal.Byte
	case raster.Float32:
		return godal.Float32
	default:
		return godal.Float64
	}
}

func fromGDALType(dt godal.DataType) raster.DataType {
	switch dt {
	case godal.Byte:
		return raster.Byte
	case godal.Float32:
		return raster.Float32
	default:
		return raster.Float64
	}
}

var _ raster.Store = (*Store)(nil)
