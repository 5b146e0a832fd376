package catalog

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
)

// OverrideKey addresses a source layer by area, year and role.
type OverrideKey struct {
	Area string
	Year int
	Role string
}

// Overrides maps a key to the exact layer name to use instead of pattern
// search.
type Overrides map[OverrideKey]string

// DefaultOverrides returns the known irregular layer names.
func DefaultOverrides() Overrides {
	return Overrides{
		{Area: "Concongella_2015", Year: 100, Role: domain.RoleDepth}: "Concongella_100y_d_Max",
	}
}

// Merge returns a copy of o with every entry of other applied on top.
func (o Overrides) Merge(other Overrides) Overrides {
	out := make(Overrides, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// MatchYear reports whether year appears in name as a complete run of
// digits: 10 matches "x_10y_d" but not "x_100y_d" or "x_210_d".
func MatchYear(name string, year int) bool {
	want := strconv.Itoa(year)
	for i := 0; i < len(name); {
		if !isDigit(name[i]) {
			i++
			continue
		}
		j := i
		for j < len(name) && isDigit(name[j]) {
			j++
		}
		if name[i:j] == want {
			return true
		}
		i = j
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Resolver finds source rasters for an (area, year, role) combination.
type Resolver struct {
	cat       *Catalog
	overrides Overrides
}

// NewResolver creates a Resolver over cat.
func NewResolver(cat *Catalog, overrides Overrides) *Resolver {
	if overrides == nil {
		overrides = Overrides{}
	}
	return &Resolver{cat: cat, overrides: overrides}
}

// Resolve looks up the source raster for role. An override names a layer
// anywhere in the catalog and wins when it exists; otherwise the first raster
// leaf directly under group whose name contains the year is used.
func (r *Resolver) Resolve(group []string, area string, year int, role string) (Entry, error) {
	if name, ok := r.overrides[OverrideKey{Area: area, Year: year, Role: role}]; ok {
		for _, e := range r.cat.LayersByName(name) {
			if e.Node.IsRaster() {
				return e, nil
			}
		}
	}

	g := r.cat.FindGroup(group...)
	if g == nil {
		return Entry{}, fmt.Errorf("%w: %s area group %s", domain.ErrNotFound, role, domain.LayerID(group...))
	}
	for _, leaf := range g.Leaves() {
		if leaf.IsRaster() && MatchYear(leaf.Name, year) {
			path := append(append([]string{}, group...), leaf.Name)
			return Entry{ID: domain.LayerID(path...), Path: path, Node: leaf}, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s layer for %s %dy", domain.ErrNotFound, role, area, year)
}

// Locate finds a layer recorded in a ledger by its full id, falling back to
// the first raster with the id's final segment as its name.
func (r *Resolver) Locate(id string) (Entry, error) {
	if leaf, ok := r.cat.Layer(id); ok && leaf.IsRaster() {
		path := domain.SplitLayerID(id)
		return Entry{ID: id, Path: path, Node: leaf}, nil
	}
	path := domain.SplitLayerID(id)
	name := path[len(path)-1]
	for _, e := range r.cat.LayersByName(name) {
		if e.Node.IsRaster() {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: layer %q", domain.ErrNotFound, name)
}
