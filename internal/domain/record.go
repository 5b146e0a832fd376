package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ProductKind identifies a derived raster product.
type ProductKind string

const (
	KindVD     ProductKind = "vd"
	KindHazard ProductKind = "hazard"
)

// Catalog group names for source and derived rasters.
const (
	GroupDepths   = "Depths"
	GroupVelocity = "Velocity"
	GroupVD       = "VelocityXDepth"
	GroupHazard   = "Hazard"
)

// Source roles, also used as ledger column names.
const (
	RoleDepth    = "depth"
	RoleVelocity = "velocity"
	RoleVD       = "vd"
)

// DefaultYears are the return periods processed when none are configured.
var DefaultYears = []int{5, 10, 20, 50, 100, 200}

// outputNameRe extracts area and year from a derived layer name,
// e.g. "Concongella_2015_5y_VD" -> ("Concongella_2015", 5).
var outputNameRe = regexp.MustCompile(`^(.+)_(\d+)y_(VD|Hazard)$`)

// Key addresses one derived output.
type Key struct {
	Area string      `json:"area"`
	Year int         `json:"year"`
	Kind ProductKind `json:"kind"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%dy/%s", k.Area, k.Year, k.Kind)
}

// SourceRef names a source raster by role and catalog id.
type SourceRef struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

// DerivedRecord is the provenance of a single output that is present after a
// run. Skipped is true when the output already existed and was not rebuilt.
type DerivedRecord struct {
	Key      Key         `json:"key"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	OutputID string      `json:"output_id"`
	Sources  []SourceRef `json:"sources"`
	Skipped  bool        `json:"skipped"`
}

// Source returns the catalog id recorded for role, or "".
func (r DerivedRecord) Source(role string) string {
	for _, s := range r.Sources {
		if s.Role == role {
			return s.ID
		}
	}
	return ""
}

// OutputName is the catalog layer name (and file stem) of a derived product.
func OutputName(k Key) string {
	suffix := "VD"
	if k.Kind == KindHazard {
		suffix = "Hazard"
	}
	return fmt.Sprintf("%s_%dy_%s", k.Area, k.Year, suffix)
}

// OutputGroup is the catalog group a product kind is registered under.
func OutputGroup(kind ProductKind) string {
	if kind == KindHazard {
		return GroupHazard
	}
	return GroupVD
}

// ParseOutputName reverses OutputName.
func ParseOutputName(name string) (Key, error) {
	m := outputNameRe.FindStringSubmatch(name)
	if m == nil {
		return Key{}, fmt.Errorf("parse output name %q: no <area>_<year>y_<kind> suffix", name)
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return Key{}, fmt.Errorf("parse output name %q: %w", name, err)
	}
	kind := KindVD
	if m[3] == "Hazard" {
		kind = KindHazard
	}
	return Key{Area: m[1], Year: year, Kind: kind}, nil
}

// LayerID joins catalog path segments into the "/"-separated id used in
// ledgers, e.g. "Flood maps/VelocityXDepth/Concongella_2015/Concongella_2015_5y_VD".
func LayerID(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitLayerID reverses LayerID.
func SplitLayerID(id string) []string {
	return strings.Split(id, "/")
}
