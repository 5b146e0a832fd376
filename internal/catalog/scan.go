package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
)

// ScanCategories are the per-study folders picked up by Scan, in order.
var ScanCategories = []string{"Height", "Depths", "Velocity"}

// ScanResult lists the layer ids added and skipped by Scan.
type ScanResult struct {
	Added   []string
	Skipped []string
}

// Scan registers study rasters and shapefiles found under
// <dataDir>/<study>/<category>/ into <root>/<category>/<study>. Shapefiles are
// added before rasters, each sorted by file name; a layer whose name is
// already present in its group is skipped.
func (c *Catalog) Scan(dataDir, root string) (ScanResult, error) {
	var res ScanResult

	studies, err := os.ReadDir(dataDir)
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", dataDir, err)
	}
	sort.Slice(studies, func(i, j int) bool { return studies[i].Name() < studies[j].Name() })

	rootGroup := c.root.EnsureGroup(root)
	for _, cat := range ScanCategories {
		rootGroup.EnsureGroup(cat)
	}

	for _, study := range studies {
		if !study.IsDir() {
			continue
		}
		for _, cat := range ScanCategories {
			dir := filepath.Join(dataDir, study.Name(), cat)
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			group := rootGroup.EnsureGroup(cat, study.Name())
			for _, f := range []struct {
				pattern string
				kind    LayerKind
			}{{"*.shp", LayerVector}, {"*.tif", LayerRaster}} {
				matches, err := filepath.Glob(filepath.Join(dir, f.pattern))
				if err != nil {
					return res, fmt.Errorf("scan %s: %w", dir, err)
				}
				sort.Strings(matches)
				for _, m := range matches {
					name := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
					id := domain.LayerID(root, cat, study.Name(), name)
					if group.Leaf(name) != nil {
						res.Skipped = append(res.Skipped, id)
						continue
					}
					group.Put(NewLeaf(name, f.kind, m))
					res.Added = append(res.Added, id)
				}
			}
		}
	}
	return res, nil
}
