// Command validate checks the integrity of derived flood rasters: every
// ledger row's output exists and is registered, its sources resolve in the
// catalog, VD rasters hold velocity x depth, and hazard rasters hold only
// classes 0..6 and agree with a fresh classification of their sources.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -catalog catalog.yaml \
//	  -vd-ledger scripts/vd_log.csv \
//	  -hazard-ledger scripts/hazard_log.csv \
//	  -project-dir .
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/flood-hazard-etl/internal/adapter/gdal"
	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/hazard"
	"github.com/couchcryptid/flood-hazard-etl/internal/ledger"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// vdTolerance absorbs the float32 rounding of stored VD values.
const vdTolerance = 1e-4

// cacheEntries bounds the bands kept between phases; each source is read by
// both the VD and hazard checks.
const cacheEntries = 16

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	catalogPath := flag.String("catalog", "catalog.yaml", "path to the layer catalog")
	vdLedger := flag.String("vd-ledger", "scripts/vd_log.csv", "path to the VD ledger")
	hazardLedger := flag.String("hazard-ledger", "scripts/hazard_log.csv", "path to the hazard ledger")
	projectDir := flag.String("project-dir", ".", "directory relative raster paths resolve against")
	flag.Parse()

	if code := run(os.Stdout, *catalogPath, *vdLedger, *hazardLedger, *projectDir); code != 0 {
		os.Exit(code)
	}
}

type checker struct {
	cat        *catalog.Catalog
	resolver   *catalog.Resolver
	store      raster.Store
	reconciler *raster.Reconciler
	classifier *hazard.Classifier
}

func run(out io.Writer, catalogPath, vdLedgerPath, hazardLedgerPath, projectDir string) int {
	fmt.Fprintln(out, "=== Flood Raster Integrity Validation ===")
	fmt.Fprintln(out)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}
	vdRows, err := ledger.Read(vdLedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load VD ledger: %v\n", err)
		return 1
	}
	hzRows, err := ledger.Read(hazardLedgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load hazard ledger: %v\n", err)
		return 1
	}
	classifier, err := hazard.NewClassifier(nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: hazard table: %v\n", err)
		return 1
	}

	c := &checker{
		cat:        cat,
		resolver:   catalog.NewResolver(cat, nil),
		store:      raster.NewCachedStore(gdal.NewStore(projectDir, logger), cacheEntries),
		reconciler: raster.NewReconciler(logger),
		classifier: classifier,
	}

	phases := []*phase{
		c.validateLedger("VD ledger provenance", vdRows, ledger.VDColumns),
		c.validateLedger("Hazard ledger provenance", hzRows, ledger.HazardColumns),
		c.validateVDValues(vdRows),
		c.validateHazardValues(hzRows),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d VD ledger, %d hazard ledger\n", len(vdRows.Rows), len(hzRows.Rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Provenance ──

// validateLedger checks the header, that every id resolves to a raster layer
// and that the output file exists.
func (c *checker) validateLedger(name string, l *ledger.Ledger, columns []string) *phase {
	p := &phase{name: name}
	if err := l.Require(columns...); err != nil {
		p.errorf("%v", err)
		return p
	}
	for i, row := range l.Rows {
		line := i + 2
		for _, col := range columns {
			id := l.Value(row, col)
			entry, err := c.resolver.Locate(id)
			if err != nil {
				p.errorf("line %d: %s %q does not resolve: %v", line, col, id, err)
				continue
			}
			if col == columns[0] && !c.store.Exists(entry.Node.Layer.Source) {
				p.errorf("line %d: output %s is missing on disk", line, entry.Node.Layer.Source)
			}
		}
	}
	return p
}

// ── Values ──

func (c *checker) open(id string) (*raster.Band, error) {
	entry, err := c.resolver.Locate(id)
	if err != nil {
		return nil, err
	}
	return c.store.Open(entry.Node.Layer.Source)
}

// validateVDValues recomputes velocity x depth and compares it with each
// stored VD raster.
func (c *checker) validateVDValues(l *ledger.Ledger) *phase {
	p := &phase{name: "VD values"}
	for _, row := range l.Rows {
		id := l.Value(row, domain.RoleVD)
		stored, err := c.open(id)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		vel, err := c.open(l.Value(row, domain.RoleVelocity))
		if err != nil {
			p.errorf("%s: velocity: %v", id, err)
			continue
		}
		aligned, err := c.alignTo(vel, l.Value(row, domain.RoleDepth))
		if err != nil {
			p.errorf("%s: depth: %v", id, err)
			continue
		}
		want, err := raster.Multiply(vel, aligned[0])
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		if n := countDiff(want, stored, vdTolerance); n > 0 {
			p.errorf("%s: %d cell(s) differ from velocity x depth", id, n)
		}
	}
	return p
}

// validateHazardValues checks class range and re-classification.
func (c *checker) validateHazardValues(l *ledger.Ledger) *phase {
	p := &phase{name: "Hazard classes"}
	for _, row := range l.Rows {
		id := l.Value(row, ledger.HazardColumns[0])
		stored, err := c.open(id)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		for i, v := range stored.Data {
			if v < 0 || v > float64(hazard.MaxClass) || v != math.Trunc(v) {
				p.errorf("%s: cell %d holds %g, outside classes 0..%d", id, i, v, hazard.MaxClass)
				break
			}
		}

		vd, err := c.open(l.Value(row, domain.RoleVD))
		if err != nil {
			p.errorf("%s: vd: %v", id, err)
			continue
		}
		aligned, err := c.alignTo(vd, l.Value(row, domain.RoleDepth), l.Value(row, domain.RoleVelocity))
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		want, _, err := c.classifier.Classify(aligned[0], aligned[1], vd)
		if err != nil {
			p.errorf("%s: %v", id, err)
			continue
		}
		if n := countDiff(want, stored, 0); n > 0 {
			p.errorf("%s: %d cell(s) differ from a fresh classification", id, n)
		}
	}
	return p
}

func (c *checker) alignTo(ref *raster.Band, ids ...string) ([]*raster.Band, error) {
	paths := make([]string, len(ids))
	for i, id := range ids {
		entry, err := c.resolver.Locate(id)
		if err != nil {
			return nil, err
		}
		paths[i] = entry.Node.Layer.Source
	}
	return c.reconciler.Align(c.store, ref, paths...)
}

// countDiff counts cells where a and b disagree beyond tol. Size mismatches
// count every cell. Spatial references are not compared: GDAL may rewrite
// the WKT of a file it created.
func countDiff(a, b *raster.Band, tol float64) int {
	if a.Grid.Width != b.Grid.Width || a.Grid.Height != b.Grid.Height {
		return len(a.Data)
	}
	n := 0
	for i := range a.Data {
		if math.Abs(a.Data[i]-b.Data[i]) > tol {
			n++
		}
	}
	return n
}
