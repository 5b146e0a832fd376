package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/hazard"
	"github.com/couchcryptid/flood-hazard-etl/internal/ledger"
)

// DeriveHazard classifies every VD output listed in the VD ledger. The ledger
// is read before anything else: without it the stage fails immediately and
// discovers nothing on its own.
func (p *Pipeline) DeriveHazard(ctx context.Context) (*Report, error) {
	return p.run(ctx, domain.KindHazard, p.deriveHazard)
}

func (p *Pipeline) deriveHazard(ctx context.Context, rep *Report) error {
	vdLedger, err := ledger.Read(p.opts.VDLedgerPath)
	if err != nil {
		return fmt.Errorf("%w; run derive-vd first", err)
	}
	if err := vdLedger.Require(ledger.VDColumns...); err != nil {
		return precondition("%s: %v", p.opts.VDLedgerPath, err)
	}
	if p.deps.Catalog.FindGroup(p.opts.RootGroup) == nil {
		return precondition("catalog group %q not found", p.opts.RootGroup)
	}
	p.logger.Info("vd ledger loaded", "path", p.opts.VDLedgerPath, "rows", len(vdLedger.Rows))

	for i, row := range vdLedger.Rows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("derive hazard: %w", err)
		}
		if p.limitReached(i) {
			p.logger.Info("combination limit reached", "limit", p.opts.Limit)
			break
		}

		src := hazardSources{
			vd:       vdLedger.Value(row, domain.RoleVD),
			depth:    vdLedger.Value(row, domain.RoleDepth),
			velocity: vdLedger.Value(row, domain.RoleVelocity),
		}
		rec, hist, err := p.deriveHazardOne(src)
		if err != nil {
			p.fail(rep, src.vd, err)
			continue
		}
		for c, n := range hist {
			rep.Histogram[c] += n
			if n > 0 {
				p.metrics.HazardCells.WithLabelValues(hazard.Label(uint8(c))).Add(float64(n))
			}
		}
		p.keep(ctx, rep, rec)
	}

	rep.LedgerPath = p.opts.HazardLedgerPath
	if err := ledger.Write(p.opts.HazardLedgerPath, ledger.HazardColumns, ledger.Rows(ledger.HazardColumns, rep.Records)); err != nil {
		return fmt.Errorf("write hazard ledger: %w", err)
	}
	return nil
}

// hazardSources are the catalog ids of one VD ledger row.
type hazardSources struct {
	vd, depth, velocity string
}

// hazardKey recovers area and year from a VD id of the form
// <root>/VelocityXDepth/<area>/<area>_<year>y_VD.
func hazardKey(vdID string) (domain.Key, error) {
	parts := domain.SplitLayerID(vdID)
	if len(parts) < 4 {
		return domain.Key{}, fmt.Errorf("invalid VD path format %q", vdID)
	}
	k, err := domain.ParseOutputName(parts[len(parts)-1])
	if err != nil || k.Kind != domain.KindVD {
		return domain.Key{}, fmt.Errorf("could not extract year from VD layer name %q", parts[len(parts)-1])
	}
	return domain.Key{Area: parts[len(parts)-2], Year: k.Year, Kind: domain.KindHazard}, nil
}

func (p *Pipeline) deriveHazardOne(src hazardSources) (domain.DerivedRecord, hazard.Histogram, error) {
	var hist hazard.Histogram

	key, err := hazardKey(src.vd)
	if err != nil {
		return domain.DerivedRecord{}, hist, err
	}
	vdEntry, err := p.resolver.Locate(src.vd)
	if err != nil {
		return domain.DerivedRecord{}, hist, fmt.Errorf("vd layer: %w", err)
	}
	velEntry, err := p.resolver.Locate(src.velocity)
	if err != nil {
		return domain.DerivedRecord{}, hist, fmt.Errorf("velocity layer: %w", err)
	}
	depthEntry, err := p.resolver.Locate(src.depth)
	if err != nil {
		return domain.DerivedRecord{}, hist, fmt.Errorf("depth layer: %w", err)
	}

	rec := p.newRecord(key)
	rec.Sources = []domain.SourceRef{
		{Role: domain.RoleVD, ID: src.vd},
		{Role: domain.RoleDepth, ID: src.depth},
		{Role: domain.RoleVelocity, ID: src.velocity},
	}

	keep, err := p.prepareOutput(rec)
	if err != nil {
		return domain.DerivedRecord{}, hist, err
	}
	if keep {
		rec.Skipped = true
		p.register(rec)
		return rec, hist, nil
	}

	vd, err := p.deps.Store.Open(vdEntry.Node.Layer.Source)
	if err != nil {
		return domain.DerivedRecord{}, hist, fmt.Errorf("%w: open vd %s: %w", domain.ErrIO, vdEntry.Node.Layer.Source, err)
	}
	aligned, err := p.reconciler.Align(p.deps.Store, vd, depthEntry.Node.Layer.Source, velEntry.Node.Layer.Source)
	if err != nil {
		return domain.DerivedRecord{}, hist, fmt.Errorf("align depth and velocity: %w", err)
	}
	classes, hist, err := p.classifier.Classify(aligned[0], aligned[1], vd)
	if err != nil {
		return domain.DerivedRecord{}, hist, err
	}
	if err := p.deps.Store.Write(rec.Path, classes); err != nil {
		return domain.DerivedRecord{}, hist, fmt.Errorf("%w: write %s: %w", domain.ErrIO, rec.Path, err)
	}

	p.register(rec)
	return rec, hist, nil
}
