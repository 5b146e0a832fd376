package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/ledger"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// DeriveVD builds a VD raster for every area under <root>/Velocity and every
// configured year, then rewrites the VD ledger with every output present.
// Missing root, Velocity or Depths groups abort the run; anything else fails
// only its own combination.
func (p *Pipeline) DeriveVD(ctx context.Context) (*Report, error) {
	return p.run(ctx, domain.KindVD, p.deriveVD)
}

func (p *Pipeline) deriveVD(ctx context.Context, rep *Report) error {
	root := p.deps.Catalog.FindGroup(p.opts.RootGroup)
	if root == nil {
		return precondition("catalog group %q not found", p.opts.RootGroup)
	}
	velocity := root.Group(domain.GroupVelocity)
	if velocity == nil {
		return precondition("group %q not found under %q", domain.GroupVelocity, p.opts.RootGroup)
	}
	if root.Group(domain.GroupDepths) == nil {
		return precondition("group %q not found under %q", domain.GroupDepths, p.opts.RootGroup)
	}

	processed := 0
areas:
	for _, areaGroup := range velocity.Subgroups() {
		area := areaGroup.Name
		for _, year := range p.opts.Years {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("derive vd: %w", err)
			}
			if p.limitReached(processed) {
				p.logger.Info("combination limit reached", "limit", p.opts.Limit)
				break areas
			}
			processed++

			key := domain.Key{Area: area, Year: year, Kind: domain.KindVD}
			rec, err := p.deriveVDOne(rep, key)
			if err != nil {
				p.fail(rep, fmt.Sprintf("%s - %dy", area, year), err)
				continue
			}
			p.keep(ctx, rep, rec)
		}
	}

	rep.LedgerPath = p.opts.VDLedgerPath
	if err := ledger.Write(p.opts.VDLedgerPath, ledger.VDColumns, ledger.Rows(ledger.VDColumns, rep.Records)); err != nil {
		return fmt.Errorf("write vd ledger: %w", err)
	}
	return nil
}

func (p *Pipeline) deriveVDOne(rep *Report, key domain.Key) (domain.DerivedRecord, error) {
	root := p.opts.RootGroup
	vel, err := p.resolver.Resolve([]string{root, domain.GroupVelocity, key.Area}, key.Area, key.Year, domain.RoleVelocity)
	if err != nil {
		return domain.DerivedRecord{}, err
	}
	depth, err := p.resolver.Resolve([]string{root, domain.GroupDepths, key.Area}, key.Area, key.Year, domain.RoleDepth)
	if err != nil {
		return domain.DerivedRecord{}, err
	}

	rec := p.newRecord(key)
	rec.Sources = []domain.SourceRef{
		{Role: domain.RoleVelocity, ID: vel.ID},
		{Role: domain.RoleDepth, ID: depth.ID},
	}

	keep, err := p.prepareOutput(rec)
	if err != nil {
		return domain.DerivedRecord{}, err
	}
	if keep {
		rec.Skipped = true
		p.register(rec)
		return rec, nil
	}

	ref, err := p.deps.Store.Open(vel.Node.Layer.Source)
	if err != nil {
		return domain.DerivedRecord{}, fmt.Errorf("%w: open velocity %s: %w", domain.ErrIO, vel.Node.Layer.Source, err)
	}
	aligned, err := p.reconciler.Align(p.deps.Store, ref, depth.Node.Layer.Source)
	if err != nil {
		return domain.DerivedRecord{}, fmt.Errorf("align depth %s: %w", depth.ID, err)
	}
	vd, err := raster.Multiply(ref, aligned[0])
	if err != nil {
		return domain.DerivedRecord{}, err
	}
	if err := p.deps.Store.Write(rec.Path, vd); err != nil {
		return domain.DerivedRecord{}, fmt.Errorf("%w: write %s: %w", domain.ErrIO, rec.Path, err)
	}

	sum := raster.Summarize(vd)
	rep.Ranges = append(rep.Ranges, OutputRange{Name: rec.Name, Summary: sum})
	p.logger.Debug("vd computed",
		"name", rec.Name,
		"velocity", vel.Node.Name,
		"depth", depth.Node.Name,
		"valid_cells", sum.Valid,
		"max", sum.Max,
	)
	p.register(rec)
	return rec, nil
}

// newRecord fills the naming fields of a derived record.
func (p *Pipeline) newRecord(key domain.Key) domain.DerivedRecord {
	name := domain.OutputName(key)
	group := domain.OutputGroup(key.Kind)
	return domain.DerivedRecord{
		Key:      key,
		Name:     name,
		Path:     filepath.Join(p.opts.DataDir, key.Area, group, name+".tif"),
		OutputID: domain.LayerID(p.opts.RootGroup, group, key.Area, name),
	}
}

// outputGroup is the catalog group holding rec's layer.
func (p *Pipeline) outputGroup(rec domain.DerivedRecord) []string {
	return []string{p.opts.RootGroup, domain.OutputGroup(rec.Key.Kind), rec.Key.Area}
}

// register adds (or replaces) the output layer in the catalog.
func (p *Pipeline) register(rec domain.DerivedRecord) {
	p.deps.Catalog.Register(p.outputGroup(rec), rec.Name, catalog.LayerRaster, rec.Path)
}
