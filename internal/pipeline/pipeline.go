// Package pipeline runs the derivation stages: velocity x depth (VD) rasters
// from source rasters, then hazard rasters from the VD ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/hazard"
	"github.com/couchcryptid/flood-hazard-etl/internal/observability"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// Publisher announces newly created outputs to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, rec domain.DerivedRecord) error
}

// History keeps finished run reports.
type History interface {
	Record(ctx context.Context, rep *Report) error
}

// Deps are the collaborators a Pipeline works against. Publisher and History
// are optional.
type Deps struct {
	Catalog   *catalog.Catalog
	Store     raster.Store
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	Publisher Publisher
	History   History
}

// Options configure a run. They are passed explicitly; nothing is read from
// package state.
type Options struct {
	// Force rebuilds outputs that already exist.
	Force bool
	// Years are the return periods processed by derive-vd.
	Years []int
	// Limit caps the number of combinations processed; 0 means all.
	Limit int
	// RootGroup is the catalog group holding Depths, Velocity and outputs.
	RootGroup string
	// DataDir is where outputs are written: <DataDir>/<area>/<group>/<name>.tif.
	DataDir          string
	VDLedgerPath     string
	HazardLedgerPath string
	// CatalogPath, when set, is where the catalog is saved after each stage.
	CatalogPath string
	// Overrides are consulted before the year pattern search.
	Overrides catalog.Overrides
	// HazardTable defaults to hazard.DefaultTable.
	HazardTable hazard.Table
}

// Pipeline runs the derivation stages against a catalog and raster store.
type Pipeline struct {
	deps       Deps
	opts       Options
	logger     *slog.Logger
	metrics    *observability.Metrics
	resolver   *catalog.Resolver
	reconciler *raster.Reconciler
	classifier *hazard.Classifier

	mu       sync.Mutex
	notReady error
}

// New creates a Pipeline. A nil clock means the real clock and a nil logger
// the default one.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Catalog == nil || deps.Store == nil || deps.Metrics == nil {
		return nil, errors.New("pipeline needs a catalog, a raster store and metrics")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if len(opts.Years) == 0 {
		opts.Years = domain.DefaultYears
	}
	if opts.RootGroup == "" {
		opts.RootGroup = "Flood maps"
	}

	classifier, err := hazard.NewClassifier(opts.HazardTable, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("hazard table: %w", err)
	}

	p := &Pipeline{
		deps:       deps,
		opts:       opts,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		resolver:   catalog.NewResolver(deps.Catalog, opts.Overrides),
		reconciler: raster.NewReconciler(deps.Logger),
		classifier: classifier,
	}
	if deps.Catalog.FindGroup(opts.RootGroup) == nil {
		p.notReady = precondition("catalog group %q not found", opts.RootGroup)
	}
	return p, nil
}

// CheckReadiness reports nil while the pipeline can do useful work: the
// catalog held the root group when the pipeline was built and the last stage,
// if any, did not fail fatally. It is safe to call while a stage runs.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notReady
}

func (p *Pipeline) setReadiness(err error) {
	p.mu.Lock()
	p.notReady = err
	p.mu.Unlock()
}

// stageFunc fills rep and returns a fatal error, if any.
type stageFunc func(ctx context.Context, rep *Report) error

// run wraps a stage with timing, metrics, catalog persistence and history.
func (p *Pipeline) run(ctx context.Context, kind domain.ProductKind, fn stageFunc) (*Report, error) {
	rep := &Report{
		RunID:     uuid.NewString(),
		Stage:     kind,
		Force:     p.opts.Force,
		StartedAt: p.deps.Clock.Now(),
	}
	stage := string(kind)
	log := p.logger.With("stage", stage, "run_id", rep.RunID)
	log.Info("stage started", "force", p.opts.Force, "limit", p.opts.Limit)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	err := fn(ctx, rep)
	rep.FinishedAt = p.deps.Clock.Now()
	p.metrics.StageDuration.WithLabelValues(stage).Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())

	if err == nil && p.opts.CatalogPath != "" {
		if serr := p.deps.Catalog.Save(p.opts.CatalogPath); serr != nil {
			err = fmt.Errorf("save catalog: %w", serr)
		}
	}
	if err != nil {
		rep.Error = err.Error()
	}

	if p.deps.History != nil {
		if herr := p.deps.History.Record(ctx, rep); herr != nil {
			log.Warn("record run history failed", "error", herr)
		}
	}

	if err != nil {
		p.setReadiness(fmt.Errorf("last %s run failed: %w", stage, err))
		log.Error("stage failed", "error", err)
		return rep, err
	}
	p.setReadiness(nil)
	log.Info("stage finished",
		"created", rep.Created,
		"skipped", rep.Skipped,
		"failures", len(rep.Failures),
		"duration", rep.FinishedAt.Sub(rep.StartedAt),
	)
	return rep, nil
}

// fail records a per-combination failure and keeps the run going.
func (p *Pipeline) fail(rep *Report, item string, err error) {
	kind := domain.ClassifyError(err)
	rep.Failures = append(rep.Failures, Failure{Item: item, Kind: kind, Reason: err.Error()})
	p.metrics.CombinationFailures.WithLabelValues(string(rep.Stage), string(kind)).Inc()
	p.logger.Warn("combination failed", "stage", rep.Stage, "item", item, "kind", kind, "error", err)
}

// keep records an output that is present after the run.
func (p *Pipeline) keep(ctx context.Context, rep *Report, rec domain.DerivedRecord) {
	rep.Records = append(rep.Records, rec)
	stage := string(rep.Stage)
	if rec.Skipped {
		rep.Skipped++
		p.metrics.OutputsSkipped.WithLabelValues(stage).Inc()
		p.logger.Debug("output exists, skipped", "name", rec.Name, "path", rec.Path)
		return
	}
	rep.Created++
	p.metrics.OutputsCreated.WithLabelValues(stage).Inc()
	p.logger.Info("output created", "name", rec.Name, "path", rec.Path)

	if p.deps.Publisher != nil {
		if err := p.deps.Publisher.Publish(ctx, rec); err != nil {
			p.logger.Warn("publish output failed", "name", rec.Name, "error", err)
		}
	}
}

// prepareOutput applies the cache policy to rec's path. It reports true when
// an existing output should be kept as is. A forced rebuild deletes the old
// raster and its catalog layer, so a rebuild that then fails leaves no layer
// pointing at a missing file.
func (p *Pipeline) prepareOutput(rec domain.DerivedRecord) (bool, error) {
	if !p.deps.Store.Exists(rec.Path) {
		return false, nil
	}
	if !p.opts.Force {
		return true, nil
	}
	if err := p.deps.Store.Remove(rec.Path); err != nil {
		return false, fmt.Errorf("%w: remove stale output %s: %w", domain.ErrIO, rec.Path, err)
	}
	if p.deps.Catalog.Unregister(p.outputGroup(rec), rec.Name) {
		p.logger.Debug("stale output layer dropped", "name", rec.Name)
	}
	return false, nil
}

// limitReached reports whether the dev-mode combination cap is used up.
func (p *Pipeline) limitReached(processed int) bool {
	return p.opts.Limit > 0 && processed >= p.opts.Limit
}

func precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrPrecondition, fmt.Sprintf(format, args...))
}
