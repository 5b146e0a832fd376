package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/hazard"
	"github.com/couchcryptid/flood-hazard-etl/internal/ledger"
	"github.com/couchcryptid/flood-hazard-etl/internal/observability"
	"github.com/couchcryptid/flood-hazard-etl/internal/pipeline"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// --- mocks ---

type mockPublisher struct {
	published []domain.DerivedRecord
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, rec domain.DerivedRecord) error {
	m.published = append(m.published, rec)
	return m.err
}

// readinessPublisher calls check from inside a running stage.
type readinessPublisher struct {
	check func()
}

func (m *readinessPublisher) Publish(_ context.Context, _ domain.DerivedRecord) error {
	m.check()
	return nil
}

type mockHistory struct {
	reports []*pipeline.Report
}

func (m *mockHistory) Record(_ context.Context, rep *pipeline.Report) error {
	m.reports = append(m.reports, rep)
	return nil
}

// --- fixture ---

const (
	root     = "Flood maps"
	area     = "Concongella_2015"
	velPath  = "src/Concongella_2015/Velocity/Concongella_2015_5y_v_Max.tif"
	depPath  = "src/Concongella_2015/Depths/Concongella_2015_5y_d_Max.tif"
	dataDir  = "out"
	vdOutput = "out/Concongella_2015/VelocityXDepth/Concongella_2015_5y_VD.tif"
	hzOutput = "out/Concongella_2015/Hazard/Concongella_2015_5y_Hazard.tif"
	vdID     = "Flood maps/VelocityXDepth/Concongella_2015/Concongella_2015_5y_VD"
	velID    = "Flood maps/Velocity/Concongella_2015/Concongella_2015_5y_v_Max"
	depID    = "Flood maps/Depths/Concongella_2015/Concongella_2015_5y_d_Max"
)

var startTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	cat       *catalog.Catalog
	store     *raster.MemoryStore
	publisher *mockPublisher
	history   *mockHistory
	clock     *clockwork.FakeClock
	opts      pipeline.Options
}

func testGrid(nodata float64) raster.Grid {
	return raster.Grid{
		Width:        2,
		Height:       2,
		GeoTransform: [6]float64{640000, 10, 0, 5860000, 0, -10},
		SpatialRef:   "+proj=utm +zone=54 +south +ellps=GRS80 +units=m +no_defs",
		Nodata:       nodata,
		HasNodata:    true,
		DataType:     raster.Float32,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cat := catalog.New()
	cat.Register([]string{root, domain.GroupVelocity, area}, "Concongella_2015_5y_v_Max", catalog.LayerRaster, velPath)
	cat.Register([]string{root, domain.GroupDepths, area}, "Concongella_2015_5y_d_Max", catalog.LayerRaster, depPath)

	store := raster.NewMemoryStore()
	vel, err := raster.FromValues(testGrid(-1), []float64{1, 2, 3, -1})
	require.NoError(t, err)
	dep, err := raster.FromValues(testGrid(-9), []float64{0.5, 0.5, 2, 1})
	require.NoError(t, err)
	store.Put(velPath, vel)
	store.Put(depPath, dep)

	dir := t.TempDir()
	return &fixture{
		cat:       cat,
		store:     store,
		publisher: &mockPublisher{},
		history:   &mockHistory{},
		clock:     clockwork.NewFakeClockAt(startTime),
		opts: pipeline.Options{
			Years:            []int{5, 10},
			RootGroup:        root,
			DataDir:          dataDir,
			VDLedgerPath:     filepath.Join(dir, "scripts", "vd_log.csv"),
			HazardLedgerPath: filepath.Join(dir, "scripts", "hazard_log.csv"),
			Overrides:        catalog.DefaultOverrides(),
		},
	}
}

func (f *fixture) pipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Deps{
		Catalog:   f.cat,
		Store:     f.store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:   observability.NewMetricsForTesting(),
		Clock:     f.clock,
		Publisher: f.publisher,
		History:   f.history,
	}, f.opts)
	require.NoError(t, err)
	return p
}

// sourceOpens counts Open calls on every raster the fixture can reference.
func sourceOpens(store *raster.MemoryStore) int {
	n := 0
	for _, p := range []string{velPath, depPath, vdOutput, hzOutput} {
		n += store.Opens(p)
	}
	return n
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// --- derive-vd ---

func TestDeriveVD_CreatesOutputAndLedger(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	rep, err := p.DeriveVD(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.KindVD, rep.Stage)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, startTime, rep.StartedAt)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 0, rep.Skipped)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "Concongella_2015 - 10y", rep.Failures[0].Item)
	assert.Equal(t, domain.FailureNotFound, rep.Failures[0].Kind)

	vd, err := f.store.Open(vdOutput)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1, 6, raster.VDNodata}, vd.Data)
	assert.Equal(t, raster.Float32, vd.Grid.DataType)

	expected := [][]string{{vdID, velID, depID}}
	l, err := ledger.Read(f.opts.VDLedgerPath)
	require.NoError(t, err)
	assert.Equal(t, ledger.VDColumns, l.Columns)
	if diff := cmp.Diff(expected, l.Rows); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}

	leaf, ok := f.cat.Layer(vdID)
	require.True(t, ok)
	assert.Equal(t, vdOutput, leaf.Layer.Source)

	require.Len(t, f.publisher.published, 1)
	assert.Equal(t, vdID, f.publisher.published[0].OutputID)
	require.Len(t, f.history.reports, 1)
	assert.Same(t, rep, f.history.reports[0])
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestDeriveVD_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	first := readFile(t, f.opts.VDLedgerPath)

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Created)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Records, 1)
	assert.True(t, rep.Records[0].Skipped)
	assert.Equal(t, 1, f.store.Version(vdOutput), "skipped output must not be rewritten")
	assert.Equal(t, first, readFile(t, f.opts.VDLedgerPath))
	assert.Len(t, f.publisher.published, 1, "skips are not published")
}

func TestDeriveVD_SkipDoesNotOpenInputs(t *testing.T) {
	f := newFixture(t)
	f.store.Put(vdOutput, raster.NewBand(testGrid(raster.VDNodata)))

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Zero(t, sourceOpens(f.store))
}

func TestDeriveVD_ForceReplaces(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Version(vdOutput))

	f.opts.Force = true
	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.Force)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, 2, f.store.Version(vdOutput))
	assert.Len(t, f.cat.FindGroup(root, domain.GroupVD, area).Leaves(), 1, "re-registering replaces the layer")
}

func TestDeriveVD_ForceRemoveFailureIsIO(t *testing.T) {
	f := newFixture(t)
	f.store.Put(vdOutput, raster.NewBand(testGrid(raster.VDNodata)))
	f.store.FailRemove[vdOutput] = errors.New("file locked")
	f.opts.Force = true
	f.opts.Years = []int{5}

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, domain.FailureIO, rep.Failures[0].Kind)
	assert.Contains(t, rep.Failures[0].Reason, "file locked")
	assert.Empty(t, rep.Records)
}

func TestDeriveVD_WriteFailureIsIO(t *testing.T) {
	f := newFixture(t)
	f.store.FailWrite[vdOutput] = errors.New("disk full")
	f.opts.Years = []int{5}

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, domain.FailureIO, rep.Failures[0].Kind)
}

func TestDeriveVD_UnreadableDepthIsReprojection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Remove(depPath))
	f.opts.Years = []int{5}

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, domain.FailureReprojection, rep.Failures[0].Kind)
	assert.False(t, f.store.Exists(vdOutput))
}

func TestDeriveVD_MissingDepthAreaFailsEachYear(t *testing.T) {
	f := newFixture(t)
	f.cat.Register([]string{root, domain.GroupVelocity, "Stawell"}, "Stawell_5y_v", catalog.LayerRaster, "s.tif")

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	var items []string
	for _, fl := range rep.Failures {
		assert.Equal(t, domain.FailureNotFound, fl.Kind)
		items = append(items, fl.Item)
	}
	assert.Equal(t, []string{"Concongella_2015 - 10y", "Stawell - 5y", "Stawell - 10y"}, items)
	assert.Equal(t, 1, rep.Created)
}

func TestDeriveVD_Preconditions(t *testing.T) {
	tests := []struct {
		name  string
		build func() *catalog.Catalog
	}{
		{"no root group", catalog.New},
		{"no velocity group", func() *catalog.Catalog {
			c := catalog.New()
			c.Root().EnsureGroup(root, domain.GroupDepths)
			return c
		}},
		{"no depths group", func() *catalog.Catalog {
			c := catalog.New()
			c.Root().EnsureGroup(root, domain.GroupVelocity)
			return c
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cat = tt.build()

			p := f.pipeline(t)
			rep, err := p.DeriveVD(context.Background())
			require.ErrorIs(t, err, domain.ErrPrecondition)
			assert.NotEmpty(t, rep.Error)
			assert.NoFileExists(t, f.opts.VDLedgerPath)
			require.Error(t, p.CheckReadiness(context.Background()))
			require.Len(t, f.history.reports, 1, "failed runs are still recorded")
		})
	}
}

func TestDeriveVD_Limit(t *testing.T) {
	f := newFixture(t)
	f.opts.Limit = 1

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	assert.Empty(t, rep.Failures, "the 10y combination is never attempted")
}

func TestDeriveVD_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline(t).DeriveVD(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, f.opts.VDLedgerPath)
}

func TestDeriveVD_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
}

func TestDeriveVD_SavesCatalog(t *testing.T) {
	f := newFixture(t)
	f.opts.CatalogPath = filepath.Join(t.TempDir(), "catalog.yaml")

	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	saved, err := catalog.Load(f.opts.CatalogPath)
	require.NoError(t, err)
	_, ok := saved.Layer(vdID)
	assert.True(t, ok)
}

// --- derive-hazard ---

func TestDeriveHazard_MissingLedgerFailsFast(t *testing.T) {
	f := newFixture(t)

	rep, err := f.pipeline(t).DeriveHazard(context.Background())
	require.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Contains(t, err.Error(), "run derive-vd first")
	assert.Empty(t, rep.Records)
	assert.Zero(t, sourceOpens(f.store))
	assert.NoFileExists(t, f.opts.HazardLedgerPath)
}

func TestDeriveHazard_ClassifiesLedgerRows(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	rep, err := f.pipeline(t).DeriveHazard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.KindHazard, rep.Stage)
	assert.Equal(t, 1, rep.Created)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, hazard.Histogram{1, 0, 1, 1, 0, 0, 1}, rep.Histogram)

	out, err := f.store.Open(hzOutput)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 6, 0}, out.Data)
	assert.Equal(t, raster.Byte, out.Grid.DataType)

	l, err := ledger.Read(f.opts.HazardLedgerPath)
	require.NoError(t, err)
	expected := [][]string{{
		"Flood maps/Hazard/Concongella_2015/Concongella_2015_5y_Hazard",
		vdID, depID, velID,
	}}
	assert.Equal(t, ledger.HazardColumns, l.Columns)
	if diff := cmp.Diff(expected, l.Rows); diff != "" {
		t.Errorf("hazard ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestDeriveHazard_SkipAndForce(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	_, err = f.pipeline(t).DeriveHazard(context.Background())
	require.NoError(t, err)

	rep, err := f.pipeline(t).DeriveHazard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, f.store.Version(hzOutput))

	f.opts.Force = true
	rep, err = f.pipeline(t).DeriveHazard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 2, f.store.Version(hzOutput))
}

func TestDeriveHazard_BadRows(t *testing.T) {
	f := newFixture(t)
	rows := [][]string{
		{"Flood maps/VelocityXDepth/Concongella_2015_5y_VD", velID, depID},
		{"Flood maps/VelocityXDepth/Concongella_2015/not_a_vd_name", velID, depID},
		{"Flood maps/VelocityXDepth/Concongella_2015/Concongella_2015_20y_VD", velID, depID},
	}
	require.NoError(t, ledger.Write(f.opts.VDLedgerPath, ledger.VDColumns, rows))

	rep, err := f.pipeline(t).DeriveHazard(context.Background())
	require.NoError(t, err)

	kinds := []domain.FailureKind{}
	for _, fl := range rep.Failures {
		kinds = append(kinds, fl.Kind)
	}
	assert.Equal(t, []domain.FailureKind{domain.FailureInvalid, domain.FailureInvalid, domain.FailureNotFound}, kinds)
	assert.Zero(t, sourceOpens(f.store))

	l, err := ledger.Read(f.opts.HazardLedgerPath)
	require.NoError(t, err)
	assert.Empty(t, l.Rows)
}

func TestDeriveHazard_LedgerMissingColumns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, ledger.Write(f.opts.VDLedgerPath, []string{"vd", "depth"}, nil))

	_, err := f.pipeline(t).DeriveHazard(context.Background())
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

// --- report ---

func TestReport_WriteText(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	rep, err := f.pipeline(t).DeriveHazard(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	out := buf.String()

	assert.NotContains(t, out, "NOT FOUND / ERRORS")
	assert.Contains(t, out, "Total Hazard layers created: 1")
	assert.Contains(t, out, "Total logged entries: 1")
	assert.Contains(t, out, "H6: Unsafe for vehicles and people; all building types considered vulnerable to failure")
}

func TestReport_WriteTextFailures(t *testing.T) {
	rep := &pipeline.Report{
		Stage: domain.KindVD,
		Failures: []pipeline.Failure{
			{Item: "Stawell - 5y", Kind: domain.FailureNotFound, Reason: "not found: velocity layer for Stawell 5y"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, "NOT FOUND / ERRORS:")
	assert.Contains(t, out, "  Stawell - 5y: [not_found] not found: velocity layer for Stawell 5y\n")
	assert.Contains(t, out, "Total not found/errors: 1")
	assert.Contains(t, out, "Total VD layers skipped (already exist): 0")
	assert.NotContains(t, out, "Hazard Classes")
}

func TestDeriveVD_ReportsValueRange(t *testing.T) {
	f := newFixture(t)
	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	expected := []pipeline.OutputRange{{
		Name:    "Concongella_2015_5y_VD",
		Summary: raster.Summary{Valid: 3, Nodata: 1, Min: 0.5, Max: 6, Mean: 2.5},
	}}
	if diff := cmp.Diff(expected, rep.Ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf))
	assert.Contains(t, buf.String(), "  Concongella_2015_5y_VD: min 0.5, max 6, mean 2.5 (3 valid, 1 nodata)\n")

	again, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Ranges, "skipped outputs are not summarised")
}

func TestDeriveVD_FailedForceRebuildDropsLayer(t *testing.T) {
	f := newFixture(t)
	f.opts.Years = []int{5}
	_, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)
	_, ok := f.cat.Layer(vdID)
	require.True(t, ok)

	require.NoError(t, f.store.Remove(depPath))
	f.opts.Force = true
	rep, err := f.pipeline(t).DeriveVD(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.False(t, f.store.Exists(vdOutput))
	_, ok = f.cat.Layer(vdID)
	assert.False(t, ok, "no layer may point at the deleted raster")
	assert.NotNil(t, f.cat.FindGroup(root, domain.GroupVD, area), "the area group stays")
}

func TestCheckReadiness(t *testing.T) {
	t.Run("ready once built on a catalog with the root group", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.pipeline(t).CheckReadiness(context.Background()))
	})

	t.Run("not ready without the root group", func(t *testing.T) {
		f := newFixture(t)
		f.cat = catalog.New()
		err := f.pipeline(t).CheckReadiness(context.Background())
		require.ErrorIs(t, err, domain.ErrPrecondition)
	})

	t.Run("ready while a stage runs", func(t *testing.T) {
		f := newFixture(t)
		var p *pipeline.Pipeline
		var during []error
		pub := &readinessPublisher{check: func() {
			during = append(during, p.CheckReadiness(context.Background()))
		}}
		var err error
		p, err = pipeline.New(pipeline.Deps{
			Catalog:   f.cat,
			Store:     f.store,
			Metrics:   observability.NewMetricsForTesting(),
			Clock:     f.clock,
			Publisher: pub,
		}, f.opts)
		require.NoError(t, err)

		_, err = p.DeriveVD(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []error{nil}, during)
	})

	t.Run("a fatal stage failure clears readiness until the next success", func(t *testing.T) {
		f := newFixture(t)
		p := f.pipeline(t)

		_, err := p.DeriveHazard(context.Background())
		require.ErrorIs(t, err, domain.ErrPrecondition)
		err = p.CheckReadiness(context.Background())
		require.ErrorIs(t, err, domain.ErrPrecondition)
		assert.Contains(t, err.Error(), "last hazard run failed")

		_, err = p.DeriveVD(context.Background())
		require.NoError(t, err)
		require.NoError(t, p.CheckReadiness(context.Background()))
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := pipeline.New(pipeline.Deps{}, pipeline.Options{})
	require.Error(t, err)

	_, err = pipeline.New(pipeline.Deps{
		Catalog: catalog.New(),
		Store:   raster.NewMemoryStore(),
		Metrics: observability.NewMetricsForTesting(),
	}, pipeline.Options{HazardTable: hazard.DefaultTable[:3]})
	require.Error(t, err)
}
