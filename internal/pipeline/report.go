package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/hazard"
	"github.com/couchcryptid/flood-hazard-etl/internal/raster"
)

// Failure is a combination that produced no output.
type Failure struct {
	Item   string             `json:"item"`
	Kind   domain.FailureKind `json:"kind"`
	Reason string             `json:"reason"`
}

// OutputRange summarises the values of one created VD raster.
type OutputRange struct {
	Name string `json:"name"`
	raster.Summary
}

// Report is the outcome of one stage run.
type Report struct {
	RunID      string                 `json:"run_id"`
	Stage      domain.ProductKind     `json:"stage"`
	Force      bool                   `json:"force"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Created    int                    `json:"created"`
	Skipped    int                    `json:"skipped"`
	Records    []domain.DerivedRecord `json:"records"`
	Failures   []Failure              `json:"failures"`
	LedgerPath string                 `json:"ledger_path,omitempty"`
	Error      string                 `json:"error,omitempty"`

	// Ranges holds value summaries of VD rasters created in this run.
	Ranges []OutputRange `json:"ranges,omitempty"`
	// Histogram sums the classes of hazard rasters created in this run.
	Histogram hazard.Histogram `json:"histogram"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) noun() string {
	if r.Stage == domain.KindHazard {
		return "Hazard"
	}
	return "VD"
}

// WriteText prints the failures block and run totals.
func (r *Report) WriteText(w io.Writer) error {
	const rule = "=================================================="
	var b strings.Builder

	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "\n%s\nNOT FOUND / ERRORS:\n%s\n", rule, rule)
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s: [%s] %s\n", f.Item, f.Kind, f.Reason)
		}
	}

	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "Run: %s (%s)\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "Total not found/errors: %d\n", len(r.Failures))
	fmt.Fprintf(&b, "Total %s layers created: %d\n", r.noun(), r.Created)
	fmt.Fprintf(&b, "Total %s layers skipped (already exist): %d\n", r.noun(), r.Skipped)
	fmt.Fprintf(&b, "Total logged entries: %d\n", len(r.Records))
	if r.LedgerPath != "" {
		fmt.Fprintf(&b, "Ledger written to: %s\n", r.LedgerPath)
	}
	fmt.Fprintf(&b, "%s\n", rule)

	if len(r.Ranges) > 0 {
		b.WriteString("\nVD value range of created layers:\n")
		for _, o := range r.Ranges {
			if o.Valid == 0 {
				fmt.Fprintf(&b, "  %s: no valid cells (%d nodata)\n", o.Name, o.Nodata)
				continue
			}
			fmt.Fprintf(&b, "  %s: min %g, max %g, mean %g (%d valid, %d nodata)\n",
				o.Name, o.Min, o.Max, o.Mean, o.Valid, o.Nodata)
		}
	}

	if r.Stage == domain.KindHazard {
		b.WriteString("\nHazard Classes (ARR):\n")
		for c := uint8(1); c <= hazard.MaxClass; c++ {
			fmt.Fprintf(&b, "  %s: %s\n", hazard.Label(c), hazard.Description(c))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
