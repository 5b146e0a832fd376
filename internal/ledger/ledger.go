// Package ledger persists the provenance table of a pipeline stage: one row
// per output present after the run, naming the sources it was derived from.
package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/fileutil"
)

// Column layouts. The first column is the output id; the rest are source
// roles.
var (
	VDColumns     = []string{domain.RoleVD, domain.RoleVelocity, domain.RoleDepth}
	HazardColumns = []string{string(domain.KindHazard), domain.RoleVD, domain.RoleDepth, domain.RoleVelocity}
)

// Ledger is a header plus rows.
type Ledger struct {
	Columns []string
	Rows    [][]string
}

// Rows builds ledger rows from records: the output id, then each source role
// named by columns[1:].
func Rows(columns []string, records []domain.DerivedRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(columns))
		row[0] = r.OutputID
		for i, role := range columns[1:] {
			row[i+1] = r.Source(role)
		}
		rows = append(rows, row)
	}
	return rows
}

// Write replaces the ledger at path with columns and rows. Readers never see
// a partially written table.
func Write(path string, columns []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("encode ledger header: %w", err)
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("encode ledger row %d: %d fields, want %d", i, len(row), len(columns))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("encode ledger row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := fileutil.WriteAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// Read loads the ledger at path. A missing file is a precondition failure.
func Read(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: ledger %s does not exist", domain.ErrPrecondition, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("decode ledger %s: missing header", path)
	}
	return &Ledger{Columns: records[0], Rows: records[1:]}, nil
}

// Index returns the position of column name, or -1.
func (l *Ledger) Index(name string) int {
	for i, c := range l.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Require checks that every named column is present.
func (l *Ledger) Require(names ...string) error {
	for _, n := range names {
		if l.Index(n) < 0 {
			return fmt.Errorf("ledger is missing column %q", n)
		}
	}
	return nil
}

// Value returns row's field in column name, or "" when absent.
func (l *Ledger) Value(row []string, name string) string {
	i := l.Index(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
