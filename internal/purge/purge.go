// Package purge deletes on-disk rasters that no catalog layer references. It
// works in two phases: Build writes a plan of FILE:/FOLDER: lines, Confirm
// executes it later without touching the catalog.
package purge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/flood-hazard-etl/internal/catalog"
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
	"github.com/couchcryptid/flood-hazard-etl/internal/fileutil"
)

const (
	filePrefix   = "FILE:"
	folderPrefix = "FOLDER:"
)

// Plan lists absolute paths scheduled for deletion.
type Plan struct {
	Files   []string
	Folders []string
}

// Len is the number of scheduled deletions.
func (p *Plan) Len() int {
	return len(p.Files) + len(p.Folders)
}

// Build compares the layers under group with the area folders of dir. Area
// folders holding no referenced layer are scheduled whole; inside referenced
// folders, unreferenced files are scheduled one by one. Stray files directly
// under dir are always scheduled. Relative layer sources resolve against base.
func Build(cat *catalog.Catalog, group []string, dir, base string) (*Plan, error) {
	g := cat.FindGroup(group...)
	if g == nil {
		return nil, fmt.Errorf("%w: catalog group %q not found", domain.ErrPrecondition, strings.Join(group, "/"))
	}

	keepFiles := make(map[string]bool)
	keepFolders := make(map[string]bool)
	for _, e := range catalog.Leaves(g) {
		src := absolute(e.Node.Layer.Source, base)
		keepFiles[src] = true
		keepFolders[filepath.Dir(src)] = true
	}

	plan := &Plan{}
	dir = absolute(dir, base)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return plan, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	for _, area := range entries {
		path := filepath.Join(dir, area.Name())
		if !area.IsDir() {
			plan.Files = append(plan.Files, path)
			continue
		}
		if !keepFolders[path] {
			plan.Folders = append(plan.Folders, path)
			continue
		}
		files, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		for _, f := range files {
			fp := filepath.Join(path, f.Name())
			if !f.IsDir() && !keepFiles[fp] {
				plan.Files = append(plan.Files, fp)
			}
		}
	}
	sort.Strings(plan.Files)
	sort.Strings(plan.Folders)
	return plan, nil
}

func absolute(path, base string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Write stores the plan at path, replacing any previous plan. An empty plan
// leaves an empty file.
func (p *Plan) Write(path string) error {
	var buf bytes.Buffer
	for _, f := range p.Files {
		fmt.Fprintf(&buf, "%s%s\n", filePrefix, f)
	}
	for _, f := range p.Folders {
		fmt.Fprintf(&buf, "%s%s\n", folderPrefix, f)
	}
	if err := fileutil.WriteAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write purge plan: %w", err)
	}
	return nil
}

// Read loads a plan written by Write. Blank lines are ignored; any other line
// without a known prefix is an error.
func Read(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: purge plan %s does not exist; run purge plan first", domain.ErrPrecondition, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read purge plan: %w", err)
	}

	plan := &Plan{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, filePrefix):
			plan.Files = append(plan.Files, strings.TrimPrefix(line, filePrefix))
		case strings.HasPrefix(line, folderPrefix):
			plan.Folders = append(plan.Folders, strings.TrimPrefix(line, folderPrefix))
		default:
			return nil, fmt.Errorf("purge plan %s line %d: unrecognised entry %q", path, n, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan purge plan: %w", err)
	}
	return plan, nil
}

// Result counts what Confirm deleted.
type Result struct {
	DeletedFiles   int
	DeletedFolders int
	Errors         []error
}

// Confirm executes the plan at path. Every entry is attempted; the plan file
// is emptied only when all deletions succeeded, so a failed run can be retried.
func Confirm(path string, logger *slog.Logger) (Result, error) {
	var res Result
	plan, err := Read(path)
	if err != nil {
		return res, err
	}
	if plan.Len() == 0 {
		logger.Info("purge plan is empty, nothing to delete", "path", path)
		return res, nil
	}

	for _, f := range plan.Files {
		if err := os.Remove(f); err != nil {
			logger.Error("delete file failed", "path", f, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("delete file %s: %w", f, err))
			continue
		}
		logger.Info("deleted file", "path", f)
		res.DeletedFiles++
	}
	for _, d := range plan.Folders {
		if _, err := os.Stat(d); err != nil {
			logger.Error("delete folder failed", "path", d, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("delete folder %s: %w", d, err))
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			logger.Error("delete folder failed", "path", d, "error", err)
			res.Errors = append(res.Errors, fmt.Errorf("delete folder %s: %w", d, err))
			continue
		}
		logger.Info("deleted folder", "path", d)
		res.DeletedFolders++
	}

	if len(res.Errors) > 0 {
		return res, errors.Join(res.Errors...)
	}
	if err := (&Plan{}).Write(path); err != nil {
		return res, fmt.Errorf("clear purge plan: %w", err)
	}
	return res, nil
}
