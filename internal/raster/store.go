package raster

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

// Store reads and writes single-band rasters by path.
type Store interface {
	// Open reads band 1 of the raster at path.
	Open(path string) (*Band, error)

	// Write creates (or truncates) the raster at path, creating parent
	// directories as needed. Storage type and nodata come from b.Grid.
	Write(path string, b *Band) error

	// Exists reports whether a raster is present at path.
	Exists(path string) bool

	// Remove deletes the raster at path.
	Remove(path string) error
}

// MemoryStore is an in-memory Store for tests and dry runs. Every Write bumps
// the path's version so callers can tell a rewrite from a skip.
type MemoryStore struct {
	mu       sync.RWMutex
	bands    map[string]*Band
	versions map[string]int
	opens    map[string]int

	// FailRemove and FailWrite make the matching operation fail for a path.
	FailRemove map[string]error
	FailWrite  map[string]error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bands:      make(map[string]*Band),
		versions:   make(map[string]int),
		opens:      make(map[string]int),
		FailRemove: make(map[string]error),
		FailWrite:  make(map[string]error),
	}
}

// Put seeds a raster without counting as a write.
func (m *MemoryStore) Put(path string, b *Band) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bands[filepath.Clean(path)] = cloneBand(b)
}

func (m *MemoryStore) Open(path string) (*Band, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	m.opens[path]++
	b, ok := m.bands[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return cloneBand(b), nil
}

func (m *MemoryStore) Write(path string, b *Band) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err := m.FailWrite[path]; err != nil {
		return err
	}
	if len(b.Data) != b.Grid.Cells() {
		return fmt.Errorf("write %s: band has %d cells, grid needs %d", path, len(b.Data), b.Grid.Cells())
	}
	m.bands[path] = cloneBand(b)
	m.versions[path]++
	return nil
}

func (m *MemoryStore) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bands[filepath.Clean(path)]
	return ok
}

func (m *MemoryStore) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if err := m.FailRemove[path]; err != nil {
		return err
	}
	if _, ok := m.bands[path]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.bands, path)
	return nil
}

// Version returns how many times path has been written.
func (m *MemoryStore) Version(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[filepath.Clean(path)]
}

// Opens returns how many times path has been opened.
func (m *MemoryStore) Opens(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opens[filepath.Clean(path)]
}

func cloneBand(b *Band) *Band {
	data := make([]float64, len(b.Data))
	copy(data, b.Data)
	return &Band{Grid: b.Grid, Data: data}
}
