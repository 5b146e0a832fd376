package catalog

import (
	"github.com/couchcryptid/flood-hazard-etl/internal/domain"
)

// Catalog owns a layer tree and the layer overrides stored alongside it.
type Catalog struct {
	root      *Node
	overrides Overrides
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{root: NewGroup(""), overrides: Overrides{}}
}

// Root returns the invisible root group.
func (c *Catalog) Root() *Node {
	return c.root
}

// Overrides returns the override table loaded with the catalog.
func (c *Catalog) Overrides() Overrides {
	return c.overrides
}

// SetOverride records an exact layer name for (area, year, role).
func (c *Catalog) SetOverride(k OverrideKey, layer string) {
	c.overrides[k] = layer
}

// FindGroup resolves a group path from the root.
func (c *Catalog) FindGroup(path ...string) *Node {
	return c.root.FindGroup(path...)
}

// Layer returns the leaf at id, a "/"-joined path from the root.
func (c *Catalog) Layer(id string) (*Node, bool) {
	path := domain.SplitLayerID(id)
	if len(path) == 0 {
		return nil, false
	}
	g := c.root.FindGroup(path[:len(path)-1]...)
	if g == nil {
		return nil, false
	}
	leaf := g.Leaf(path[len(path)-1])
	return leaf, leaf != nil
}

// LayersByName returns every leaf called name, in tree order.
func (c *Catalog) LayersByName(name string) []Entry {
	var out []Entry
	for _, e := range Leaves(c.root) {
		if e.Node.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Unregister drops the leaf called name from group. Groups are never removed.
// It reports whether a leaf was dropped.
func (c *Catalog) Unregister(group []string, name string) bool {
	g := c.root.FindGroup(group...)
	if g == nil || g.Leaf(name) == nil {
		return false
	}
	return g.Remove(name)
}

// Register adds a leaf under group, creating groups on the way and replacing
// a same-named leaf. It returns the layer id.
func (c *Catalog) Register(group []string, name string, kind LayerKind, source string) string {
	c.root.EnsureGroup(group...).Put(NewLeaf(name, kind, source))
	path := append(append([]string{}, group...), name)
	return domain.LayerID(path...)
}
