// Package catalog is the layer tree the pipeline discovers rasters in and
// registers derived rasters into. Groups nest; leaves reference a raster or
// vector file on disk.
package catalog

import (
	"fmt"
	"sort"
)

// LayerKind is the closed set of leaf types.
type LayerKind string

const (
	LayerRaster LayerKind = "raster"
	LayerVector LayerKind = "vector"
)

// ParseLayerKind resolves a stored layer type.
func ParseLayerKind(s string) (LayerKind, error) {
	switch LayerKind(s) {
	case LayerRaster, LayerVector:
		return LayerKind(s), nil
	default:
		return "", fmt.Errorf("unknown layer type %q", s)
	}
}

// Layer is the payload of a leaf node.
type Layer struct {
	Kind   LayerKind
	Source string
}

// Node is either a group (Layer == nil) or a leaf.
type Node struct {
	Name     string
	Layer    *Layer
	Children []*Node
}

// NewGroup creates a group node.
func NewGroup(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// NewLeaf creates a leaf node.
func NewLeaf(name string, kind LayerKind, source string) *Node {
	return &Node{Name: name, Layer: &Layer{Kind: kind, Source: source}}
}

// IsGroup reports whether n is a group.
func (n *Node) IsGroup() bool {
	return n.Layer == nil
}

// IsRaster reports whether n is a raster leaf.
func (n *Node) IsRaster() bool {
	return n.Layer != nil && n.Layer.Kind == LayerRaster
}

// Group returns the direct child group called name, or nil.
func (n *Node) Group(name string) *Node {
	for _, c := range n.Children {
		if c.IsGroup() && c.Name == name {
			return c
		}
	}
	return nil
}

// Leaf returns the direct child leaf called name, or nil.
func (n *Node) Leaf(name string) *Node {
	for _, c := range n.Children {
		if !c.IsGroup() && c.Name == name {
			return c
		}
	}
	return nil
}

// FindGroup follows path through nested groups.
func (n *Node) FindGroup(path ...string) *Node {
	cur := n
	for _, name := range path {
		cur = cur.Group(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// EnsureGroup follows path, creating missing groups.
func (n *Node) EnsureGroup(path ...string) *Node {
	cur := n
	for _, name := range path {
		next := cur.Group(name)
		if next == nil {
			next = NewGroup(name)
			cur.Children = append(cur.Children, next)
		}
		cur = next
	}
	return cur
}

// Subgroups returns the direct child groups sorted by name.
func (n *Node) Subgroups() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.IsGroup() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Leaves returns the direct child leaves in tree order.
func (n *Node) Leaves() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if !c.IsGroup() {
			out = append(out, c)
		}
	}
	return out
}

// Put adds leaf to n, replacing a leaf with the same name in place. It reports
// whether a leaf was replaced.
func (n *Node) Put(leaf *Node) bool {
	for i, c := range n.Children {
		if !c.IsGroup() && c.Name == leaf.Name {
			n.Children[i] = leaf
			return true
		}
	}
	n.Children = append(n.Children, leaf)
	return false
}

// Remove deletes the direct child called name, group or leaf.
func (n *Node) Remove(name string) bool {
	for i, c := range n.Children {
		if c.Name == name {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}
