package catalog

import "github.com/couchcryptid/flood-hazard-etl/internal/domain"

// Entry is one node of a flattened tree with its path from the root.
type Entry struct {
	ID   string
	Path []string
	Node *Node
}

// Walk flattens the tree under root in depth-first pre-order. The root itself
// is not included and its name is not part of the paths.
func Walk(root *Node) []Entry {
	var out []Entry
	var visit func(n *Node, prefix []string)
	visit = func(n *Node, prefix []string) {
		for _, c := range n.Children {
			path := make([]string, len(prefix)+1)
			copy(path, prefix)
			path[len(prefix)] = c.Name
			out = append(out, Entry{ID: domain.LayerID(path...), Path: path, Node: c})
			if c.IsGroup() {
				visit(c, path)
			}
		}
	}
	visit(root, nil)
	return out
}

// Leaves is Walk restricted to leaf nodes.
func Leaves(root *Node) []Entry {
	var out []Entry
	for _, e := range Walk(root) {
		if !e.Node.IsGroup() {
			out = append(out, e)
		}
	}
	return out
}
