package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/flood-hazard-etl/internal/fileutil"
)

const fileVersion = 1

type fileDoc struct {
	Version   int            `yaml:"version"`
	Tree      []fileNode     `yaml:"tree"`
	Overrides []fileOverride `yaml:"overrides,omitempty"`
}

// fileNode is a group when Type is empty and a leaf otherwise.
type fileNode struct {
	Name     string     `yaml:"name"`
	Type     string     `yaml:"type,omitempty"`
	Source   string     `yaml:"source,omitempty"`
	Children []fileNode `yaml:"children,omitempty"`
}

type fileOverride struct {
	Area  string `yaml:"area"`
	Year  int    `yaml:"year"`
	Role  string `yaml:"role"`
	Layer string `yaml:"layer"`
}

// Load reads a catalog file. A missing file yields an empty catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML. Leaf types are resolved here, so an unknown type
// fails the whole document.
func Parse(data []byte) (*Catalog, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if doc.Version > fileVersion {
		return nil, fmt.Errorf("decode catalog: unsupported version %d", doc.Version)
	}

	c := New()
	for _, fn := range doc.Tree {
		n, err := fn.toNode()
		if err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		c.root.Children = append(c.root.Children, n)
	}
	for _, o := range doc.Overrides {
		c.SetOverride(OverrideKey{Area: o.Area, Year: o.Year, Role: o.Role}, o.Layer)
	}
	return c, nil
}

func (fn fileNode) toNode() (*Node, error) {
	if fn.Name == "" {
		return nil, errors.New("node without a name")
	}
	if fn.Type == "" {
		if fn.Source != "" {
			return nil, fmt.Errorf("group %q has a source", fn.Name)
		}
		g := NewGroup(fn.Name)
		for _, child := range fn.Children {
			n, err := child.toNode()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn.Name, err)
			}
			g.Children = append(g.Children, n)
		}
		return g, nil
	}

	kind, err := ParseLayerKind(fn.Type)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", fn.Name, err)
	}
	if len(fn.Children) > 0 {
		return nil, fmt.Errorf("layer %q has children", fn.Name)
	}
	return NewLeaf(fn.Name, kind, fn.Source), nil
}

// Marshal encodes the catalog as YAML. Overrides are sorted for stable output.
func (c *Catalog) Marshal() ([]byte, error) {
	doc := fileDoc{Version: fileVersion}
	for _, n := range c.root.Children {
		doc.Tree = append(doc.Tree, fromNode(n))
	}
	for k, layer := range c.overrides {
		doc.Overrides = append(doc.Overrides, fileOverride{Area: k.Area, Year: k.Year, Role: k.Role, Layer: layer})
	}
	sort.Slice(doc.Overrides, func(i, j int) bool {
		a, b := doc.Overrides[i], doc.Overrides[j]
		if a.Area != b.Area {
			return a.Area < b.Area
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Role < b.Role
	})

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return out, nil
}

func fromNode(n *Node) fileNode {
	if !n.IsGroup() {
		return fileNode{Name: n.Name, Type: string(n.Layer.Kind), Source: n.Layer.Source}
	}
	fn := fileNode{Name: n.Name}
	for _, c := range n.Children {
		fn.Children = append(fn.Children, fromNode(c))
	}
	return fn
}

// Save writes the catalog to path through a temporary file and rename.
func (c *Catalog) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(path, data); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}
