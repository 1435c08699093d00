package document

import (
	"fmt"
	"strings"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
)

// fileDocument is the on-disk YAML layout.
type fileDocument struct {
	Page             string          `yaml:"page"`
	Selection        []string        `yaml:"selection,omitempty"`
	Viewport         []string        `yaml:"viewport,omitempty"`
	UnavailableFonts []host.FontName `yaml:"unavailable_fonts,omitempty"`
	Nodes            []fileNode      `yaml:"nodes"`
}

type fileNode struct {
	ID         string         `yaml:"id"`
	Type       host.Kind      `yaml:"type"`
	Name       string         `yaml:"name,omitempty"`
	X          float64        `yaml:"x,omitempty"`
	Y          float64        `yaml:"y,omitempty"`
	Width      float64        `yaml:"width,omitempty"`
	Height     float64        `yaml:"height,omitempty"`
	Characters string         `yaml:"characters,omitempty"`
	Font       *host.FontName `yaml:"font,omitempty"`
	Children   []fileNode     `yaml:"children,omitempty"`
}

type node struct {
	id         string
	kind       host.Kind
	name       string
	bounds     host.Rect
	characters string
	font       host.FontName
	children   []*node
	attached   bool
}

func (n *node) walk(fn func(*node)) {
	fn(n)
	for _, child := range n.children {
		child.walk(fn)
	}
}

func (n *node) textNodes() []*node {
	var out []*node
	for _, child := range n.children {
		child.walk(func(c *node) {
			if c.kind == host.KindText {
				out = append(out, c)
			}
		})
	}
	return out
}

func (n *node) deepCopy(newID func() string) *node {
	cp := &node{
		id:         newID(),
		kind:       n.kind,
		name:       n.name,
		bounds:     n.bounds,
		characters: n.characters,
		font:       n.font,
	}
	cp.children = make([]*node, 0, len(n.children))
	for _, child := range n.children {
		cp.children = append(cp.children, child.deepCopy(newID))
	}
	return cp
}

func decodeNode(fn fileNode, seen map[string]bool) (*node, error) {
	id := strings.TrimSpace(fn.ID)
	if id == "" {
		return nil, fmt.Errorf("node %q: missing id", fn.Name)
	}
	if seen[id] {
		return nil, fmt.Errorf("duplicate node id %q", id)
	}
	seen[id] = true
	kind := host.Kind(strings.ToUpper(strings.TrimSpace(string(fn.Type))))
	switch kind {
	case host.KindFrame, host.KindGroup, host.KindText:
	default:
		return nil, fmt.Errorf("node %q: unsupported type %q", id, fn.Type)
	}
	n := &node{
		id:         id,
		kind:       kind,
		name:       fn.Name,
		bounds:     host.Rect{X: fn.X, Y: fn.Y, Width: fn.Width, Height: fn.Height},
		characters: fn.Characters,
	}
	if fn.Font != nil {
		n.font = *fn.Font
	}
	if kind == host.KindText && len(fn.Children) > 0 {
		return nil, fmt.Errorf("text node %q cannot have children", id)
	}
	for _, child := range fn.Children {
		c, err := decodeNode(child, seen)
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, c)
	}
	return n, nil
}

func encodeNode(n *node) fileNode {
	fn := fileNode{
		ID:         n.id,
		Type:       n.kind,
		Name:       n.name,
		X:          n.bounds.X,
		Y:          n.bounds.Y,
		Width:      n.bounds.Width,
		Height:     n.bounds.Height,
		Characters: n.characters,
	}
	if n.kind == host.KindText {
		font := n.font
		fn.Font = &font
	}
	for _, child := range n.children {
		fn.Children = append(fn.Children, encodeNode(child))
	}
	return fn
}
