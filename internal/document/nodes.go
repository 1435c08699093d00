package document

import (
	"fmt"
	"sort"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
)

type Frame struct {
	doc *Document
	n   *node
}

func (f *Frame) ID() string      { return f.n.id }
func (f *Frame) Kind() host.Kind { return host.KindFrame }

func (f *Frame) Name() string {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.n.name
}

func (f *Frame) SetName(name string) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	f.n.name = name
}

func (f *Frame) Bounds() host.Rect {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.n.bounds
}

func (f *Frame) SetX(x float64) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	f.n.bounds.X = x
}

func (f *Frame) TextNodes() []host.TextNode {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	nodes := f.n.textNodes()
	out := make([]host.TextNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Text{doc: f.doc, n: n})
	}
	return out
}

func (f *Frame) Clone() (host.Frame, error) {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return &Frame{doc: f.doc, n: f.n.deepCopy(f.doc.newID)}, nil
}

type Group struct {
	doc *Document
	n   *node
}

func (g *Group) ID() string      { return g.n.id }
func (g *Group) Kind() host.Kind { return host.KindGroup }
func (g *Group) Name() string {
	g.doc.mu.Lock()
	defer g.doc.mu.Unlock()
	return g.n.name
}

type Text struct {
	doc *Document
	n   *node
}

func (t *Text) ID() string      { return t.n.id }
func (t *Text) Kind() host.Kind { return host.KindText }

func (t *Text) Name() string {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.n.name
}

func (t *Text) Characters() string {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.n.characters
}

func (t *Text) FontName() host.FontName {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	return t.n.font
}

func (t *Text) SetCharacters(text string) error {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	if !t.doc.loaded[t.n.font] {
		return fmt.Errorf("set characters on %s: %w: %s", t.n.id, ErrFontNotLoaded, t.n.font)
	}
	t.n.characters = text
	return nil
}

func sortFonts(fonts []host.FontName) {
	sort.Slice(fonts, func(i, j int) bool {
		if fonts[i].Family != fonts[j].Family {
			return fonts[i].Family < fonts[j].Family
		}
		return fonts[i].Style < fonts[j].Style
	})
}
