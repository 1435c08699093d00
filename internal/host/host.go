// Package host declares the slice of the design tool's document API the engine
// depends on. Implementations live outside the core (internal/document is the
// file-backed one used by the CLI).
package host

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindFrame Kind = "FRAME"
	KindGroup Kind = "GROUP"
	KindText  Kind = "TEXT"
)

var ErrFontUnavailable = errors.New("font unavailable")

type FontName struct {
	Family string `json:"family" yaml:"family"`
	Style  string `json:"style" yaml:"style"`
}

func (f FontName) String() string {
	if f.Style == "" {
		return f.Family
	}
	return f.Family + " " + f.Style
}

type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

type Node interface {
	ID() string
	Kind() Kind
	Name() string
}

// Frame is a cloneable top-level container.
type Frame interface {
	Node
	SetName(name string)
	Bounds() Rect
	SetX(x float64)
	// TextNodes lists descendant text nodes in depth-first document order.
	TextNodes() []TextNode
	// Clone returns a detached deep copy with fresh node identities.
	Clone() (Frame, error)
}

type TextNode interface {
	Node
	Characters() string
	// SetCharacters requires the node's font to have been loaded.
	SetCharacters(text string) error
	FontName() FontName
}

type Document interface {
	Selection() []Node
	AppendToPage(frame Frame) error
	LoadFont(ctx context.Context, font FontName) error
	SetSelection(nodes []Node)
	ScrollAndZoomIntoView(nodes []Node)
	Notify(message string, timeout time.Duration)
}

// SelectedFrame returns the selection when it is exactly one frame.
func SelectedFrame(doc Document) (Frame, bool) {
	selection := doc.Selection()
	if len(selection) != 1 {
		return nil, false
	}
	if selection[0].Kind() != KindFrame {
		return nil, false
	}
	frame, ok := selection[0].(Frame)
	return frame, ok
}
