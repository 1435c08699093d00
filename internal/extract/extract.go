// Package extract pulls rewritable copy out of the selected frame.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
)

// MinTokens is the token count a text must exceed to be offered for rewriting.
const MinTokens = 3

var (
	ErrNoSelection     = errors.New("no segments selected")
	ErrIndexOutOfRange = errors.New("segment index out of range")
	ErrDuplicateIndex  = errors.New("duplicate segment index")
)

type Segment struct {
	// Index is the position in extraction order.
	Index int `json:"index"`
	// NodeIndex is the position of the source node among all of the frame's
	// text nodes, eligible or not.
	NodeIndex int    `json:"node_index"`
	NodeID    string `json:"node_id"`
	Text      string `json:"text"`
}

// Eligible reports whether trimmed text splits into more than MinTokens
// space-separated tokens. Runs of spaces count as empty tokens.
func Eligible(text string) bool {
	return len(strings.Split(strings.TrimSpace(text), " ")) > MinTokens
}

// Extract returns the eligible text segments of the selected frame. Any
// selection other than exactly one frame yields an empty, non-nil slice.
func Extract(doc host.Document) []Segment {
	segments := []Segment{}
	frame, ok := host.SelectedFrame(doc)
	if !ok {
		return segments
	}
	for nodeIndex, node := range frame.TextNodes() {
		text := strings.TrimSpace(node.Characters())
		if !Eligible(text) {
			continue
		}
		segments = append(segments, Segment{
			Index:     len(segments),
			NodeIndex: nodeIndex,
			NodeID:    node.ID(),
			Text:      text,
		})
	}
	return segments
}

// AllIndices is the default selection over segments.
func AllIndices(segments []Segment) []int {
	out := make([]int, len(segments))
	for i := range segments {
		out[i] = i
	}
	return out
}

// Select validates indices against segments and returns the chosen segments in
// selection order.
func Select(segments []Segment, indices []int) ([]Segment, error) {
	if len(indices) == 0 {
		return nil, ErrNoSelection
	}
	seen := make(map[int]bool, len(indices))
	out := make([]Segment, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(segments) {
			return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, idx, len(segments))
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateIndex, idx)
		}
		seen[idx] = true
		out = append(out, segments[idx])
	}
	return out, nil
}

// Combine joins the selected segment texts with the sentence delimiter, in
// selection order.
func Combine(segments []Segment, indices []int) (string, error) {
	selected, err := Select(segments, indices)
	if err != nil {
		return "", err
	}
	return Join(selected), nil
}

func Join(segments []Segment) string {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, prompt.SentenceDelimiter)
}
