package plugin

import (
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/diff"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/extract"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
)

// Command is a UI-to-controller message.
type Command interface {
	isCommand()
}

// SelectionChanged asks the controller to re-extract segments.
type SelectionChanged struct{}

// Generate starts one generate-and-apply run.
type Generate struct {
	RequestID    string
	APIKey       string
	Tone         string
	VariantCount int
	Instructions string
	// CombinedText overrides the text joined from the selected segments.
	CombinedText string
	// SelectedIndices index the current snapshot; nil selects all.
	SelectedIndices []int
	// Reply, when set, receives nil once the run is accepted or the error
	// that rejected it. It must have room for one value.
	Reply chan<- *errinfo.ErrorInfo
}

// Cancel closes the plugin.
type Cancel struct{}

func (SelectionChanged) isCommand() {}
func (Generate) isCommand()         {}
func (Cancel) isCommand()           {}

// Event is a controller-to-UI message. Method names the notification it
// travels as.
type Event interface {
	Method() string
}

type TextNodesUpdated struct {
	Version         uint64            `json:"version"`
	Segments        []extract.Segment `json:"segments"`
	SelectedIndices []int             `json:"selected_indices"`
}

type GenerationStarted struct {
	RequestID    string      `json:"request_id"`
	Tone         prompt.Tone `json:"tone"`
	VariantCount int         `json:"variant_count"`
	Segments     int         `json:"segments"`
}

type GenerationSucceeded struct {
	RequestID string           `json:"request_id"`
	Display   string           `json:"display"`
	Variants  map[int][]string `json:"variants"`
	Diffs     []diff.Variant   `json:"diffs"`
}

type GenerationFailed struct {
	RequestID string             `json:"request_id"`
	Message   string             `json:"message"`
	Error     *errinfo.ErrorInfo `json:"error"`
}

type Notice struct {
	Message   string `json:"message"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

type Closed struct{}

func (TextNodesUpdated) Method() string    { return "TextNodesUpdated" }
func (GenerationStarted) Method() string   { return "CopyGenerationStarted" }
func (GenerationSucceeded) Method() string { return "CopyGenerated" }
func (GenerationFailed) Method() string    { return "CopyGenerateFailed" }
func (Notice) Method() string              { return "HostNotice" }
func (Closed) Method() string              { return "PluginClosed" }
