// Package apply writes generated copy into duplicated frames and the original
// frame of the current selection.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/mapper"
)

const (
	// FrameGap separates consecutive variation frames horizontally.
	FrameGap = 20

	NoFrameMessage  = "Please select a frame to duplicate"
	FontNoticeTime  = 3 * time.Second
	skipFontReason  = "font loading issues"
	skipWriteReason = "a text write failure"
)

// Target pairs a generated text position with the text node it replaces.
type Target struct {
	// Position indexes the variant's text list.
	Position int
	// NodeIndex indexes the frame's depth-first text-node list.
	NodeIndex int
}

// OriginalVariant marks skips that happened on the original frame.
const OriginalVariant = 0

type Skip struct {
	Variant   int    `json:"variant"`
	NodeIndex int    `json:"node_index"`
	NodeID    string `json:"node_id,omitempty"`
	Code      string `json:"error_code"`
	Reason    string `json:"reason"`
}

type Report struct {
	Applied bool     `json:"applied"`
	Clones  []string `json:"clones"`
	Written int      `json:"written"`
	Skipped []Skip   `json:"skipped,omitempty"`
}

type Engine struct {
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "apply")
	return e
}

// Apply clones the selected frame once per variant, writes variant i into
// clone i and variant 1 into the original, then selects and frames all of
// them. Per-node and per-clone failures are recorded in the report and never
// abort the run; only context cancellation returns an error.
func (e *Engine) Apply(ctx context.Context, doc host.Document, result mapper.Result, variantCount int, targets []Target) (Report, error) {
	report := Report{Clones: []string{}}
	original, ok := host.SelectedFrame(doc)
	if !ok {
		doc.Notify(NoFrameMessage, 0)
		e.logger.Info("apply.no_frame")
		return report, nil
	}
	report.Applied = true

	bounds := original.Bounds()
	name := original.Name()
	framed := []host.Node{original}

	for i := 1; i <= variantCount; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		clone, err := e.duplicate(doc, original, bounds, name, i)
		if err != nil {
			e.logger.Warn("apply.clone_failed", "variant", i, "error", err.Error())
			info := errinfo.ValidationFailed(errinfo.PhaseApply, err.Error())
			report.Skipped = append(report.Skipped, Skip{Variant: i, NodeIndex: -1, Code: info.ErrorCode, Reason: info.Detail})
			continue
		}
		report.Clones = append(report.Clones, clone.ID())
		if err := e.write(ctx, doc, clone, i, result.Texts(i), targets, &report); err != nil {
			return report, err
		}
		framed = append(framed, clone)
	}

	if err := e.write(ctx, doc, original, OriginalVariant, result.Texts(1), targets, &report); err != nil {
		return report, err
	}

	doc.SetSelection(framed)
	doc.ScrollAndZoomIntoView(framed)
	e.logger.Info("apply.completed",
		"variants", variantCount,
		"clones", len(report.Clones),
		"written", report.Written,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (e *Engine) duplicate(doc host.Document, original host.Frame, bounds host.Rect, name string, i int) (host.Frame, error) {
	clone, err := original.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone variation %d: %w", i, err)
	}
	clone.SetX(bounds.X + (bounds.Width+FrameGap)*float64(i))
	clone.SetName(fmt.Sprintf("%s - Variation %d", name, i))
	if err := doc.AppendToPage(clone); err != nil {
		return nil, fmt.Errorf("append variation %d: %w", i, err)
	}
	return clone, nil
}

// write fills frame's text nodes from texts. variant is OriginalVariant for
// the original frame.
func (e *Engine) write(ctx context.Context, doc host.Document, frame host.Frame, variant int, texts []string, targets []Target, report *Report) error {
	nodes := frame.TextNodes()
	for _, target := range targets {
		if target.NodeIndex < 0 || target.NodeIndex >= len(nodes) || target.Position < 0 || target.Position >= len(texts) {
			continue
		}
		node := nodes[target.NodeIndex]
		if err := doc.LoadFont(ctx, node.FontName()); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.skip(doc, report, variant, target.NodeIndex, node.ID(), errinfo.FontLoadFailed(err.Error()), skipFontReason)
			continue
		}
		if err := node.SetCharacters(texts[target.Position]); err != nil {
			e.skip(doc, report, variant, target.NodeIndex, node.ID(), errinfo.TextWriteFailed(err.Error()), skipWriteReason)
			continue
		}
		report.Written++
	}
	return nil
}

func (e *Engine) skip(doc host.Document, report *Report, variant, nodeIndex int, nodeID string, info *errinfo.ErrorInfo, reason string) {
	label := "text node"
	if variant == OriginalVariant {
		label = "original text node"
	}
	e.logger.Warn("apply.node_skipped",
		"error_code", info.ErrorCode,
		"variant", variant,
		"node_index", nodeIndex,
		"node_id", nodeID,
		"error", info.Detail,
	)
	doc.Notify(fmt.Sprintf("Skipped updating %s %d due to %s", label, nodeIndex, reason), FontNoticeTime)
	report.Skipped = append(report.Skipped, Skip{
		Variant:   variant,
		NodeIndex: nodeIndex,
		NodeID:    nodeID,
		Code:      info.ErrorCode,
		Reason:    info.Detail,
	})
}

// Targets builds the target list for segments chosen in selection order.
func Targets(nodeIndices []int) []Target {
	out := make([]Target, 0, len(nodeIndices))
	for j, idx := range nodeIndices {
		out = append(out, Target{Position: j, NodeIndex: idx})
	}
	return out
}
