package apply_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/apply"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/document"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/mapper"
)

const promo = `selection: [promo]
unavailable_fonts:
  - {family: Display, style: Black}
nodes:
  - id: promo
    type: FRAME
    name: Promo
    x: 100
    width: 300
    height: 200
    children:
      - id: headline
        type: TEXT
        characters: Buy now and save.
        font: {family: Inter, style: Regular}
      - id: tag
        type: TEXT
        characters: Hi.
        font: {family: Inter, style: Regular}
      - id: body
        type: TEXT
        characters: Free shipping on all orders over fifty dollars.
        font: {family: Display, style: Black}
`

func setup(t *testing.T, raw string) (*document.Document, mapper.Result) {
	t.Helper()
	n := 0
	doc, err := document.Parse([]byte(promo), document.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("c%d", n)
	}))
	require.NoError(t, err)
	res, err := mapper.Map(json.RawMessage(raw))
	require.NoError(t, err)
	return doc, res
}

func texts(f host.Frame) []string {
	var out []string
	for _, n := range f.TextNodes() {
		out = append(out, n.Characters())
	}
	return out
}

func frameByID(t *testing.T, doc *document.Document, id string) host.Frame {
	t.Helper()
	n, ok := doc.Node(id)
	require.True(t, ok, id)
	f, ok := n.(host.Frame)
	require.True(t, ok, id)
	return f
}

func TestApplyTwoVariants(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A"},"variant_2":{"text_1":"B"}}`)

	report, err := apply.New().Apply(context.Background(), doc, res, 2, apply.Targets([]int{0}))
	require.NoError(t, err)
	require.True(t, report.Applied)
	require.Len(t, report.Clones, 2)
	assert.Equal(t, 3, report.Written)
	assert.Empty(t, report.Skipped)

	original := frameByID(t, doc, "promo")
	first := frameByID(t, doc, report.Clones[0])
	second := frameByID(t, doc, report.Clones[1])

	assert.Equal(t, "A", texts(original)[0])
	assert.Equal(t, "A", texts(first)[0])
	assert.Equal(t, "B", texts(second)[0])
	assert.Equal(t, "Hi.", texts(second)[1], "untargeted nodes stay untouched")

	assert.Equal(t, "Promo - Variation 1", first.Name())
	assert.Equal(t, "Promo - Variation 2", second.Name())
	assert.Equal(t, 420.0, first.Bounds().X)
	assert.Equal(t, 740.0, second.Bounds().X)

	var selected []string
	for _, n := range doc.Selection() {
		selected = append(selected, n.ID())
	}
	want := append([]string{"promo"}, report.Clones...)
	assert.Equal(t, want, selected)
	assert.Equal(t, want, doc.Viewport())
}

func TestApplyUsesNodeIndexNotSegmentPosition(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"Ship","text_2":"Save"}}`)
	doc.SetFontAvailable(host.FontName{Family: "Display", Style: "Black"}, true)

	targets := []apply.Target{{Position: 0, NodeIndex: 2}, {Position: 1, NodeIndex: 0}}
	_, err := apply.New().Apply(context.Background(), doc, res, 1, targets)
	require.NoError(t, err)

	assert.Equal(t, []string{"Save", "Hi.", "Ship"}, texts(frameByID(t, doc, "promo")))
}

func TestApplyPartialResultLeavesRestUntouched(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A"},"variant_2":{}}`)

	report, err := apply.New().Apply(context.Background(), doc, res, 3, apply.Targets([]int{0, 1}))
	require.NoError(t, err)
	require.Len(t, report.Clones, 3)

	assert.Equal(t, []string{"A", "Hi.", "Free shipping on all orders over fifty dollars."}, texts(frameByID(t, doc, report.Clones[0])))
	assert.Equal(t, "Buy now and save.", texts(frameByID(t, doc, report.Clones[1]))[0])
	assert.Equal(t, "Buy now and save.", texts(frameByID(t, doc, report.Clones[2]))[0])
	assert.Equal(t, "A", texts(frameByID(t, doc, "promo"))[0])
}

func TestApplyOutOfRangeTargetsIgnored(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A"}}`)
	report, err := apply.New().Apply(context.Background(), doc, res, 1, []apply.Target{{Position: 0, NodeIndex: 9}})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Written)
	assert.Equal(t, "Buy now and save.", texts(frameByID(t, doc, "promo"))[0])
}

func TestApplySkipsNodesWhoseFontFails(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A","text_2":"B"}}`)

	report, err := apply.New().Apply(context.Background(), doc, res, 1, apply.Targets([]int{0, 2}))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Written)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, 1, report.Skipped[0].Variant)
	assert.Equal(t, 2, report.Skipped[0].NodeIndex)
	assert.Equal(t, errinfo.CodeFontLoadFailed, report.Skipped[0].Code)
	assert.Equal(t, apply.OriginalVariant, report.Skipped[1].Variant)

	notices := doc.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "Skipped updating text node 2 due to font loading issues", notices[0].Message)
	assert.Equal(t, apply.FontNoticeTime, notices[0].Timeout)
	assert.Equal(t, "Skipped updating original text node 2 due to font loading issues", notices[1].Message)

	original := texts(frameByID(t, doc, "promo"))
	assert.Equal(t, "A", original[0])
	assert.Equal(t, "Free shipping on all orders over fifty dollars.", original[2])
}

func TestApplyWithoutFrameSelectionIsNoop(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A"}}`)
	doc.Select("headline")

	report, err := apply.New().Apply(context.Background(), doc, res, 2, apply.Targets([]int{0}))
	require.NoError(t, err)
	assert.False(t, report.Applied)
	assert.Empty(t, report.Clones)
	assert.Len(t, doc.Frames(), 1)
	require.Len(t, doc.Notices(), 1)
	assert.Equal(t, apply.NoFrameMessage, doc.Notices()[0].Message)
}

func TestApplyStopsOnCanceledContext(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A"}}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := apply.New().Apply(ctx, doc, res, 2, apply.Targets([]int{0}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, doc.Frames(), 1)
}

func TestTargets(t *testing.T) {
	assert.Equal(t, []apply.Target{{Position: 0, NodeIndex: 4}, {Position: 1, NodeIndex: 1}}, apply.Targets([]int{4, 1}))
	assert.Empty(t, apply.Targets(nil))
}

// unloadedFonts reports every font load as successful without loading it,
// so the following SetCharacters fails.
type unloadedFonts struct {
	*document.Document
}

func (unloadedFonts) LoadFont(ctx context.Context, font host.FontName) error { return ctx.Err() }

func TestApplyLabelsWriteFailuresSeparatelyFromFonts(t *testing.T) {
	doc, res := setup(t, `{"variant_1":{"text_1":"A"}}`)

	report, err := apply.New().Apply(context.Background(), unloadedFonts{doc}, res, 1, apply.Targets([]int{0}))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Written)
	require.Len(t, report.Skipped, 2)
	for _, skip := range report.Skipped {
		assert.Equal(t, errinfo.CodeTextWriteFailed, skip.Code)
		assert.Contains(t, skip.Reason, document.ErrFontNotLoaded.Error())
	}

	notices := doc.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "Skipped updating text node 0 due to a text write failure", notices[0].Message)
	assert.Equal(t, "Skipped updating original text node 0 due to a text write failure", notices[1].Message)
	assert.Equal(t, "Buy now and save.", texts(frameByID(t, doc, "promo"))[0])
}
