package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/apply"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/document"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/extract"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/gemini"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/settings"
)

func providerServer(t *testing.T, calls *atomic.Int32, handler http.HandlerFunc) *gemini.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return gemini.NewClient(
		gemini.WithTransport(gemini.NewHTTPTransport(srv.URL, srv.Client(), nil)),
		gemini.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
}

func candidate(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}}},
	})
	return string(b)
}

func textsOf(t *testing.T, doc *document.Document, id string) []string {
	t.Helper()
	n, ok := doc.Node(id)
	require.True(t, ok, id)
	frame, ok := n.(host.Frame)
	require.True(t, ok, id)
	var out []string
	for _, tn := range frame.TextNodes() {
		out = append(out, tn.Characters())
	}
	return out
}

func TestInitialExtractionScenarioA(t *testing.T) {
	doc := parseDoc(t, `selection: [f]
nodes:
  - id: f
    type: FRAME
    children:
      - {id: a, type: TEXT, characters: Buy now and save., font: {family: Inter, style: Regular}}
      - {id: b, type: TEXT, characters: Hi., font: {family: Inter, style: Regular}}
`)
	h := start(t, doc, &fakeGen{})

	ev := expect[TextNodesUpdated](h)
	assert.Equal(t, uint64(1), ev.Version)
	require.Len(t, ev.Segments, 1)
	assert.Equal(t, "Buy now and save.", ev.Segments[0].Text)
	assert.Equal(t, []int{0}, ev.SelectedIndices)
}

func TestSelectionChangedReplacesSnapshot(t *testing.T) {
	doc := parseDoc(t, heroDoc)
	h := start(t, doc, &fakeGen{})
	first := expect[TextNodesUpdated](h)
	require.Len(t, first.Segments, 2)

	doc.Select("t1")
	h.send(SelectionChanged{})
	second := expect[TextNodesUpdated](h)
	assert.Equal(t, uint64(2), second.Version)
	assert.Empty(t, second.Segments)
	assert.NotNil(t, second.Segments)
	assert.Empty(t, h.ctrl.Snapshot().Segments)
}

func TestGenerateScenarioB(t *testing.T) {
	doc := parseDoc(t, heroDoc)
	var calls atomic.Int32
	var gotKey atomic.Value
	client := providerServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.URL.Query().Get("key"))
		_, _ = io.WriteString(w, candidate("```json\n{\"variant_1\":{\"text_1\":\"A\"},\"variant_2\":{\"text_1\":\"B\"}}\n```"))
	})
	var persisted atomic.Int32
	h := start(t, doc, client, WithPersist(func() error {
		persisted.Add(1)
		return nil
	}))
	expect[TextNodesUpdated](h)

	info := h.generate(Generate{RequestID: "req-b", APIKey: "sk-live", VariantCount: 2, SelectedIndices: []int{0}})
	require.Nil(t, info)

	started := expect[GenerationStarted](h)
	assert.Equal(t, "req-b", started.RequestID)
	assert.Equal(t, prompt.ToneProfessional, started.Tone)

	ok := expect[GenerationSucceeded](h)
	assert.Equal(t, "VARIANT_1:\nA\n\nVARIANT_2:\nB", ok.Display)
	assert.Equal(t, []string{"B"}, ok.Variants[2])
	require.Len(t, ok.Diffs, 2)
	assert.Equal(t, "Buy now and save.", ok.Diffs[0].Segments[0].Before)

	expectNotice(h, SuccessMessage)
	after := expect[TextNodesUpdated](h)
	assert.Empty(t, after.Segments, "selection now spans the original and its clones")

	assert.Equal(t, StateDone, h.ctrl.State())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "sk-live", gotKey.Load())
	assert.Equal(t, int32(1), persisted.Load())

	frames := doc.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "A", textsOf(t, doc, "hero")[0])
	assert.Equal(t, "A", textsOf(t, doc, frames[1].ID())[0])
	assert.Equal(t, "B", textsOf(t, doc, frames[2].ID())[0])
	assert.Equal(t, "Free shipping on every order", textsOf(t, doc, frames[2].ID())[2])
}

func TestGenerateScenarioCTransportFailure(t *testing.T) {
	doc := parseDoc(t, heroDoc)
	var calls atomic.Int32
	client := providerServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	h := start(t, doc, client)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{RequestID: "req-c", APIKey: "k", VariantCount: 2}))
	failed := expect[GenerationFailed](h)
	assert.Equal(t, "req-c", failed.RequestID)
	assert.Equal(t, errinfo.CodeProviderUnavailable, failed.Error.ErrorCode)
	assert.True(t, strings.HasPrefix(failed.Message, FailurePrefix), failed.Message)
	assert.Contains(t, failed.Message, "HTTP error! status: 503")

	notice := expectNotice(h, "Error: "+failed.Message)
	assert.Equal(t, FailureNotice.Milliseconds(), notice.TimeoutMs)

	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, doc.Frames(), 1)
}

func TestGenerateScenarioDArrayPayload(t *testing.T) {
	doc := parseDoc(t, heroDoc)
	var calls atomic.Int32
	client := providerServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, candidate(`[{"text_1":"A"}]`))
	})
	h := start(t, doc, client)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{APIKey: "k", VariantCount: 1}))
	failed := expect[GenerationFailed](h)
	assert.Equal(t, errinfo.CodeResponseFormatInvalid, failed.Error.ErrorCode)
	assert.Equal(t, errinfo.SubphaseMap, failed.Error.Subphase)
	assert.NotEmpty(t, failed.RequestID, "generated when the command has none")

	assert.Equal(t, StateFailed, h.ctrl.State())
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, doc.Frames(), 1)
	assert.Equal(t, []string{"Buy now and save.", "Hi.", "Free shipping on every order"}, textsOf(t, doc, "hero"))
}

func TestGenerateMissingAPIKey(t *testing.T) {
	gen := &fakeGen{raw: `{}`}
	h := start(t, parseDoc(t, heroDoc), gen)
	expect[TextNodesUpdated](h)

	info := h.generate(Generate{VariantCount: 1})
	require.NotNil(t, info)
	assert.Equal(t, errinfo.CodeProviderNotConfigured, info.ErrorCode)

	failed := expect[GenerationFailed](h)
	assert.Equal(t, FailurePrefix+"API Key is missing", failed.Message)
	expectNotice(h, "Error: "+failed.Message)
	calls, _, _ := gen.snapshot()
	assert.Zero(t, calls)
}

type staticKeys struct {
	key string
	err error
}

func (s staticKeys) GetGoogleKey() (string, error) { return s.key, s.err }

func TestGenerateKeyFallbacks(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
		want string
	}{
		{"stored", []Option{WithKeySource(staticKeys{key: "stored"}), WithEnvKey("env")}, "stored"},
		{"env when store empty", []Option{WithKeySource(staticKeys{}), WithEnvKey("env")}, "env"},
		{"env when store fails", []Option{WithKeySource(staticKeys{err: errors.New("locked")}), WithEnvKey(" env ")}, "env"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGen{raw: `{"variant_1":{"text_1":"x"}}`}
			h := start(t, parseDoc(t, heroDoc), gen, tc.opts...)
			expect[TextNodesUpdated](h)
			require.Nil(t, h.generate(Generate{VariantCount: 1}))
			expect[GenerationSucceeded](h)
			_, keys, _ := gen.snapshot()
			assert.Equal(t, []string{tc.want}, keys)
		})
	}
}

func TestGeneratePreconditions(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(*document.Document)
		cmd    Generate
		code   string
		action string
	}{
		{
			name:   "no frame",
			setup:  func(d *document.Document) { d.Select("t1") },
			cmd:    Generate{APIKey: "k", VariantCount: 1},
			code:   errinfo.CodePreconditionFailed,
			action: errinfo.ActionSelectFrame,
		},
		{
			name:   "index out of range",
			cmd:    Generate{APIKey: "k", VariantCount: 1, SelectedIndices: []int{5}},
			code:   errinfo.CodePreconditionFailed,
			action: errinfo.ActionSelectSegments,
		},
		{
			name:   "empty selection",
			cmd:    Generate{APIKey: "k", VariantCount: 1, SelectedIndices: []int{}},
			code:   errinfo.CodePreconditionFailed,
			action: errinfo.ActionSelectSegments,
		},
		{
			name: "unknown tone",
			cmd:  Generate{APIKey: "k", VariantCount: 1, Tone: "Sarcastic"},
			code: errinfo.CodePreconditionFailed,
		},
		{
			name: "negative variant count",
			cmd:  Generate{APIKey: "k", VariantCount: -1},
			code: errinfo.CodePreconditionFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := parseDoc(t, heroDoc)
			gen := &fakeGen{raw: `{}`}
			h := start(t, doc, gen)
			expect[TextNodesUpdated](h)
			if tc.setup != nil {
				tc.setup(doc)
				h.send(SelectionChanged{})
				expect[TextNodesUpdated](h)
			}

			info := h.generate(tc.cmd)
			require.NotNil(t, info)
			assert.Equal(t, tc.code, info.ErrorCode)
			if tc.action != "" {
				assert.Contains(t, info.Actions, tc.action)
			}
			failed := expect[GenerationFailed](h)
			assert.Equal(t, info, failed.Error)
			assert.Equal(t, StateFailed, h.ctrl.State())
			calls, _, _ := gen.snapshot()
			assert.Zero(t, calls)
			assert.Len(t, doc.Frames(), 1)
		})
	}
}

type staticSettings struct{ s settings.Settings }

func (s staticSettings) Load() (*settings.Settings, error) {
	cp := s.s
	return &cp, nil
}

func TestGenerateUsesSettingsDefaults(t *testing.T) {
	gen := &fakeGen{raw: `{"variant_1":{"text_1":"x"},"variant_2":{"text_1":"y"}}`}
	h := start(t, parseDoc(t, heroDoc), gen, WithSettings(staticSettings{s: settings.Settings{
		DefaultTone:         prompt.ToneCasual,
		DefaultVariantCount: 2,
	}}))
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{APIKey: "k", Instructions: "mention free returns"}))
	started := expect[GenerationStarted](h)
	assert.Equal(t, 2, started.VariantCount)
	assert.Equal(t, 2, started.Segments)
	expect[GenerationSucceeded](h)

	_, _, prompts := gen.snapshot()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Generate 2 unique variants of the following input text: Buy now and save.. Free shipping on every order")
	assert.Contains(t, prompts[0], "Tone: Casual.")
	assert.Contains(t, prompts[0], "Special instructions: mention free returns")
}

func TestGenerateAcceptsVariantCountAboveSettingsCap(t *testing.T) {
	count := settings.MaxVariantCount + 2
	gen := &fakeGen{raw: fmt.Sprintf(`{"variant_1":{"text_1":"first"},"variant_%d":{"text_1":"last"}}`, count)}
	doc := parseDoc(t, heroDoc)
	h := start(t, doc, gen)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{APIKey: "k", VariantCount: count}))
	started := expect[GenerationStarted](h)
	assert.Equal(t, count, started.VariantCount)
	expect[GenerationSucceeded](h)
	expectNotice(h, SuccessMessage)
	expect[TextNodesUpdated](h)
	assert.Equal(t, StateDone, h.ctrl.State())

	frames := doc.Frames()
	require.Len(t, frames, count+1)
	last := frames[count]
	assert.Equal(t, fmt.Sprintf("Hero - Variation %d", count), last.Name())
	assert.Equal(t, "last", last.TextNodes()[0].Characters())
	assert.Equal(t, "first", frames[0].TextNodes()[0].Characters())
}

func TestGenerateBusyGuard(t *testing.T) {
	gen := &fakeGen{raw: `{"variant_1":{"text_1":"x"}}`, block: make(chan struct{})}
	h := start(t, parseDoc(t, heroDoc), gen)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{RequestID: "first", APIKey: "k", VariantCount: 1}))
	expect[GenerationStarted](h)

	info := h.generate(Generate{RequestID: "second", APIKey: "k", VariantCount: 1})
	require.NotNil(t, info)
	assert.Equal(t, errinfo.CodeBusy, info.ErrorCode)
	busy := expect[GenerationFailed](h)
	assert.Equal(t, "second", busy.RequestID)
	assert.Equal(t, StateAwaitingResponse, h.ctrl.State(), "in-flight run unaffected")

	close(gen.block)
	done := expect[GenerationSucceeded](h)
	assert.Equal(t, "first", done.RequestID)
	expectNotice(h, SuccessMessage)
	expect[TextNodesUpdated](h)
	assert.Equal(t, StateDone, h.ctrl.State())

	calls, _, _ := gen.snapshot()
	assert.Equal(t, 1, calls)
}

func TestTryExclusiveWaitsForInFlightRun(t *testing.T) {
	gen := &fakeGen{raw: `{"variant_1":{"text_1":"x"}}`, block: make(chan struct{})}
	h := start(t, parseDoc(t, heroDoc), gen)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{APIKey: "k", VariantCount: 1}))
	expect[GenerationStarted](h)

	called := false
	assert.False(t, h.ctrl.TryExclusive(func() { called = true }))
	assert.False(t, called, "declined while a run holds the guard")

	close(gen.block)
	expect[GenerationSucceeded](h)
	expect[TextNodesUpdated](h)
	require.Eventually(t, func() bool {
		return h.ctrl.TryExclusive(func() { called = true })
	}, waitTimeout, 10*time.Millisecond)
	assert.True(t, called)

	var busy *errinfo.ErrorInfo
	assert.True(t, h.ctrl.TryExclusive(func() {
		busy = h.generate(Generate{APIKey: "k", VariantCount: 1})
	}))
	require.NotNil(t, busy)
	assert.Equal(t, errinfo.CodeBusy, busy.ErrorCode)
}

func TestCancelStopsRunAndInFlightPipeline(t *testing.T) {
	gen := &fakeGen{raw: `{}`, block: make(chan struct{})}
	doc := parseDoc(t, heroDoc)
	h := start(t, doc, gen)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{APIKey: "k", VariantCount: 1}))
	expect[GenerationStarted](h)

	h.send(Cancel{})
	failed := expect[GenerationFailed](h)
	assert.Equal(t, errinfo.CodeUserCanceled, failed.Error.ErrorCode)
	expect[Closed](h)
	assert.NoError(t, h.wait())

	select {
	case <-h.ctrl.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Done not closed")
	}
	assert.Len(t, doc.Frames(), 1)
}

func TestFontFailureNoticeReachesEvents(t *testing.T) {
	doc := parseDoc(t, heroDoc)
	doc.SetFontAvailable(host.FontName{Family: "Inter", Style: "Regular"}, false)
	gen := &fakeGen{raw: `{"variant_1":{"text_1":"A","text_2":"B"}}`}
	h := start(t, doc, gen)
	expect[TextNodesUpdated](h)

	require.Nil(t, h.generate(Generate{APIKey: "k", VariantCount: 1}))
	n := expectNotice(h, "Skipped updating text node 0 due to font loading issues")
	assert.Equal(t, apply.FontNoticeTime.Milliseconds(), n.TimeoutMs)
	expectNotice(h, "Skipped updating original text node 2 due to font loading issues")
	expectNotice(h, SuccessMessage)
	expect[TextNodesUpdated](h)

	assert.Equal(t, StateDone, h.ctrl.State())
	assert.Len(t, doc.Frames(), 2)
	assert.Equal(t, "Buy now and save.", textsOf(t, doc, "hero")[0])
}

func TestSnapshotIsACopy(t *testing.T) {
	h := start(t, parseDoc(t, heroDoc), &fakeGen{})
	expect[TextNodesUpdated](h)
	snap := h.ctrl.Snapshot()
	require.Len(t, snap.Segments, 2)
	snap.Segments[0] = extract.Segment{Text: "mutated"}
	assert.Equal(t, "Buy now and save.", h.ctrl.Snapshot().Segments[0].Text)
}
