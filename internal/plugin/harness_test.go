package plugin

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/document"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
)

const waitTimeout = 5 * time.Second

const heroDoc = `selection: [hero]
nodes:
  - id: hero
    type: FRAME
    name: Hero
    width: 200
    children:
      - {id: t1, type: TEXT, characters: Buy now and save., font: {family: Inter, style: Regular}}
      - {id: t2, type: TEXT, characters: Hi., font: {family: Inter, style: Regular}}
      - {id: t3, type: TEXT, characters: Free shipping on every order, font: {family: Inter, style: Regular}}
`

func parseDoc(t *testing.T, data string) *document.Document {
	t.Helper()
	doc, err := document.Parse([]byte(data))
	require.NoError(t, err)
	return doc
}

type harness struct {
	t      *testing.T
	doc    *document.Document
	ctrl   *Controller
	cmds   chan Command
	events chan Event
	cancel context.CancelFunc

	runErr  chan error
	once    sync.Once
	runDone error
}

func start(t *testing.T, doc *document.Document, gen Generator, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:      t,
		doc:    doc,
		ctrl:   New(doc, gen, opts...),
		cmds:   make(chan Command),
		events: make(chan Event, 256),
		cancel: cancel,
		runErr: make(chan error, 1),
	}
	go func() { h.runErr <- h.ctrl.Run(ctx, h.cmds) }()
	go func() {
		for ev := range h.ctrl.Events() {
			h.events <- ev
		}
		close(h.events)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) send(cmd Command) {
	h.t.Helper()
	select {
	case h.cmds <- cmd:
	case <-time.After(waitTimeout):
		h.t.Fatalf("command %T not accepted", cmd)
	}
}

func (h *harness) generate(cmd Generate) *errinfo.ErrorInfo {
	h.t.Helper()
	replies := make(chan *errinfo.ErrorInfo, 1)
	cmd.Reply = replies
	h.send(cmd)
	select {
	case info := <-replies:
		return info
	case <-time.After(waitTimeout):
		h.t.Fatal("no reply to Generate")
		return nil
	}
}

// wait blocks until Run has returned.
func (h *harness) wait() error {
	h.once.Do(func() {
		select {
		case h.runDone = <-h.runErr:
		case <-time.After(waitTimeout):
			h.t.Error("Run did not return")
		}
	})
	return h.runDone
}

func (h *harness) stop() {
	h.cancel()
	_ = h.wait()
	for range h.events {
	}
}

func expect[T Event](h *harness) T {
	h.t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				var zero T
				h.t.Fatalf("events closed while waiting for %T", zero)
			}
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-timeout:
			var zero T
			h.t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

// expectNotice skips events until a notice with message arrives.
func expectNotice(h *harness, message string) Notice {
	h.t.Helper()
	for {
		n := expect[Notice](h)
		if n.Message == message {
			return n
		}
	}
}

type fakeGen struct {
	mu      sync.Mutex
	raw     string
	err     error
	block   chan struct{}
	calls   int
	keys    []string
	prompts []string
}

func (f *fakeGen) Generate(ctx context.Context, apiKey, prompt string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.keys = append(f.keys, apiKey)
	f.prompts = append(f.prompts, prompt)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.raw), nil
}

func (f *fakeGen) snapshot() (int, []string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]string(nil), f.keys...), append([]string(nil), f.prompts...)
}
