// Package document is a file-backed stand-in for the design tool's document:
// a YAML tree of frames, groups and text nodes loaded into memory, mutated by
// the apply step, and written back on Save.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
)

var (
	ErrFontNotLoaded   = errors.New("font not loaded")
	ErrAlreadyAttached = errors.New("frame already attached to page")
	ErrForeignNode     = errors.New("node does not belong to this document")
)

// Notice is a transient message surfaced by Notify.
type Notice struct {
	Message string
	Timeout time.Duration
}

type Document struct {
	mu          sync.Mutex
	path        string
	digest      [32]byte
	page        string
	roots       []*node
	index       map[string]*node
	selection   []string
	viewport    []string
	unavailable map[host.FontName]bool
	loaded      map[host.FontName]bool
	notices     []Notice
	notify      func(Notice)
	newID       func() string
	logger      *slog.Logger
}

type Option func(*Document)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithNotifier forwards Notify calls, e.g. to the UI event stream.
func WithNotifier(fn func(Notice)) Option {
	return func(d *Document) { d.notify = fn }
}

func WithIDGenerator(fn func() string) Option {
	return func(d *Document) {
		if fn != nil {
			d.newID = fn
		}
	}
}

func newDocument(opts []Option) *Document {
	d := &Document{
		index:       make(map[string]*node),
		unavailable: make(map[host.FontName]bool),
		loaded:      make(map[host.FontName]bool),
		newID:       uuid.NewString,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse builds a document from YAML without binding it to a file.
func Parse(data []byte, opts ...Option) (*Document, error) {
	d := newDocument(opts)
	if err := d.replace(data); err != nil {
		return nil, err
	}
	return d, nil
}

// Open loads path; Save and Reload use the same path.
func Open(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d := newDocument(opts)
	d.path = path
	if err := d.replace(data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

func (d *Document) Path() string { return d.path }

func (d *Document) replace(data []byte) error {
	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return err
	}
	seen := make(map[string]bool)
	roots := make([]*node, 0, len(fd.Nodes))
	for _, fn := range fd.Nodes {
		n, err := decodeNode(fn, seen)
		if err != nil {
			return err
		}
		roots = append(roots, n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.page = fd.Page
	d.roots = roots
	d.index = make(map[string]*node)
	for _, root := range roots {
		d.attach(root)
	}
	d.selection = append([]string(nil), fd.Selection...)
	d.viewport = append([]string(nil), fd.Viewport...)
	d.unavailable = make(map[host.FontName]bool, len(fd.UnavailableFonts))
	for _, font := range fd.UnavailableFonts {
		d.unavailable[font] = true
	}
	d.digest = sha256.Sum256(data)
	return nil
}

// Reload re-reads the backing file. It reports false when the content is
// identical to what was last loaded or saved.
func (d *Document) Reload() (bool, error) {
	if d.path == "" {
		return false, errors.New("document has no backing file")
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return false, err
	}
	d.mu.Lock()
	same := d.digest == sha256.Sum256(data)
	d.mu.Unlock()
	if same {
		return false, nil
	}
	if err := d.replace(data); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Document) Marshal() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.marshalLocked()
}

func (d *Document) marshalLocked() ([]byte, error) {
	fd := fileDocument{
		Page:      d.page,
		Selection: append([]string(nil), d.selection...),
		Viewport:  append([]string(nil), d.viewport...),
	}
	for font := range d.unavailable {
		fd.UnavailableFonts = append(fd.UnavailableFonts, font)
	}
	sortFonts(fd.UnavailableFonts)
	for _, root := range d.roots {
		fd.Nodes = append(fd.Nodes, encodeNode(root))
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fd); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the current tree back to the backing file.
func (d *Document) Save() error {
	if d.path == "" {
		return errors.New("document has no backing file")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := d.marshalLocked()
	if err != nil {
		return err
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return err
	}
	d.digest = sha256.Sum256(data)
	return nil
}

func (d *Document) attach(n *node) {
	n.walk(func(c *node) {
		c.attached = true
		d.index[c.id] = c
	})
}

func (d *Document) handle(n *node) host.Node {
	switch n.kind {
	case host.KindFrame:
		return &Frame{doc: d, n: n}
	case host.KindText:
		return &Text{doc: d, n: n}
	default:
		return &Group{doc: d, n: n}
	}
}

// Node looks up a node by id.
func (d *Document) Node(id string) (host.Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.handle(n), true
}

// Frames lists top-level frames in page order.
func (d *Document) Frames() []*Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Frame
	for _, root := range d.roots {
		if root.kind == host.KindFrame {
			out = append(out, &Frame{doc: d, n: root})
		}
	}
	return out
}

func (d *Document) Selection() []host.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]host.Node, 0, len(d.selection))
	for _, id := range d.selection {
		if n, ok := d.index[id]; ok {
			out = append(out, d.handle(n))
		}
	}
	return out
}

// Select replaces the selection by id; unknown ids are ignored.
func (d *Document) Select(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selection = d.selection[:0]
	for _, id := range ids {
		if _, ok := d.index[id]; ok {
			d.selection = append(d.selection, id)
		}
	}
}

func (d *Document) SetSelection(nodes []host.Node) {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID())
	}
	d.Select(ids...)
}

func (d *Document) ScrollAndZoomIntoView(nodes []host.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewport = d.viewport[:0]
	for _, n := range nodes {
		d.viewport = append(d.viewport, n.ID())
	}
}

// Viewport returns the ids last framed by ScrollAndZoomIntoView.
func (d *Document) Viewport() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.viewport...)
}

func (d *Document) AppendToPage(frame host.Frame) error {
	f, ok := frame.(*Frame)
	if !ok || f.doc != d {
		return ErrForeignNode
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.n.attached {
		return ErrAlreadyAttached
	}
	d.roots = append(d.roots, f.n)
	d.attach(f.n)
	return nil
}

func (d *Document) LoadFont(ctx context.Context, font host.FontName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable[font] {
		return fmt.Errorf("load %s: %w", font, host.ErrFontUnavailable)
	}
	d.loaded[font] = true
	return nil
}

// SetFontAvailable toggles whether LoadFont succeeds for font.
func (d *Document) SetFontAvailable(font host.FontName, available bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if available {
		delete(d.unavailable, font)
		return
	}
	d.unavailable[font] = true
	delete(d.loaded, font)
}

func (d *Document) Notify(message string, timeout time.Duration) {
	notice := Notice{Message: message, Timeout: timeout}
	d.mu.Lock()
	d.notices = append(d.notices, notice)
	notify := d.notify
	d.mu.Unlock()
	d.logger.Info("document.notice", "message", message, "timeout_ms", timeout.Milliseconds())
	if notify != nil {
		notify(notice)
	}
}

func (d *Document) Notices() []Notice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notice(nil), d.notices...)
}
