// Package plugin owns the plugin's state and runs the extract, generate and
// apply pipeline in response to UI commands.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/apply"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/diff"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/extract"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/host"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/logging"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/mapper"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/prompt"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/settings"
)

const (
	FailurePrefix  = "An error occurred while generating copy. "
	SuccessMessage = "Generated copies have been applied to the designs"
	FailureNotice  = 5 * time.Second

	eventBuffer = 64
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateApplying         State = "applying"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Generator produces the raw variant JSON for a prompt.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (json.RawMessage, error)
}

// KeySource supplies a stored API key when the command carries none.
type KeySource interface {
	GetGoogleKey() (string, error)
}

// SettingsSource supplies the user's default tone and variant count.
type SettingsSource interface {
	Load() (*settings.Settings, error)
}

// Snapshot is the extraction result the UI's selection indices refer to.
type Snapshot struct {
	Version  uint64
	Segments []extract.Segment
}

type Controller struct {
	doc      host.Document
	gen      Generator
	applier  *apply.Engine
	keys     KeySource
	envKey   string
	settings SettingsSource
	persist  func() error
	modelID  string
	newID    func() string
	logger   *slog.Logger

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	snapshot Snapshot
	state    State
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithApplier(engine *apply.Engine) Option {
	return func(c *Controller) {
		if engine != nil {
			c.applier = engine
		}
	}
}

func WithKeySource(keys KeySource) Option {
	return func(c *Controller) { c.keys = keys }
}

// WithEnvKey sets the last-resort key, typically COPYWRITER_GOOGLE_API_KEY.
func WithEnvKey(key string) Option {
	return func(c *Controller) { c.envKey = strings.TrimSpace(key) }
}

func WithSettings(src SettingsSource) Option {
	return func(c *Controller) { c.settings = src }
}

// WithPersist runs fn after every apply, e.g. to save the document.
func WithPersist(fn func() error) Option {
	return func(c *Controller) { c.persist = fn }
}

func WithModelID(modelID string) Option {
	return func(c *Controller) { c.modelID = modelID }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func New(doc host.Document, gen Generator, opts ...Option) *Controller {
	c := &Controller{
		gen:    gen,
		newID:  uuid.NewString,
		logger: logging.Nop(),
		sem:    semaphore.NewWeighted(1),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "plugin")
	if c.applier == nil {
		c.applier = apply.New(apply.WithLogger(c.logger))
	}
	c.doc = noticeDocument{Document: doc, emit: c.emit}
	return c
}

// Events carries every event until Run returns, then closes. Consumers must
// keep draining it while Run is active.
func (c *Controller) Events() <-chan Event { return c.events }

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Version:  c.snapshot.Version,
		Segments: append([]extract.Segment(nil), c.snapshot.Segments...),
	}
}

// State reports the state of the most recent generate action.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TryExclusive runs fn while holding the pipeline guard and reports whether it
// ran. It returns false without calling fn while a generate run is in flight.
func (c *Controller) TryExclusive(fn func()) bool {
	if !c.sem.TryAcquire(1) {
		return false
	}
	defer c.sem.Release(1)
	fn()
	return true
}

// Run handles commands in order until Cancel, a closed command channel or ctx
// is done. In-flight runs are cancelled and awaited before it returns.
func (c *Controller) Run(ctx context.Context, commands <-chan Command) error {
	defer close(c.done)
	defer close(c.events)
	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.wg.Wait()
		c.emit(Closed{})
		c.logger.Info("plugin.closed")
	}()

	c.refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-commands:
			if !ok {
				return nil
			}
			switch cmd := cmd.(type) {
			case SelectionChanged:
				c.refresh()
			case Generate:
				c.handleGenerate(runCtx, cmd)
			case Cancel:
				c.logger.Info("plugin.cancel")
				return nil
			default:
				c.logger.Warn("plugin.unknown_command", "type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (c *Controller) emit(ev Event) {
	c.events <- ev
}

// refresh re-extracts and replaces the snapshot wholesale.
func (c *Controller) refresh() {
	segments := extract.Extract(c.doc)
	c.mu.Lock()
	c.snapshot = Snapshot{Version: c.snapshot.Version + 1, Segments: segments}
	version := c.snapshot.Version
	c.mu.Unlock()
	c.logger.Debug("extract.updated", "version", version, "segments", len(segments))
	c.emit(TextNodesUpdated{
		Version:         version,
		Segments:        segments,
		SelectedIndices: extract.AllIndices(segments),
	})
}

func (c *Controller) setState(id string, next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	c.logger.Debug("generate.state", "request_id", id, "from", string(prev), "to", string(next))
}

type job struct {
	id       string
	apiKey   string
	req      prompt.Request
	prompt   string
	selected []extract.Segment
	targets  []apply.Target
}

func (c *Controller) handleGenerate(ctx context.Context, cmd Generate) {
	id := strings.TrimSpace(cmd.RequestID)
	if id == "" {
		id = c.newID()
	}
	c.logger.Info("generate.command",
		"request_id", id,
		"api_key", logging.RedactValue(cmd.APIKey),
		"tone", cmd.Tone,
		"variant_count", cmd.VariantCount,
		"selected_indices", cmd.SelectedIndices,
	)
	if !c.sem.TryAcquire(1) {
		info := errinfo.Busy(errinfo.PhaseGenerate)
		info.RequestID = id
		c.logger.Warn("generate.busy", "request_id", id)
		reply(cmd, info)
		c.emit(GenerationFailed{RequestID: id, Message: FailurePrefix + info.Detail, Error: info})
		return
	}

	j, info := c.prepare(id, cmd)
	if info != nil {
		c.sem.Release(1)
		reply(cmd, info)
		c.fail(id, info)
		return
	}
	reply(cmd, nil)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		c.execute(ctx, j)
	}()
}

func reply(cmd Generate, info *errinfo.ErrorInfo) {
	if cmd.Reply != nil {
		cmd.Reply <- info
	}
}

// prepare checks every precondition and builds the prompt.
func (c *Controller) prepare(id string, cmd Generate) (job, *errinfo.ErrorInfo) {
	j := job{id: id}
	precondition := func(detail string, actions ...string) *errinfo.ErrorInfo {
		info := errinfo.PreconditionFailed(errinfo.PhaseGenerate, detail, actions...)
		info.RequestID = id
		return info
	}

	j.apiKey = c.resolveKey(cmd.APIKey)
	if j.apiKey == "" {
		info := errinfo.ProviderNotConfigured(errinfo.PhaseGenerate)
		info.RequestID = id
		return j, info
	}
	if _, ok := host.SelectedFrame(c.doc); !ok {
		return j, precondition(apply.NoFrameMessage, errinfo.ActionSelectFrame)
	}

	defaults := c.defaults()
	tone := defaults.DefaultTone
	if strings.TrimSpace(cmd.Tone) != "" {
		parsed, err := prompt.ParseTone(cmd.Tone)
		if err != nil {
			info := mapError(errinfo.PhaseGenerate, errinfo.SubphasePrompt, fmt.Errorf("%w: %w", ErrPrecondition, err))
			info.RequestID = id
			return j, info
		}
		tone = parsed
	}
	count := cmd.VariantCount
	if count == 0 {
		count = defaults.DefaultVariantCount
	}
	if count < 1 {
		return j, precondition(fmt.Sprintf("variant count must be at least 1, got %d", count))
	}

	snap := c.Snapshot()
	if len(snap.Segments) == 0 {
		return j, precondition("the selected frame has no text with more than three words", errinfo.ActionSelectFrame)
	}
	indices := cmd.SelectedIndices
	if indices == nil {
		indices = extract.AllIndices(snap.Segments)
	}
	selected, err := extract.Select(snap.Segments, indices)
	if err != nil {
		info := mapError(errinfo.PhaseGenerate, errinfo.SubphasePrompt, err)
		info.RequestID = id
		return j, info
	}
	j.selected = selected

	nodeIndices := make([]int, 0, len(selected))
	for _, s := range selected {
		nodeIndices = append(nodeIndices, s.NodeIndex)
	}
	j.targets = apply.Targets(nodeIndices)

	combined := strings.TrimSpace(cmd.CombinedText)
	if combined == "" {
		combined = extract.Join(selected)
	}
	j.req = prompt.Request{
		CombinedText: combined,
		Tone:         tone,
		VariantCount: count,
		Instructions: cmd.Instructions,
	}
	text, err := prompt.Build(j.req)
	if err != nil {
		info := mapError(errinfo.PhaseGenerate, errinfo.SubphasePrompt, err)
		info.RequestID = id
		return j, info
	}
	j.prompt = text
	return j, nil
}

func (c *Controller) resolveKey(fromCommand string) string {
	if key := strings.TrimSpace(fromCommand); key != "" {
		return key
	}
	if c.keys != nil {
		key, err := c.keys.GetGoogleKey()
		if err != nil {
			c.logger.Warn("generate.stored_key_unavailable", "error", err.Error())
		} else if key = strings.TrimSpace(key); key != "" {
			return key
		}
	}
	return c.envKey
}

func (c *Controller) defaults() *settings.Settings {
	if c.settings == nil {
		return settings.Default()
	}
	s, err := c.settings.Load()
	if err != nil {
		c.logger.Warn("generate.settings_unavailable", "error", err.Error())
		return settings.Default()
	}
	return s
}

func (c *Controller) execute(ctx context.Context, j job) {
	c.setState(j.id, StateAwaitingResponse)
	c.emit(GenerationStarted{
		RequestID:    j.id,
		Tone:         j.req.Tone,
		VariantCount: j.req.VariantCount,
		Segments:     len(j.selected),
	})

	raw, err := c.gen.Generate(ctx, j.apiKey, j.prompt)
	if err != nil {
		c.failErr(j.id, errinfo.SubphaseProvider, err)
		return
	}
	result, err := mapper.Map(raw)
	if err != nil {
		c.failErr(j.id, errinfo.SubphaseMap, err)
		return
	}
	if mismatch := result.Mismatch(j.req.VariantCount, len(j.selected)); len(mismatch) > 0 {
		c.logger.Warn("generate.shape_mismatch", "request_id", j.id, "details", mismatch)
	}

	before := make([]string, 0, len(j.selected))
	for _, s := range j.selected {
		before = append(before, s.Text)
	}
	diffs := make([]diff.Variant, 0, j.req.VariantCount)
	for i := 1; i <= j.req.VariantCount; i++ {
		diffs = append(diffs, diff.Compare(i, before, result.Texts(i)))
	}
	c.emit(GenerationSucceeded{
		RequestID: j.id,
		Display:   result.DisplayText(),
		Variants:  result.Variants,
		Diffs:     diffs,
	})

	c.setState(j.id, StateApplying)
	report, err := c.applier.Apply(ctx, c.doc, result, j.req.VariantCount, j.targets)
	if err != nil {
		c.logger.Warn("apply.interrupted", "request_id", j.id, "error", err.Error())
	}
	if report.Applied && err == nil {
		c.doc.Notify(SuccessMessage, 0)
	}
	if c.persist != nil && report.Applied {
		if err := c.persist(); err != nil {
			info := errinfo.FileWriteFailed(errinfo.PhaseApply, err.Error())
			c.logger.Error("apply.persist_failed", "request_id", j.id, "error_code", info.ErrorCode, "error", err.Error())
		}
	}
	c.logger.Info("generate.completed",
		"request_id", j.id,
		"clones", len(report.Clones),
		"written", report.Written,
		"skipped", len(report.Skipped),
	)
	c.setState(j.id, StateDone)
	c.refresh()
}

func (c *Controller) failErr(id, subphase string, err error) {
	info := mapError(errinfo.PhaseGenerate, subphase, err)
	info.RequestID = id
	info.ModelID = c.modelID
	c.fail(id, info)
}

// fail reports one failed generate action: one event and one host notice.
func (c *Controller) fail(id string, info *errinfo.ErrorInfo) {
	c.setState(id, StateFailed)
	detail := info.Detail
	if detail == "" {
		detail = info.ErrorCode
	}
	message := FailurePrefix + detail
	c.logger.Error("generate.failed", "request_id", id, "error_code", info.ErrorCode, "detail", info.Detail)
	c.emit(GenerationFailed{RequestID: id, Message: message, Error: info})
	c.doc.Notify("Error: "+message, FailureNotice)
}

// noticeDocument mirrors host notices onto the event stream.
type noticeDocument struct {
	host.Document
	emit func(Event)
}

func (d noticeDocument) Notify(message string, timeout time.Duration) {
	d.Document.Notify(message, timeout)
	d.emit(Notice{Message: message, TimeoutMs: timeout.Milliseconds()})
}
