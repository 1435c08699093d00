package document

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 150 * time.Millisecond

// Watcher reloads a Document when its backing file changes on disk and
// reports each effective reload through onChange.
type Watcher struct {
	doc      *Document
	watcher  *fsnotify.Watcher
	target   string
	debounce time.Duration
	onChange func()
	gate     func(func()) bool
	logger   *slog.Logger
}

type WatcherOption func(*Watcher)

// WithReloadGate runs every reload through gate. When gate declines, the
// reload is retried after another debounce interval.
func WithReloadGate(gate func(reload func()) bool) WatcherOption {
	return func(w *Watcher) {
		if gate != nil {
			w.gate = gate
		}
	}
}

func NewWatcher(doc *Document, onChange func(), opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	target, err := filepath.Abs(doc.Path())
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	// Watch the directory: editors often replace the file via rename.
	if err := fw.Add(filepath.Dir(target)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{
		doc:      doc,
		watcher:  fw,
		target:   target,
		debounce: defaultDebounce,
		onChange: onChange,
		gate:     func(reload func()) bool { reload(); return true },
		logger:   doc.logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run blocks until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("document.watch_event", "op", event.Op.String(), "path", event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("document.watch_error", "error", err.Error())
		case <-timerCh:
			timerCh = nil
			var changed bool
			if !w.gate(func() { changed = w.reload() }) {
				w.logger.Debug("document.reload_deferred", "path", w.target)
				timer.Reset(w.debounce)
				timerCh = timer.C
				continue
			}
			// onChange runs outside the gate so it may wait on the gate's owner.
			if changed && w.onChange != nil {
				w.onChange()
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == w.target
}

func (w *Watcher) reload() bool {
	changed, err := w.doc.Reload()
	if err != nil {
		// A half-written file parses badly; the next write retries.
		w.logger.Warn("document.reload_failed", "path", w.target, "error", err.Error())
		return false
	}
	if changed {
		w.logger.Info("document.reloaded", "path", w.target)
	}
	return changed
}
