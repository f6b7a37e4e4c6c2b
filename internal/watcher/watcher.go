// Package watcher observes a vault for markdown changes and emits
// debounced event batches that drive incremental index runs.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed on a vault file.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Event is a single observed change to a markdown file, with the path
// relative to the vault root.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// DefaultDebounceWindow is the quiet period before a batch is emitted
// when Options.DebounceWindow is unset.
const DefaultDebounceWindow = 500 * time.Millisecond

// Options configures the vault watcher.
type Options struct {
	// DebounceWindow is how long to wait for a burst of changes to
	// settle before emitting a batch. Default 500ms.
	DebounceWindow time.Duration

	// PollInterval is the scan interval when falling back to polling.
	// Default 5s.
	PollInterval time.Duration

	// BufferSize is the batch channel capacity. Default 64.
	BufferSize int

	// ExcludeDirs are directory names skipped anywhere in the tree,
	// in addition to dot-prefixed directories.
	ExcludeDirs []string
}

// WithDefaults fills in zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BufferSize == 0 {
		o.BufferSize = 64
	}
	return o
}

// VaultWatcher watches a vault recursively. It uses fsnotify when the
// platform supports it and falls back to periodic scanning otherwise.
// Consumers receive debounced batches; a batch is a signal to run an
// incremental sync, not a complete change log.
type VaultWatcher struct {
	fsw        *fsnotify.Watcher
	poller     *vaultPoller
	usePolling bool
	debouncer  *Debouncer
	batches    chan []Event
	errs       chan error
	stopCh     chan struct{}
	root       string
	opts       Options
	excluded   map[string]bool
	dropped    atomic.Uint64

	mu      sync.RWMutex
	stopped bool
}

// New creates a vault watcher.
func New(opts Options) (*VaultWatcher, error) {
	opts = opts.WithDefaults()

	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	w := &VaultWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		batches:   make(chan []Event, opts.BufferSize),
		errs:      make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
		excluded:  excluded,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
		w.usePolling = true
		w.poller = newVaultPoller(opts.PollInterval, excluded)
	} else {
		w.fsw = fsw
	}

	return w, nil
}

// Start watches the vault rooted at root until the context is
// cancelled or Stop is called. It blocks.
func (w *VaultWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve vault root: %w", err)
	}
	w.root = absRoot

	go w.forwardBatches(ctx)

	if w.usePolling {
		return w.startPolling(ctx)
	}
	return w.startFsnotify(ctx)
}

func (w *VaultWatcher) startFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("watch vault directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *VaultWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.poller.events:
				if !ok {
					return
				}
				w.debouncer.Add(event)
			case err, ok := <-w.poller.errs:
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	return w.poller.run(ctx, w.root, w.stopCh)
}

func (w *VaultWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)

	if w.ignoredPath(relPath) {
		return
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	if isDir {
		// A new directory may already contain files moved in with it.
		// Watching it is enough: the triggered sync rescans the vault.
		if event.Op&fsnotify.Create != 0 {
			_ = w.addRecursive(event.Name)
			w.debouncer.Add(Event{Path: relPath, Op: OpCreate, Timestamp: time.Now()})
		}
		return
	}

	if !isMarkdown(relPath) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// chmod and friends
		return
	}

	w.debouncer.Add(Event{Path: relPath, Op: op, Timestamp: time.Now()})
}

func (w *VaultWatcher) forwardBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			w.emitBatch(events)
		}
	}
}

// addRecursive registers root and every non-excluded subdirectory
// with fsnotify.
func (w *VaultWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if relPath == "." {
			return w.fsw.Add(path)
		}
		if w.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *VaultWatcher) ignoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || w.excluded[name]
}

// ignoredPath reports whether any segment of the slash-separated
// relative path is a dot-prefixed or excluded directory.
func (w *VaultWatcher) ignoredPath(relPath string) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	segments := strings.Split(relPath, "/")
	for i, seg := range segments {
		isLast := i == len(segments)-1
		if strings.HasPrefix(seg, ".") {
			return true
		}
		if !isLast && w.excluded[seg] {
			return true
		}
	}
	return false
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func (w *VaultWatcher) emitBatch(events []Event) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case w.batches <- events:
	default:
		count := w.dropped.Add(1)
		slog.Warn("watcher batch buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("dropped_total", count))
	}
}

func (w *VaultWatcher) emitError(err error) {
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case w.errs <- err:
	default:
	}
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *VaultWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}

	close(w.batches)
	close(w.errs)
	return nil
}

// Batches returns the channel of debounced event batches. It is
// closed when the watcher stops.
func (w *VaultWatcher) Batches() <-chan []Event {
	return w.batches
}

// Errors returns the channel of non-fatal watcher errors.
func (w *VaultWatcher) Errors() <-chan error {
	return w.errs
}

// Mode reports which mechanism is in use, "fsnotify" or "polling".
func (w *VaultWatcher) Mode() string {
	if w.usePolling {
		return "polling"
	}
	return "fsnotify"
}

// DroppedBatches returns how many batches were dropped because the
// consumer fell behind.
func (w *VaultWatcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}
