// Package ingest watches directories for swap datasets dropped in for analysis.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ErrRootNotExist is returned when the root directory does not exist.
var ErrRootNotExist = errors.New("ingest: root directory does not exist")

// ErrRootNotDirectory is returned when the root path is not a directory.
var ErrRootNotDirectory = errors.New("ingest: root is not a directory")

// ReportSuffix marks files written by the analysis itself. They are never
// treated as datasets, so an output directory may sit inside a watched one.
const ReportSuffix = ".report.csv"

// Op represents the type of file operation.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

// String returns a human-readable representation of the operation.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "Create"
	case OpModify:
		return "Modify"
	case OpDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// FileEvent is a change to a dataset file.
type FileEvent struct {
	Path string
	Op   Op
}

// ErrorCallback is called when an error occurs during watching.
type ErrorCallback func(err error)

// SkippedPath represents a path that was skipped during initial scan.
type SkippedPath struct {
	Path string
	Err  error
}

// Options filters which files produce events.
type Options struct {
	// Extensions lists accepted file extensions, e.g. ".csv". Empty accepts all.
	Extensions []string

	// IgnoreHidden skips files and directories whose name starts with a dot.
	IgnoreHidden bool

	// Excludes lists directory and file base names to skip.
	Excludes []string
}

// DefaultExcludes are base names never watched.
var DefaultExcludes = []string{
	".git",
	".cache",
	"reports",
}

// DefaultOptions accepts CSV files and skips hidden paths.
func DefaultOptions() Options {
	return Options{
		Extensions:   []string{".csv"},
		IgnoreHidden: true,
		Excludes:     append([]string(nil), DefaultExcludes...),
	}
}

// Watcher monitors a directory tree for dataset changes.
type Watcher struct {
	root   string
	events chan<- FileEvent
	fsw    *fsnotify.Watcher

	mu           sync.RWMutex // protects opts and skippedPaths
	opts         Options
	skippedPaths []SkippedPath

	onError      ErrorCallback
	droppedCount atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a watcher for root and all its subdirectories.
func NewWatcher(root string, events chan<- FileEvent, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotExist, root)
		}
		return nil, fmt.Errorf("cannot access root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:   root,
		events: events,
		fsw:    fsw,
		opts:   cloneOptions(opts),
		done:   make(chan struct{}),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.skip(path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.excludedName(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// SetOptions replaces the filters. Safe to call concurrently with Start.
func (w *Watcher) SetOptions(opts Options) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opts = cloneOptions(opts)
}

// SetErrorCallback sets a callback function that will be called when errors occur.
func (w *Watcher) SetErrorCallback(cb ErrorCallback) {
	w.onError = cb
}

// DroppedEventCount returns the number of events dropped because the channel was full.
func (w *Watcher) DroppedEventCount() int64 {
	return w.droppedCount.Load()
}

// SkippedPaths returns paths that could not be walked during setup.
func (w *Watcher) SkippedPaths() []SkippedPath {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.skippedPaths)
}

// Scan returns the dataset files already present under root, in lexical order.
func (w *Watcher) Scan() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.skip(path, err)
			return nil
		}
		if d.IsDir() {
			if path != w.root && w.excludedName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.Accepts(path) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// Accepts reports whether path is a dataset the watcher reports.
func (w *Watcher) Accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ReportSuffix) || strings.HasSuffix(base, ".tmp") {
		return false
	}
	if w.excludedName(base) {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.opts.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) excludedName(base string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.opts.IgnoreHidden && strings.HasPrefix(base, ".") {
		return true
	}
	return slices.Contains(w.opts.Excludes, base)
}

func (w *Watcher) skip(path string, err error) {
	w.mu.Lock()
	w.skippedPaths = append(w.skippedPaths, SkippedPath{Path: path, Err: err})
	w.mu.Unlock()
}

// inExcludedDir reports whether any directory between root and path is excluded.
func (w *Watcher) inExcludedDir(path string) bool {
	rel, err := filepath.Rel(w.root, filepath.Dir(path))
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.excludedName(part) {
			return true
		}
	}
	return false
}

// Start delivers events until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.inExcludedDir(event.Name) {
		return
	}

	var op Op
	switch {
	case event.Op&fsnotify.Create != 0:
		// New directories are watched but produce no event.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.excludedName(filepath.Base(event.Name)) {
				if err := w.fsw.Add(event.Name); err != nil && w.onError != nil {
					w.onError(err)
				}
			}
			return
		}
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	if !w.Accepts(event.Name) {
		return
	}

	select {
	case w.events <- FileEvent{Path: event.Name, Op: op}:
	default:
		w.droppedCount.Add(1)
	}
}

// Close stops the watcher and signals Start to return.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}

func cloneOptions(opts Options) Options {
	return Options{
		Extensions:   slices.Clone(opts.Extensions),
		IgnoreHidden: opts.IgnoreHidden,
		Excludes:     slices.Clone(opts.Excludes),
	}
}
