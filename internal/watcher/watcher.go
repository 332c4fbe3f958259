// Package watcher is the document source: it feeds receipt PDFs from a
// watched directory into the pipeline, both files already present at
// startup and files arriving afterwards.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ysaito/receipt-pipeline/internal/extraction"
)

// DirWatcher emits a Document for every PDF dropped into the input
// directory. Files still being written are waited on until their size
// stabilizes before being read.
type DirWatcher struct {
	dir string
	out chan extraction.Document

	// stableChecks/stableDelay control the partially-written-file guard.
	stableChecks int
	stableDelay  time.Duration

	mu   sync.Mutex
	seen map[string]bool
}

// NewDirWatcher creates a watcher for dir. The directory is created if it
// does not exist.
func NewDirWatcher(dir string) (*DirWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating input directory: %w", err)
	}
	return &DirWatcher{
		dir:          dir,
		out:          make(chan extraction.Document),
		stableChecks: 3,
		stableDelay:  300 * time.Millisecond,
		seen:         make(map[string]bool),
	}, nil
}

// Documents is the stream of incoming receipt files. It is closed when Run
// returns.
func (w *DirWatcher) Documents() <-chan extraction.Document {
	return w.out
}

// Run watches the directory until ctx ends. Files already present are
// emitted first, then arrivals as fsnotify reports them.
func (w *DirWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()
	defer close(w.out)

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	// Pick up anything that arrived while the daemon was down.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scanning input directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := w.emit(ctx, filepath.Join(w.dir, entry.Name())); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if err := w.emit(ctx, event.Name); err != nil {
				return err
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "dir", w.dir, "error", err)
		}
	}
}

// emit reads one candidate file and sends it downstream. A path is emitted
// at most once per daemon lifetime; Create followed by Write events for the
// same file collapse into a single document.
func (w *DirWatcher) emit(ctx context.Context, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil
	}

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return nil
	}
	w.seen[path] = true
	w.mu.Unlock()

	if err := w.waitStable(ctx, path); err != nil {
		slog.Warn("Skipping unstable file", "path", path, "error", err)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Failed to read incoming file", "path", path, "error", err)
		return nil
	}

	doc := extraction.Document{
		Path:        path,
		Filename:    filepath.Base(path),
		Data:        data,
		ContentType: "application/pdf",
	}

	select {
	case w.out <- doc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitStable waits until the file's size stops changing, so PDFs still
// being copied in are not read half-written.
func (w *DirWatcher) waitStable(ctx context.Context, path string) error {
	last := int64(-1)
	for i := 0; i < w.stableChecks; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() == last {
			return nil
		}
		last = info.Size()
		select {
		case <-time.After(w.stableDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
