// Package watch ingests source files dropped into an inbox directory.
// New files are registered into a fixed corpus and driven through the
// pipeline as they appear.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/casefile-labs/verity/internal/core/ports/driving"
	"github.com/casefile-labs/verity/internal/logger"
)

// debounceWindow suppresses the write burst that follows a create while
// the producer is still flushing the file.
const debounceWindow = 500 * time.Millisecond

// Watcher monitors one inbox directory for one corpus.
type Watcher struct {
	pipeline driving.Pipeline
	corpusID string
	dir      string

	mu   sync.Mutex
	last map[string]time.Time

	// wg tracks in-flight document processing goroutines.
	wg sync.WaitGroup
}

// New creates a watcher over dir ingesting into corpusID.
func New(pipeline driving.Pipeline, corpusID, dir string) (*Watcher, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("watch: pipeline is required")
	}
	if corpusID == "" || dir == "" {
		return nil, fmt.Errorf("watch: corpus ID and directory are required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolving directory: %w", err)
	}

	return &Watcher{
		pipeline: pipeline,
		corpusID: corpusID,
		dir:      abs,
		last:     make(map[string]time.Time),
	}, nil
}

// Run watches until the context is cancelled. Each new file is ingested
// and processed in its own goroutine; processing may block on reviewer
// decisions without stalling the watch loop.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: adding %s: %w", w.dir, err)
	}

	logger.Info("watching %s for corpus %s", w.dir, w.corpusID)

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			path := w.handleEvent(event)
			if path == "" {
				continue
			}
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.ingest(ctx, path)
			}()

		case err, ok := <-fw.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			logger.Warn("watch error: %v", err)
		}
	}
}

// handleEvent filters one filesystem event down to a path worth
// ingesting, or "" to skip. Hidden files, directories and
// non-create/write operations are skipped, as are events inside the
// debounce window for a path.
func (w *Watcher) handleEvent(event fsnotify.Event) string {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return ""
	}
	if isHidden(event.Name) {
		return ""
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return ""
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if seen, ok := w.last[event.Name]; ok && now.Sub(seen) < debounceWindow {
		return ""
	}
	w.last[event.Name] = now

	return event.Name
}

// ingest registers one file and drives it through the pipeline.
func (w *Watcher) ingest(ctx context.Context, path string) {
	// Let the producer finish writing before we read.
	time.Sleep(debounceWindow)

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("reading %s: %v", path, err)
		return
	}

	doc, err := w.pipeline.Ingest(ctx, w.corpusID, "file://"+path, content)
	if err != nil {
		logger.Warn("ingesting %s: %v", path, err)
		return
	}
	logger.Info("ingested %s as document %s", path, doc.ID)

	if err := w.pipeline.Process(ctx, doc.ID); err != nil {
		logger.Warn("processing %s: %v", doc.ID, err)
		return
	}
	logger.Info("document %s processed", doc.ID)
}

// isHidden reports whether any element of the path starts with a dot.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
