// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tail

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

	"github.com/bureau-foundation/spyglass/lib/clock"
)

// Watcher discovers log files under the watch root and reports which
// ones have new content. inotify delivers the fast path; a periodic
// rescan catches anything inotify missed (watch-descriptor races on
// freshly created project directories, events dropped under load).
type Watcher struct {
	root     string
	clock    clock.Clock
	logger   *slog.Logger
	rescan   time.Duration
	fswatch  *fsnotify.Watcher
	sources  chan Source
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	watched map[string]bool // project directories under inotify
}

// NewWatcher prepares a watcher over root. The root must exist; being
// unable to observe it at all is a startup failure, not something to
// limp through.
func NewWatcher(root string, clk clock.Clock, logger *slog.Logger, rescan time.Duration) (*Watcher, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rescan <= 0 {
		rescan = 30 * time.Second
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	fswatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}
	if err := fswatch.Add(root); err != nil {
		fswatch.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	return &Watcher{
		root:    root,
		clock:   clk,
		logger:  logger,
		rescan:  rescan,
		fswatch: fswatch,
		sources: make(chan Source, 64),
		done:    make(chan struct{}),
		watched: make(map[string]bool),
	}, nil
}

// Sources delivers discovered-or-modified log files. Delivery is
// level-triggered: receiving a Source means "this file may have new
// content", and re-deliveries for unchanged files are harmless
// because the cursor read returns nothing.
func (w *Watcher) Sources() <-chan Source { return w.sources }

// Start launches the watch loop and performs the initial full scan.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop signals the loop to exit; Wait blocks until it has.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
}

// Wait blocks until the watch loop has exited.
func (w *Watcher) Wait() { <-w.done }

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.fswatch.Close()

	w.scan(ctx)

	ticker := w.clock.NewTicker(w.rescan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		case event, ok := <-w.fswatch.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fswatch.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Op.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.watchProject(event.Name)
			w.scanProject(ctx, event.Name)
			return
		}
		w.emit(ctx, event.Name)
	case event.Op.Has(fsnotify.Write):
		w.emit(ctx, event.Name)
	}
}

// scan walks the whole root: every project directory gets a watch,
// every log file gets re-announced.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.logger.Warn("scanning watch root", "root", w.root, "error", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		project := filepath.Join(w.root, entry.Name())
		w.watchProject(project)
		w.scanProject(ctx, project)
	}
}

func (w *Watcher) scanProject(ctx context.Context, project string) {
	entries, err := os.ReadDir(project)
	if err != nil {
		w.logger.Warn("scanning project directory", "dir", project, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.emit(ctx, filepath.Join(project, entry.Name()))
	}
}

func (w *Watcher) watchProject(project string) {
	w.mu.Lock()
	already := w.watched[project]
	if !already {
		w.watched[project] = true
	}
	w.mu.Unlock()
	if already {
		return
	}
	if err := w.fswatch.Add(project); err != nil {
		w.logger.Warn("watching project directory", "dir", project, "error", err)
	}
}

func (w *Watcher) emit(ctx context.Context, path string) {
	if filepath.Ext(path) != ".jsonl" {
		return
	}
	source := Source{
		Path:       path,
		SessionID:  strings.TrimSuffix(filepath.Base(path), ".jsonl"),
		WorkingDir: DecodeWorkingDir(filepath.Base(filepath.Dir(path))),
	}
	select {
	case w.sources <- source:
	case <-ctx.Done():
	}
}

// DecodeWorkingDir recovers a working directory from a project
// directory name, where "/" became "-" and "." became "--". The
// encoding is lossy for paths whose components themselves contain
// dashes; the decoded value is a display hint, overridden by any cwd
// the logs state explicitly.
func DecodeWorkingDir(name string) string {
	if !strings.HasPrefix(name, "-") {
		return name
	}
	decoded := strings.TrimPrefix(name, "-")
	decoded = strings.ReplaceAll(decoded, "--", "\x00")
	decoded = strings.ReplaceAll(decoded, "-", "/")
	decoded = strings.ReplaceAll(decoded, "\x00", ".")
	return "/" + decoded
}
