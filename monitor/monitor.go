// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor assembles the core: discovery, tailing, the push
// listener, the reducer, the classifier, the input bridge, and
// snapshot persistence, driven by one event loop goroutine. Readers
// take snapshots from the store; nothing outside the loop mutates it
// except the bridge's respond path, which goes through the same
// reducer entry point.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/bureau-foundation/spyglass/bridge"
	"github.com/bureau-foundation/spyglass/feed"
	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/lib/config"
	"github.com/bureau-foundation/spyglass/tail"
	"github.com/bureau-foundation/spyglass/trace"
	"github.com/bureau-foundation/spyglass/track"
)

// Monitor owns the full ingestion pipeline.
type Monitor struct {
	cfg    config.Config
	clock  clock.Clock
	logger *slog.Logger

	store      *track.Store
	parser     *trace.Parser
	cursors    *tail.CursorStore
	reader     *tail.Reader
	watcher    *tail.Watcher
	listener   *feed.Listener
	classifier *track.Classifier
	responder  *bridge.Responder
	sweeper    *bridge.Sweeper

	snapshotPath string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New builds a monitor from config. Recovery runs here: the snapshot
// is loaded before any live source is read, so a late-joining
// observer starts from the last persisted tree. A missing or
// incompatible snapshot means an empty model, never a failure; only
// being unable to observe the watch root or bind the event socket is
// fatal.
func New(cfg config.Config, clk clock.Clock, logger *slog.Logger) (*Monitor, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Snapshot.Interval <= 0 {
		cfg.Snapshot.Interval = config.Default().Snapshot.Interval
	}
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	store := track.NewStore(clk, logger, cfg.Tail.RecentToolUses)
	snapshotPath := cfg.SnapshotPath()
	switch err := store.LoadSnapshot(snapshotPath); {
	case err == nil:
		logger.Info("recovered from snapshot", "path", snapshotPath, "revision", store.Revision())
	case errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, track.ErrIncompatibleSnapshot):
		logger.Warn("discarding incompatible snapshot", "path", snapshotPath, "error", err)
	default:
		logger.Warn("discarding unreadable snapshot", "path", snapshotPath, "error", err)
	}

	// Cursors stay authoritative for resume even when the snapshot
	// lags or is absent: re-read events land on an idempotent reducer.
	cursors, err := tail.OpenCursorStore(cfg.CursorPath())
	if err != nil {
		logger.Warn("cursor recovery degraded", "error", err)
	}

	parser := trace.NewParser(trace.NewSanitizer(cfg.Sanitize.MaxStringLength, cfg.Sanitize.RedactKeys))

	watcher, err := tail.NewWatcher(cfg.Paths.WatchRoot, clk, logger, cfg.Tail.RescanInterval)
	if err != nil {
		return nil, err
	}
	listener, err := feed.NewListener(cfg.SocketPath(), parser, logger)
	if err != nil {
		watcher.Stop()
		return nil, err
	}
	responder, err := bridge.NewResponder(cfg.Paths.ResponseDir, store, clk, logger)
	if err != nil {
		watcher.Stop()
		listener.Stop()
		return nil, err
	}

	classifier := track.NewClassifier(store, clk, logger, track.ClassifierConfig{
		Interval:     cfg.Classifier.Interval,
		ActiveWindow: cfg.Classifier.ActiveWindow,
		FailGrace:    cfg.Classifier.FailGrace,
		Retention:    cfg.Classifier.Retention,
	})
	sweeper := bridge.NewSweeper(cfg.Paths.ResponseDir, clk, logger,
		cfg.Bridge.SweepInterval, cfg.Bridge.Retention)

	return &Monitor{
		cfg:          cfg,
		clock:        clk,
		logger:       logger,
		store:        store,
		parser:       parser,
		cursors:      cursors,
		reader:       tail.NewReader(cursors),
		watcher:      watcher,
		listener:     listener,
		classifier:   classifier,
		responder:    responder,
		sweeper:      sweeper,
		snapshotPath: snapshotPath,
		done:         make(chan struct{}),
	}, nil
}

// Store exposes the model for snapshot readers.
func (m *Monitor) Store() *track.Store { return m.store }

// Responder exposes the bridge's respond surface.
func (m *Monitor) Responder() *bridge.Responder { return m.responder }

// SocketPath returns the push socket the monitor listens on.
func (m *Monitor) SocketPath() string { return m.listener.Addr() }

// Start launches the pipeline.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.watcher.Start(ctx)
	m.listener.Start(ctx)
	m.classifier.Start(ctx)
	m.sweeper.Start(ctx)
	go m.run(ctx)
}

// Stop signals shutdown. Wait blocks until teardown, including the
// final snapshot write, has finished.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
	})
}

// Wait blocks until the event loop has exited.
func (m *Monitor) Wait() { <-m.done }

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := m.clock.NewTicker(m.cfg.Snapshot.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case source := <-m.watcher.Sources():
			m.ingest(source)
		case event := <-m.listener.Events():
			m.store.Apply(event)
		case <-ticker.C:
			m.persist()
		}
	}
}

// ingest reads whatever a source has appended and reduces it. Errors
// are local: one unreadable file or malformed line never stops the
// loop.
func (m *Monitor) ingest(source tail.Source) {
	lines, reset, err := m.reader.ReadNew(source)
	if err != nil {
		m.logger.Warn("reading log", "path", source.Path, "error", err)
		return
	}
	if reset {
		m.logger.Info("log truncated, re-reading from start", "path", source.Path)
	}
	if len(lines) == 0 {
		return
	}

	for _, line := range lines {
		events, err := m.parser.Parse(source.Path, line.Number, line.Data, source.SessionID)
		if err != nil {
			m.logger.Warn("skipping malformed record", "error", err)
			continue
		}
		m.store.ApplyAll(events)
	}

	if source.WorkingDir != "" {
		// Location metadata decoded from the file's path. Applied
		// after the batch so a cwd stated in the log wins; the lossy
		// decoded form only fills the gap.
		m.store.Apply(trace.SessionUpdate{
			Meta:       trace.Meta{Session: source.SessionID},
			WorkingDir: source.WorkingDir,
		})
	}
}

// persist writes the snapshot and flushes cursors. Cursor flush comes
// second: a snapshot newer than its cursors only causes harmless
// re-reads, never loss.
func (m *Monitor) persist() {
	if err := m.store.SaveSnapshot(m.snapshotPath); err != nil {
		m.logger.Warn("writing snapshot", "error", err)
	}
	if err := m.cursors.Flush(); err != nil {
		m.logger.Warn("flushing cursors", "error", err)
	}
}

// shutdown drains in-flight work and persists once more. Component
// stops are ordered: sources first, then the sweepers, then the final
// write.
func (m *Monitor) shutdown() {
	m.watcher.Stop()
	m.listener.Stop()
	m.watcher.Wait()
	m.listener.Wait()

	for {
		select {
		case source := <-m.watcher.Sources():
			m.ingest(source)
			continue
		case event := <-m.listener.Events():
			m.store.Apply(event)
			continue
		default:
		}
		break
	}

	m.classifier.Stop()
	m.sweeper.Stop()
	m.classifier.Wait()
	m.sweeper.Wait()

	m.persist()
	m.logger.Info("monitor stopped", "revision", m.store.Revision())
}
