// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/spyglass/lib/clock"
)

// Sweeper removes abandoned artifacts. A pair the requester never
// consumed would otherwise sit on disk forever.
type Sweeper struct {
	dir       string
	clock     clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSweeper returns an unstarted sweeper over dir.
func NewSweeper(dir string, clk clock.Clock, logger *slog.Logger, interval, retention time.Duration) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Sweeper{
		dir:       dir,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop signals the loop to exit; Wait blocks until it has.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Wait blocks until the sweep loop has exited.
func (s *Sweeper) Wait() { <-s.done }

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes artifacts older than the retention window. Content
// and signal files age independently; removing a stale content file
// whose signal never appeared is exactly the abandoned-crash case.
func (s *Sweeper) Sweep() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("sweeping response directory", "dir", s.dir, "error", err)
		}
		return
	}
	cutoff := s.clock.Now().Add(-s.retention)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, contentSuffix) && !strings.HasSuffix(name, signalSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing stale artifact", "path", path, "error", err)
			continue
		}
		s.logger.Debug("removed stale artifact", "path", path)
	}
}
