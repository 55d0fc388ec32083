// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/lib/process"
	"github.com/bureau-foundation/spyglass/trace"
)

// Classifier events are internal: they route liveness verdicts through
// the same reducer as external events so the single-mutation-path
// invariant holds. They never arrive from the wire.

type sessionMark struct {
	sessionID string
	status    trace.SessionStatus
	at        time.Time
}

func (e sessionMark) SessionID() string { return e.sessionID }
func (e sessionMark) Time() time.Time   { return e.at }

type requestExpire struct {
	sessionID string
	requestID string
	at        time.Time
}

func (e requestExpire) SessionID() string { return e.sessionID }
func (e requestExpire) Time() time.Time   { return e.at }

type sessionPrune struct {
	sessionID string
	at        time.Time
}

func (e sessionPrune) SessionID() string { return e.sessionID }
func (e sessionPrune) Time() time.Time   { return e.at }

func (s *Store) applySessionMark(event sessionMark) bool {
	session, ok := s.sessions[event.sessionID]
	if !ok || session.Status == event.status {
		return false
	}
	if session.Status.Terminal() && !event.status.Terminal() {
		// Liveness never resurrects an ended session.
		return false
	}
	session.Status = event.status
	if event.status.Terminal() && session.EndedAt.IsZero() {
		session.EndedAt = event.at
	}
	return true
}

func (s *Store) applyRequestExpire(event requestExpire) bool {
	request, ok := s.requests[event.requestID]
	if !ok || request.Status.Terminal() {
		return false
	}
	request.Status = trace.RequestExpired
	request.RespondedAt = event.at
	s.settleAgentWaiting(request.AgentID)
	return true
}

func (s *Store) applySessionPrune(event sessionPrune) bool {
	if _, ok := s.sessions[event.sessionID]; !ok {
		return false
	}
	delete(s.sessions, event.sessionID)
	for id, agent := range s.agents {
		if agent.SessionID != event.sessionID {
			continue
		}
		for _, tool := range agent.ToolUses {
			delete(s.tools, tool.ID)
		}
		delete(s.agents, id)
	}
	for id, request := range s.requests {
		if request.SessionID == event.sessionID {
			delete(s.requests, id)
		}
	}
	return true
}

// ClassifierConfig tunes the periodic liveness sweep.
type ClassifierConfig struct {
	// Interval between sweeps.
	Interval time.Duration
	// ActiveWindow is how recently a session must have produced
	// output to count as active without checking its process.
	ActiveWindow time.Duration
	// FailGrace is how long a silent session with a dead (or unknown)
	// process keeps non-terminal agents before being marked failed.
	FailGrace time.Duration
	// Retention is how long terminal sessions stay in the model
	// before being pruned. Zero disables pruning.
	Retention time.Duration
}

// Classifier periodically derives session liveness that the event
// stream cannot state on its own: a crashed producer writes no
// session_end. Verdicts go through Store.Apply as internal events.
type Classifier struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger
	cfg    ClassifierConfig

	// alive reports whether a pid refers to a live process. Swapped
	// in tests.
	alive func(pid int) bool

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewClassifier returns an unstarted classifier. Zero config fields
// get defaults.
func NewClassifier(store *Store, clk clock.Clock, logger *slog.Logger, cfg ClassifierConfig) *Classifier {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 30 * time.Second
	}
	if cfg.FailGrace <= 0 {
		cfg.FailGrace = 10 * time.Minute
	}
	return &Classifier{
		store:  store,
		clock:  clk,
		logger: logger,
		cfg:    cfg,
		alive:  process.Alive,
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop. The loop stops when ctx is cancelled
// or Stop is called.
func (c *Classifier) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop signals the loop to exit. Wait blocks until it has.
func (c *Classifier) Stop() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Wait blocks until the sweep loop has exited.
func (c *Classifier) Wait() { <-c.done }

func (c *Classifier) run(ctx context.Context) {
	defer close(c.done)
	ticker := c.clock.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep runs one classification pass. Exposed so the event loop can
// force a pass after recovery.
func (c *Classifier) Sweep() {
	now := c.clock.Now().UTC()

	c.store.mu.Lock()
	var verdicts []trace.Event
	for _, session := range c.store.sessions {
		verdicts = append(verdicts, c.classifyLocked(session, now)...)
	}
	for _, request := range c.store.requests {
		if request.Status != trace.RequestPending {
			continue
		}
		if request.TimeoutAt.IsZero() || now.Before(request.TimeoutAt) {
			continue
		}
		verdicts = append(verdicts, requestExpire{
			sessionID: request.SessionID,
			requestID: request.ID,
			at:        now,
		})
	}
	c.store.mu.Unlock()

	for _, verdict := range verdicts {
		c.store.Apply(verdict)
	}
}

// classifyLocked inspects one session and returns the internal events
// to apply, if any. Caller holds the store lock.
func (c *Classifier) classifyLocked(session *Session, now time.Time) []trace.Event {
	if session.Status.Terminal() {
		if c.cfg.Retention > 0 && now.Sub(session.LastActivity) > c.cfg.Retention {
			return []trace.Event{sessionPrune{sessionID: session.ID, at: now}}
		}
		return nil
	}

	if now.Sub(session.LastActivity) <= c.cfg.ActiveWindow {
		return nil
	}
	if session.PID > 0 && c.alive(session.PID) {
		// Quiet but the process is there: a long tool call or an idle
		// prompt, not a death.
		return nil
	}

	// Silent and no live process. With every agent settled this is a
	// clean finish whose end record we never saw; with work still
	// open we wait out the grace period before calling it failed.
	open := false
	for _, agent := range c.store.agents {
		if agent.SessionID == session.ID && !agent.Status.Terminal() {
			open = true
			break
		}
	}
	if !open {
		return []trace.Event{sessionMark{
			sessionID: session.ID,
			status:    trace.SessionCompleted,
			at:        now,
		}}
	}
	if now.Sub(session.LastActivity) > c.cfg.FailGrace {
		return []trace.Event{sessionMark{
			sessionID: session.ID,
			status:    trace.SessionFailed,
			at:        now,
		}}
	}
	return nil
}
