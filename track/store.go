// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/spyglass/lib/clock"
	"github.com/bureau-foundation/spyglass/trace"
)

// unknownSessionID collects entities whose events never named a
// session. The session is synthesized on first use and marked
// Synthetic so the renderer can show "unknown origin".
const unknownSessionID = "unknown"

// rootAgentSuffix names the synthetic root agent of a session whose
// events never declared one (transcript-only sessions).
const rootAgentSuffix = "/main"

// Store is the live model plus its reducer. All mutation funnels
// through Apply, which holds the store lock for the duration of one
// event. No other step can interleave mid-mutation, so invariants are
// checked against a consistent tree.
type Store struct {
	mu sync.Mutex

	clock  clock.Clock
	logger *slog.Logger

	// recentToolUses bounds the per-agent tool history.
	recentToolUses int

	revision uint64
	sessions map[string]*Session
	agents   map[string]*Agent
	tools    map[string]*ToolUse
	requests map[string]*InputRequest

	// notify coalesces change signals: capacity 1, non-blocking send.
	// Many applies between reads collapse into one wakeup; watchers
	// then pull the latest snapshot, never a delta.
	notify chan struct{}
}

// NewStore returns an empty Store. recentToolUses bounds each agent's
// retained tool history (<= 0 selects the default of 20). A nil
// logger uses slog.Default().
func NewStore(clk clock.Clock, logger *slog.Logger, recentToolUses int) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recentToolUses <= 0 {
		recentToolUses = 20
	}
	return &Store{
		clock:          clk,
		logger:         logger,
		recentToolUses: recentToolUses,
		sessions:       make(map[string]*Session),
		agents:         make(map[string]*Agent),
		tools:          make(map[string]*ToolUse),
		requests:       make(map[string]*InputRequest),
		notify:         make(chan struct{}, 1),
	}
}

// Watch returns the coalescing change channel. After draining it,
// call Snapshot for the current tree.
func (s *Store) Watch() <-chan struct{} { return s.notify }

// Revision returns the current monotonic revision number.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Apply reduces one event into the model and reports whether
// observable state changed. Apply is idempotent for repeated entity
// ids: duplicate starts and duplicate completions are no-ops, and
// terminal statuses are never left. Events referencing unseen ids
// synthesize their ancestor chain instead of being dropped.
func (s *Store) Apply(event trace.Event) bool {
	s.mu.Lock()
	changed := s.applyLocked(event)
	if changed {
		s.revision++
	}
	s.mu.Unlock()

	if changed {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return changed
}

// ApplyAll reduces a batch and reports whether any event changed
// state. The notification still coalesces to a single wakeup.
func (s *Store) ApplyAll(events []trace.Event) bool {
	changed := false
	for _, event := range events {
		if s.Apply(event) {
			changed = true
		}
	}
	return changed
}

func (s *Store) applyLocked(event trace.Event) bool {
	switch typed := event.(type) {
	case trace.SessionStart:
		return s.applySessionStart(typed)
	case trace.SessionUpdate:
		return s.applySessionUpdate(typed)
	case trace.SessionEnd:
		return s.applySessionEnd(typed)
	case trace.AgentStart:
		return s.applyAgentStart(typed)
	case trace.AgentUpdate:
		return s.applyAgentUpdate(typed)
	case trace.AgentComplete:
		return s.applyAgentComplete(typed)
	case trace.ToolStart:
		return s.applyToolStart(typed)
	case trace.ToolComplete:
		return s.applyToolComplete(typed)
	case trace.InputRequested:
		return s.applyInputRequested(typed)
	case trace.InputResponded:
		return s.applyInputResponded(typed)
	case trace.Message:
		return s.applyMessage(typed)
	case trace.Ignored:
		// Unknown event types still prove the session exists and is
		// producing output.
		if typed.SessionID() == "" {
			return false
		}
		session := s.ensureSession(typed.SessionID(), s.eventTime(typed))
		return s.touch(session, s.eventTime(typed))
	case sessionMark:
		return s.applySessionMark(typed)
	case requestExpire:
		return s.applyRequestExpire(typed)
	case sessionPrune:
		return s.applySessionPrune(typed)
	default:
		s.logger.Warn("unhandled event type in reducer", "event", event)
		return false
	}
}

// eventTime returns the event's own timestamp, or the store clock when
// the record carried none. This is the reducer's only time dependency
// beyond the events themselves.
func (s *Store) eventTime(event trace.Event) time.Time {
	if t := event.Time(); !t.IsZero() {
		return t
	}
	return s.clock.Now().UTC()
}

// ensureSession returns the session, synthesizing a placeholder when
// the id has not been seen. Placeholders are marked Synthetic until a
// session_start merges into them.
func (s *Store) ensureSession(id string, at time.Time) *Session {
	if id == "" {
		id = unknownSessionID
	}
	if session, ok := s.sessions[id]; ok {
		return session
	}
	session := &Session{
		ID:           id,
		Status:       trace.SessionActive,
		StartedAt:    at,
		LastActivity: at,
		Synthetic:    true,
		seenMessages: make(map[string]struct{}),
	}
	s.sessions[id] = session
	return session
}

// ensureAgent returns the agent, synthesizing a placeholder attached
// to the given session when the id has not been seen.
func (s *Store) ensureAgent(id, sessionID string, at time.Time) *Agent {
	if agent, ok := s.agents[id]; ok {
		return agent
	}
	session := s.ensureSession(sessionID, at)
	agent := &Agent{
		ID:        id,
		SessionID: session.ID,
		Status:    trace.AgentRunning,
		StartedAt: at,
		Synthetic: true,
	}
	s.agents[id] = agent
	return agent
}

// rootAgent returns the session's root agent, the earliest-started
// agent without a parent, synthesizing one when the session has no
// agents yet. Transcript-derived tool and message events attach here
// because the host tool's own log does not name agents.
func (s *Store) rootAgent(sessionID string, at time.Time) *Agent {
	session := s.ensureSession(sessionID, at)

	var root *Agent
	for _, agent := range s.agents {
		if agent.SessionID != session.ID || agent.ParentID != "" {
			continue
		}
		if root == nil || agent.StartedAt.Before(root.StartedAt) ||
			(agent.StartedAt.Equal(root.StartedAt) && agent.ID < root.ID) {
			root = agent
		}
	}
	if root != nil {
		return root
	}
	return s.ensureAgent(session.ID+rootAgentSuffix, session.ID, at)
}

// touch advances a session's LastActivity high-water mark.
func (s *Store) touch(session *Session, at time.Time) bool {
	if at.After(session.LastActivity) {
		session.LastActivity = at
		return true
	}
	return false
}

func (s *Store) applySessionStart(event trace.SessionStart) bool {
	at := s.eventTime(event)

	session, exists := s.sessions[event.SessionID()]
	if !exists {
		session = s.ensureSession(event.SessionID(), at)
		session.Synthetic = false
		session.WorkingDir = event.WorkingDir
		session.PID = event.PID
		return true
	}

	changed := s.touch(session, at)
	if session.Synthetic {
		// The start event for a session we synthesized from a child
		// event: merge its attributes into the placeholder.
		session.Synthetic = false
		session.StartedAt = at
		changed = true
	}
	if session.WorkingDir == "" && event.WorkingDir != "" {
		session.WorkingDir = event.WorkingDir
		changed = true
	}
	if session.PID == 0 && event.PID != 0 {
		session.PID = event.PID
		changed = true
	}
	return changed
}

func (s *Store) applySessionUpdate(event trace.SessionUpdate) bool {
	at := s.eventTime(event)
	session := s.ensureSession(event.SessionID(), at)
	changed := s.touch(session, at)

	// WorkingDir, Slug, and Summary keep their first observed value:
	// the incremental tail sees the log in order, so first-observed is
	// the earliest record, matching a full re-parse. GitBranch tracks
	// the latest value because branches change mid-session.
	if session.WorkingDir == "" && event.WorkingDir != "" {
		session.WorkingDir = event.WorkingDir
		changed = true
	}
	if session.Slug == "" && event.Slug != "" {
		session.Slug = event.Slug
		changed = true
	}
	if session.Summary == "" && event.Summary != "" {
		session.Summary = event.Summary
		changed = true
	}
	if event.GitBranch != "" && session.GitBranch != event.GitBranch {
		session.GitBranch = event.GitBranch
		changed = true
	}
	if event.PID != 0 && session.PID != event.PID {
		session.PID = event.PID
		changed = true
	}
	return changed
}

func (s *Store) applySessionEnd(event trace.SessionEnd) bool {
	at := s.eventTime(event)
	session := s.ensureSession(event.SessionID(), at)
	changed := s.touch(session, at)

	if session.Status.Terminal() {
		return changed
	}
	session.Status = event.Status
	session.EndedAt = at
	return true
}

func (s *Store) applyAgentStart(event trace.AgentStart) bool {
	at := s.eventTime(event)

	if existing, ok := s.agents[event.AgentID]; ok && !existing.Synthetic {
		// Duplicate start for a live agent: no-op.
		return false
	}

	session := s.ensureSession(event.SessionID(), at)
	s.touch(session, at)

	if event.ParentID != "" {
		// Parent-before-child ordering is not assumed: synthesize the
		// parent now so the tree stays connected, and let its own
		// start event merge in later.
		s.ensureAgent(event.ParentID, session.ID, at)
	}

	agent, exists := s.agents[event.AgentID]
	if !exists {
		agent = &Agent{
			ID:          event.AgentID,
			SessionID:   session.ID,
			ParentID:    event.ParentID,
			Type:        event.AgentType,
			Description: event.Description,
			Status:      trace.AgentRunning,
			StartedAt:   at,
		}
		s.agents[event.AgentID] = agent
		return true
	}

	// Merge the real start into the placeholder. Children already
	// reference this id, so the subtree reattaches without
	// duplication.
	agent.Synthetic = false
	agent.ParentID = event.ParentID
	agent.Type = event.AgentType
	agent.Description = event.Description
	agent.StartedAt = at
	return true
}

func (s *Store) applyAgentUpdate(event trace.AgentUpdate) bool {
	at := s.eventTime(event)
	agent := s.ensureAgent(event.AgentID, event.SessionID(), at)

	if agent.Status.Terminal() {
		// Terminal agents accept no further mutation. A late update is
		// replay noise, not session activity.
		return false
	}

	session := s.sessions[agent.SessionID]
	changed := s.touch(session, at)

	if event.Status != "" && event.Status != agent.Status {
		switch event.Status {
		case trace.AgentRunning, trace.AgentWaitingInput:
			agent.Status = event.Status
			changed = true
		case trace.AgentCompleted, trace.AgentFailed:
			agent.Status = event.Status
			agent.EndedAt = at
			changed = true
		}
	}
	if event.TokensUsed != nil && agent.TokensUsed != *event.TokensUsed {
		agent.TokensUsed = *event.TokensUsed
		changed = true
	}
	if event.MessageCount != nil && agent.MessageCount != *event.MessageCount {
		agent.MessageCount = *event.MessageCount
		changed = true
	}
	return changed
}

func (s *Store) applyAgentComplete(event trace.AgentComplete) bool {
	at := s.eventTime(event)
	agent := s.ensureAgent(event.AgentID, event.SessionID(), at)

	if agent.Status.Terminal() {
		// Duplicate completion: no-op.
		return false
	}
	s.touch(s.sessions[agent.SessionID], at)
	agent.Status = event.Status
	agent.EndedAt = at
	return true
}

func (s *Store) applyToolStart(event trace.ToolStart) bool {
	at := s.eventTime(event)

	if _, exists := s.tools[event.ToolID]; exists {
		// Duplicate start: no-op.
		return false
	}

	var agent *Agent
	if event.AgentID != "" {
		agent = s.ensureAgent(event.AgentID, event.SessionID(), at)
	} else {
		agent = s.rootAgent(event.SessionID(), at)
	}
	s.touch(s.sessions[agent.SessionID], at)

	tool := &ToolUse{
		ID:         event.ToolID,
		AgentID:    agent.ID,
		Name:       event.Name,
		Category:   trace.Categorize(event.Category, event.Name),
		Parameters: event.Parameters,
		Status:     trace.ToolRunning,
		StartedAt:  at,
	}
	s.tools[event.ToolID] = tool
	s.appendTool(agent, tool)
	return true
}

// appendTool adds to the agent's bounded recent list, evicting the
// oldest entries (and their index slots) beyond the limit.
func (s *Store) appendTool(agent *Agent, tool *ToolUse) {
	agent.ToolUses = append(agent.ToolUses, tool)
	for len(agent.ToolUses) > s.recentToolUses {
		evicted := agent.ToolUses[0]
		agent.ToolUses = agent.ToolUses[1:]
		delete(s.tools, evicted.ID)
	}
}

func (s *Store) applyToolComplete(event trace.ToolComplete) bool {
	at := s.eventTime(event)

	tool, exists := s.tools[event.ToolID]
	if !exists {
		// Completion for a tool we never saw start (or whose start was
		// evicted): synthesize it on the session's root agent so the
		// result is still visible.
		agent := s.rootAgent(event.SessionID(), at)
		tool = &ToolUse{
			ID:        event.ToolID,
			AgentID:   agent.ID,
			Name:      "(unknown)",
			Category:  trace.ToolBuiltin,
			Status:    event.Status,
			StartedAt: at,
			EndedAt:   at,

			ResultPreview: event.ResultPreview,
			Error:         event.Error,
		}
		s.tools[event.ToolID] = tool
		s.appendTool(agent, tool)
		s.touch(s.sessions[agent.SessionID], at)
		return true
	}

	if tool.Status != trace.ToolRunning {
		// Duplicate completion: no-op.
		return false
	}
	agent := s.agents[tool.AgentID]
	s.touch(s.sessions[agent.SessionID], at)
	tool.Status = event.Status
	tool.EndedAt = at
	tool.ResultPreview = event.ResultPreview
	tool.Error = event.Error
	return true
}

func (s *Store) applyInputRequested(event trace.InputRequested) bool {
	at := s.eventTime(event)

	if _, exists := s.requests[event.RequestID]; exists {
		// A request id is never recreated, and late duplicates after
		// responded/expired are ignored.
		return false
	}

	var agent *Agent
	if event.AgentID != "" {
		agent = s.ensureAgent(event.AgentID, event.SessionID(), at)
	} else {
		agent = s.rootAgent(event.SessionID(), at)
	}

	request := &InputRequest{
		ID:        event.RequestID,
		AgentID:   agent.ID,
		SessionID: agent.SessionID,
		Type:      event.Type,
		Prompt:    event.Prompt,
		Options:   append([]trace.Option(nil), event.Options...),
		Status:    trace.RequestPending,
		CreatedAt: at,
		TimeoutAt: event.TimeoutAt,
	}
	s.requests[event.RequestID] = request

	if !agent.Status.Terminal() {
		agent.Status = trace.AgentWaitingInput
	}
	s.touch(s.sessions[agent.SessionID], at)
	return true
}

func (s *Store) applyInputResponded(event trace.InputResponded) bool {
	at := s.eventTime(event)

	request, exists := s.requests[event.RequestID]
	if !exists {
		// A response whose request we never saw: synthesize a
		// resolved request on the session's root agent so the
		// exchange is at least visible.
		agent := s.rootAgent(event.SessionID(), at)
		s.requests[event.RequestID] = &InputRequest{
			ID:          event.RequestID,
			AgentID:     agent.ID,
			SessionID:   agent.SessionID,
			Type:        trace.RequestQuestion,
			Status:      trace.RequestResponded,
			Response:    event.Response,
			CreatedAt:   at,
			RespondedAt: at,
		}
		s.touch(s.sessions[agent.SessionID], at)
		return true
	}

	if request.Status.Terminal() {
		// Late or duplicate response for a settled request: no-op.
		return false
	}
	s.touch(s.sessions[request.SessionID], at)
	request.Status = trace.RequestResponded
	request.Response = event.Response
	request.RespondedAt = at
	s.settleAgentWaiting(request.AgentID)
	return true
}

// settleAgentWaiting drops an agent back to running when no pending
// requests remain against it.
func (s *Store) settleAgentWaiting(agentID string) {
	agent, ok := s.agents[agentID]
	if !ok || agent.Status != trace.AgentWaitingInput {
		return
	}
	for _, request := range s.requests {
		if request.AgentID == agentID && request.Status == trace.RequestPending {
			return
		}
	}
	agent.Status = trace.AgentRunning
}

func (s *Store) applyMessage(event trace.Message) bool {
	at := s.eventTime(event)
	session := s.ensureSession(event.SessionID(), at)
	changed := s.touch(session, at)

	if _, seen := session.seenMessages[event.MessageID]; seen {
		// Re-read after a truncation reset: already counted.
		return changed
	}
	session.seenMessages[event.MessageID] = struct{}{}
	session.MessageCount++

	root := s.rootAgent(session.ID, at)
	root.MessageCount++
	root.TokensUsed += event.Tokens
	return true
}
