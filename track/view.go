// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"sort"
	"time"

	"github.com/bureau-foundation/spyglass/trace"
)

// Snapshot is an immutable deep copy of the model at one revision.
// Renderers hold it across frames without further locking; the store
// never mutates a returned snapshot.
type Snapshot struct {
	Revision uint64     `json:"revision"`
	TakenAt  time.Time  `json:"taken_at"`
	Sessions []*Session `json:"sessions"`

	// Pending lists unresolved input requests across all sessions,
	// oldest first, for the response surface.
	Pending []*InputRequest `json:"pending,omitempty"`
}

// AgentView is one node of a session's agent tree.
type AgentView struct {
	*Agent
	Children []*AgentView    `json:"children,omitempty"`
	Requests []*InputRequest `json:"requests,omitempty"`
}

// Snapshot deep-copies the current model. Sessions sort by
// LastActivity (most recent first, id as tiebreaker), agents and
// requests by start time then id, so two stores that reduced the same
// events render identically.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Revision: s.revision,
		TakenAt:  s.clock.Now().UTC(),
		Sessions: make([]*Session, 0, len(s.sessions)),
	}
	for _, session := range s.sessions {
		snap.Sessions = append(snap.Sessions, session.clone())
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		a, b := snap.Sessions[i], snap.Sessions[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.ID < b.ID
	})

	for _, request := range s.requests {
		if request.Status == trace.RequestPending {
			snap.Pending = append(snap.Pending, request.clone())
		}
	}
	sort.Slice(snap.Pending, func(i, j int) bool {
		a, b := snap.Pending[i], snap.Pending[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return snap
}

// AgentTree builds the agent hierarchy for one session from the
// snapshot's backing store. It must be called on the Store, not the
// snapshot, because the snapshot carries sessions only; the returned
// tree is itself a deep copy.
func (s *Store) AgentTree(sessionID string) []*AgentView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make(map[string]*AgentView)
	var all []*AgentView
	for _, agent := range s.agents {
		if agent.SessionID != sessionID {
			continue
		}
		view := &AgentView{Agent: agent.clone()}
		views[agent.ID] = view
		all = append(all, view)
	}
	for _, request := range s.requests {
		if view, ok := views[request.AgentID]; ok {
			view.Requests = append(view.Requests, request.clone())
		}
	}

	var roots []*AgentView
	for _, view := range all {
		parent, ok := views[view.ParentID]
		if view.ParentID == "" || !ok || parent == view {
			roots = append(roots, view)
			continue
		}
		parent.Children = append(parent.Children, view)
	}

	var order func(nodes []*AgentView)
	order = func(nodes []*AgentView) {
		sort.Slice(nodes, func(i, j int) bool {
			a, b := nodes[i], nodes[j]
			if !a.StartedAt.Equal(b.StartedAt) {
				return a.StartedAt.Before(b.StartedAt)
			}
			return a.ID < b.ID
		})
		for _, node := range nodes {
			sort.Slice(node.Requests, func(i, j int) bool {
				a, b := node.Requests[i], node.Requests[j]
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.Before(b.CreatedAt)
				}
				return a.ID < b.ID
			})
			order(node.Children)
		}
	}
	order(roots)
	return roots
}

// PendingRequest returns a copy of a request if it exists and is still
// pending.
func (s *Store) PendingRequest(id string) (InputRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok || request.Status != trace.RequestPending {
		return InputRequest{}, false
	}
	return *request.clone(), true
}

func (sess *Session) clone() *Session {
	copied := *sess
	copied.seenMessages = nil
	return &copied
}

func (a *Agent) clone() *Agent {
	copied := *a
	copied.ToolUses = make([]*ToolUse, len(a.ToolUses))
	for i, tool := range a.ToolUses {
		toolCopy := *tool
		toolCopy.Parameters = cloneMap(tool.Parameters)
		copied.ToolUses[i] = &toolCopy
	}
	return &copied
}

func (r *InputRequest) clone() *InputRequest {
	copied := *r
	copied.Options = append([]trace.Option(nil), r.Options...)
	return &copied
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
