// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package track

import (
	"strings"
	"time"

	"github.com/bureau-foundation/spyglass/trace"
)

// Session is one observed run of the host tool. Sessions are created
// on the first event naming an unseen session id and destroyed only by
// retention pruning, never by the reducer.
type Session struct {
	ID         string `json:"id"`
	WorkingDir string `json:"working_dir,omitempty"`

	// Slug is the human-readable session name from the log (e.g.
	// "parallel-pondering-bird").
	Slug      string `json:"slug,omitempty"`
	GitBranch string `json:"git_branch,omitempty"`
	Summary   string `json:"summary,omitempty"`

	Status    trace.SessionStatus `json:"status"`
	StartedAt time.Time           `json:"started_at"`
	EndedAt   time.Time           `json:"ended_at,omitempty"`

	// LastActivity is the newest event timestamp observed for this
	// session. The activity classifier reads it as the recency signal.
	LastActivity time.Time `json:"last_activity,omitempty"`

	// PID is the host process id, when an event reported one. Zero
	// means unknown.
	PID int `json:"pid,omitempty"`

	// MessageCount counts distinct conversation messages, deduplicated
	// by record uuid.
	MessageCount int64 `json:"message_count,omitempty"`

	// Synthetic marks a session created by ancestor synthesis rather
	// than an observed session_start. The renderer shows these as
	// "unknown origin".
	Synthetic bool `json:"synthetic,omitempty"`

	// seenMessages holds the uuids already counted into MessageCount,
	// so a truncation-reset re-read cannot double-count.
	seenMessages map[string]struct{}
}

// Agent is one unit of delegated work within a session. An empty
// ParentID marks a root agent.
type Agent struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	ParentID    string `json:"parent_id,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`

	Status    trace.AgentStatus `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at,omitempty"`

	// TokensUsed and MessageCount are authoritative absolutes when set
	// by agent_update events; transcript-derived messages accumulate
	// into them uuid-deduplicated.
	TokensUsed   int64 `json:"tokens_used,omitempty"`
	MessageCount int64 `json:"message_count,omitempty"`

	// Synthetic marks a placeholder created before its start event
	// arrived (or in place of one that never will).
	Synthetic bool `json:"synthetic,omitempty"`

	// ToolUses is the bounded recent tool history, oldest first. The
	// store evicts from the front beyond its configured limit.
	ToolUses []*ToolUse `json:"tool_uses,omitempty"`
}

// ToolUse is one invocation of a capability by an agent. Parameters
// are sanitized before they reach this struct.
type ToolUse struct {
	ID       string             `json:"id"`
	AgentID  string             `json:"agent_id"`
	Name     string             `json:"name"`
	Category trace.ToolCategory `json:"category"`

	Parameters map[string]any `json:"parameters,omitempty"`

	Status    trace.ToolStatus `json:"status"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at,omitempty"`

	ResultPreview string `json:"result_preview,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Duration returns the tool's elapsed time, or zero while running.
func (t *ToolUse) Duration() time.Duration {
	if t.EndedAt.IsZero() || t.StartedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// DisplayName renders the tool name the way the host tool presents it:
// "mcp__github__get_file" becomes "Github: get_file" and a skill
// becomes "/name".
func (t *ToolUse) DisplayName() string {
	if t.Category == trace.ToolMCP {
		parts := strings.Split(t.Name, "__")
		if len(parts) >= 3 {
			return titleWord(parts[1]) + ": " + strings.Join(parts[2:], "__")
		}
	}
	if t.Category == trace.ToolSkill && !strings.HasPrefix(t.Name, "/") {
		return "/" + t.Name
	}
	return t.Name
}

// titleWord upper-cases the first rune of an ASCII-ish identifier.
// Server names in tool identifiers are lowercase slugs, so this stays
// deliberately simpler than full Unicode title casing.
func titleWord(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

// InputRequest is one pending question needing a human answer.
type InputRequest struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id"`

	Type    trace.RequestType `json:"type"`
	Prompt  string            `json:"prompt"`
	Options []trace.Option    `json:"options,omitempty"`

	Status   trace.RequestStatus `json:"status"`
	Response string              `json:"response,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	RespondedAt time.Time `json:"responded_at,omitempty"`

	// TimeoutAt is the expiry deadline. Zero means the request never
	// expires on its own.
	TimeoutAt time.Time `json:"timeout_at,omitempty"`
}
