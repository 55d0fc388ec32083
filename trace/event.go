// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of an observed session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	AgentRunning      AgentStatus = "running"
	AgentCompleted    AgentStatus = "completed"
	AgentFailed       AgentStatus = "failed"
	AgentWaitingInput AgentStatus = "waiting_input"
)

// Terminal reports whether the status accepts no further transitions.
func (s AgentStatus) Terminal() bool {
	return s == AgentCompleted || s == AgentFailed
}

// ToolStatus is the lifecycle state of a tool invocation.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// ToolCategory classifies a tool by its origin.
type ToolCategory string

const (
	ToolBuiltin ToolCategory = "builtin"
	ToolSkill   ToolCategory = "skill"
	ToolMCP     ToolCategory = "mcp"
	ToolCommand ToolCategory = "command"
)

// RequestType is the shape of answer an input request expects.
type RequestType string

const (
	RequestQuestion     RequestType = "question"
	RequestConfirmation RequestType = "confirmation"
	RequestSelection    RequestType = "selection"
)

// RequestStatus is the lifecycle state of an input request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestResponded RequestStatus = "responded"
	RequestExpired   RequestStatus = "expired"
)

// Terminal reports whether the status accepts no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestResponded || s == RequestExpired
}

// Option is one choice offered by a selection-type input request.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// Event is one typed ingestion event. The concrete variants below form
// a closed set; producers sending event types outside it surface as
// Ignored rather than errors.
type Event interface {
	// SessionID returns the owning session id, or "" when the event
	// does not name one (the reducer resolves it through the target
	// entity or synthesizes an ancestor chain).
	SessionID() string

	// Time returns the event's own timestamp, or the zero time when
	// the record carried none.
	Time() time.Time
}

// Meta carries the fields shared by every event variant.
type Meta struct {
	Session   string
	Timestamp time.Time
}

func (c Meta) SessionID() string { return c.Session }
func (c Meta) Time() time.Time   { return c.Timestamp }

// SessionStart announces a new session.
type SessionStart struct {
	Meta
	WorkingDir string
	PID        int
}

// SessionUpdate merges metadata into a session. Empty string fields
// and a zero PID mean "no change".
type SessionUpdate struct {
	Meta
	WorkingDir string
	Slug       string
	GitBranch  string
	Summary    string
	PID        int
}

// SessionEnd marks a session terminal.
type SessionEnd struct {
	Meta
	Status SessionStatus
}

// AgentStart announces a new agent. An empty ParentID marks a root
// agent.
type AgentStart struct {
	Meta
	AgentID     string
	ParentID    string
	AgentType   string
	Description string
}

// AgentUpdate merges fields into an agent. Nil counter pointers mean
// "no change"; non-nil values are authoritative absolutes, not deltas.
type AgentUpdate struct {
	Meta
	AgentID      string
	Status       AgentStatus // "" means no change
	TokensUsed   *int64
	MessageCount *int64
}

// AgentComplete marks an agent terminal.
type AgentComplete struct {
	Meta
	AgentID string
	Status  AgentStatus // completed or failed
}

// ToolStart announces a tool invocation. An empty AgentID attaches the
// tool to the session's root agent (transcript-derived events cannot
// name one).
type ToolStart struct {
	Meta
	ToolID     string
	AgentID    string
	Name       string
	Category   ToolCategory
	Parameters map[string]any // sanitized before the event is emitted
}

// ToolComplete finishes a tool invocation.
type ToolComplete struct {
	Meta
	ToolID        string
	Status        ToolStatus
	ResultPreview string
	Error         string
}

// InputRequested announces a question needing a human answer.
type InputRequested struct {
	Meta
	RequestID string
	AgentID   string
	Type      RequestType
	Prompt    string
	Options   []Option
	TimeoutAt time.Time // zero means no deadline
}

// InputResponded resolves an input request.
type InputResponded struct {
	Meta
	RequestID string
	Response  string
}

// Message records one conversation message, keyed by the transcript
// record uuid so re-reads cannot double-count. Tokens is the message's
// own usage, accumulated by the store on first sight of the uuid.
type Message struct {
	Meta
	MessageID string
	Role      string
	Tokens    int64
}

// Ignored carries a record whose event type this build does not know.
// The raw payload is preserved opaquely for forward compatibility.
type Ignored struct {
	Meta
	Type string
	Raw  json.RawMessage
}
