// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedRecord is the sentinel wrapped by every ParseError.
// Callers test with errors.Is and skip the record; ingestion never
// halts on one bad line.
var ErrMalformedRecord = errors.New("malformed record")

// ParseError classifies a record the parser could not turn into
// events. It names the offending source and line so an operator can
// find the bad record.
type ParseError struct {
	// Source identifies where the record came from: a file path or
	// the push socket name.
	Source string

	// Line is the 1-based line number within the source, or 0 for
	// discrete push messages.
	Line int

	// Reason describes what was wrong with the record.
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %v", e.Source, e.Line, e.Reason, ErrMalformedRecord)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, ErrMalformedRecord)
}

func (e *ParseError) Unwrap() error { return ErrMalformedRecord }

// Parser turns raw records into typed events. It is stateless apart
// from its sanitizer configuration and safe for concurrent use.
type Parser struct {
	sanitizer *Sanitizer
}

// NewParser returns a Parser using the given sanitizer. A nil
// sanitizer gets the defaults.
func NewParser(sanitizer *Sanitizer) *Parser {
	if sanitizer == nil {
		sanitizer = NewSanitizer(0, nil)
	}
	return &Parser{sanitizer: sanitizer}
}

// wireRecord is the superset of fields across native and transcript
// record shapes. Native records use snake_case keys; transcript
// records use the host tool's camelCase keys.
type wireRecord struct {
	// Discriminators. EventType marks a native record, Type a
	// transcript record.
	EventType string `json:"event_type"`
	Type      string `json:"type"`

	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`

	// Native session fields.
	WorkingDir string `json:"working_dir"`
	PID        int    `json:"pid"`
	Status     string `json:"status"`

	// Native agent fields.
	AgentID      string `json:"agent_id"`
	ParentID     string `json:"parent_id"`
	AgentType    string `json:"agent_type"`
	Description  string `json:"description"`
	TokensUsed   *int64 `json:"tokens_used"`
	MessageCount *int64 `json:"message_count"`

	// Native tool fields.
	ToolID        string         `json:"tool_id"`
	ToolName      string         `json:"tool_name"`
	Category      string         `json:"category"`
	Parameters    map[string]any `json:"parameters"`
	ResultPreview string         `json:"result_preview"`
	ErrorMessage  string         `json:"error"`

	// Native input-request fields.
	RequestID      string   `json:"request_id"`
	RequestType    string   `json:"request_type"`
	Prompt         string   `json:"prompt"`
	Options        []Option `json:"options"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Response       string   `json:"response"`

	// Transcript fields.
	UUID             string          `json:"uuid"`
	TranscriptID     string          `json:"sessionId"`
	CWD              string          `json:"cwd"`
	Slug             string          `json:"slug"`
	GitBranch        string          `json:"gitBranch"`
	Summary          string          `json:"summary"`
	TranscriptStatus string          `json:"transcriptStatus"`
	Message          json.RawMessage `json:"message"`
}

// workingDirectory prefers the native working_dir key. Producers that
// mirror the transcript vocabulary (the demo generator, hook scripts)
// put the directory under cwd on native records too, so fall back to
// that.
func (r *wireRecord) workingDirectory() string {
	if r.WorkingDir != "" {
		return r.WorkingDir
	}
	return r.CWD
}

// Parse turns one raw line into zero or more typed events.
// fallbackSession fills the session id of events derived from records
// that do not carry one (the tailer passes the session id encoded in
// the file name; the push listener passes ""). Blank lines yield no
// events and no error.
//
// The returned error, when non-nil, is always a *ParseError wrapping
// ErrMalformedRecord.
func (p *Parser) Parse(source string, line int, data []byte, fallbackSession string) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var record wireRecord
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, &ParseError{Source: source, Line: line, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	base := Meta{
		Session:   record.SessionID,
		Timestamp: parseTimestamp(record.Timestamp),
	}
	if base.Session == "" {
		base.Session = record.TranscriptID
	}
	if base.Session == "" {
		base.Session = fallbackSession
	}

	switch {
	case record.EventType != "":
		event, err := p.native(source, line, &record, base, trimmed)
		if err != nil {
			return nil, err
		}
		return []Event{event}, nil
	case record.Type != "":
		return p.transcript(&record, base, trimmed), nil
	default:
		return nil, &ParseError{Source: source, Line: line, Reason: "record has neither event_type nor type"}
	}
}

// native maps one native record onto its event variant. Unknown event
// types are not errors: they become Ignored so newer producers keep
// working against older dashboards.
func (p *Parser) native(source string, line int, record *wireRecord, base Meta, raw []byte) (Event, error) {
	fail := func(reason string) (Event, error) {
		return nil, &ParseError{Source: source, Line: line, Reason: reason}
	}

	switch record.EventType {
	case "session_start":
		if base.Session == "" {
			return fail("session_start without session_id")
		}
		return SessionStart{Meta: base, WorkingDir: record.workingDirectory(), PID: record.PID}, nil

	case "session_update":
		if base.Session == "" {
			return fail("session_update without session_id")
		}
		return SessionUpdate{
			Meta:       base,
			WorkingDir: record.workingDirectory(),
			Slug:       record.Slug,
			GitBranch:  record.GitBranch,
			Summary:    record.Summary,
			PID:        record.PID,
		}, nil

	case "session_end":
		if base.Session == "" {
			return fail("session_end without session_id")
		}
		status := SessionStatus(record.Status)
		if !status.Terminal() {
			status = SessionCompleted
		}
		return SessionEnd{Meta: base, Status: status}, nil

	case "agent_start":
		if record.AgentID == "" {
			return fail("agent_start without agent_id")
		}
		return AgentStart{
			Meta:        base,
			AgentID:     record.AgentID,
			ParentID:    record.ParentID,
			AgentType:   record.AgentType,
			Description: record.Description,
		}, nil

	case "agent_update":
		if record.AgentID == "" {
			return fail("agent_update without agent_id")
		}
		return AgentUpdate{
			Meta:         base,
			AgentID:      record.AgentID,
			Status:       AgentStatus(record.Status),
			TokensUsed:   record.TokensUsed,
			MessageCount: record.MessageCount,
		}, nil

	case "agent_complete":
		if record.AgentID == "" {
			return fail("agent_complete without agent_id")
		}
		status := AgentStatus(record.Status)
		if !status.Terminal() {
			status = AgentCompleted
		}
		return AgentComplete{Meta: base, AgentID: record.AgentID, Status: status}, nil

	case "tool_start":
		if record.ToolID == "" {
			return fail("tool_start without tool_id")
		}
		return ToolStart{
			Meta:       base,
			ToolID:     record.ToolID,
			AgentID:    record.AgentID,
			Name:       record.ToolName,
			Category:   Categorize(ToolCategory(record.Category), record.ToolName),
			Parameters: p.sanitizer.Map(record.Parameters),
		}, nil

	case "tool_complete":
		if record.ToolID == "" {
			return fail("tool_complete without tool_id")
		}
		status := ToolStatus(record.Status)
		if status != ToolFailed {
			status = ToolCompleted
		}
		return ToolComplete{
			Meta:          base,
			ToolID:        record.ToolID,
			Status:        status,
			ResultPreview: p.sanitizer.String(record.ResultPreview),
			Error:         record.ErrorMessage,
		}, nil

	case "input_request":
		if record.RequestID == "" {
			return fail("input_request without request_id")
		}
		requestType := RequestType(record.RequestType)
		switch requestType {
		case RequestQuestion, RequestConfirmation, RequestSelection:
		default:
			requestType = RequestQuestion
		}
		var timeoutAt time.Time
		if record.TimeoutSeconds > 0 && !base.Timestamp.IsZero() {
			timeoutAt = base.Timestamp.Add(time.Duration(record.TimeoutSeconds) * time.Second)
		}
		return InputRequested{
			Meta:      base,
			RequestID: record.RequestID,
			AgentID:   record.AgentID,
			Type:      requestType,
			Prompt:    record.Prompt,
			Options:   record.Options,
			TimeoutAt: timeoutAt,
		}, nil

	case "input_response":
		if record.RequestID == "" {
			return fail("input_response without request_id")
		}
		return InputResponded{Meta: base, RequestID: record.RequestID, Response: record.Response}, nil

	default:
		return Ignored{Meta: base, Type: record.EventType, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// transcriptMessage is the "message" object of a transcript record.
// Content is either a plain string or a list of content blocks.
type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// contentBlock is one element of a transcript message content list.
type contentBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	Text      string          `json:"text"`
	IsError   bool            `json:"is_error"`
}

// transcript derives events from a host-tool session log record.
// Session metadata folds into a SessionUpdate regardless of record
// type, so even record types this build does not recognize still keep
// the session header fresh. A record that yields nothing else becomes
// Ignored.
func (p *Parser) transcript(record *wireRecord, base Meta, raw []byte) []Event {
	var events []Event

	if record.CWD != "" || record.Slug != "" || record.GitBranch != "" ||
		(record.Type == "summary" && record.Summary != "") {
		update := SessionUpdate{
			Meta:       base,
			WorkingDir: record.CWD,
			Slug:       record.Slug,
			GitBranch:  record.GitBranch,
		}
		if record.Type == "summary" {
			update.Summary = record.Summary
		}
		events = append(events, update)
	}

	switch record.Type {
	case "user", "assistant":
		var message transcriptMessage
		if len(record.Message) > 0 {
			// A malformed message object degrades to a bare Message
			// event; the uuid dedup still counts it.
			_ = json.Unmarshal(record.Message, &message)
		}

		if record.UUID != "" {
			events = append(events, Message{
				Meta:      base,
				MessageID: record.UUID,
				Role:      record.Type,
				Tokens:    message.Usage.InputTokens + message.Usage.OutputTokens,
			})
		}

		for _, block := range decodeBlocks(message.Content) {
			switch block.Type {
			case "tool_use":
				if block.ID == "" {
					continue
				}
				events = append(events, ToolStart{
					Meta:       base,
					ToolID:     block.ID,
					Name:       block.Name,
					Category:   Categorize("", block.Name),
					Parameters: p.sanitizer.Map(block.Input),
				})
			case "tool_result":
				if block.ToolUseID == "" {
					continue
				}
				status := ToolCompleted
				errorMessage := ""
				preview := p.sanitizer.String(blockText(block))
				if block.IsError {
					status = ToolFailed
					errorMessage = preview
				}
				events = append(events, ToolComplete{
					Meta:          base,
					ToolID:        block.ToolUseID,
					Status:        status,
					ResultPreview: preview,
					Error:         errorMessage,
				})
			}
		}
	}

	if len(events) == 0 {
		events = append(events, Ignored{
			Meta: base,
			Type: record.Type,
			Raw:  append(json.RawMessage(nil), raw...),
		})
	}
	return events
}

// decodeBlocks parses a content list. Plain-string content (user
// messages) has no blocks.
func decodeBlocks(content json.RawMessage) []contentBlock {
	if len(content) == 0 || content[0] != '[' {
		return nil
	}
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// blockText extracts the human-readable text of a tool_result block,
// whose content is either a string or a list of text blocks.
func blockText(block contentBlock) string {
	if len(block.Content) == 0 {
		return ""
	}
	if block.Content[0] == '"' {
		var text string
		if json.Unmarshal(block.Content, &text) == nil {
			return text
		}
		return ""
	}
	var parts []contentBlock
	if json.Unmarshal(block.Content, &parts) != nil {
		return ""
	}
	var builder strings.Builder
	for _, part := range parts {
		if part.Type == "text" && part.Text != "" {
			if builder.Len() > 0 {
				builder.WriteByte('\n')
			}
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}

// Categorize returns the declared category when valid, otherwise
// derives one from the tool name the way the host tool names things:
// "mcp__server__tool" is an MCP tool, a leading slash or a "__" infix
// marks a skill, and everything else is builtin. The store applies the
// same rule for events that arrive without a category.
func Categorize(declared ToolCategory, name string) ToolCategory {
	switch declared {
	case ToolBuiltin, ToolSkill, ToolMCP, ToolCommand:
		return declared
	}
	if strings.HasPrefix(name, "mcp__") {
		return ToolMCP
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "__") {
		return ToolSkill
	}
	return ToolBuiltin
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds.
// Anything else yields the zero time; the store substitutes its own
// clock for entity creation in that case.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC()
	}
	return time.Time{}
}
