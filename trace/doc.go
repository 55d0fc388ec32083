// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace defines the event vocabulary of the spyglass ingestion
// pipeline and the parser that turns raw log lines and push messages
// into typed events.
//
// Two record shapes are understood:
//
//   - Native event records carry an "event_type" field and map one to
//     one onto an Event variant. These arrive from the push socket and
//     from native spyglass JSONL logs. Unknown event types parse into
//     an Ignored event carrying the raw payload, so newer producers do
//     not break older dashboards.
//
//   - Transcript records are the host tool's own session log entries,
//     keyed by a "type" field (summary, user, assistant). The parser
//     derives events from them: session metadata folds into a
//     SessionUpdate, each message becomes a Message event keyed by the
//     record uuid, and tool_use/tool_result content blocks become
//     ToolStart/ToolComplete pairs.
//
// Parsing is stateless and never panics across the package boundary. A
// malformed record produces a *ParseError tagged with the source and
// line number; the caller logs it and moves on. One raw line may yield
// several events (a transcript assistant record with three tool_use
// blocks yields a SessionUpdate, a Message, and three ToolStarts).
//
// Tool parameters are sanitized before they leave this package:
// secret-looking keys are masked and oversized strings truncated, so
// nothing downstream ever holds an unredacted parameter snapshot.
package trace
